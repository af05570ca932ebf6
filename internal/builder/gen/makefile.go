package gen

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

type MakefileGen struct {
	tc          Toolchain
	cmakeStyle  bool
	shell       string
	objects     []object
	executables []executable
}

// NewMakefileGen creates a Makefile generator. With cmakeStyle, recipes
// print a progress percentage instead of the executed command.
func NewMakefileGen(cmakeStyle bool) *MakefileGen {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}
	return &MakefileGen{cmakeStyle: cmakeStyle, shell: shell}
}

func (g *MakefileGen) SetToolchain(tc Toolchain) { g.tc = tc }

func (g *MakefileGen) BuildFile() string { return "Makefile" }

var makePathEscaper = strings.NewReplacer(" ", `\ `, "$", "$$", "#", `\#`)

func makeQuote(s string) string { return makePathEscaper.Replace(s) }

func (g *MakefileGen) AddObject(obj, src string, deps []string, shared bool) {
	g.objects = append(g.objects, object{obj: obj, src: src, deps: deps, shared: shared})
}

func (g *MakefileGen) AddExecutable(out, mainObj string) {
	g.executables = append(g.executables, executable{out: out, mainObj: mainObj})
}

func (g *MakefileGen) sharedObjects() []string {
	var objs []string
	for _, o := range g.objects {
		if o.shared {
			objs = append(objs, makeQuote(o.obj))
		}
	}
	return objs
}

func (g *MakefileGen) Generate() string {
	var sb strings.Builder
	shared := strings.Join(g.sharedObjects(), " ")

	writeln(&sb, "# Makefile generated by configure")
	writeln(&sb)
	writeln(&sb, "CXX := ", g.tc.CXX)
	writeln(&sb, "LINKER := ", g.tc.Linker)
	writeln(&sb, "OPT := ", strings.Join(g.tc.Options, " "))
	writeln(&sb, "LINK_OPT := ", strings.Join(g.tc.LinkOptions, " "))
	writeln(&sb, "LIBS := ", strings.Join(g.tc.Libs, " "))
	writeln(&sb, "SHELL := ", g.shell)
	writeln(&sb)

	// default goal
	write(&sb, "all :")
	for _, exe := range g.executables {
		write(&sb, " ", makeQuote(exe.out))
	}
	if shared != "" {
		write(&sb, " ", shared)
	}
	writeln(&sb)
	writeln(&sb)

	var clean []string
	for _, exe := range g.executables {
		clean = append(clean, makeQuote(exe.out))
		writeln(&sb, makeQuote(exe.out), " : ", makeQuote(exe.mainObj), " ", shared)
		if g.cmakeStyle {
			writeln(&sb, "\t@echo -e \"\\e[31;1mLinking $@\\e[0m\" && $(LINKER) $(LINK_OPT) $^ -o \"$@\" $(LIBS)")
		} else {
			writeln(&sb, "\t$(LINKER) $(LINK_OPT) $^ -o \"$@\" $(LIBS)")
		}
		writeln(&sb)
	}

	if len(g.executables) > 0 {
		first := makeQuote(g.executables[0].out)
		writeln(&sb, "run : ", first)
		writeln(&sb, "\t./", first)
		writeln(&sb, ".PHONY : run")
		writeln(&sb)
	}

	writeln(&sb, "# Create a file test-all.sh to make this work")
	writeln(&sb, "test : all")
	writeln(&sb, "\t./test-all.sh")
	writeln(&sb, ".PHONY : test")
	writeln(&sb)

	for _, o := range g.objects {
		clean = append(clean, makeQuote(o.obj))
	}
	writeln(&sb, "clean :")
	writeln(&sb, "\trm -f ", strings.Join(clean, " "))
	writeln(&sb, ".PHONY : clean")
	writeln(&sb)

	if len(g.executables) > 0 {
		writeln(&sb, "valgrind : all")
		writeln(&sb, "\tvalgrind -v --leak-check=full --tool=memcheck ./", makeQuote(g.executables[0].out))
		writeln(&sb, ".PHONY : valgrind")
		writeln(&sb)
	}

	// one rule per object, listing every dependency as a prerequisite
	for i, o := range g.objects {
		write(&sb, makeQuote(o.obj), " : ", makeQuote(o.src))
		for _, dep := range o.deps {
			write(&sb, " ", makeQuote(dep))
		}
		writeln(&sb)
		if g.cmakeStyle {
			percent := 100 * (i + 1) / len(g.objects)
			writeln(&sb, fmt.Sprintf("\t@echo -e \"[%3d%%] \\e[32mBuilding $@\\e[0m\" && $(CXX) $(OPT) $< -c -o $@", percent))
		} else {
			writeln(&sb, "\t$(CXX) $(OPT) $< -c -o $@")
		}
	}

	return sb.String()
}

func (g *MakefileGen) Invoke(dir, buildFile string) error {
	cmd := exec.Command("make", "-f", buildFile)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}
