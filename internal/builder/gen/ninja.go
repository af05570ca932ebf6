package gen

import (
	"os"
	"os/exec"
	"strings"
)

type NinjaGen struct {
	tc          Toolchain
	objects     []object
	executables []executable
}

func (g *NinjaGen) SetToolchain(tc Toolchain) { g.tc = tc }

func (g *NinjaGen) BuildFile() string { return "build.ninja" }

var ninjaPathEscaper = strings.NewReplacer("$", "$$", ":", "$:", " ", "$ ")

func quote(s string) string { return ninjaPathEscaper.Replace(s) }

func (g *NinjaGen) AddObject(obj, src string, deps []string, shared bool) {
	g.objects = append(g.objects, object{obj: obj, src: src, deps: deps, shared: shared})
}

func (g *NinjaGen) AddExecutable(out, mainObj string) {
	g.executables = append(g.executables, executable{out: out, mainObj: mainObj})
}

func (g *NinjaGen) Generate() string {
	var sb strings.Builder

	writeln(&sb, "ninja_required_version = 1.1")
	writeln(&sb, "cxx = ", g.tc.CXX)
	writeln(&sb, "linker = ", g.tc.Linker)
	writeln(&sb, "opt = ", strings.Join(g.tc.Options, " "))
	writeln(&sb, "link_opt = ", strings.Join(g.tc.LinkOptions, " "))
	writeln(&sb, "libs = ", strings.Join(g.tc.Libs, " "))
	writeln(&sb)

	// gen rules
	write(&sb,
		`rule cxx
  command = $cxx $opt -c $in -o $out
  description = CXX $out
`)
	write(&sb,
		`rule link
  command = $linker $link_opt $in -o $out $libs
  description = LINK $out
`)
	writeln(&sb)

	// build object files, headers are implicit dependencies
	var shared []string
	for _, o := range g.objects {
		write(&sb, "build ", quote(o.obj), ": cxx ", quote(o.src))
		if len(o.deps) > 0 {
			write(&sb, " |")
			for _, dep := range o.deps {
				write(&sb, " ", quote(dep))
			}
		}
		writeln(&sb)
		if o.shared {
			shared = append(shared, quote(o.obj))
		}
	}
	writeln(&sb)

	// link
	for _, exe := range g.executables {
		write(&sb, "build ", quote(exe.out), ": link ", quote(exe.mainObj))
		for _, obj := range shared {
			write(&sb, " ", obj)
		}
		writeln(&sb)
	}

	if len(g.executables) > 0 {
		writeln(&sb)
		write(&sb, "default")
		for _, exe := range g.executables {
			write(&sb, " ", quote(exe.out))
		}
		writeln(&sb)
	}

	return sb.String()
}

func (g *NinjaGen) Invoke(dir, buildFile string) error {
	cmd := exec.Command("ninja", "-f", buildFile)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}
