package gen

// Toolchain holds the commands and flags written into the build file
type Toolchain struct {
	CXX         string
	Linker      string
	Options     []string
	LinkOptions []string
	Libs        []string
}

// Generator turns analyzed sources into a build file for an external executor
type Generator interface {
	SetToolchain(tc Toolchain)
	// AddObject adds a compile rule for src, rebuilt whenever src or any of
	// deps changes. Shared objects are linked into every executable.
	AddObject(obj, src string, deps []string, shared bool)
	AddExecutable(out, mainObj string)
	Generate() string
	BuildFile() string
	Invoke(dir, buildFile string) error
}

type object struct {
	obj    string
	src    string
	deps   []string
	shared bool
}

type executable struct {
	out     string
	mainObj string
}
