package cmd

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/qobs-build/configure/internal/builder"
	"github.com/spf13/cobra"
)

type EnumValue struct {
	value      string
	allowed    map[string]string // value -> help text
	defaultVal string
}

func NewEnumValue(defaultVal string, allowed map[string]string) EnumValue {
	if _, ok := allowed[defaultVal]; !ok {
		panic(fmt.Sprintf("default value %q not in allowed set", defaultVal))
	}
	return EnumValue{
		value:      defaultVal,
		allowed:    allowed,
		defaultVal: defaultVal,
	}
}

func (e *EnumValue) String() string     { return e.value }
func (e *EnumValue) HelpString() string { return "[" + strings.Join(e.AllowedKeys(), ", ") + "]" }
func (e *EnumValue) Type() string       { return "enum" }
func (e *EnumValue) Value() string      { return e.value }

func (e *EnumValue) Set(v string) error {
	if _, ok := e.allowed[v]; ok {
		e.value = v
		return nil
	}
	return fmt.Errorf("must be one of: %s", strings.Join(e.AllowedKeys(), ", "))
}

func (e *EnumValue) AllowedKeys() []string {
	return slices.Sorted(maps.Keys(e.allowed))
}

func (e *EnumValue) CompletionFunc() func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		items := make([]string, 0, len(e.allowed))
		for _, k := range e.AllowedKeys() {
			if help := e.allowed[k]; help != "" {
				items = append(items, fmt.Sprintf("%s\t%s", k, help))
			} else {
				items = append(items, k)
			}
		}
		return items, cobra.ShellCompDirectiveDefault
	}
}

// configFlags holds values that override Configure.toml
var configFlags struct {
	src, obj, bin, ext, buildFile, cache string
	cxx, linker                          string
	exclude                              []string
	options, include, linkDirs, libs     []string
	linkOptions                          []string
	executables, executableNames         []string
	noDefault, skipSystemIncludes        bool
}

func addConfigFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&configFlags.src, "src", "s", "", "Source directory (default: src)")
	f.StringVarP(&configFlags.obj, "obj", "o", "", "Object directory (default: obj)")
	f.StringVarP(&configFlags.bin, "bin", "b", "", "Executable directory (default: bin)")
	f.StringVarP(&configFlags.ext, "file-extension", "e", "", "Source file extension (default: cpp)")
	f.StringVarP(&configFlags.buildFile, "makefile", "M", "", "Name of the generated build file")
	f.StringVar(&configFlags.cache, "cache", "", "Dependency cache file (default: .configure_cache.json)")
	f.StringArrayVarP(&configFlags.exclude, "exclude", "x", nil, "Glob patterns of paths to skip while scanning")
	f.StringVarP(&configFlags.cxx, "compiler", "c", "", "Compiler (default: $CXX or the first C++ compiler on PATH)")
	f.StringVarP(&configFlags.linker, "linker", "k", "", "Linker (default: the compiler)")
	f.StringArrayVarP(&configFlags.options, "options", "O", nil, "Extra compiler options")
	f.StringArrayVarP(&configFlags.include, "include", "I", nil, "Include directories, searched in order")
	f.StringArrayVarP(&configFlags.linkDirs, "link-dir", "L", nil, "Library directories")
	f.StringArrayVarP(&configFlags.libs, "lib", "l", nil, "Libraries to link against")
	f.StringArrayVarP(&configFlags.linkOptions, "linker-options", "N", nil, "Extra linker options")
	f.StringArrayVarP(&configFlags.executables, "executable", "E", nil, "Source file containing main(), may be repeated")
	f.StringArrayVar(&configFlags.executableNames, "executable-name", nil, "Name of the linked executable, one per -E in the same order")
	f.BoolVarP(&configFlags.noDefault, "no-default", "D", false, "Do not add the default compiler and linker options")
	f.BoolVar(&configFlags.skipSystemIncludes, "skip-system-includes", false, "Ignore <...> includes that cannot be found")
}

// applyConfigFlags copies every flag given on the command line into cfg
func applyConfigFlags(cmd *cobra.Command, cfg *builder.Config) {
	f := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if f.Changed(name) {
			*dst = v
		}
	}
	add := func(name string, dst *[]string, v []string) {
		if f.Changed(name) {
			*dst = append(*dst, v...)
		}
	}

	set("src", &cfg.Project.Src, configFlags.src)
	set("obj", &cfg.Project.Obj, configFlags.obj)
	set("bin", &cfg.Project.Bin, configFlags.bin)
	set("file-extension", &cfg.Project.Extension, configFlags.ext)
	set("makefile", &cfg.Project.BuildFile, configFlags.buildFile)
	set("cache", &cfg.Project.Cache, configFlags.cache)
	set("compiler", &cfg.Compiler.Cxx, configFlags.cxx)
	set("linker", &cfg.Compiler.Linker, configFlags.linker)
	add("exclude", &cfg.Project.Exclude, configFlags.exclude)
	add("options", &cfg.Compiler.Options, configFlags.options)
	add("include", &cfg.Compiler.Include, configFlags.include)
	add("link-dir", &cfg.Compiler.LinkDirs, configFlags.linkDirs)
	add("lib", &cfg.Compiler.Libs, configFlags.libs)
	add("linker-options", &cfg.Compiler.LinkOptions, configFlags.linkOptions)
	if f.Changed("no-default") {
		cfg.Compiler.NoDefault = configFlags.noDefault
	}
	if f.Changed("skip-system-includes") {
		cfg.Project.SkipSystemIncludes = configFlags.skipSystemIncludes
	}

	if f.Changed("executable") || f.Changed("executable-name") {
		cfg.Executables = mergeExecutables(cfg.Executables, configFlags.executables, configFlags.executableNames)
	}
}

// mergeExecutables pairs sources with names by position. Given sources
// replace the configured executables; names alone rename them in order.
func mergeExecutables(current []builder.ExecutableSection, sources, names []string) []builder.ExecutableSection {
	var exes []builder.ExecutableSection
	if len(sources) > 0 {
		exes = make([]builder.ExecutableSection, len(sources))
		for i, src := range sources {
			exes[i].Source = src
		}
	} else {
		exes = slices.Clone(current)
	}
	for i, name := range names {
		if i < len(exes) {
			exes[i].Name = name
		}
	}
	return exes
}
