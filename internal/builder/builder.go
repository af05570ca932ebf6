package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/qobs-build/configure/internal/builder/gen"
	"github.com/qobs-build/configure/internal/depcache"
	"github.com/qobs-build/configure/internal/deps"
	"github.com/qobs-build/configure/internal/msg"
)

var (
	errNoExecutable = errors.New("no executable configured (use [[executable]] or -E)")
)

const (
	GeneratorMake  = "make"
	GeneratorNinja = "ninja"
)

// Options controls a single run
type Options struct {
	Generator  string
	Verbose    bool
	CMakeStyle bool
	Jobs       int
}

// FileResult is the analysis outcome for one compiled source
type FileResult struct {
	Path    string
	Object  string
	Deps    []string
	Changed bool
}

type Analysis struct {
	Tree  *deps.Tree
	Files []FileResult
	Stats deps.Stats
}

type Builder struct {
	cfg     *Config
	basedir string
	env     ConfigEnv
}

// NewBuilderInDirectory loads the configuration of the project in path
func NewBuilderInDirectory(path string) (*Builder, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	env := NewConfigEnv()
	cfg, err := LoadConfigInDirectory(path, env)
	if err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg, basedir: path, env: env}, nil
}

// Config returns the configuration, which may be adjusted before a run
func (b *Builder) Config() *Config { return b.cfg }

func (b *Builder) Basedir() string { return b.basedir }

func (b *Builder) key(p string) string { return deps.Key(b.basedir, p) }

func (b *Builder) osPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(b.basedir, filepath.FromSlash(p))
}

// objectFor maps a source to its object file, mirroring the source tree
// into the object directory
func (b *Builder) objectFor(src string) string {
	rel, ok := relTo(b.key(b.cfg.Project.Src), src)
	if !ok {
		rel = path.Base(src)
	}
	return path.Join(b.key(b.cfg.Project.Obj), strings.TrimSuffix(rel, path.Ext(rel))+".o")
}

// relTo returns p relative to dir if p lies inside it
func relTo(dir, p string) (string, bool) {
	if dir == "." {
		return p, !path.IsAbs(p) && p != ".." && !strings.HasPrefix(p, "../")
	}
	return strings.CutPrefix(p, dir+"/")
}

// sources returns the scanned files followed by executable sources that
// live outside of the source directory
func (b *Builder) sources(tree *deps.Tree) []string {
	sources := slices.Clone(tree.Files)
	for _, exe := range b.cfg.Executables {
		src := b.key(exe.Source)
		if !slices.Contains(sources, src) {
			sources = append(sources, src)
		}
	}
	return sources
}

// Analyze scans the source directory and computes the dependencies of
// every source. The dependency cache is saved exactly once, also when the
// analysis fails.
func (b *Builder) Analyze(ctx context.Context, opts Options) (*Analysis, error) {
	p := b.cfg.Project
	tree, err := deps.Scan(b.basedir, p.Src, p.Extension, p.Exclude)
	if err != nil {
		return nil, err
	}
	if len(tree.Files) == 0 {
		return nil, fmt.Errorf("%w in %s (extension %q)", deps.ErrNoSources, tree.Root, p.Extension)
	}

	cachePath := b.osPath(p.Cache)
	cache, err := depcache.Load(cachePath)
	if err != nil {
		msg.Warn("%v; starting with an empty dependency cache", err)
	}

	analysis := &Analysis{Tree: tree}
	fp := deps.NewFingerprinter(b.basedir)
	graph := deps.NewGraph(b.basedir, cache,
		deps.NewResolver(b.basedir, p.Src, b.cfg.Compiler.Include),
		fp,
		deps.Options{
			SkipSystemIncludes: p.SkipSystemIncludes,
			Observer: func(file string, d deps.Decision) {
				msg.Debug("%s: %s", file, d)
			},
		})

	runErr := b.analyzeSources(ctx, graph, fp, b.sources(tree), analysis, opts)
	analysis.Stats = graph.Stats()

	if err := cache.Save(cachePath); err != nil {
		if runErr == nil {
			return nil, fmt.Errorf("failed to save dependency cache: %w", err)
		}
		msg.Error("failed to save dependency cache: %v", err)
	}
	if runErr != nil {
		return nil, fmt.Errorf("dependency analysis failed: %w", runErr)
	}
	return analysis, nil
}

func (b *Builder) analyzeSources(ctx context.Context, graph *deps.Graph, fp *deps.Fingerprinter, sources []string, analysis *Analysis, opts Options) error {
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if err := fp.Prefetch(ctx, sources, jobs); err != nil {
		return err
	}

	var bar *msg.ProgressBar
	if !opts.Verbose {
		bar = msg.NewProgressBar(len(sources), 2, msg.Out)
		defer bar.Finish()
	}

	for _, src := range sources {
		list, err := graph.Deps(src)
		if err != nil {
			return err
		}
		changed, _ := graph.Changed(src)
		analysis.Files = append(analysis.Files, FileResult{
			Path:    src,
			Object:  b.objectFor(src),
			Deps:    list,
			Changed: changed,
		})

		if bar != nil {
			bar.Add(1)
			continue
		}
		state := "unchanged"
		if changed {
			state = "changed"
		}
		msg.Info("checked dependencies for %s (%s)", src, state)
		w := &msg.IndentWriter{Indent: "    ", W: msg.Out}
		for _, d := range list {
			fmt.Fprintln(w, d)
		}
	}
	return nil
}

// Toolchain assembles the compiler and linker settings of the build file
func (b *Builder) Toolchain() gen.Toolchain {
	c := b.cfg.Compiler
	tc := gen.Toolchain{CXX: c.Cxx, Linker: c.Linker}
	if tc.CXX == "" {
		tc.CXX = findCompiler()
	}
	if tc.Linker == "" {
		tc.Linker = tc.CXX
	}

	if !c.NoDefault {
		tc.Options = append(tc.Options, defaultOptions...)
		tc.Options = append(tc.Options, "-I"+b.key(b.cfg.Project.Src))
		tc.LinkOptions = append(tc.LinkOptions, defaultLinkOptions...)
		tc.Libs = append(tc.Libs, defaultLibs...)
	}
	tc.Options = append(tc.Options, c.Options...)
	for _, inc := range c.Include {
		tc.Options = append(tc.Options, "-I"+inc)
	}
	tc.LinkOptions = append(tc.LinkOptions, c.LinkOptions...)
	for _, dir := range c.LinkDirs {
		tc.LinkOptions = append(tc.LinkOptions, "-L"+dir)
	}
	tc.Libs = append(tc.Libs, c.Libs...)
	return tc
}

func createGenerator(generator string, opts Options) (gen.Generator, error) {
	switch generator {
	case GeneratorMake, "":
		return gen.NewMakefileGen(opts.CMakeStyle), nil
	case GeneratorNinja:
		return &gen.NinjaGen{}, nil
	default:
		return nil, fmt.Errorf("unknown generator %q", generator)
	}
}

// mkdirs creates the output directories and mirrors the source tree into
// the object directory
func (b *Builder) mkdirs(tree *deps.Tree) error {
	obj := b.key(b.cfg.Project.Obj)
	dirs := []string{b.key(b.cfg.Project.Bin), obj}
	for _, dir := range tree.Dirs {
		if rel, ok := relTo(tree.Root, dir); ok && dir != tree.Root {
			dirs = append(dirs, path.Join(obj, rel))
		}
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(b.osPath(dir), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Configure analyzes the project and writes the build file
func (b *Builder) Configure(ctx context.Context, opts Options) (*Analysis, error) {
	analysis, _, _, err := b.configure(ctx, opts)
	return analysis, err
}

func (b *Builder) configure(ctx context.Context, opts Options) (*Analysis, gen.Generator, string, error) {
	start := time.Now()

	if err := b.cfg.CheckRequires(b.env); err != nil {
		return nil, nil, "", err
	}
	g, err := createGenerator(opts.Generator, opts)
	if err != nil {
		return nil, nil, "", err
	}

	analysis, err := b.Analyze(ctx, opts)
	if err != nil {
		return nil, nil, "", err
	}

	if err := b.mkdirs(analysis.Tree); err != nil {
		return nil, nil, "", fmt.Errorf("failed to create output directories: %w", err)
	}

	g.SetToolchain(b.Toolchain())

	mains := make(map[string]bool)
	for _, exe := range b.cfg.Executables {
		mains[b.key(exe.Source)] = true
	}
	for _, f := range analysis.Files {
		g.AddObject(f.Object, f.Path, f.Deps, !mains[f.Path])
	}
	for _, exe := range b.cfg.Executables {
		out := path.Join(b.key(b.cfg.Project.Bin), exe.OutputName())
		g.AddExecutable(out, b.objectFor(b.key(exe.Source)))
	}

	buildFile := b.cfg.Project.BuildFile
	if buildFile == "" {
		buildFile = g.BuildFile()
	}
	buildPath := b.osPath(buildFile)
	if err := os.WriteFile(buildPath, []byte(g.Generate()), 0o644); err != nil {
		return nil, nil, "", err
	}

	changed := 0
	for _, f := range analysis.Files {
		if f.Changed {
			changed++
		}
	}
	msg.Info("%s generated in %.5f seconds (%d sources, %d changed, %d records reused, %d rescanned)",
		buildFile, time.Since(start).Seconds(), len(analysis.Files), changed,
		analysis.Stats.Reused, analysis.Stats.Rescanned)

	return analysis, g, buildPath, nil
}

// Build configures the project and runs the build executor on the result
func (b *Builder) Build(ctx context.Context, opts Options) error {
	_, g, buildPath, err := b.configure(ctx, opts)
	if err != nil {
		return err
	}
	return g.Invoke(b.basedir, buildPath)
}

// BuildAndRun builds the project and runs its first executable
func (b *Builder) BuildAndRun(ctx context.Context, args []string, opts Options) error {
	if len(b.cfg.Executables) == 0 {
		return errNoExecutable
	}

	if err := b.Build(ctx, opts); err != nil {
		return err
	}

	exe := b.cfg.Executables[0]
	out := filepath.Join(b.osPath(b.key(b.cfg.Project.Bin)), exe.OutputName())

	cmd := exec.CommandContext(ctx, out, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}
