package builder_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/qobs-build/configure/internal/builder"
	"github.com/qobs-build/configure/internal/depcache"
	"github.com/qobs-build/configure/internal/deps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProject(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func readFile(t *testing.T, elem ...string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(elem...))
	require.NoError(t, err)
	return string(data)
}

const testConfig = `[project]
exclude = ["src/skip/**"]

[compiler]
cxx = "c++"

[[executable]]
source = "src/main.cpp"
name = "app"
`

func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeProject(t, dir, map[string]string{
		builder.ConfigFilename: testConfig,
		"src/main.cpp":         "#include \"util.h\"\nint main() { return util(); }\n",
		"src/util.cpp":         "#include \"util.h\"\nint util() { return 0; }\n",
		"src/util.h":           "#pragma once\n#include \"net/types.h\"\nint util();\n",
		"src/net/conn.cpp":     "#include \"net/types.h\"\n",
		"src/net/types.h":      "",
		"src/skip/broken.cpp":  "#include \"does_not_exist.h\"\n",
	})
	return dir
}

func TestConfigure(t *testing.T) {
	t.Parallel()

	dir := newProject(t)
	b, err := builder.NewBuilderInDirectory(dir)
	require.NoError(t, err)

	analysis, err := b.Configure(context.Background(), builder.Options{Jobs: 2})
	require.NoError(t, err)

	assert.Equal(t, []builder.FileResult{
		{Path: "src/main.cpp", Object: "obj/main.o", Deps: []string{"src/net/types.h", "src/util.h"}, Changed: true},
		{Path: "src/net/conn.cpp", Object: "obj/net/conn.o", Deps: []string{"src/net/types.h"}, Changed: true},
		{Path: "src/util.cpp", Object: "obj/util.o", Deps: []string{"src/net/types.h", "src/util.h"}, Changed: true},
	}, analysis.Files)
	assert.Equal(t, deps.Stats{Rescanned: 5}, analysis.Stats)

	makefile := readFile(t, dir, "Makefile")
	assert.Contains(t, makefile, "CXX := c++\n")
	assert.Contains(t, makefile, "all : bin/app obj/net/conn.o obj/util.o\n")
	assert.Contains(t, makefile, "bin/app : obj/main.o obj/net/conn.o obj/util.o\n")
	assert.Contains(t, makefile, "obj/main.o : src/main.cpp src/net/types.h src/util.h\n")
	assert.Contains(t, makefile, "obj/net/conn.o : src/net/conn.cpp src/net/types.h\n")
	assert.NotContains(t, makefile, "broken")

	assert.DirExists(t, filepath.Join(dir, "obj", "net"))
	assert.DirExists(t, filepath.Join(dir, "bin"))

	cache, err := depcache.Load(filepath.Join(dir, ".configure_cache.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.cpp", "src/net/conn.cpp", "src/net/types.h", "src/util.cpp", "src/util.h"}, cache.Paths())
	cacheData := readFile(t, dir, ".configure_cache.json")

	t.Run("second run reuses records", func(t *testing.T) {
		b, err := builder.NewBuilderInDirectory(dir)
		require.NoError(t, err)

		again, err := b.Configure(context.Background(), builder.Options{})
		require.NoError(t, err)
		assert.Equal(t, deps.Stats{Reused: 3}, again.Stats)
		for i, f := range again.Files {
			assert.False(t, f.Changed)
			assert.Equal(t, analysis.Files[i].Deps, f.Deps)
		}
		assert.Equal(t, makefile, readFile(t, dir, "Makefile"))
		assert.Equal(t, cacheData, readFile(t, dir, ".configure_cache.json"), "cache is rewritten byte for byte")
	})

	t.Run("fresh project gives the same cache", func(t *testing.T) {
		other := newProject(t)
		b, err := builder.NewBuilderInDirectory(other)
		require.NoError(t, err)

		_, err = b.Configure(context.Background(), builder.Options{Jobs: 1})
		require.NoError(t, err)
		assert.Equal(t, cacheData, readFile(t, other, ".configure_cache.json"))
		assert.Equal(t, makefile, readFile(t, other, "Makefile"))
	})
}

func TestConfigure_Ninja(t *testing.T) {
	t.Parallel()

	dir := newProject(t)
	b, err := builder.NewBuilderInDirectory(dir)
	require.NoError(t, err)

	_, err = b.Configure(context.Background(), builder.Options{Generator: builder.GeneratorNinja, Verbose: true})
	require.NoError(t, err)

	ninja := readFile(t, dir, "build.ninja")
	assert.Contains(t, ninja, "build obj/main.o: cxx src/main.cpp | src/net/types.h src/util.h\n")
	assert.Contains(t, ninja, "build bin/app: link obj/main.o obj/net/conn.o obj/util.o\n")
	assert.Contains(t, ninja, "default bin/app\n")
}

func TestConfigure_UnknownGenerator(t *testing.T) {
	t.Parallel()

	b, err := builder.NewBuilderInDirectory(newProject(t))
	require.NoError(t, err)

	_, err = b.Configure(context.Background(), builder.Options{Generator: "msbuild"})
	assert.ErrorContains(t, err, "unknown generator")
}

func TestConfigure_UnresolvedInclude(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeProject(t, dir, map[string]string{
		"src/a.cpp": "#include \"a.h\"\n",
		"src/a.h":   "",
		"src/b.cpp": "// b\n#include \"missing.h\"\n",
	})

	b, err := builder.NewBuilderInDirectory(dir)
	require.NoError(t, err)

	_, err = b.Configure(context.Background(), builder.Options{})
	require.Error(t, err)

	var uerr *deps.UnresolvedIncludeError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "src/b.cpp", uerr.File)
	assert.Equal(t, 2, uerr.Line)
	assert.Equal(t, "missing.h", uerr.Token)

	cache, err := depcache.Load(filepath.Join(dir, ".configure_cache.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.cpp", "src/a.h"}, cache.Paths())

	assert.NoFileExists(t, filepath.Join(dir, "Makefile"))
}

func TestConfigure_CorruptCache(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeProject(t, dir, map[string]string{
		"src/main.cpp":          "#include \"a.h\"\n",
		"src/a.h":               "",
		".configure_cache.json": `{"src/main.cpp": {"hash": 1}}`,
	})

	b, err := builder.NewBuilderInDirectory(dir)
	require.NoError(t, err)

	analysis, err := b.Configure(context.Background(), builder.Options{})
	require.NoError(t, err)
	assert.Equal(t, deps.Stats{Rescanned: 2}, analysis.Stats)

	cache, err := depcache.Load(filepath.Join(dir, ".configure_cache.json"))
	require.NoError(t, err)
	rec, ok := cache.Get("src/main.cpp")
	require.True(t, ok)
	assert.Equal(t, []string{"src/a.h"}, rec.Deps)
}

func TestConfigure_NoSources(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeProject(t, dir, map[string]string{"src/readme.txt": ""})

	b, err := builder.NewBuilderInDirectory(dir)
	require.NoError(t, err)

	_, err = b.Configure(context.Background(), builder.Options{})
	assert.ErrorIs(t, err, deps.ErrNoSources)
	assert.NoFileExists(t, filepath.Join(dir, ".configure_cache.json"))
}

func TestConfigure_ConfigOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeProject(t, dir, map[string]string{
		"code/main.cc":  "#include \"lib.hh\"\n",
		"vendor/lib.hh": "",
	})

	b, err := builder.NewBuilderInDirectory(dir)
	require.NoError(t, err)

	cfg := b.Config()
	cfg.Project.Src = "code"
	cfg.Project.Extension = "cc"
	cfg.Project.BuildFile = "GNUmakefile"
	cfg.Project.Cache = "state/deps.json"
	cfg.Compiler.Cxx = "c++"
	cfg.Compiler.Include = []string{"vendor"}
	cfg.Executables = []builder.ExecutableSection{{Source: "code/main.cc"}}

	analysis, err := b.Configure(context.Background(), builder.Options{})
	require.NoError(t, err)
	require.Len(t, analysis.Files, 1)
	assert.Equal(t, []string{"vendor/lib.hh"}, analysis.Files[0].Deps)

	makefile := readFile(t, dir, "GNUmakefile")
	assert.Contains(t, makefile, "-Ivendor")
	assert.Contains(t, makefile, "bin/main : obj/main.o")
	assert.FileExists(t, filepath.Join(dir, "state", "deps.json"))
}
