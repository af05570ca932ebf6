package builder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEnv = ConfigEnv{
	TargetOS:   "linux",
	TargetArch: "amd64",
	Environ:    map[string]string{"HOME": "/home/user"},
}

func TestParseConfig(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig(strings.NewReader(`
[project]
src = "source"
exclude = ["source/vendor/**"]
cache = "{{ environ.HOME }}/deps.json"
skip_system_includes = true

[compiler]
cxx = "g++"
options = ["-g"]
include = ["include"]

[compiler."target_os == 'linux'"]
options = ["-pthread"]
libs = ["-lpthread"]

[compiler."target_os == 'windows'"]
libs = ["-lws2_32"]

[[executable]]
source = "source/main.cpp"

[[executable]]
source = "tools/gen.cpp"
name = "gen-{{ target_arch }}"
`), testEnv)
	require.NoError(t, err)

	assert.Equal(t, ProjectSection{
		Src:                "source",
		Obj:                "obj",
		Bin:                "bin",
		Extension:          "cpp",
		Cache:              "/home/user/deps.json",
		Exclude:            []string{"source/vendor/**"},
		SkipSystemIncludes: true,
	}, cfg.Project)

	assert.Equal(t, "g++", cfg.Compiler.Cxx)
	assert.Equal(t, []string{"-g", "-pthread"}, cfg.Compiler.Options)
	assert.Equal(t, []string{"include"}, cfg.Compiler.Include)
	assert.Equal(t, []string{"-lpthread"}, cfg.Compiler.Libs)

	require.Len(t, cfg.Executables, 2)
	assert.Equal(t, "main", cfg.Executables[0].OutputName())
	assert.Equal(t, "gen-amd64", cfg.Executables[1].OutputName())
}

func TestParseConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "executable without source", content: "[[executable]]\nname = \"x\"\n", errMsg: "has no source"},
		{name: "bad expression", content: "[project]\nsrc = \"{{ nope( }}\"\n", errMsg: "failed to compile expression"},
		{name: "project not a table", content: "project = 3\n", errMsg: "expected a table"},
		{name: "invalid toml", content: "[project\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseConfig(strings.NewReader(tt.content), testEnv)
			require.Error(t, err)
			if tt.errMsg != "" {
				assert.ErrorContains(t, err, tt.errMsg)
			}
		})
	}
}

func TestLoadConfigInDirectory(t *testing.T) {
	t.Parallel()

	t.Run("missing file gives defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := LoadConfigInDirectory(t.TempDir(), testEnv)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("reads file", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFilename), []byte("[project]\nextension = \"cc\"\n"), 0o644))

		cfg, err := LoadConfigInDirectory(dir, testEnv)
		require.NoError(t, err)
		assert.Equal(t, "cc", cfg.Project.Extension)
		assert.Equal(t, "src", cfg.Project.Src)
	})

	t.Run("names the file on error", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFilename), []byte("[[executable]]\n"), 0o644))

		_, err := LoadConfigInDirectory(dir, testEnv)
		assert.ErrorContains(t, err, ConfigFilename)
	})
}

func TestCheckRequires(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.CheckRequires(testEnv))

	cfg.Project.Requires = "target_os == 'linux' && environ.HOME != ''"
	require.NoError(t, cfg.CheckRequires(testEnv))

	cfg.Project.Requires = "target_os == 'plan9'"
	assert.ErrorContains(t, cfg.CheckRequires(testEnv), "requirement not met")

	cfg.Project.Requires = "target_os =="
	assert.ErrorContains(t, cfg.CheckRequires(testEnv), "failed to compile")
}

func TestToolchain(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Compiler = CompilerSection{
		Cxx:         "clang++",
		Options:     []string{"-g"},
		Include:     []string{"include", "/opt/inc"},
		LinkDirs:    []string{"/opt/lib"},
		Libs:        []string{"-lm"},
		LinkOptions: []string{"-static"},
	}
	b := &Builder{cfg: cfg, basedir: t.TempDir()}

	tc := b.Toolchain()
	assert.Equal(t, "clang++", tc.CXX)
	assert.Equal(t, "clang++", tc.Linker, "the compiler links by default")
	assert.Equal(t, []string{"-Wall", "-Wextra", "-O2", "-std=c++11", "-Isrc", "-g", "-Iinclude", "-I/opt/inc"}, tc.Options)
	assert.Equal(t, []string{"-std=c++11", "-static", "-L/opt/lib"}, tc.LinkOptions)
	assert.Equal(t, []string{"-L/usr/local/lib", "-lm"}, tc.Libs)

	cfg.Compiler.NoDefault = true
	cfg.Compiler.Linker = "ld.lld"
	tc = b.Toolchain()
	assert.Equal(t, "ld.lld", tc.Linker)
	assert.Equal(t, []string{"-g", "-Iinclude", "-I/opt/inc"}, tc.Options)
	assert.Equal(t, []string{"-static", "-L/opt/lib"}, tc.LinkOptions)
	assert.Equal(t, []string{"-lm"}, tc.Libs)
}

func TestObjectFor(t *testing.T) {
	t.Parallel()

	b := &Builder{cfg: DefaultConfig(), basedir: t.TempDir()}
	assert.Equal(t, "obj/main.o", b.objectFor("src/main.cpp"))
	assert.Equal(t, "obj/net/conn.o", b.objectFor("src/net/conn.cpp"))
	assert.Equal(t, "obj/tool.o", b.objectFor("tools/tool.cpp"), "sources outside src are flattened")

	b.cfg.Project.Src = "."
	assert.Equal(t, "obj/src/main.o", b.objectFor("src/main.cpp"))
}
