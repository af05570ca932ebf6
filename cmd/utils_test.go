package cmd

import (
	"testing"

	"github.com/qobs-build/configure/internal/builder"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeExecutables(t *testing.T) {
	t.Parallel()

	configured := []builder.ExecutableSection{{Source: "src/main.cpp", Name: "app"}}

	tests := []struct {
		name    string
		sources []string
		names   []string
		want    []builder.ExecutableSection
	}{
		{
			name:    "repeated sources with names",
			sources: []string{"src/a.cpp", "src/b.cpp", "src/c.cpp"},
			names:   []string{"first", "second"},
			want: []builder.ExecutableSection{
				{Source: "src/a.cpp", Name: "first"},
				{Source: "src/b.cpp", Name: "second"},
				{Source: "src/c.cpp"},
			},
		},
		{
			name:  "names rename configured executables",
			names: []string{"renamed", "ignored"},
			want:  []builder.ExecutableSection{{Source: "src/main.cpp", Name: "renamed"}},
		},
		{
			name: "nothing given",
			want: configured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, mergeExecutables(configured, tt.sources, tt.names))
		})
	}
	assert.Equal(t, "app", configured[0].Name, "configuration is not modified in place")
}

func TestApplyConfigFlags_Executables(t *testing.T) {
	cmd := &cobra.Command{Use: "test", Run: func(*cobra.Command, []string) {}}
	addConfigFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"-E", "src/server.cpp", "--executable-name", "server",
		"-E", "src/client.cpp", "--executable-name", "client",
		"-O", "-Wl,-rpath,/opt/lib",
	}))
	t.Cleanup(func() {
		configFlags.executables = nil
		configFlags.executableNames = nil
		configFlags.options = nil
	})

	cfg := builder.DefaultConfig()
	applyConfigFlags(cmd, cfg)

	assert.Equal(t, []builder.ExecutableSection{
		{Source: "src/server.cpp", Name: "server"},
		{Source: "src/client.cpp", Name: "client"},
	}, cfg.Executables)
	assert.Equal(t, []string{"-Wl,-rpath,/opt/lib"}, cfg.Compiler.Options)
	assert.Empty(t, cfg.Compiler.Include, "flags not given leave the configuration alone")
}
