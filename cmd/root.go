// configure [path]
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/qobs-build/configure/internal/builder"
	"github.com/qobs-build/configure/internal/msg"
	"github.com/spf13/cobra"
)

var (
	flagGenerator EnumValue = NewEnumValue(builder.GeneratorMake, map[string]string{
		builder.GeneratorMake:  "Generates a Makefile (default)",
		builder.GeneratorNinja: "Generates a build.ninja file",
	})
	flagVerbose    bool
	flagCMakeStyle bool
	flagNoColors   bool
	flagJobs       int
)

// loadBuilder loads the project in the directory named by args (default ".")
// and applies command-line overrides to its configuration
func loadBuilder(cmd *cobra.Command, args []string) *builder.Builder {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}

	if flagNoColors {
		color.NoColor = true
	}
	msg.Verbose = flagVerbose

	b, err := builder.NewBuilderInDirectory(target)
	if err != nil {
		msg.Fatal("%v", err)
	}
	applyConfigFlags(cmd, b.Config())
	return b
}

func runOptions() builder.Options {
	return builder.Options{
		Generator:  flagGenerator.Value(),
		Verbose:    flagVerbose,
		CMakeStyle: flagCMakeStyle,
		Jobs:       flagJobs,
	}
}

func doConfigure(cmd *cobra.Command, args []string) {
	b := loadBuilder(cmd, args)
	if _, err := b.Configure(context.Background(), runOptions()); err != nil {
		msg.Fatal("%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "configure [project path]",
	Short: "Generate build rules for a C++ source tree",
	Long: `Scans a C++ source tree, resolves the includes of every source file and
writes a Makefile (or build.ninja) with one rule per source. Dependencies are
cached by content fingerprint, so unchanged files are not scanned again.`,
	Args: cobra.MaximumNArgs(1),
	Run:  doConfigure,
}

func init() {
	addConfigureFlags(rootCmd)
}

// addConfigureFlags registers the flags shared by every command that
// configures a project
func addConfigureFlags(cmd *cobra.Command) {
	addConfigFlags(cmd)
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Show the dependencies of every file")
	cmd.Flags().BoolVarP(&flagCMakeStyle, "cmake-style", "p", false, "Display a percentage instead of the executed command")
	cmd.Flags().BoolVarP(&flagNoColors, "no-colors", "C", false, "Disable colored output")
	cmd.Flags().IntVarP(&flagJobs, "jobs", "j", 0, "Number of files fingerprinted in parallel (default: number of CPUs)")
	cmd.Flags().VarP(&flagGenerator, "gen", "g", "Generator to use, one of "+flagGenerator.HelpString())
	cmd.RegisterFlagCompletionFunc("gen", flagGenerator.CompletionFunc())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
