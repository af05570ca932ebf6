// configure build [path], configure run [path] [args...]
package cmd

import (
	"context"

	"github.com/qobs-build/configure/internal/msg"
	"github.com/spf13/cobra"
)

func doBuild(cmd *cobra.Command, args []string) {
	b := loadBuilder(cmd, args)
	if err := b.Build(context.Background(), runOptions()); err != nil {
		msg.Fatal("%v", err)
	}
}

func doRun(cmd *cobra.Command, args []string) {
	var rest []string
	if len(args) > 0 {
		rest = args[1:] // other arguments will be passed to program
		args = args[:1]
	}
	b := loadBuilder(cmd, args)
	if err := b.BuildAndRun(context.Background(), rest, runOptions()); err != nil {
		msg.Fatal("%v", err)
	}
}

var buildCmd = &cobra.Command{
	Use:   "build [project path]",
	Short: "Generate the build file and run make (or ninja) on it",
	Args:  cobra.MaximumNArgs(1),
	Run:   doBuild,
}

var runCmd = &cobra.Command{
	Use:   "run [project path] [args...]",
	Short: "Build the project and run its first executable",
	Long:  `Build the project and run its first executable. If no project path is given, uses "."`,
	Args:  cobra.ArbitraryArgs,
	Run:   doRun,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	addConfigureFlags(buildCmd)

	rootCmd.AddCommand(runCmd)
	addConfigureFlags(runCmd)
}
