// configure init [path]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/qobs-build/configure/internal/builder"
	"github.com/qobs-build/configure/internal/msg"
	"github.com/spf13/cobra"
)

func writefile(content string, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Fprintf(msg.Out, "%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	}
}

func mkdir(elem ...string) {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		msg.Fatal("mkdir %s: %v", path, err)
	}
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "configure"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

// initIn scaffolds a project in an existing directory, leaving files that
// already exist untouched
func initIn(dir string) {
	cfg := builder.DefaultConfig()

	writefile(`[project]
src = "`+cfg.Project.Src+`"
obj = "`+cfg.Project.Obj+`"
bin = "`+cfg.Project.Bin+`"
extension = "`+cfg.Project.Extension+`"

[compiler]
options = []
include = []
libs = []

[compiler."target_os == 'darwin'"]
link_dirs = ["/opt/homebrew/lib"]

[[executable]]
source = "`+cfg.Project.Src+`/main.`+cfg.Project.Extension+`"
`, dir, builder.ConfigFilename)

	mkdir(dir, cfg.Project.Src)

	writefile(`#include <iostream>

int main() {
    std::cout << "Hello, World!" << std::endl;
    return 0;
}
`, dir, cfg.Project.Src, "main."+cfg.Project.Extension)

	writefile(cfg.Project.Obj+"/\n"+cfg.Project.Bin+"/\n"+cfg.Project.Cache+"\nMakefile\nbuild.ninja\n",
		dir, ".gitignore")

	programName := getProgramName()
	fmt.Fprintf(msg.Out, "You can now do %s to generate a Makefile, or %s to build and run.\n",
		color.HiCyanString(programName+" "+dir), color.HiCyanString(programName+" run "+dir))
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create a new project, in a new directory if a path is given",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
			mkdir(dir)
		}
		initIn(dir)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
