package builder

import (
	"os"
	"os/exec"
)

var commonCxxCompilers = []string{"clang++", "g++", "c++", "icpx", "icpc"}

// findCompiler attempts to find a suitable C++ compiler on the system
func findCompiler() string {
	if cxx := os.Getenv("CXX"); cxx != "" {
		return cxx
	}

	for _, compiler := range commonCxxCompilers {
		if _, err := exec.LookPath(compiler); err == nil {
			return compiler
		}
	}

	return "c++"
}
