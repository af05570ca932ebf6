// Package deps discovers the include dependencies of C/C++ sources.
//
// Source files are identified by keys: slash-separated paths relative to
// the project directory, or absolute paths for files that live outside of
// it (for example in a system include directory).
package deps

import (
	"path"
	"path/filepath"
)

// Key converts a path given relative to root (or absolute) into a source key.
func Key(root, p string) string {
	if !filepath.IsAbs(p) {
		return path.Clean(filepath.ToSlash(p))
	}
	if root != "" {
		rel, err := filepath.Rel(root, p)
		if err == nil && (rel == "." || filepath.IsLocal(rel)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(filepath.Clean(p))
}

// osPath maps a source key back to a path usable with the os package
func osPath(root, key string) string {
	p := filepath.FromSlash(key)
	if filepath.IsAbs(p) || root == "" {
		return p
	}
	return filepath.Join(root, p)
}
