package deps

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var ErrNoSources = errors.New("no source files found")

// ScanError reports a directory that could not be read while scanning
type ScanError struct {
	Dir string
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("cannot read directory %s: %v", e.Dir, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Tree is the result of scanning a source directory
type Tree struct {
	Root  string   // scanned directory key
	Files []string // matching regular files, sorted
	Dirs  []string // every directory of the subtree including Root, sorted
}

// Scan enumerates the files ending in .ext under dir, a path relative to
// (or inside) the project directory root. Paths matching any of the
// doublestar exclude patterns are skipped; excluded directories are not
// descended into. Symlinked directories are followed once.
func Scan(root, dir, ext string, exclude []string) (*Tree, error) {
	for _, pat := range exclude {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pat)
		}
	}

	suffix := "." + strings.TrimPrefix(ext, ".")
	tree := &Tree{Root: Key(root, dir)}
	seen := make(map[string]bool)
	queue := []string{tree.Root}

	for i := 0; i < len(queue); i++ {
		cur := queue[i]
		realPath, err := filepath.EvalSymlinks(osPath(root, cur))
		if err != nil {
			return nil, &ScanError{Dir: cur, Err: err}
		}
		if seen[realPath] {
			continue
		}
		seen[realPath] = true
		tree.Dirs = append(tree.Dirs, cur)

		entries, err := os.ReadDir(osPath(root, cur))
		if err != nil {
			return nil, &ScanError{Dir: cur, Err: err}
		}
		for _, entry := range entries {
			p := path.Join(cur, entry.Name())
			if excluded(p, exclude) {
				continue
			}
			info, err := os.Stat(osPath(root, p))
			if errors.Is(err, fs.ErrNotExist) {
				continue // dangling symlink
			}
			if err != nil {
				return nil, &ScanError{Dir: cur, Err: err}
			}
			switch {
			case info.IsDir():
				queue = append(queue, p)
			case info.Mode().IsRegular() && strings.HasSuffix(entry.Name(), suffix):
				tree.Files = append(tree.Files, p)
			}
		}
	}

	slices.Sort(tree.Files)
	slices.Sort(tree.Dirs)
	return tree, nil
}

func excluded(p string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, p); ok {
			return true
		}
	}
	return false
}
