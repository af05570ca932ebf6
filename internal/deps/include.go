package deps

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
)

// #include <token> or #include "token", leading whitespace allowed
var includeRegex = regexp.MustCompile(`^\s*#include\s*(?:<([^>]+)>|"([^"]+)")`)

// Include is a single include directive found in a source file
type Include struct {
	Token string
	Angle bool // <...> form
	Line  int  // 1-based
}

// ParseInclude extracts the include token of a line, if the line is an include directive
func ParseInclude(line string) (Include, bool) {
	m := includeRegex.FindStringSubmatch(line)
	if m == nil {
		return Include{}, false
	}
	if m[1] != "" {
		return Include{Token: m[1], Angle: true}, true
	}
	return Include{Token: m[2]}, true
}

type resolution struct {
	file string
	ok   bool
}

// Resolver maps include tokens to files. The token is first looked up
// literally under the source directory, then by basename in each include
// directory, walking every directory breadth-first in lexical order.
type Resolver struct {
	root   string
	srcDir string
	dirs   []string
	memo   map[string]resolution
}

// NewResolver creates a resolver for a project rooted at root. srcDir and
// includeDirs are given relative to root or as absolute paths.
func NewResolver(root, srcDir string, includeDirs []string) *Resolver {
	dirs := make([]string, 0, len(includeDirs))
	for _, dir := range includeDirs {
		dirs = append(dirs, Key(root, dir))
	}
	return &Resolver{
		root:   root,
		srcDir: Key(root, srcDir),
		dirs:   dirs,
		memo:   make(map[string]resolution),
	}
}

// Resolve returns the file an include token found in from refers to. ok is
// false when no file matches.
func (r *Resolver) Resolve(token, from string) (file string, ok bool, err error) {
	if res, seen := r.memo[token]; seen {
		return res.file, res.ok, nil
	}

	candidate := path.Join(r.srcDir, token)
	if isRegular(osPath(r.root, candidate)) {
		r.memo[token] = resolution{file: candidate, ok: true}
		return candidate, true, nil
	}

	base := path.Base(token)
	for _, dir := range r.dirs {
		file, ok, err := r.search(dir, base)
		if err != nil {
			return "", false, fmt.Errorf("resolve %q included from %s: %w", token, from, err)
		}
		if ok {
			r.memo[token] = resolution{file: file, ok: true}
			return file, true, nil
		}
	}

	r.memo[token] = resolution{}
	return "", false, nil
}

// search walks dir breadth-first and returns the first file named base
func (r *Resolver) search(dir, base string) (string, bool, error) {
	seen := make(map[string]bool)
	queue := []string{dir}

	for i := 0; i < len(queue); i++ {
		cur := queue[i]
		realPath, err := filepath.EvalSymlinks(osPath(r.root, cur))
		if errors.Is(err, fs.ErrNotExist) {
			continue // include directories need not exist
		}
		if err != nil {
			return "", false, err
		}
		if seen[realPath] {
			continue
		}
		seen[realPath] = true

		entries, err := os.ReadDir(osPath(r.root, cur))
		if err != nil {
			return "", false, err
		}
		for _, entry := range entries {
			p := path.Join(cur, entry.Name())
			info, err := os.Stat(osPath(r.root, p))
			if errors.Is(err, fs.ErrNotExist) {
				continue // dangling symlink
			}
			if err != nil {
				return "", false, err
			}
			if info.IsDir() {
				queue = append(queue, p)
			} else if info.Mode().IsRegular() && entry.Name() == base {
				return p, true, nil
			}
		}
	}

	return "", false, nil
}

func isRegular(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
