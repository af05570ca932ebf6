package deps

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/qobs-build/configure/internal/depcache"
)

// UnresolvedIncludeError reports an include token that matches no file
type UnresolvedIncludeError struct {
	File  string
	Line  int
	Token string
}

func (e *UnresolvedIncludeError) Error() string {
	return fmt.Sprintf("%s:%d: cannot find included file %q", e.File, e.Line, e.Token)
}

// Decision tells how the record of a file was obtained
type Decision int

const (
	Reused    Decision = iota // cached record was still valid
	Rescanned                 // file was parsed and its record recomputed
)

func (d Decision) String() string {
	switch d {
	case Reused:
		return "reused"
	case Rescanned:
		return "rescanned"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

type Stats struct {
	Reused    int
	Rescanned int
}

type Options struct {
	// SkipSystemIncludes ignores <...> includes that resolve to no file
	SkipSystemIncludes bool
	// Observer, if set, is called once for every file whose record is decided
	Observer func(file string, d Decision)
}

type visitState uint8

const (
	unvisited visitState = iota
	inProgress
	done
)

type node struct {
	state   visitState
	changed bool // own content differs from the cached record
	hash    uint64
	deps    []string

	// tarjan bookkeeping, only while in progress
	index, low int
	onStack    bool
	acc        map[string]struct{}
}

// Graph computes transitive include sets, reusing cached records of files
// whose content and dependencies did not change. Nodes are marked
// in-progress while being computed and are never re-entered; the members of
// an include cycle are completed together and share the cycle's
// dependencies. A Graph is not safe for concurrent use.
type Graph struct {
	root     string
	cache    *depcache.Cache
	resolver *Resolver
	fp       *Fingerprinter
	opts     Options

	nodes   map[string]*node
	stack   []string
	counter int
	stats   Stats
}

func NewGraph(root string, cache *depcache.Cache, resolver *Resolver, fp *Fingerprinter, opts Options) *Graph {
	return &Graph{
		root:     root,
		cache:    cache,
		resolver: resolver,
		fp:       fp,
		opts:     opts,
		nodes:    make(map[string]*node),
	}
}

// Deps returns the sorted transitive include set of file, excluding file itself
func (g *Graph) Deps(file string) ([]string, error) {
	n := g.nodes[file]
	if n == nil || n.state == unvisited {
		if err := g.visit(file); err != nil {
			g.abort()
			return nil, err
		}
		n = g.nodes[file]
	}
	if n.state == inProgress {
		return sortedKeys(n.acc, file), nil
	}
	return slices.Clone(n.deps), nil
}

// Changed reports whether the content of file differed from its cached
// record (or had none). ok is false if file has not been analyzed.
func (g *Graph) Changed(file string) (changed, ok bool) {
	n := g.nodes[file]
	if n == nil || n.state == unvisited {
		return false, false
	}
	return n.changed, true
}

func (g *Graph) Stats() Stats { return g.stats }

func (g *Graph) visit(file string) error {
	n := &node{}
	g.nodes[file] = n

	hash, err := g.fp.Fingerprint(file)
	if err != nil {
		return err
	}
	n.hash = hash

	rec, cached := g.cache.Get(file)
	n.changed = !cached || rec.Hash != hash
	if !n.changed && g.unchanged(rec.Deps) {
		n.state = done
		n.deps = slices.Clone(rec.Deps)
		g.decide(file, Reused)
		return nil
	}

	return g.rescan(file, n)
}

// unchanged reports whether every file still has the content it had when
// the cache was loaded
func (g *Graph) unchanged(files []string) bool {
	for _, file := range files {
		if n := g.nodes[file]; n != nil && n.state != unvisited {
			if n.changed {
				return false
			}
			continue
		}
		rec, ok := g.cache.Get(file)
		if !ok {
			return false
		}
		hash, err := g.fp.Fingerprint(file)
		if err != nil || hash != rec.Hash {
			return false
		}
	}
	return true
}

func (g *Graph) rescan(file string, n *node) error {
	n.state = inProgress
	n.index, n.low = g.counter, g.counter
	g.counter++
	g.stack = append(g.stack, file)
	n.onStack = true
	n.acc = make(map[string]struct{})

	hash, includes, err := g.parse(file)
	if err != nil {
		return err
	}
	// the record must describe the bytes that were parsed
	n.hash = hash
	g.fp.remember(file, hash)

	for _, inc := range includes {
		dep, ok, err := g.resolver.Resolve(inc.Token, file)
		if err != nil {
			return err
		}
		if !ok {
			if inc.Angle && g.opts.SkipSystemIncludes {
				continue
			}
			return &UnresolvedIncludeError{File: file, Line: inc.Line, Token: inc.Token}
		}
		if dep == file {
			continue
		}
		if _, seen := n.acc[dep]; seen {
			continue
		}
		n.acc[dep] = struct{}{}

		m := g.nodes[dep]
		switch {
		case m == nil || m.state == unvisited:
			if err := g.visit(dep); err != nil {
				return err
			}
			m = g.nodes[dep]
			if m.onStack {
				n.low = min(n.low, m.low)
			}
		case m.onStack:
			n.low = min(n.low, m.index)
		}

		if m.state == done {
			for _, d := range m.deps {
				n.acc[d] = struct{}{}
			}
		}
	}

	if n.low == n.index {
		g.complete(file)
	}
	return nil
}

// complete pops the component rooted at root off the stack and stores the
// record of every member
func (g *Graph) complete(root string) {
	var members []string
	for {
		w := g.stack[len(g.stack)-1]
		g.stack = g.stack[:len(g.stack)-1]
		g.nodes[w].onStack = false
		members = append(members, w)
		if w == root {
			break
		}
	}

	union := make(map[string]struct{})
	for _, m := range members {
		for d := range g.nodes[m].acc {
			union[d] = struct{}{}
		}
	}

	for _, m := range members {
		n := g.nodes[m]
		n.deps = sortedKeys(union, m)
		n.state = done
		n.acc = nil
		g.cache.Put(m, depcache.Record{Hash: n.hash, Deps: n.deps})
		g.decide(m, Rescanned)
	}
}

// abort forgets every computation left unfinished by an error
func (g *Graph) abort() {
	for _, file := range g.stack {
		delete(g.nodes, file)
	}
	g.stack = g.stack[:0]
}

func (g *Graph) decide(file string, d Decision) {
	switch d {
	case Reused:
		g.stats.Reused++
	case Rescanned:
		g.stats.Rescanned++
	}
	if g.opts.Observer != nil {
		g.opts.Observer(file, d)
	}
}

// parse reads file once, returning the fingerprint of its content and its
// include directives
func (g *Graph) parse(file string) (uint64, []Include, error) {
	f, err := os.Open(osPath(g.root, file))
	if err != nil {
		return 0, nil, fmt.Errorf("read %s: %w", file, err)
	}
	defer f.Close()

	digest := xxhash.New()
	rdr := bufio.NewReaderSize(io.TeeReader(f, digest), chunkSize)

	var includes []Include
	for lineno := 1; ; lineno++ {
		line, err := rdr.ReadString('\n')
		if inc, ok := ParseInclude(line); ok {
			inc.Line = lineno
			includes = append(includes, inc)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, nil, fmt.Errorf("read %s: %w", file, err)
		}
	}

	return digest.Sum64(), includes, nil
}

func sortedKeys(set map[string]struct{}, except string) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		if k != except {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
