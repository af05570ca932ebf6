package deps

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

// chunkSize bounds how much of a file is held in memory while hashing it
const chunkSize = 64 * 1024

// Fingerprinter computes content fingerprints of source files and remembers
// them for the rest of the run. It is safe for concurrent use.
type Fingerprinter struct {
	root string
	mu   sync.Mutex
	memo map[string]uint64
}

func NewFingerprinter(root string) *Fingerprinter {
	return &Fingerprinter{
		root: root,
		memo: make(map[string]uint64),
	}
}

// Fingerprint returns the xxHash64 of the file's content. A read failure is
// returned as an error, never as a changed fingerprint.
func (f *Fingerprinter) Fingerprint(file string) (uint64, error) {
	f.mu.Lock()
	hash, ok := f.memo[file]
	f.mu.Unlock()
	if ok {
		return hash, nil
	}

	hash, err := hashFile(osPath(f.root, file))
	if err != nil {
		return 0, fmt.Errorf("fingerprint %s: %w", file, err)
	}
	f.remember(file, hash)
	return hash, nil
}

func (f *Fingerprinter) remember(file string, hash uint64) {
	f.mu.Lock()
	f.memo[file] = hash
	f.mu.Unlock()
}

// Prefetch fingerprints files in parallel using at most jobs workers
func (f *Fingerprinter) Prefetch(ctx context.Context, files []string, jobs int) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(jobs, 1))

	for _, file := range files {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := f.Fingerprint(file)
			return err
		})
	}

	return eg.Wait()
}

func hashFile(path string) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	digest := xxhash.New()
	buf := make([]byte, chunkSize)
	for {
		n, err := file.Read(buf)
		_, _ = digest.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return digest.Sum64(), nil
}
