package elfcache

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/mvandenburgh/symbolize/internal/errs"
)

// genToken is a cheap "has this file changed" check: size + modtime. A
// pseudo-file (procfs) can still change between reads with an unchanged
// token, which is why KSym has its own cache with inode-based keys instead
// of reusing this one.
type genToken struct {
	size    int64
	modTime int64
}

type entry struct {
	token   genToken
	backend *Backend
}

// Cache memoizes Backends by canonical filesystem path: build-once-per-path,
// rebuilt only when the path's generation token changes. It is single-
// threaded within one Symbolizer call; the mutex below guards against
// accidental concurrent Symbolizer reuse rather than being part of the
// documented contract.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]*entry
	withDWARF bool
}

// New returns an empty Cache. withDWARF controls whether newly built
// backends additionally index DWARF (i.e. whether source-location lookup
// is enabled for the owning Symbolizer).
func New(withDWARF bool) *Cache {
	return &Cache{entries: make(map[string]*entry), withDWARF: withDWARF}
}

// Get returns the Backend for path, building it on first use and rebuilding
// it if the file's (size, mtime) has changed since it was cached.
func (c *Cache) Get(path string) (*Backend, error) {
	canon, err := filepath.Abs(path)
	if err != nil {
		return nil, errs.New(errs.Io, fmt.Sprintf("canonicalize %s", path), err)
	}

	token, err := statToken(canon)
	if err != nil {
		return nil, errs.New(errs.Io, fmt.Sprintf("stat %s", canon), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[canon]; ok {
		if e.token == token {
			return e.backend, nil
		}
		slog.Info("ELF cache entry stale, rebuilding", "path", canon)
	}

	backend, err := Build(canon, c.withDWARF)
	if err != nil {
		return nil, errs.New(errs.ParseError, fmt.Sprintf("build ELF backend for %s", canon), err)
	}
	c.entries[canon] = &entry{token: token, backend: backend}
	return backend, nil
}
