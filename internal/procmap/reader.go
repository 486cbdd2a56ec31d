// Package procmap reads a process's address-space map: the per-process view
// of which virtual-address ranges are backed by which files, at what file
// offset, with what permissions.
package procmap

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mvandenburgh/symbolize/internal/addrspace"
	"github.com/mvandenburgh/symbolize/internal/errs"
)

// Entry is one record from a process's address-space map: an
// inclusive-exclusive virtual range, the file offset the range starts at,
// the access permissions, and the backing path, if any.
type Entry struct {
	Start, End uint64
	FileOffset uint64
	Perms      string
	// SymbolicPath is the path as it appears to the kernel. For a mapping
	// of an archive it is the archive's own path; the Normalizer derives
	// the "<archive>!<member>" key separately (normalize.Result.FileKey)
	// and leaves this field unchanged.
	SymbolicPath string
	// MapsPath is the path to open bytes on this host, which can differ
	// from SymbolicPath under containers (a different mount namespace).
	MapsPath string
	// HasFile is false for anonymous mappings (heap, stack, and other
	// bracketed pseudo-paths like [vdso]); such entries are retained in the
	// map but cannot back a resolver.
	HasFile bool
}

// Contains reports whether addr falls in this entry's [Start, End) range.
func (e Entry) Contains(addr uint64) bool { return addr >= e.Start && addr < e.End }

// Reader reads a single process's address-space map, re-reading the
// underlying pseudo-file on every call (maps can change as a process runs).
type Reader struct {
	// RootFor, when non-nil, returns a prefix to join with SymbolicPath to
	// derive MapsPath (e.g. "/proc/<pid>/root" when reading another mount
	// namespace). The default leaves MapsPath equal to SymbolicPath.
	RootFor func(pid addrspace.Pid) string
}

// NewReader returns a Reader using the default maps-path derivation.
func NewReader() *Reader { return &Reader{} }

// Read parses the address-space map for pid into a sequence of Entry
// values, in the kernel's presentation order (ascending by Start).
func (r *Reader) Read(pid addrspace.Pid) ([]Entry, error) {
	path := fmt.Sprintf("/proc/%s/maps", pid.ProcString())
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.Io, fmt.Sprintf("read process map %s", path), err)
	}
	defer f.Close()

	var root string
	if r.RootFor != nil {
		root = r.RootFor(pid)
	}

	var entries []Entry
	s := bufio.NewScanner(f)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := s.Text()
		if line == "" {
			continue
		}
		entry, err := parseLine(line, root)
		if err != nil {
			return nil, errs.New(errs.ParseError,
				fmt.Sprintf("parse %s line %d: %q", path, lineNo, line), err)
		}
		entries = append(entries, entry)
	}
	if err := s.Err(); err != nil {
		return nil, errs.New(errs.Io, fmt.Sprintf("read process map %s", path), err)
	}
	return entries, nil
}

// Read is a package-level convenience wrapping NewReader().Read, used by
// callers that don't need to customize maps-path derivation.
func Read(pid addrspace.Pid) ([]Entry, error) {
	return NewReader().Read(pid)
}

// parseLine parses one /proc/<pid>/maps record, e.g.:
//
//	55d4b2000000-55d4b2021000 r--p 00000000 08:01 131073 /usr/bin/myprog
func parseLine(line, root string) (Entry, error) {
	parts := strings.Fields(line)
	if len(parts) < 5 {
		return Entry{}, fmt.Errorf("not enough fields (%d)", len(parts))
	}
	addrRange := parts[0]
	perms := parts[1]
	off := parts[2]

	var path string
	if len(parts) >= 6 {
		// pathname may itself contain spaces; it's always the remainder.
		path = strings.Join(parts[5:], " ")
	}

	se := strings.SplitN(addrRange, "-", 2)
	if len(se) != 2 {
		return Entry{}, fmt.Errorf("invalid address range %q", addrRange)
	}
	start, err1 := strconv.ParseUint(se[0], 16, 64)
	end, err2 := strconv.ParseUint(se[1], 16, 64)
	offv, err3 := strconv.ParseUint(off, 16, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return Entry{}, fmt.Errorf("invalid numeric field in %q", line)
	}
	if end < start {
		return Entry{}, fmt.Errorf("end %x before start %x", end, start)
	}

	hasFile := path != "" && !strings.HasPrefix(path, "[")
	mapsPath := path
	if hasFile && root != "" {
		mapsPath = root + path
		if _, err := os.Stat(mapsPath); err != nil {
			slog.Debug("maps-path override unreadable, falling back to symbolic path", "path", mapsPath, "error", err)
			mapsPath = path
		}
	}

	return Entry{
		Start:        start,
		End:          end,
		FileOffset:   offv,
		Perms:        perms,
		SymbolicPath: path,
		MapsPath:     mapsPath,
		HasFile:      hasFile,
	}, nil
}
