// Package normalize maps virtual addresses observed in a running process
// back to file-relative addresses in the backing file (a plain ELF object,
// or an ELF member embedded in a ZIP/APK archive).
package normalize

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mvandenburgh/symbolize/internal/addrspace"
	"github.com/mvandenburgh/symbolize/internal/errs"
	"github.com/mvandenburgh/symbolize/internal/procmap"
)

// Result is the outcome of normalizing one address: either Unknown, or a
// (FileKey, RelAddr) pair identifying the backing artifact and the
// file-relative address within it.
type Result struct {
	Unknown bool
	// FileKey identifies the backing artifact: the on-disk path for a plain
	// ELF mapping, or a synthetic "<archive>!<member>" display path for an
	// archive-embedded ELF.
	FileKey string
	// OpenPath is the path to actually open bytes from (MapsPath for plain
	// ELF, the archive's MapsPath for archive members).
	OpenPath string
	// ArchiveMember is set when the result came from inside an archive.
	ArchiveMember string
	RelAddr       uint64
}

// MapReaderFunc reads the address-space map for pid; it exists so tests can
// supply synthetic maps without touching /proc.
type MapReaderFunc func(pid addrspace.Pid) ([]procmap.Entry, error)

// Normalizer maps virtual addresses to file-relative addresses using a
// process's address-space map.
type Normalizer struct {
	readMaps MapReaderFunc
}

// New returns a Normalizer reading real process maps from /proc.
func New() *Normalizer {
	return &Normalizer{readMaps: procmap.Read}
}

// NewWithMapReader returns a Normalizer using a caller-supplied map reader,
// for hermetic tests.
func NewWithMapReader(readMaps MapReaderFunc) *Normalizer {
	return &Normalizer{readMaps: readMaps}
}

// Normalize maps each address in addrs (in any order) to a Result, in
// input order. Internally it sorts addresses to run the efficient lockstep
// algorithm and then permutes the results back.
func (n *Normalizer) Normalize(pid addrspace.Pid, addrs []uint64) ([]Result, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	entries, err := n.readMaps(pid)
	if err != nil {
		return nil, err
	}
	if addrspace.IsSorted(addrs, less) {
		return normalizeSortedEntries(addrs, entries)
	}
	outcomes := addrspace.Apply(addrs, less, func(sorted []uint64) []outcome {
		results, err := normalizeSortedEntries(sorted, entries)
		return packOutcomes(results, err, len(sorted))
	})
	return unpackOutcomes(outcomes)
}

// NormalizeSorted is the fast entry point for callers that already have
// addrs sorted ascending; it skips the permutation step entirely.
func (n *Normalizer) NormalizeSorted(pid addrspace.Pid, sortedAddrs []uint64) ([]Result, error) {
	if len(sortedAddrs) == 0 {
		return nil, nil
	}
	entries, err := n.readMaps(pid)
	if err != nil {
		return nil, err
	}
	return normalizeSortedEntries(sortedAddrs, entries)
}

func less(a, b uint64) bool { return a < b }

// outcome threads a possible per-call error through addrspace.Apply, which
// itself is oblivious to errors.
type outcome struct {
	res Result
	err error
}

func packOutcomes(results []Result, err error, n int) []outcome {
	out := make([]outcome, n)
	if err != nil {
		for i := range out {
			out[i] = outcome{err: err}
		}
		return out
	}
	for i, r := range results {
		out[i] = outcome{res: r}
	}
	return out
}

func unpackOutcomes(outcomes []outcome) ([]Result, error) {
	results := make([]Result, len(outcomes))
	for i, o := range outcomes {
		if o.err != nil {
			return nil, o.err
		}
		results[i] = o.res
	}
	return results, nil
}

// normalizeSortedEntries walks addrs (sorted ascending) and the process's
// map entries (sorted by Start) in lockstep.
func normalizeSortedEntries(addrs []uint64, entries []procmap.Entry) ([]Result, error) {
	sorted := make([]procmap.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	results := make([]Result, len(addrs))
	i := 0 // map cursor
	for ai, addr := range addrs {
		for i < len(sorted) && sorted[i].End <= addr {
			i++
		}
		if i >= len(sorted) || sorted[i].Start > addr {
			results[ai] = Result{Unknown: true}
			continue
		}
		entry := sorted[i]
		if !entry.HasFile {
			results[ai] = Result{Unknown: true}
			continue
		}
		r, err := normalizeOne(addr, entry)
		if err != nil {
			return nil, err
		}
		results[ai] = r
	}
	return results, nil
}

func normalizeOne(addr uint64, entry procmap.Entry) (Result, error) {
	ext := strings.ToLower(filepath.Ext(entry.SymbolicPath))
	if ext == ".apk" || ext == ".zip" {
		return normalizeArchive(addr, entry)
	}
	relAddr := addr - (entry.Start - entry.FileOffset)
	return Result{
		FileKey:  entry.SymbolicPath,
		OpenPath: entry.MapsPath,
		RelAddr:  relAddr,
	}, nil
}

// normalizeArchive locates the embedded ELF member whose in-archive byte
// range contains the file offset corresponding to addr.
func normalizeArchive(addr uint64, entry procmap.Entry) (Result, error) {
	op := fmt.Sprintf("normalize archive address 0x%x in %s", addr, entry.SymbolicPath)
	members, err := listStoredMembers(entry.MapsPath)
	if err != nil {
		return Result{}, errs.New(errs.ParseError, op, err)
	}

	archiveOffset := addr - entry.Start + entry.FileOffset
	for _, m := range members {
		if archiveOffset >= m.DataOffset && archiveOffset < m.DataOffset+m.DataLen {
			if err := requireStored(op, m); err != nil {
				return Result{}, err
			}
			return Result{
				FileKey:       entry.SymbolicPath + "!" + m.Name,
				OpenPath:      entry.MapsPath,
				ArchiveMember: m.Name,
				RelAddr:       archiveOffset - m.DataOffset,
			}, nil
		}
	}
	return Result{}, errs.New(errs.InvalidInput, op,
		fmt.Errorf("no archive member contains file offset 0x%x", archiveOffset))
}
