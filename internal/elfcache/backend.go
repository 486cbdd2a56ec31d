// Package elfcache builds and memoizes the parsed, indexed form of ELF
// files: a Backend either has just a symbol index ("ELF-only") or
// additionally DWARF units and a line-program index ("ELF+DWARF"),
// depending on whether the cache was configured for source-location
// lookups.
package elfcache

import (
	"debug/dwarf"
	"debug/elf"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
)

// Backend is the parsed form of one ELF file, shared between the cache and
// any resolver currently using it. Resolvers never mutate a Backend.
type Backend struct {
	Path string

	file *elf.File

	// Symbols is the .symtab symbol table, or .dynsym when .symtab is
	// absent or empty, sorted ascending by Value with zero-valued
	// (undefined) symbols dropped.
	Symbols []elf.Symbol

	Dwarf    *dwarf.Data // nil unless built with DWARF
	HasDWARF bool

	textAddr uint64

	// buildID is decoded while the backing file is still open; the
	// underlying reader may be closed by the time a caller asks for it.
	buildID    string
	hasBuildID bool
}

// Build opens path and indexes it. withDWARF controls whether the DWARF
// line program and debug info are additionally parsed; when it fails (no
// DWARF section, stripped binary) the Backend still works against the
// symbol table alone and HasDWARF is false.
func Build(path string, withDWARF bool) (*Backend, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		return nil, fmt.Errorf("parse ELF %s: %w", path, err)
	}

	return buildFrom(ef, path, withDWARF)
}

// BuildFromReaderAt indexes an ELF image read from r, labeled displayPath
// for diagnostics. This is how archive-embedded members are built: they
// are never path-keyed in Cache because one archive file can host many
// members.
func BuildFromReaderAt(r io.ReaderAt, displayPath string, withDWARF bool) (*Backend, error) {
	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("parse ELF %s: %w", displayPath, err)
	}
	return buildFrom(ef, displayPath, withDWARF)
}

func buildFrom(ef *elf.File, path string, withDWARF bool) (*Backend, error) {
	b := &Backend{Path: path, file: ef}

	// Symtab preferred, dynsym fallback: a stripped binary has no
	// .symtab, so the dynamic symbol table is the only source left. When
	// .symtab is present it already carries every exported symbol, so
	// merging both would duplicate entries rather than surface genuinely
	// overlapping ones.
	var syms []elf.Symbol
	if ef.Section(".symtab") != nil {
		if st, err := ef.Symbols(); err == nil {
			syms = st
		}
	}
	if len(syms) == 0 && ef.Section(".dynsym") != nil {
		if st, err := ef.DynamicSymbols(); err == nil {
			syms = st
		}
	}
	filtered := syms[:0]
	for _, s := range syms {
		if s.Value != 0 {
			filtered = append(filtered, s)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Value < filtered[j].Value })
	b.Symbols = filtered

	if text := ef.Section(".text"); text != nil {
		b.textAddr = text.Addr
	}

	if withDWARF {
		if d, err := ef.DWARF(); err == nil {
			b.Dwarf = d
			b.HasDWARF = true
		} else {
			slog.Info("DWARF data not available", "path", path, "error", err)
		}
	}

	b.buildID, b.hasBuildID = readBuildID(ef)

	return b, nil
}

// TextAddr is the virtual address of the .text section, used by callers
// deriving a load-address slide.
func (b *Backend) TextAddr() uint64 { return b.textAddr }

// Segments exposes PT_LOAD program headers for slide/file-offset
// computation by resolvers outside this package.
func (b *Backend) Segments() []*elf.Prog {
	var out []*elf.Prog
	for _, p := range b.file.Progs {
		if p.Type == elf.PT_LOAD {
			out = append(out, p)
		}
	}
	return out
}

// BuildID returns the ELF build-id note (.note.gnu.build-id), if present.
func (b *Backend) BuildID() (string, bool) { return b.buildID, b.hasBuildID }

func readBuildID(ef *elf.File) (string, bool) {
	sec := ef.Section(".note.gnu.build-id")
	if sec == nil {
		return "", false
	}
	data, err := sec.Data()
	if err != nil || len(data) < 16 {
		return "", false
	}
	namesz := le32(data[0:4])
	descsz := le32(data[4:8])
	noteType := le32(data[8:12])
	if noteType != 3 { // NT_GNU_BUILD_ID
		return "", false
	}
	off := 12 + align4(namesz)
	if off+descsz > uint32(len(data)) {
		return "", false
	}
	return hex.EncodeToString(data[off : off+descsz]), true
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func align4(n uint32) uint32 { return (n + 3) &^ 3 }
