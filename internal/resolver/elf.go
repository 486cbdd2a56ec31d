package resolver

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/mvandenburgh/symbolize/internal/elfcache"
)

// ElfResolver answers address and name queries against one cached ELF
// backend.
type ElfResolver struct {
	backend     *elfcache.Backend
	displayPath string
}

// NewElfResolver wraps backend for answering queries; displayPath is what
// DisplayPath() reports (the on-disk path for a plain ELF, or a synthetic
// "<archive>!<member>" path for an archive-embedded member).
func NewElfResolver(backend *elfcache.Backend, displayPath string) *ElfResolver {
	return &ElfResolver{backend: backend, displayPath: displayPath}
}

func (r *ElfResolver) DisplayPath() string { return r.displayPath }

// BuildID exposes the backend's ELF build-id note, if present.
func (r *ElfResolver) BuildID() (string, bool) { return r.backend.BuildID() }

// FindSyms performs a containing-range search over the backend's symbol
// table (symtab, or dynsym when there is no symtab): the symbol with the
// greatest start address <= addr.
// Ties (identical start addresses) are all returned.
func (r *ElfResolver) FindSyms(addr uint64) ([]Sym, error) {
	syms := r.backend.Symbols
	i := sort.Search(len(syms), func(i int) bool { return syms[i].Value > addr })
	if i == 0 {
		return nil, nil
	}
	start := syms[i-1].Value
	var matches []elf.Symbol
	for j := i - 1; j >= 0 && syms[j].Value == start; j-- {
		// a symbol with a recorded size only contains addresses inside its
		// range; zero-sized symbols (common in hand-written assembly) are
		// treated as open-ended.
		if syms[j].Size != 0 && addr >= syms[j].Value+syms[j].Size {
			continue
		}
		matches = append(matches, syms[j])
	}

	out := make([]Sym, 0, len(matches))
	for _, m := range matches {
		sym := Sym{IntSym: IntSym{Name: m.Name, StartAddr: m.Value, Lang: guessLang(m.Name)}}
		if r.backend.HasDWARF {
			sym.Inline = r.inlineFramesAt(addr)
		}
		out = append(out, sym)
	}
	return out, nil
}

// FindAddr returns every symbol in the table matching name, filtered by
// typ (function vs. object; ELF symbol type is read from debug/elf's
// Symbol.Info, which this package doesn't otherwise expose, so any symbol
// named name is returned for SymAny).
func (r *ElfResolver) FindAddr(name string, typ SymType) ([]AddrMatch, error) {
	var out []AddrMatch
	for _, s := range r.backend.Symbols {
		if s.Name != name {
			continue
		}
		if typ == SymFunc && elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		if typ == SymObject && elf.ST_TYPE(s.Info) != elf.STT_OBJECT {
			continue
		}
		out = append(out, AddrMatch{Name: s.Name, Addr: s.Value, Lang: guessLang(s.Name)})
	}
	return out, nil
}

// FindLineInfo consults the DWARF line program for the compile unit
// containing addr, returning the row whose PC is the greatest <= addr
// within the same sequence.
func (r *ElfResolver) FindLineInfo(addr uint64) (*AddrLineInfo, error) {
	if !r.backend.HasDWARF {
		return nil, nil
	}
	return r.findLineInfoByCU(addr)
}

func (r *ElfResolver) findLineInfoByCU(addr uint64) (*AddrLineInfo, error) {
	d := r.backend.Dwarf
	reader := d.Reader()
	for {
		ent, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("walk DWARF units: %w", err)
		}
		if ent == nil {
			return nil, nil
		}
		if ent.Tag != dwarf.TagCompileUnit {
			continue
		}
		lr, err := d.LineReader(ent)
		if err != nil || lr == nil {
			reader.SkipChildren()
			continue
		}
		info, ok := bestLineRow(lr, addr)
		reader.SkipChildren()
		if ok {
			return info, nil
		}
	}
}

func bestLineRow(lr *dwarf.LineReader, addr uint64) (*AddrLineInfo, bool) {
	var best *dwarf.LineEntry
	var le dwarf.LineEntry
	for {
		if err := lr.Next(&le); err != nil {
			break
		}
		entry := le
		if entry.Address <= addr && (best == nil || entry.Address > best.Address) {
			cp := entry
			best = &cp
		}
	}
	if best == nil || best.EndSequence {
		return nil, false
	}
	info := &AddrLineInfo{
		Line:    uint32(best.Line),
		HasLine: best.Line > 0,
		Column:  uint32(best.Column),
	}
	if best.File != nil {
		info.Dir = filepath.Dir(best.File.Name)
		info.File = filepath.Base(best.File.Name)
	}
	return info, true
}

// AddrFileOff maps addr to a raw file offset via the containing PT_LOAD
// segment's (p_vaddr, p_offset) pair.
func (r *ElfResolver) AddrFileOff(addr uint64) (uint64, bool, error) {
	for _, seg := range r.backend.Segments() {
		if addr >= seg.Vaddr && addr < seg.Vaddr+seg.Memsz {
			return addr - seg.Vaddr + seg.Off, true, nil
		}
	}
	return 0, false, nil
}

func (r *ElfResolver) inlineFramesAt(addr uint64) []InlineRecord {
	d := r.backend.Dwarf
	if d == nil {
		return nil
	}
	var frames []InlineRecord
	reader := d.Reader()
	// call_file attributes index into the enclosing CU's line-table file
	// table, so the walk tracks the current CU's table as it goes.
	var cuFiles []*dwarf.LineFile
	for {
		ent, err := reader.Next()
		if err != nil || ent == nil {
			break
		}
		if ent.Tag == dwarf.TagCompileUnit {
			cuFiles = nil
			if lr, err := d.LineReader(ent); err == nil && lr != nil {
				cuFiles = lr.Files()
			}
			continue
		}
		if ent.Tag != dwarf.TagInlinedSubroutine {
			continue
		}
		if !entryCoversAddr(d, ent, addr) {
			continue
		}
		name, _ := ent.Val(dwarf.AttrName).(string)
		frames = append(frames, InlineRecord{Name: name, Location: callSiteLocation(ent, cuFiles)})
	}
	// innermost-first: DWARF nests outer-to-inner in document order, so
	// reverse the walk order collected above.
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
	return frames
}

// callSiteLocation builds the call-site source location an
// inlined-subroutine entry records, so inlined frames carry the same
// dir/file/line/column shape as primary frames. files is the enclosing
// CU's line-table file table; entry 0 may be nil before DWARF 5.
func callSiteLocation(ent *dwarf.Entry, files []*dwarf.LineFile) *AddrLineInfo {
	fileIdx, fileOK := ent.Val(dwarf.AttrCallFile).(int64)
	line, lineOK := ent.Val(dwarf.AttrCallLine).(int64)
	col, colOK := ent.Val(dwarf.AttrCallColumn).(int64)
	if !fileOK && !lineOK && !colOK {
		return nil
	}

	info := &AddrLineInfo{}
	if fileOK && fileIdx >= 0 && int(fileIdx) < len(files) && files[fileIdx] != nil {
		info.Dir = filepath.Dir(files[fileIdx].Name)
		info.File = filepath.Base(files[fileIdx].Name)
	}
	if lineOK && line > 0 {
		info.Line = uint32(line)
		info.HasLine = true
	}
	if colOK && col > 0 {
		info.Column = uint32(col)
		info.HasColumn = true
	}
	return info
}

func entryCoversAddr(d *dwarf.Data, ent *dwarf.Entry, addr uint64) bool {
	if ranges, err := d.Ranges(ent); err == nil && len(ranges) > 0 {
		for _, rg := range ranges {
			if addr >= rg[0] && addr < rg[1] {
				return true
			}
		}
		return false
	}
	low, lok := ent.Val(dwarf.AttrLowpc).(uint64)
	if !lok {
		return false
	}
	var high uint64
	switch v := ent.Val(dwarf.AttrHighpc).(type) {
	case uint64:
		high = v
	case int64:
		high = low + uint64(v)
	}
	return high > 0 && addr >= low && addr < high
}

// guessLang is a conservative heuristic: the Itanium C++ ABI and Rust's
// legacy and v0 manglers all prefix mangled names with "_Z" or "_R"; the
// DWARF producer language attribute would be more precise but many ELF
// resolvers run against stripped binaries with no CU to consult, so the
// Symbolizer's best-effort demangling is designed to tolerate an
// imprecise guess here.
func guessLang(name string) Lang {
	switch {
	case len(name) >= 2 && name[:2] == "_Z":
		return LangCpp
	case len(name) >= 2 && name[:2] == "_R":
		return LangRust
	default:
		return LangUnknown
	}
}
