package resolver

import (
	"github.com/mvandenburgh/symbolize/internal/gsymfmt"
)

// GsymResolver answers address queries against a parsed GSYM-shaped
// database, whether mmap-backed (a real file) or buffer-backed (GSYM data
// supplied inline, e.g. embedded in another container).
type GsymResolver struct {
	reader      *gsymfmt.Reader
	displayPath string
}

// NewGsymResolver wraps reader for answering queries.
func NewGsymResolver(reader *gsymfmt.Reader, displayPath string) *GsymResolver {
	return &GsymResolver{reader: reader, displayPath: displayPath}
}

func (r *GsymResolver) DisplayPath() string { return r.displayPath }

// FindSyms returns the function(s) whose [Addr, Addr+Size) range covers
// addr, with inline rows expanded into InlineRecords (innermost first, as
// stored).
func (r *GsymResolver) FindSyms(addr uint64) ([]Sym, error) {
	funcs := r.reader.FindFunc(addr)
	out := make([]Sym, 0, len(funcs))
	for _, fn := range funcs {
		sym := Sym{IntSym: IntSym{Name: fn.Name, StartAddr: fn.Addr, Lang: LangUnknown}}
		for _, ir := range r.reader.InlineRows(fn) {
			rec := InlineRecord{Name: ir.Name}
			if ir.HasLine {
				rec.Location = &AddrLineInfo{
					Dir:       ir.Dir,
					File:      ir.File,
					Line:      ir.Line,
					HasLine:   true,
					Column:    ir.Col,
					HasColumn: ir.HasCol,
				}
			}
			sym.Inline = append(sym.Inline, rec)
		}
		out = append(out, sym)
	}
	return out, nil
}

// FindAddr looks function names up by exact match in the GSYM string table.
func (r *GsymResolver) FindAddr(name string, typ SymType) ([]AddrMatch, error) {
	if typ == SymObject {
		// GSYM databases carry function records only.
		return nil, nil
	}
	var out []AddrMatch
	for _, fn := range r.reader.FindByName(name) {
		out = append(out, AddrMatch{Name: fn.Name, Addr: fn.Addr, Lang: LangUnknown})
	}
	return out, nil
}

// FindLineInfo returns the line row covering addr within its containing
// function, the last row whose Addr is <= the query address.
func (r *GsymResolver) FindLineInfo(addr uint64) (*AddrLineInfo, error) {
	funcs := r.reader.FindFunc(addr)
	if len(funcs) == 0 {
		return nil, nil
	}
	rows := r.reader.LineRows(funcs[0])
	var best *AddrLineInfo
	var bestAddr uint64
	for _, row := range rows {
		if row.Addr > addr {
			continue
		}
		if best == nil || row.Addr > bestAddr {
			bestAddr = row.Addr
			best = &AddrLineInfo{Dir: row.Dir, File: row.File, Line: row.Line, HasLine: true, Column: row.Col, HasColumn: row.Col != 0}
		}
	}
	return best, nil
}

// AddrFileOff is unsupported for GSYM: the format records symbol and line
// tables, not segment layout, so it never answers a file-offset query.
func (r *GsymResolver) AddrFileOff(addr uint64) (uint64, bool, error) {
	return 0, false, nil
}
