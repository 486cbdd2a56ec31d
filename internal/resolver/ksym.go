package resolver

import "github.com/mvandenburgh/symbolize/internal/ksymcache"

// KSymResolver answers address queries against a parsed kallsyms table.
// kallsyms carries no line or inline information and no file-offset
// mapping, so FindLineInfo and AddrFileOff are always empty.
type KSymResolver struct {
	table *ksymcache.Table
}

// NewKSymResolver wraps table for answering queries.
func NewKSymResolver(table *ksymcache.Table) *KSymResolver {
	return &KSymResolver{table: table}
}

func (r *KSymResolver) DisplayPath() string { return "[kernel.kallsyms]" }

// FindSyms returns the single kallsyms entry containing addr.
func (r *KSymResolver) FindSyms(addr uint64) ([]Sym, error) {
	s, ok := r.table.Lookup(addr)
	if !ok {
		return nil, nil
	}
	return []Sym{{IntSym: IntSym{Name: s.Name, StartAddr: s.Addr, Lang: LangC}}}, nil
}

// FindAddr returns every kallsyms entry named name. kallsyms doesn't
// distinguish function vs. data symbols in a way this package tracks, so
// typ is accepted but not filtered on.
func (r *KSymResolver) FindAddr(name string, typ SymType) ([]AddrMatch, error) {
	var out []AddrMatch
	for _, s := range r.table.FindByName(name) {
		out = append(out, AddrMatch{Name: s.Name, Addr: s.Addr, Lang: LangC})
	}
	return out, nil
}

func (r *KSymResolver) FindLineInfo(addr uint64) (*AddrLineInfo, error) {
	return nil, nil
}

func (r *KSymResolver) AddrFileOff(addr uint64) (uint64, bool, error) {
	return 0, false, nil
}
