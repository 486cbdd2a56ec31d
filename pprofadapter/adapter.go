// Package pprofadapter converts symbolized frame lists into a
// github.com/google/pprof Profile, for profilers and tracers that already
// speak the pprof wire format and only need this engine for the address to
// function/file/line step.
package pprofadapter

import (
	"github.com/google/pprof/profile"

	"github.com/mvandenburgh/symbolize"
)

// Build assembles a *profile.Profile with one Sample per address that
// resolved to at least one frame (addresses with no frames are skipped), each
// carrying the address's Location chain (innermost inline frame first,
// primary frame last, matching how pprof already expects an inlined stack
// to be recorded within a single Location's Line slice). addrs and frames
// must be parallel, as returned by a Symbolizer.Symbolize call.
func Build(addrs []uint64, frames [][]symbolize.Sym) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
	}

	functions := map[string]*profile.Function{}
	var nextFuncID uint64 = 1
	var nextLocID uint64 = 1

	funcFor := func(name, file string) *profile.Function {
		key := name + "\x00" + file
		if fn, ok := functions[key]; ok {
			return fn
		}
		fn := &profile.Function{ID: nextFuncID, Name: name, SystemName: name, Filename: file}
		nextFuncID++
		functions[key] = fn
		p.Function = append(p.Function, fn)
		return fn
	}

	for i, addr := range addrs {
		syms := frames[i]
		if len(syms) == 0 {
			continue
		}
		// Overlapping symbols at one address are rare; the first match is
		// the one pprof's single-location-per-address model can represent.
		sym := syms[0]

		loc := &profile.Location{ID: nextLocID, Address: addr}
		nextLocID++

		for _, inl := range sym.Inline {
			line := int64(0)
			file := ""
			if inl.AddrLineInfo != nil {
				line = int64(inl.Line)
				file = inl.File
			}
			loc.Line = append(loc.Line, profile.Line{Function: funcFor(inl.Name, file), Line: line})
		}

		line := int64(0)
		file := ""
		if sym.AddrLineInfo != nil {
			line = int64(sym.Line)
			file = sym.File
		}
		loc.Line = append(loc.Line, profile.Line{Function: funcFor(sym.Name, file), Line: line})

		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{1},
		})
	}

	return p
}
