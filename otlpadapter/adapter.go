// Package otlpadapter converts symbolized frame lists into an OTLP
// ProfilesData message, for tracers that export over the OpenTelemetry
// profiles signal and only need this engine for the address to
// function/file/line step.
package otlpadapter

import (
	v1 "go.opentelemetry.io/proto/otlp/common/v1"
	profilespb "go.opentelemetry.io/proto/otlp/profiles/v1development"
	resourcev1 "go.opentelemetry.io/proto/otlp/resource/v1"

	"github.com/mvandenburgh/symbolize"
)

// NowFunc produces the current time as Unix nanoseconds; callers supply
// their own clock so the adapter stays deterministic under test.
type NowFunc func() uint64

// Build assembles a *profilespb.ProfilesData with one sample per address
// that resolved to at least one frame, each carrying a leaf-first stack of
// inline frames followed by the primary frame. addrs and frames must be
// parallel, as returned by a symbolize.Symbolizer.Symbolize call.
func Build(addrs []uint64, frames [][]symbolize.Sym, now NowFunc) *profilespb.ProfilesData {
	nowNsec := now()

	stringTable := []string{""}
	mappingTable := []*profilespb.Mapping{{}}
	locationTable := []*profilespb.Location{{}}
	functionTable := []*profilespb.Function{{}}
	stackTable := []*profilespb.Stack{{}}

	const defaultMappingIdx = 0

	sampleType := &profilespb.ValueType{
		TypeStrindex: strIndex(&stringTable, "samples"),
		UnitStrindex: strIndex(&stringTable, "count"),
	}

	buildStack := func(addr uint64, syms []symbolize.Sym) int32 {
		if len(syms) == 0 {
			return 0
		}
		// Overlapping symbols at one address aren't representable in a
		// single OTLP stack; the first match is recorded.
		sym := syms[0]

		locIndices := make([]int32, 0, len(sym.Inline)+1)
		for _, inl := range sym.Inline {
			locIndices = append(locIndices, locationFor(&locationTable, &functionTable, &stringTable, inl.Name, inl.AddrLineInfo, addr, defaultMappingIdx))
		}
		locIndices = append(locIndices, locationFor(&locationTable, &functionTable, &stringTable, sym.Name, sym.AddrLineInfo, addr, defaultMappingIdx))

		stack := &profilespb.Stack{LocationIndices: locIndices}
		stackTable = append(stackTable, stack)
		return int32(len(stackTable) - 1)
	}

	var profileSamples []*profilespb.Sample
	for i, addr := range addrs {
		stackIdx := buildStack(addr, frames[i])
		if stackIdx == 0 {
			continue
		}
		profileSamples = append(profileSamples, &profilespb.Sample{
			StackIndex:         stackIdx,
			Values:             []int64{1},
			TimestampsUnixNano: []uint64{nowNsec},
		})
	}

	profile := &profilespb.Profile{
		TimeUnixNano: nowNsec,
		SampleType:   sampleType,
		Samples:      profileSamples,
	}

	resourceProfiles := &profilespb.ResourceProfiles{
		Resource: &resourcev1.Resource{},
		ScopeProfiles: []*profilespb.ScopeProfiles{
			{
				Scope:    &v1.InstrumentationScope{Name: "symbolize", Version: "v1"},
				Profiles: []*profilespb.Profile{profile},
			},
		},
	}

	return &profilespb.ProfilesData{
		ResourceProfiles: []*profilespb.ResourceProfiles{resourceProfiles},
		Dictionary: &profilespb.ProfilesDictionary{
			MappingTable:  mappingTable,
			LocationTable: locationTable,
			FunctionTable: functionTable,
			StackTable:    stackTable,
			StringTable:   stringTable,
		},
	}
}

func locationFor(locationTable *[]*profilespb.Location, functionTable *[]*profilespb.Function, stringTable *[]string, name string, li *symbolize.AddrLineInfo, addr uint64, mappingIdx int) int32 {
	nameIdx := strIndex(stringTable, name)
	fn := &profilespb.Function{NameStrindex: nameIdx, SystemNameStrindex: nameIdx}
	if li != nil {
		fn.FilenameStrindex = strIndex(stringTable, li.File)
	}
	*functionTable = append(*functionTable, fn)
	fnIdx := int32(len(*functionTable) - 1)

	var line int64
	if li != nil && li.HasLine {
		line = int64(li.Line)
	}

	loc := &profilespb.Location{
		Address:      addr,
		MappingIndex: int32(mappingIdx),
		Lines:        []*profilespb.Line{{FunctionIndex: fnIdx, Line: line}},
	}
	*locationTable = append(*locationTable, loc)
	return int32(len(*locationTable) - 1)
}

func strIndex(table *[]string, s string) int32 {
	for i, v := range *table {
		if v == s {
			return int32(i)
		}
	}
	*table = append(*table, s)
	return int32(len(*table) - 1)
}
