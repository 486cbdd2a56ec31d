package pprofadapter

import (
	"testing"

	"github.com/google/pprof/profile"

	"github.com/mvandenburgh/symbolize"
)

func findFuncByName(p *profile.Profile, name string) *profile.Function {
	for _, fn := range p.Function {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

func findLocByAddr(p *profile.Profile, addr uint64) *profile.Location {
	for _, loc := range p.Location {
		if loc.Address == addr {
			return loc
		}
	}
	return nil
}

func TestBuild_Empty(t *testing.T) {
	p := Build(nil, nil)
	if p == nil {
		t.Fatalf("expected non-nil profile")
	}
	if len(p.Sample) != 0 {
		t.Fatalf("expected 0 samples, got %d", len(p.Sample))
	}
}

func TestBuild_SingleFrame(t *testing.T) {
	addrs := []uint64{0x1010}
	frames := [][]symbolize.Sym{
		{
			{
				Name: "foo", Addr: 0x1000, Offset: 0x10,
				AddrLineInfo: &symbolize.AddrLineInfo{Dir: "/src", File: "foo.c", Line: 42, HasLine: true},
			},
		},
	}

	p := Build(addrs, frames)
	if len(p.Sample) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(p.Sample))
	}

	fn := findFuncByName(p, "foo")
	if fn == nil {
		t.Fatalf("function foo not found in profile.Function")
	}
	if fn.Filename != "foo.c" {
		t.Fatalf("Filename = %q, want foo.c", fn.Filename)
	}

	loc := findLocByAddr(p, 0x1010)
	if loc == nil {
		t.Fatalf("location for addr 0x1010 not found")
	}
	if len(loc.Line) != 1 || loc.Line[0].Function.Name != "foo" || loc.Line[0].Line != 42 {
		t.Fatalf("location lines do not reference foo:42: %+v", loc.Line)
	}
}

func TestBuild_InlineFramesLeafFirst(t *testing.T) {
	addrs := []uint64{0x2000}
	frames := [][]symbolize.Sym{
		{
			{
				Name: "outer", Addr: 0x2000,
				Inline: []symbolize.Frame{
					{Name: "innermost"},
					{Name: "middle"},
				},
			},
		},
	}

	p := Build(addrs, frames)
	loc := findLocByAddr(p, 0x2000)
	if loc == nil {
		t.Fatalf("location for addr 0x2000 not found")
	}
	// pprof expects leaf-first Line entries within one Location; the
	// symbolizer's inline list is innermost-first already.
	if len(loc.Line) != 3 {
		t.Fatalf("expected 3 lines (2 inline + primary), got %d", len(loc.Line))
	}
	want := []string{"innermost", "middle", "outer"}
	for i, name := range want {
		if loc.Line[i].Function.Name != name {
			t.Fatalf("Line[%d].Function.Name = %q, want %q", i, loc.Line[i].Function.Name, name)
		}
	}
}

func TestBuild_SkipsUnknownAddresses(t *testing.T) {
	addrs := []uint64{0x1000, 0x9999}
	frames := [][]symbolize.Sym{
		{{Name: "known", Addr: 0x1000}},
		{},
	}

	p := Build(addrs, frames)
	if len(p.Sample) != 1 {
		t.Fatalf("expected 1 sample (unknown address skipped), got %d", len(p.Sample))
	}
	if findLocByAddr(p, 0x9999) != nil {
		t.Fatalf("unknown address produced a location")
	}
}

func TestBuild_DedupsFunctions(t *testing.T) {
	addrs := []uint64{0x1000, 0x1008}
	frames := [][]symbolize.Sym{
		{{Name: "foo", Addr: 0x1000}},
		{{Name: "foo", Addr: 0x1000, Offset: 8}},
	}

	p := Build(addrs, frames)
	if len(p.Function) != 1 {
		t.Fatalf("expected function foo deduplicated to 1 entry, got %d", len(p.Function))
	}
	if len(p.Sample) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(p.Sample))
	}
}
