package symbolize

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/mvandenburgh/symbolize/internal/elfcache"
	"github.com/mvandenburgh/symbolize/internal/gsymfmt"
	"github.com/mvandenburgh/symbolize/internal/resolver"
)

func TestSymbolizer_Elf_OwnTestBinary(t *testing.T) {
	path, err := os.Executable()
	if err != nil {
		t.Skipf("os.Executable unavailable: %v", err)
	}

	sym := NewSymbolizer()
	pc := make([]uintptr, 1)
	n := runtime.Callers(1, pc)
	if n == 0 {
		t.Fatal("runtime.Callers returned nothing")
	}

	results, err := sym.Symbolize(ElfSource(path), []uint64{uint64(pc[0])})
	if err != nil {
		t.Fatalf("Symbolize: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
}

func TestSymbolizer_Process_Self(t *testing.T) {
	pc := make([]uintptr, 1)
	n := runtime.Callers(1, pc)
	if n == 0 {
		t.Fatal("runtime.Callers returned nothing")
	}

	sym := NewSymbolizer()
	results, err := sym.Symbolize(ProcessSource(Self()), []uint64{uint64(pc[0])})
	if err != nil {
		t.Fatalf("Symbolize: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	// A return address inside the test binary's own .text should resolve
	// to a Go runtime or test function; it should not come back empty
	// unless the binary was fully stripped.
	if len(results[0]) == 0 {
		t.Log("no frames resolved for own return address (binary likely stripped); not treating as failure")
	}
}

//go:noinline
func processProbeA() int { return 1 }

//go:noinline
func processProbeB() int { return 2 }

func TestSymbolizer_Process_TwoFunctions(t *testing.T) {
	addrA := uint64(reflect.ValueOf(processProbeA).Pointer())
	addrB := uint64(reflect.ValueOf(processProbeB).Pointer())

	sym := NewSymbolizer()
	results, err := sym.Symbolize(ProcessSource(Self()), []uint64{addrA, addrB})
	if err != nil {
		t.Fatalf("Symbolize: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if len(results[0]) == 0 || len(results[1]) == 0 {
		t.Skip("own function addresses did not resolve (binary likely stripped)")
	}
	if !strings.Contains(results[0][0].Name, "processProbeA") {
		t.Fatalf("results[0][0].Name = %q, want processProbeA", results[0][0].Name)
	}
	if !strings.Contains(results[1][0].Name, "processProbeB") {
		t.Fatalf("results[1][0].Name = %q, want processProbeB", results[1][0].Name)
	}
}

func TestSymbolizer_Process_UnknownAddress(t *testing.T) {
	sym := NewSymbolizer()
	results, err := sym.Symbolize(ProcessSource(Self()), []uint64{0xffffffffffff0000})
	if err != nil {
		t.Fatalf("Symbolize: %v", err)
	}
	if len(results) != 1 || len(results[0]) != 0 {
		t.Fatalf("Symbolize(out-of-range addr) = %+v, want one empty frame list", results)
	}
}

func TestSymbolizer_ResultLengthMatchesInput(t *testing.T) {
	sym := NewSymbolizer()
	results, err := sym.Symbolize(ProcessSource(Self()), []uint64{0x1, 0x2, 0x3})
	if err != nil {
		t.Fatalf("Symbolize: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
}

func TestSymbolizer_ZeroValueSourceFails(t *testing.T) {
	// a zero-value Source resolves to sourceElf with an empty path, which
	// must fail rather than be silently misrouted.
	sym := NewSymbolizer()
	if _, err := sym.Symbolize(Source{}, []uint64{1}); err == nil {
		t.Fatalf("Symbolize(zero Source) succeeded, want error")
	}
}

func buildGsymFixture(t *testing.T) []byte {
	t.Helper()
	b := gsymfmt.NewBuilder()
	b.AddFunc(0x2000100, 0x80, "factorial",
		[]gsymfmt.LineRow{{Addr: 0x2000100, Dir: "/src", File: "fact.c", Line: 7}},
		[]gsymfmt.InlineRow{{Name: "mul", Dir: "/src", File: "fact.c", Line: 3, HasLine: true}},
	)
	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	return data
}

func TestSymbolizer_GsymData(t *testing.T) {
	sym := NewSymbolizer()
	results, err := sym.Symbolize(GsymDataSource(buildGsymFixture(t)), []uint64{0x2000100, 0x2000110})
	if err != nil {
		t.Fatalf("Symbolize: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if len(results[0]) != 1 || results[0][0].Name != "factorial" {
		t.Fatalf("results[0] = %+v, want factorial", results[0])
	}
	if results[0][0].Addr != 0x2000100 || results[0][0].Offset != 0 {
		t.Fatalf("addr/offset = %#x/%#x, want 0x2000100/0", results[0][0].Addr, results[0][0].Offset)
	}
	// addr + offset must reproduce the queried address.
	if got := results[1][0].Addr + results[1][0].Offset; got != 0x2000110 {
		t.Fatalf("addr+offset = %#x, want 0x2000110", got)
	}
	if results[0][0].AddrLineInfo == nil || results[0][0].Line != 7 {
		t.Fatalf("line info = %+v, want line 7", results[0][0].AddrLineInfo)
	}
	if len(results[0][0].Inline) != 1 || results[0][0].Inline[0].Name != "mul" {
		t.Fatalf("inline frames = %+v, want mul", results[0][0].Inline)
	}
}

func TestSymbolizer_GsymFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.gsym")
	if err := os.WriteFile(path, buildGsymFixture(t), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sym := NewSymbolizer()
	results, err := sym.Symbolize(GsymFileSource(path), []uint64{0x2000100})
	if err != nil {
		t.Fatalf("Symbolize: %v", err)
	}
	if len(results) != 1 || len(results[0]) != 1 || results[0][0].Name != "factorial" {
		t.Fatalf("results = %+v, want one factorial frame", results)
	}
}

func TestSymbolizer_GsymFile_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.gsym")
	if err := os.WriteFile(path, []byte("definitely not gsym"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	sym := NewSymbolizer()
	if _, err := sym.Symbolize(GsymFileSource(path), []uint64{1}); !IsKind(err, ParseError) {
		t.Fatalf("Symbolize(garbage gsym) error = %v, want ParseError", err)
	}
}

func TestSymbolizer_Kernel_ExplicitKallsyms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kallsyms")
	if err := os.WriteFile(path, []byte("ffffffff81000000 T _stext\nffffffff81001000 T do_irq\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sym := NewSymbolizer()
	results, err := sym.Symbolize(KernelSource(path, ""), []uint64{0xffffffff81001040})
	if err != nil {
		t.Fatalf("Symbolize: %v", err)
	}
	if len(results) != 1 || len(results[0]) != 1 {
		t.Fatalf("results = %+v, want one frame list with one frame", results)
	}
	frame := results[0][0]
	if frame.Name != "do_irq" || frame.Offset != 0x40 {
		t.Fatalf("frame = %+v, want do_irq+0x40", frame)
	}
	if frame.AddrLineInfo != nil {
		t.Fatalf("kallsyms-only kernel source produced line info: %+v", frame.AddrLineInfo)
	}
}

func TestSymbolizer_RoundTrip_FindAddrThenSymbolize(t *testing.T) {
	path, err := os.Executable()
	if err != nil {
		t.Skipf("os.Executable unavailable: %v", err)
	}
	backend, err := elfcache.Build(path, false)
	if err != nil {
		t.Fatalf("elfcache.Build: %v", err)
	}
	if len(backend.Symbols) == 0 {
		t.Skip("no symbols in test binary")
	}
	r := resolver.NewElfResolver(backend, path)

	name := backend.Symbols[len(backend.Symbols)/2].Name
	matches, err := r.FindAddr(name, resolver.SymAny)
	if err != nil {
		t.Fatalf("FindAddr: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("FindAddr(%q) found nothing", name)
	}

	sym := NewSymbolizer(WithSourceLocation(false), WithDebugSymbols(false), WithDemangling(false))
	results, err := sym.Symbolize(ElfSource(path), []uint64{matches[0].Addr})
	if err != nil {
		t.Fatalf("Symbolize: %v", err)
	}
	if len(results) != 1 || len(results[0]) == 0 {
		t.Fatalf("results = %+v, want at least one frame", results)
	}
	found := false
	for _, f := range results[0] {
		if f.Name == name {
			found = true
		}
	}
	if !found {
		t.Fatalf("symbolizing %q's address yielded %+v, want the same name back", name, results[0])
	}
}

func TestSymbolizer_EmptyAddrsNoIO(t *testing.T) {
	// an empty batch returns immediately: no file is opened, so even a
	// nonexistent source path cannot fail the call.
	sym := NewSymbolizer()
	results, err := sym.Symbolize(ElfSource("/nonexistent"), nil)
	if err != nil {
		t.Fatalf("Symbolize(empty addrs) error = %v, want nil", err)
	}
	if len(results) != 0 {
		t.Fatalf("Symbolize(empty addrs) = %+v, want empty", results)
	}
}

func TestDemangleName(t *testing.T) {
	cases := []struct {
		name string
		lang Lang
	}{
		{"_ZN3foo3barEv", LangCpp},
		{"plain_c_symbol", LangC},
	}
	for _, c := range cases {
		got := demangleName(c.name, c.lang)
		if got == "" {
			t.Errorf("demangleName(%q) returned empty string", c.name)
		}
	}
}
