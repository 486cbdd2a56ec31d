package symbolize

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/mvandenburgh/symbolize/internal/elfcache"
	"github.com/mvandenburgh/symbolize/internal/errs"
	"github.com/mvandenburgh/symbolize/internal/gsymfmt"
	"github.com/mvandenburgh/symbolize/internal/ksymcache"
	"github.com/mvandenburgh/symbolize/internal/normalize"
	"github.com/mvandenburgh/symbolize/internal/resolver"
)

// Option configures a Symbolizer at construction time.
type Option func(*Symbolizer)

// WithSourceLocation toggles DWARF/GSYM line-info lookup (default on).
// Enabling it forces debug symbol parsing on; disabling it leaves the
// WithDebugSymbols setting as it is.
func WithSourceLocation(enabled bool) Option {
	return func(s *Symbolizer) { s.sourceLocation = enabled }
}

// WithDebugSymbols toggles whether ELF backends additionally parse DWARF
// (default on; implied by WithSourceLocation(true)).
func WithDebugSymbols(enabled bool) Option {
	return func(s *Symbolizer) { s.debugSymbols = enabled }
}

// WithDemangling toggles name demangling (default on).
func WithDemangling(enabled bool) Option {
	return func(s *Symbolizer) { s.demangle = enabled }
}

// Symbolizer is the engine's entry point: it owns the ELF and KSym
// caches for its lifetime and turns (source, addresses) pairs into frame
// lists. It is not safe for concurrent use; callers needing parallelism
// construct one Symbolizer per goroutine or serialize access externally.
type Symbolizer struct {
	sourceLocation bool
	debugSymbols   bool
	demangle       bool

	elfCache  *elfcache.Cache
	ksymCache *ksymcache.Cache
	normalize *normalize.Normalizer
}

// NewSymbolizer builds a Symbolizer with the given options applied over
// the defaults (source location, debug symbols, and demangling all on).
func NewSymbolizer(opts ...Option) *Symbolizer {
	s := &Symbolizer{sourceLocation: true, debugSymbols: true, demangle: true}
	for _, opt := range opts {
		opt(s)
	}
	if s.sourceLocation {
		s.debugSymbols = true
	}
	s.elfCache = elfcache.New(s.debugSymbols)
	s.ksymCache = ksymcache.New()
	s.normalize = normalize.New()
	return s
}

// Symbolize resolves addrs against source, returning one frame list per
// address in input order. The inner list is empty when an address isn't
// covered by any known symbol, and holds more than one entry only when the
// backend records overlapping symbols at the same start address.
func (s *Symbolizer) Symbolize(source Source, addrs []uint64) ([][]Sym, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	switch source.kind {
	case sourceElf:
		return s.symbolizeElf(source.path, addrs)
	case sourceProcess:
		return s.symbolizeProcess(source.pid, addrs)
	case sourceKernel:
		return s.symbolizeKernel(source.kallsymsPath, source.kernelImagePath, addrs)
	case sourceGsymFile:
		return s.symbolizeGsymFile(source.path, addrs)
	case sourceGsymData:
		return s.symbolizeGsymData(source.gsymData, addrs)
	default:
		return nil, errs.New(errs.InvalidInput, "symbolize", fmt.Errorf("unrecognized source"))
	}
}

func (s *Symbolizer) symbolizeElf(path string, addrs []uint64) ([][]Sym, error) {
	backend, err := s.elfCache.Get(path)
	if err != nil {
		return nil, err
	}
	r := resolver.NewElfResolver(backend, path)
	return s.symbolizeAgainst(r, addrs)
}

func (s *Symbolizer) symbolizeGsymFile(path string, addrs []uint64) ([][]Sym, error) {
	reader, err := gsymfmt.OpenFile(path)
	if err != nil {
		kind := errs.ParseError
		if errors.Is(err, fs.ErrNotExist) {
			kind = errs.NotFound
		}
		return nil, errs.New(kind, fmt.Sprintf("open gsym file %s", path), err)
	}
	defer reader.Close()
	r := resolver.NewGsymResolver(reader, path)
	return s.symbolizeAgainst(r, addrs)
}

func (s *Symbolizer) symbolizeGsymData(data []byte, addrs []uint64) ([][]Sym, error) {
	reader, err := gsymfmt.OpenData(data)
	if err != nil {
		return nil, errs.New(errs.ParseError, "open gsym buffer", err)
	}
	r := resolver.NewGsymResolver(reader, "<gsym data>")
	return s.symbolizeAgainst(r, addrs)
}

// symbolizeProcess handles Process-source routing: normalize every
// address, then dispatch each normalized result to either the path-keyed
// ELF cache (plain ELF mappings) or a one-off archive-member backend
// (archive mappings, never cached by path since one archive hosts many
// members).
func (s *Symbolizer) symbolizeProcess(pid Pid, addrs []uint64) ([][]Sym, error) {
	results, err := s.normalize.Normalize(pid, addrs)
	if err != nil {
		return nil, err
	}

	out := make([][]Sym, len(addrs))
	for i, nr := range results {
		if nr.Unknown {
			out[i] = nil
			continue
		}
		r, err := s.resolverForNormalized(nr)
		if err != nil {
			return nil, err
		}
		syms, err := s.symbolizeAddr(r, nr.RelAddr)
		if err != nil {
			return nil, err
		}
		out[i] = syms
	}
	return out, nil
}

func (s *Symbolizer) resolverForNormalized(nr normalize.Result) (resolver.Resolver, error) {
	if nr.ArchiveMember == "" {
		backend, err := s.elfCache.Get(nr.OpenPath)
		if err != nil {
			return nil, err
		}
		return resolver.NewElfResolver(backend, nr.FileKey), nil
	}

	f, err := os.Open(nr.OpenPath)
	if err != nil {
		return nil, errs.New(errs.Io, fmt.Sprintf("open archive %s", nr.OpenPath), err)
	}
	defer f.Close()
	member, err := openArchiveMember(f, nr.ArchiveMember)
	if err != nil {
		return nil, errs.New(errs.ParseError, fmt.Sprintf("open archive member %s", nr.FileKey), err)
	}
	backend, err := elfcache.BuildFromReaderAt(member, nr.FileKey, s.debugSymbols)
	if err != nil {
		return nil, errs.New(errs.ParseError, fmt.Sprintf("build ELF backend for %s", nr.FileKey), err)
	}
	return resolver.NewElfResolver(backend, nr.FileKey), nil
}

// symbolizeKernel handles Kernel-source routing: try /proc/kallsyms when
// no path is given, probe the conventional vmlinux locations when no image
// path is given, and proceed as long as at least one sub-resolver builds.
func (s *Symbolizer) symbolizeKernel(kallsymsPath, kernelImagePath string, addrs []uint64) ([][]Sym, error) {
	if kallsymsPath == "" {
		kallsymsPath = "/proc/kallsyms"
	}

	var ksym *resolver.KSymResolver
	if table, err := s.ksymCache.Get(kallsymsPath); err != nil {
		slog.Warn("kallsyms unavailable", "path", kallsymsPath, "error", err)
	} else {
		ksym = resolver.NewKSymResolver(table)
	}

	imagePath := kernelImagePath
	if imagePath == "" {
		imagePath = discoverKernelImage()
	}
	var image *resolver.ElfResolver
	if imagePath != "" {
		if backend, err := s.elfCache.Get(imagePath); err != nil {
			slog.Warn("kernel image unavailable", "path", imagePath, "error", err)
		} else {
			image = resolver.NewElfResolver(backend, imagePath)
		}
	}

	r, err := resolver.NewKernelResolver(ksym, image)
	if err != nil {
		return nil, err
	}
	return s.symbolizeAgainst(r, addrs)
}

// discoverKernelImage probes the conventional locations for the running
// kernel's vmlinux image; it returns "" if neither is present,
// which is not itself an error since kallsyms alone may suffice.
func discoverKernelImage() string {
	release, err := kernelRelease()
	if err != nil {
		return ""
	}
	candidates := []string{
		"/boot/vmlinux-" + release,
		"/usr/lib/debug/boot/vmlinux-" + release,
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func kernelRelease() (string, error) {
	data, err := os.ReadFile("/proc/sys/kernel/osrelease")
	if err != nil {
		return "", err
	}
	release := string(data)
	for len(release) > 0 && (release[len(release)-1] == '\n' || release[len(release)-1] == ' ') {
		release = release[:len(release)-1]
	}
	if release == "" {
		return "", fmt.Errorf("empty kernel release")
	}
	return release, nil
}

func (s *Symbolizer) symbolizeAgainst(r resolver.Resolver, addrs []uint64) ([][]Sym, error) {
	out := make([][]Sym, len(addrs))
	for i, addr := range addrs {
		syms, err := s.symbolizeAddr(r, addr)
		if err != nil {
			return nil, err
		}
		out[i] = syms
	}
	return out, nil
}

// symbolizeAddr wraps symbolizeOne's error with what the engine was doing,
// so failures carry the address and backing path no matter which source
// routed here.
func (s *Symbolizer) symbolizeAddr(r resolver.Resolver, addr uint64) ([]Sym, error) {
	syms, err := s.symbolizeOne(r, addr)
	if err != nil {
		return nil, fmt.Errorf("symbolize address 0x%x against %s: %w", addr, r.DisplayPath(), err)
	}
	return syms, nil
}

// symbolizeOne resolves a single address against one resolver: find the
// containing symbol(s), optionally attach a source location, demangle the
// name, and compute the non-negative offset from the symbol's start.
func (s *Symbolizer) symbolizeOne(r resolver.Resolver, addr uint64) ([]Sym, error) {
	intSyms, err := r.FindSyms(addr)
	if err != nil {
		return nil, err
	}
	if len(intSyms) == 0 {
		return nil, nil
	}

	var lineInfo *resolver.AddrLineInfo
	if s.sourceLocation {
		lineInfo, err = r.FindLineInfo(addr)
		if err != nil {
			return nil, err
		}
	}

	out := make([]Sym, 0, len(intSyms))
	for _, is := range intSyms {
		name := is.Name
		if s.demangle {
			name = demangleName(name, is.Lang)
		}
		sym := Sym{
			Name:         name,
			Addr:         is.StartAddr,
			Offset:       addr - is.StartAddr,
			AddrLineInfo: fromResolverLineInfo(lineInfo),
		}
		for _, inl := range is.Inline {
			inlName := inl.Name
			if s.demangle {
				inlName = demangleName(inlName, LangUnknown)
			}
			sym.Inline = append(sym.Inline, Frame{
				Name:         inlName,
				AddrLineInfo: fromResolverLineInfo(inl.Location),
			})
		}
		out = append(out, sym)
	}
	return out, nil
}
