package resolver

import "github.com/mvandenburgh/symbolize/internal/errs"

// KernelResolver composes an optional kallsyms sub-resolver with an
// optional ELF-on-kernel-image sub-resolver: kallsyms answers
// symbol-name queries; the kernel image, when available (vmlinux with
// debug info), additionally answers line-info and file-offset queries.
// Constructing one with neither sub-resolver present is an error: there is
// nothing for it to delegate to.
type KernelResolver struct {
	ksym  *KSymResolver
	image *ElfResolver
}

// NewKernelResolver builds the composite from whichever sub-resolvers were
// discovered; pass nil for either that isn't available.
func NewKernelResolver(ksym *KSymResolver, image *ElfResolver) (*KernelResolver, error) {
	if ksym == nil && image == nil {
		return nil, errs.New(errs.NotFound, "build kernel resolver", errNoKernelSource)
	}
	return &KernelResolver{ksym: ksym, image: image}, nil
}

func (r *KernelResolver) DisplayPath() string {
	if r.image != nil {
		return r.image.DisplayPath()
	}
	return "[kernel.kallsyms]"
}

// FindSyms prefers kallsyms: it carries the running kernel's actual
// (possibly relocated, possibly module) addresses, whereas the image is
// only consulted when no kallsyms table was discovered.
func (r *KernelResolver) FindSyms(addr uint64) ([]Sym, error) {
	if r.ksym != nil {
		return r.ksym.FindSyms(addr)
	}
	if r.image != nil {
		return r.image.FindSyms(addr)
	}
	return nil, nil
}

// FindAddr is always empty: kernel symbol search by name is not supported.
func (r *KernelResolver) FindAddr(name string, typ SymType) ([]AddrMatch, error) {
	return nil, nil
}

// FindLineInfo only the kernel image can answer; kallsyms carries no line
// data.
func (r *KernelResolver) FindLineInfo(addr uint64) (*AddrLineInfo, error) {
	if r.image == nil {
		return nil, nil
	}
	return r.image.FindLineInfo(addr)
}

// AddrFileOff only the kernel image can answer.
func (r *KernelResolver) AddrFileOff(addr uint64) (uint64, bool, error) {
	if r.image == nil {
		return 0, false, nil
	}
	return r.image.AddrFileOff(addr)
}

var errNoKernelSource = kernelSourceError{}

type kernelSourceError struct{}

func (kernelSourceError) Error() string {
	return "no kallsyms table or kernel image available"
}
