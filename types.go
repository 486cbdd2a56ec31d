// Package symbolize turns runtime memory addresses into human-readable
// source-level frames: given a source descriptor (an ELF object, a running
// process, the kernel, or a GSYM database) and a batch of addresses, it
// returns one frame list per address, including inlined call frames where
// debug info records them.
package symbolize

import (
	"github.com/mvandenburgh/symbolize/internal/addrspace"
	"github.com/mvandenburgh/symbolize/internal/resolver"
)

// Pid identifies the process a Process source concerns: a concrete pid or
// the "self" sentinel meaning the calling process.
type Pid = addrspace.Pid

// Self returns the pid sentinel for the calling process.
func Self() Pid { return addrspace.Self() }

// PidOf wraps a concrete positive pid.
func PidOf(n int) Pid { return addrspace.Of(n) }

// sourceKind discriminates Source's variants; Source itself is a tagged
// union built only through the constructors below so an invalid
// combination of fields can't be assembled.
type sourceKind int

const (
	sourceElf sourceKind = iota
	sourceProcess
	sourceKernel
	sourceGsymFile
	sourceGsymData
)

// Source selects what a Symbolize call resolves addresses against: an ELF
// object, a running process, the kernel, or a GSYM database (file-backed or
// supplied as an in-memory buffer).
type Source struct {
	kind sourceKind

	path string // Elf.path, Gsym::File.path

	pid Pid // Process.pid

	kallsymsPath    string // Kernel.kallsyms (optional)
	kernelImagePath string // Kernel.kernel_image (optional)

	gsymData []byte // Gsym::Data.bytes
}

// ElfSource builds a Source naming a single ELF object on the local
// filesystem.
func ElfSource(path string) Source { return Source{kind: sourceElf, path: path} }

// ProcessSource builds a Source naming a running process's address space.
func ProcessSource(pid Pid) Source { return Source{kind: sourceProcess, pid: pid} }

// KernelSource builds a Source for kernel addresses. Either path may be
// empty, in which case the Symbolizer falls back to the conventional
// location: /proc/kallsyms, and a probed list of vmlinux paths.
func KernelSource(kallsymsPath, kernelImagePath string) Source {
	return Source{kind: sourceKernel, kallsymsPath: kallsymsPath, kernelImagePath: kernelImagePath}
}

// GsymFileSource builds a Source naming a GSYM database on disk.
func GsymFileSource(path string) Source { return Source{kind: sourceGsymFile, path: path} }

// GsymDataSource builds a Source over an in-memory GSYM buffer, e.g. one
// extracted from another container format.
func GsymDataSource(data []byte) Source { return Source{kind: sourceGsymData, gsymData: data} }

// Lang is the source language a symbol was compiled from. It drives which
// demangling scheme is attempted first.
type Lang = resolver.Lang

const (
	LangUnknown = resolver.LangUnknown
	LangC       = resolver.LangC
	LangCpp     = resolver.LangCpp
	LangRust    = resolver.LangRust
	LangGo      = resolver.LangGo
)

// IntSym is the internal symbol record a resolver produces, before the
// Symbolizer turns it into a user-visible Sym.
type IntSym = resolver.IntSym

// AddrLineInfo is a source location for a single address.
type AddrLineInfo struct {
	Dir       string
	File      string
	Line      uint32
	HasLine   bool
	Column    uint32
	HasColumn bool
}

// Frame is one inlined or primary call frame with no addr/offset of its
// own (inlined frames inherit their containing Sym's address data).
type Frame struct {
	Name string
	*AddrLineInfo
}

// Sym is one user-visible frame produced for an input address: the
// (post-demangle) symbol name, its file-relative start address, the
// non-negative offset of the queried address from that start, optional
// source location, and any inlined sub-frames, innermost first.
type Sym struct {
	Name   string
	Addr   uint64
	Offset uint64

	*AddrLineInfo

	Inline []Frame
}

func fromResolverLineInfo(li *resolver.AddrLineInfo) *AddrLineInfo {
	if li == nil {
		return nil
	}
	return &AddrLineInfo{
		Dir:       li.Dir,
		File:      li.File,
		Line:      li.Line,
		HasLine:   li.HasLine,
		Column:    li.Column,
		HasColumn: li.HasColumn,
	}
}
