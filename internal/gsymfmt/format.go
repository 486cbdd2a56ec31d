// Package gsymfmt reads and writes GSYM, the compact pre-indexed
// symbol+line database format. No published Go library parses GSYM (it is
// an LLVM-originated format), so this package is the minimal on-disk
// reader/writer that satisfies exactly the queries
// internal/resolver.GsymResolver issues: find the function containing an
// address, its line table row for that address, and its inline chain.
//
// The layout is intentionally small:
//
//	header:      magic, version, function count, string table offset+size
//	functions:   sorted by Addr ascending: Addr, Size, NameOff,
//	             LineOff/LineCount, InlineOff/InlineCount
//	line rows:   Addr, DirOff, FileOff, Line, Column (referenced by offset)
//	inline rows: NameOff, DirOff, FileOff, Line, Column, HasLine, HasColumn
//	             (innermost first; referenced by offset)
//	string table: NUL-terminated strings, referenced by byte offset
package gsymfmt

const (
	Magic   uint32 = 0x314d5347 // "GSM1" little-endian
	Version uint16 = 1

	headerSize = 4 + 2 + 2 /*pad*/ + 4 + 4 + 4 // magic,version,pad,numFuncs,strTabOff,strTabSize
	funcSize   = 8 + 8 + 4 + 4 + 4 + 4 + 4     // Addr,Size,NameOff,LineOff,LineCount,InlineOff,InlineCount
	lineSize   = 8 + 4 + 4 + 4 + 4             // Addr,DirOff,FileOff,Line,Column
	inlineSize = 4 + 4 + 4 + 4 + 4 + 1 + 1 + 2 /*pad*/
)

// FuncInfo is one function record.
type FuncInfo struct {
	Addr uint64
	Size uint64
	Name string
	// NameOff is the string-table offset backing Name; only meaningful
	// while the Builder is serializing, before Name has been decoded.
	NameOff     uint32
	LineOff     uint32
	LineCount   uint32
	InlineOff   uint32
	InlineCount uint32
}

// LineRow is one row of a function's line table.
type LineRow struct {
	Addr uint64
	Dir  string
	File string
	Line uint32
	Col  uint32
}

// InlineRow is one inlined-call record, innermost first.
type InlineRow struct {
	Name    string
	Dir     string
	File    string
	Line    uint32
	HasLine bool
	Col     uint32
	HasCol  bool
}
