package gsymfmt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// Builder assembles a GSYM buffer in memory. It exists mainly to produce
// fixture data for tests and for small command-line tools that precompute a
// symbol database; the resolver only ever reads.
type Builder struct {
	funcs   []pendingFunc
	strings map[string]uint32
	strBuf  bytes.Buffer
	lines   bytes.Buffer
	inlines bytes.Buffer
}

type pendingFunc struct {
	FuncInfo
	lines   []LineRow
	inlines []InlineRow
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	b := &Builder{strings: map[string]uint32{}}
	b.strBuf.WriteByte(0) // offset 0 is reserved for "no string"
	return b
}

// intern returns the absolute buffer offset s will occupy once the string
// table lands at strTabOff; 0 is reserved for "no string". Reader offsets
// are all absolute, so the final layout must be known before any row that
// references a string is serialized.
func (b *Builder) intern(s string, strTabOff uint32) uint32 {
	if s == "" {
		return 0
	}
	if off, ok := b.strings[s]; ok {
		return strTabOff + off
	}
	off := uint32(b.strBuf.Len())
	b.strBuf.WriteString(s)
	b.strBuf.WriteByte(0)
	b.strings[s] = off
	return strTabOff + off
}

// AddFunc registers a function covering [addr, addr+size) with the given
// name, optional line table rows, and optional inline chain (innermost
// first). Rows/inlines may be nil.
func (b *Builder) AddFunc(addr, size uint64, name string, lines []LineRow, inlines []InlineRow) {
	pf := pendingFunc{
		FuncInfo: FuncInfo{Addr: addr, Size: size, Name: name},
		lines:    lines,
		inlines:  inlines,
	}
	b.funcs = append(b.funcs, pf)
}

// Bytes serializes the builder's contents into a GSYM buffer.
func (b *Builder) Bytes() ([]byte, error) {
	sort.SliceStable(b.funcs, func(i, j int) bool { return b.funcs[i].Addr < b.funcs[j].Addr })

	// All offsets in the serialized form are absolute, so the layout has to
	// be fixed before the first row is written: line rows follow the
	// function table, inline rows follow the line rows, strings come last.
	totalLines, totalInlines := 0, 0
	for _, f := range b.funcs {
		totalLines += len(f.lines)
		totalInlines += len(f.inlines)
	}
	lineBase := uint32(headerSize + funcSize*len(b.funcs))
	inlineBase := lineBase + uint32(lineSize*totalLines)
	strTabOff := inlineBase + uint32(inlineSize*totalInlines)

	for i := range b.funcs {
		f := &b.funcs[i]
		f.NameOff = b.intern(f.Name, strTabOff)

		if len(f.lines) > 0 {
			f.LineOff = lineBase + uint32(b.lines.Len())
			f.LineCount = uint32(len(f.lines))
			for _, lr := range f.lines {
				writeLineRow(&b.lines, lr, b, strTabOff)
			}
		}
		if len(f.inlines) > 0 {
			f.InlineOff = inlineBase + uint32(b.inlines.Len())
			f.InlineCount = uint32(len(f.inlines))
			for _, ir := range f.inlines {
				writeInlineRow(&b.inlines, ir, b, strTabOff)
			}
		}
	}

	var out bytes.Buffer

	if err := binary.Write(&out, binary.LittleEndian, Magic); err != nil {
		return nil, err
	}
	if err := binary.Write(&out, binary.LittleEndian, Version); err != nil {
		return nil, err
	}
	if err := binary.Write(&out, binary.LittleEndian, uint16(0)); err != nil {
		return nil, err
	}
	if err := binary.Write(&out, binary.LittleEndian, uint32(len(b.funcs))); err != nil {
		return nil, err
	}
	if err := binary.Write(&out, binary.LittleEndian, strTabOff); err != nil {
		return nil, err
	}
	if err := binary.Write(&out, binary.LittleEndian, uint32(b.strBuf.Len())); err != nil {
		return nil, err
	}

	for _, f := range b.funcs {
		if err := writeFunc(&out, f.FuncInfo); err != nil {
			return nil, fmt.Errorf("write function %q: %w", f.Name, err)
		}
	}
	out.Write(b.lines.Bytes())
	out.Write(b.inlines.Bytes())
	out.Write(b.strBuf.Bytes())

	return out.Bytes(), nil
}

func writeFunc(w *bytes.Buffer, f FuncInfo) error {
	for _, v := range []any{f.Addr, f.Size, f.NameOff, f.LineOff, f.LineCount, f.InlineOff, f.InlineCount} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func writeLineRow(w *bytes.Buffer, lr LineRow, b *Builder, strTabOff uint32) {
	binary.Write(w, binary.LittleEndian, lr.Addr)
	binary.Write(w, binary.LittleEndian, b.intern(lr.Dir, strTabOff))
	binary.Write(w, binary.LittleEndian, b.intern(lr.File, strTabOff))
	binary.Write(w, binary.LittleEndian, lr.Line)
	binary.Write(w, binary.LittleEndian, lr.Col)
}

func writeInlineRow(w *bytes.Buffer, ir InlineRow, b *Builder, strTabOff uint32) {
	binary.Write(w, binary.LittleEndian, b.intern(ir.Name, strTabOff))
	binary.Write(w, binary.LittleEndian, b.intern(ir.Dir, strTabOff))
	binary.Write(w, binary.LittleEndian, b.intern(ir.File, strTabOff))
	binary.Write(w, binary.LittleEndian, ir.Line)
	binary.Write(w, binary.LittleEndian, ir.Col)
	hasLine := byte(0)
	if ir.HasLine {
		hasLine = 1
	}
	hasCol := byte(0)
	if ir.HasCol {
		hasCol = 1
	}
	w.WriteByte(hasLine)
	w.WriteByte(hasCol)
	binary.Write(w, binary.LittleEndian, uint16(0))
}
