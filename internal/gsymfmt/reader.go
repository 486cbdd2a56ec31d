package gsymfmt

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"golang.org/x/sys/unix"
)

// Reader answers queries against a parsed, decoded GSYM buffer: either a
// memory-mapped file or an in-memory byte buffer.
type Reader struct {
	data  []byte
	funcs []FuncInfo // sorted by Addr ascending

	mmapped bool
}

// OpenFile memory-maps path and decodes its header and function table.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	r, err := OpenData(data)
	if err != nil {
		unix.Munmap(data)
		return nil, err
	}
	r.mmapped = true
	return r, nil
}

// OpenData decodes an in-memory GSYM buffer without mapping anything.
func OpenData(data []byte) (*Reader, error) {
	r := &Reader{data: data}
	if err := r.decodeHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases the mmap backing this Reader, if any.
func (r *Reader) Close() error {
	if r.mmapped {
		return unix.Munmap(r.data)
	}
	return nil
}

func (r *Reader) decodeHeader() error {
	if len(r.data) < headerSize {
		return fmt.Errorf("truncated gsym header (%d bytes)", len(r.data))
	}
	magic := binary.LittleEndian.Uint32(r.data[0:4])
	if magic != Magic {
		return fmt.Errorf("bad gsym magic 0x%x", magic)
	}
	version := binary.LittleEndian.Uint16(r.data[4:6])
	if version != Version {
		return fmt.Errorf("unsupported gsym version %d", version)
	}
	numFuncs := binary.LittleEndian.Uint32(r.data[8:12])

	off := headerSize
	funcs := make([]FuncInfo, numFuncs)
	for i := range funcs {
		end := off + funcSize
		if end > len(r.data) {
			return fmt.Errorf("truncated function record %d", i)
		}
		rec := r.data[off:end]
		funcs[i] = FuncInfo{
			Addr: binary.LittleEndian.Uint64(rec[0:8]),
			Size: binary.LittleEndian.Uint64(rec[8:16]),
		}
		nameOff := binary.LittleEndian.Uint32(rec[16:20])
		lineOff := binary.LittleEndian.Uint32(rec[20:24])
		lineCount := binary.LittleEndian.Uint32(rec[24:28])
		inlineOff := binary.LittleEndian.Uint32(rec[28:32])
		inlineCount := binary.LittleEndian.Uint32(rec[32:36])
		funcs[i].LineOff, funcs[i].LineCount = lineOff, lineCount
		funcs[i].InlineOff, funcs[i].InlineCount = inlineOff, inlineCount
		funcs[i].Name = r.str(nameOff)
		off = end
	}
	if !sort.SliceIsSorted(funcs, func(i, j int) bool { return funcs[i].Addr < funcs[j].Addr }) {
		return fmt.Errorf("gsym function table not sorted by address")
	}
	r.funcs = funcs
	return nil
}

func (r *Reader) str(off uint32) string {
	if off == 0 || int(off) >= len(r.data) {
		return ""
	}
	end := off
	for int(end) < len(r.data) && r.data[end] != 0 {
		end++
	}
	return string(r.data[off:end])
}

// FindFunc returns the functions whose range contains addr. Normally this
// is at most one function; more than one means overlapping symbols.
func (r *Reader) FindFunc(addr uint64) []FuncInfo {
	i := sort.Search(len(r.funcs), func(i int) bool { return r.funcs[i].Addr > addr })
	if i == 0 {
		return nil
	}
	var out []FuncInfo
	start := r.funcs[i-1].Addr
	for j := i - 1; j >= 0 && r.funcs[j].Addr == start; j-- {
		if addr < r.funcs[j].Addr+r.funcs[j].Size {
			out = append(out, r.funcs[j])
		}
	}
	return out
}

// FindByName returns every function with the given name.
func (r *Reader) FindByName(name string) []FuncInfo {
	var out []FuncInfo
	for _, f := range r.funcs {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}

// LineRows decodes the line table for fn.
func (r *Reader) LineRows(fn FuncInfo) []LineRow {
	if fn.LineCount == 0 {
		return nil
	}
	off := int(fn.LineOff)
	if off+lineSize*int(fn.LineCount) > len(r.data) {
		return nil
	}
	rows := make([]LineRow, fn.LineCount)
	for i := range rows {
		rec := r.data[off : off+lineSize]
		rows[i] = LineRow{
			Addr: binary.LittleEndian.Uint64(rec[0:8]),
			Dir:  r.str(binary.LittleEndian.Uint32(rec[8:12])),
			File: r.str(binary.LittleEndian.Uint32(rec[12:16])),
			Line: binary.LittleEndian.Uint32(rec[16:20]),
			Col:  binary.LittleEndian.Uint32(rec[20:24]),
		}
		off += lineSize
	}
	return rows
}

// InlineRows decodes the inline chain for fn, innermost first.
func (r *Reader) InlineRows(fn FuncInfo) []InlineRow {
	if fn.InlineCount == 0 {
		return nil
	}
	off := int(fn.InlineOff)
	if off+inlineSize*int(fn.InlineCount) > len(r.data) {
		return nil
	}
	rows := make([]InlineRow, fn.InlineCount)
	for i := range rows {
		rec := r.data[off : off+inlineSize]
		rows[i] = InlineRow{
			Name:    r.str(binary.LittleEndian.Uint32(rec[0:4])),
			Dir:     r.str(binary.LittleEndian.Uint32(rec[4:8])),
			File:    r.str(binary.LittleEndian.Uint32(rec[8:12])),
			Line:    binary.LittleEndian.Uint32(rec[12:16]),
			Col:     binary.LittleEndian.Uint32(rec[16:20]),
			HasLine: rec[20] != 0,
			HasCol:  rec[21] != 0,
		}
		off += inlineSize
	}
	return rows
}
