// Package ksymcache builds and memoizes the parsed, address-sorted form of
// /proc/kallsyms. Same shape as elfcache, but keyed by path+inode
// rather than (size, mtime): /proc/kallsyms is a pseudo-file whose contents
// can change between reads without its size or mtime moving, so rereading
// is permitted and expected.
package ksymcache

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/mvandenburgh/symbolize/internal/errs"
)

// KSym is one kallsyms entry, address-sorted ascending within a Table.
type KSym struct {
	Addr uint64
	Name string
	Type byte
}

// Table is a parsed, address-sorted kallsyms snapshot.
type Table struct {
	syms []KSym
}

// Lookup returns the symbol containing addr: the entry with the greatest
// Addr <= addr. Empty Name means addr isn't covered by any symbol.
func (t *Table) Lookup(addr uint64) (KSym, bool) {
	i := sort.Search(len(t.syms), func(i int) bool { return t.syms[i].Addr > addr })
	if i == 0 {
		return KSym{}, false
	}
	return t.syms[i-1], true
}

// FindByName returns every symbol in the table named name.
func (t *Table) FindByName(name string) []KSym {
	var out []KSym
	for _, s := range t.syms {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

type genToken struct {
	ino    uint64
	device uint64
}

type entry struct {
	token genToken
	table *Table
}

// Cache memoizes parsed kallsyms tables by path, keyed by inode rather than
// size/mtime.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Get returns the Table for path, reading and parsing it fresh whenever the
// underlying inode has changed since the last read.
func (c *Cache) Get(path string) (*Table, error) {
	token, err := statToken(path)
	if err != nil {
		return nil, errs.New(errs.Io, fmt.Sprintf("stat %s", path), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[path]; ok && e.token == token {
		return e.table, nil
	}

	table, err := readAndParse(path)
	if err != nil {
		return nil, err
	}
	c.entries[path] = &entry{token: token, table: table}
	return table, nil
}

func statToken(path string) (genToken, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return genToken{}, err
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return genToken{}, fmt.Errorf("unsupported stat_t for %s", path)
	}
	return genToken{ino: st.Ino, device: uint64(st.Dev)}, nil
}

// readAndParse reads path in full, then parses, rather than streaming
// line-by-line against a moving file, so a concurrent remount or rewrite
// can't tear a single line.
func readAndParse(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.Io, fmt.Sprintf("read %s", path), err)
	}

	var syms []KSym
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" {
			continue
		}
		sym, ok, err := parseLine(line)
		if err != nil {
			return nil, errs.New(errs.ParseError, fmt.Sprintf("parse %s line %d", path, lineNo), err)
		}
		if ok {
			syms = append(syms, sym)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errs.New(errs.Io, fmt.Sprintf("scan %s", path), err)
	}

	sort.Slice(syms, func(i, j int) bool { return syms[i].Addr < syms[j].Addr })

	// Kernel addresses are zeroed when /proc/kallsyms is read without
	// CAP_SYSLOG; the leading (lowest, after sort) address is the cheapest
	// place to detect this.
	if len(syms) > 0 && syms[0].Addr == 0 {
		return nil, errs.New(errs.PermissionDenied, fmt.Sprintf("read %s", path), fmt.Errorf("kernel addresses are zeroed, insufficient privilege"))
	}

	return &Table{syms: syms}, nil
}

// parseLine parses one "<addr> <type> <name> [<module>]" kallsyms line.
// Lines naming a module (bracketed suffix) are kept with the bare symbol
// name; the module annotation is dropped.
func parseLine(line string) (KSym, bool, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return KSym{}, false, fmt.Errorf("want at least 3 fields, got %d", len(fields))
	}
	addr, err := strconv.ParseUint(fields[0], 16, 64)
	if err != nil {
		return KSym{}, false, fmt.Errorf("invalid address %q: %w", fields[0], err)
	}
	typ := fields[1]
	if len(typ) != 1 {
		return KSym{}, false, fmt.Errorf("invalid type field %q", typ)
	}
	return KSym{Addr: addr, Name: fields[2], Type: typ[0]}, true, nil
}
