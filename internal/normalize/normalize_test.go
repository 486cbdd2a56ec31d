package normalize

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mvandenburgh/symbolize/internal/addrspace"
	"github.com/mvandenburgh/symbolize/internal/errs"
	"github.com/mvandenburgh/symbolize/internal/procmap"
)

func fakeMaps(entries ...procmap.Entry) MapReaderFunc {
	return func(pid addrspace.Pid) ([]procmap.Entry, error) {
		return entries, nil
	}
}

func TestNormalize_PlainElf(t *testing.T) {
	n := NewWithMapReader(fakeMaps(procmap.Entry{
		Start: 0x1000, End: 0x2000, FileOffset: 0x0,
		SymbolicPath: "/usr/bin/myprog", MapsPath: "/usr/bin/myprog", HasFile: true,
	}))

	results, err := n.Normalize(addrspace.Self(), []uint64{0x1500})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(results) != 1 || results[0].Unknown {
		t.Fatalf("unexpected result: %+v", results)
	}
	if results[0].RelAddr != 0x500 {
		t.Fatalf("RelAddr = %#x, want 0x500", results[0].RelAddr)
	}
	if results[0].FileKey != "/usr/bin/myprog" {
		t.Fatalf("FileKey = %q", results[0].FileKey)
	}
}

func TestNormalize_Unknown(t *testing.T) {
	n := NewWithMapReader(fakeMaps(procmap.Entry{
		Start: 0x1000, End: 0x2000, FileOffset: 0,
		SymbolicPath: "/usr/bin/myprog", MapsPath: "/usr/bin/myprog", HasFile: true,
	}))

	results, err := n.Normalize(addrspace.Self(), []uint64{0x5000})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !results[0].Unknown {
		t.Fatalf("expected Unknown, got %+v", results[0])
	}
}

func TestNormalize_AnonymousMappingIsUnknown(t *testing.T) {
	n := NewWithMapReader(fakeMaps(procmap.Entry{
		Start: 0x1000, End: 0x2000, FileOffset: 0, HasFile: false,
	}))

	results, err := n.Normalize(addrspace.Self(), []uint64{0x1500})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !results[0].Unknown {
		t.Fatalf("expected Unknown for anonymous mapping, got %+v", results[0])
	}
}

func TestNormalize_PreservesInputOrder(t *testing.T) {
	n := NewWithMapReader(fakeMaps(
		procmap.Entry{Start: 0x1000, End: 0x2000, FileOffset: 0, SymbolicPath: "/a", MapsPath: "/a", HasFile: true},
		procmap.Entry{Start: 0x3000, End: 0x4000, FileOffset: 0, SymbolicPath: "/b", MapsPath: "/b", HasFile: true},
	))

	// unsorted input: second address is numerically smaller than the first.
	results, err := n.Normalize(addrspace.Self(), []uint64{0x3500, 0x1500})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if results[0].FileKey != "/b" || results[1].FileKey != "/a" {
		t.Fatalf("results out of input order: %+v", results)
	}
}

func buildStoredZip(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lib.apk")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	if err != nil {
		t.Fatalf("CreateHeader: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}
	return path
}

func TestNormalize_ArchiveMember(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 64)
	path := buildStoredZip(t, "lib/arm64-v8a/libfoo.so", payload)

	// find the member's data offset the same way normalizeArchive does.
	members, err := listStoredMembers(path)
	if err != nil {
		t.Fatalf("listStoredMembers: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("got %d members, want 1", len(members))
	}
	member := members[0]

	const virtualBase = 0x7f0000000000
	n := NewWithMapReader(fakeMaps(procmap.Entry{
		Start: virtualBase, End: virtualBase + 0x100000, FileOffset: 0,
		SymbolicPath: path, MapsPath: path, HasFile: true,
	}))

	addr := virtualBase + member.DataOffset + 8
	results, err := n.Normalize(addrspace.Self(), []uint64{addr})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if results[0].Unknown {
		t.Fatalf("expected a resolved archive result, got Unknown")
	}
	if results[0].ArchiveMember != "lib/arm64-v8a/libfoo.so" {
		t.Fatalf("ArchiveMember = %q", results[0].ArchiveMember)
	}
	if results[0].RelAddr != 8 {
		t.Fatalf("RelAddr = %#x, want 8", results[0].RelAddr)
	}
}

func TestNormalize_ArchiveMember_CompressedIsUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.apk")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "lib/arm64-v8a/libfoo.so", Method: zip.Deflate})
	if err != nil {
		t.Fatalf("CreateHeader: %v", err)
	}
	if _, err := w.Write(bytes.Repeat([]byte{0x01}, 256)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}
	f.Close()

	members, err := listStoredMembers(path)
	if err != nil {
		t.Fatalf("listStoredMembers: %v", err)
	}

	const virtualBase = 0x7f0000000000
	n := NewWithMapReader(fakeMaps(procmap.Entry{
		Start: virtualBase, End: virtualBase + 0x100000, FileOffset: 0,
		SymbolicPath: path, MapsPath: path, HasFile: true,
	}))

	addr := virtualBase + members[0].DataOffset + 4
	_, err = n.Normalize(addrspace.Self(), []uint64{addr})
	if !errs.Is(err, errs.Unsupported) {
		t.Fatalf("Normalize() on compressed member error = %v, want Unsupported", err)
	}
}
