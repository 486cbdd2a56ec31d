package normalize

import (
	"archive/zip"
	"fmt"

	"github.com/mvandenburgh/symbolize/internal/errs"
)

// storedMember is one entry of a ZIP-family archive's central directory,
// relative to the archive's own bytes.
type storedMember struct {
	Name       string
	DataOffset uint64
	DataLen    uint64
	Stored     bool
}

// listStoredMembers enumerates every entry of the archive at path. Members
// are reported regardless of compression method; callers reject a match
// against a non-Store member with Unsupported, since random access into a
// compressed member isn't implemented.
func listStoredMembers(path string) ([]storedMember, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer zr.Close()

	members := make([]storedMember, 0, len(zr.File))
	for _, f := range zr.File {
		off, err := f.DataOffset()
		if err != nil {
			return nil, fmt.Errorf("read data offset for %s in %s: %w", f.Name, path, err)
		}
		members = append(members, storedMember{
			Name:       f.Name,
			DataOffset: uint64(off),
			DataLen:    f.CompressedSize64,
			Stored:     f.Method == zip.Store,
		})
	}
	return members, nil
}

// requireStored returns an *errs.Error with Unsupported if m is compressed;
// normalizeArchive calls this once it has matched a member so the caller
// gets a precise reason rather than silently returning a bogus offset.
func requireStored(op string, m storedMember) error {
	if m.Stored {
		return nil
	}
	return errs.New(errs.Unsupported, op,
		fmt.Errorf("archive member %q is compressed; random access requires a stored member", m.Name))
}
