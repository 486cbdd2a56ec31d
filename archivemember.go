package symbolize

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
)

// openArchiveMember returns an io.ReaderAt over the uncompressed bytes of
// memberName inside the already-opened archive f, for building an
// ElfResolver over an archive-embedded ELF. The Normalizer
// only ever names a Stored (uncompressed) member here, since it rejects a
// compressed match with Unsupported before returning.
func openArchiveMember(f *os.File, memberName string) (io.ReaderAt, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	zr, err := zip.NewReader(f, fi.Size())
	if err != nil {
		return nil, fmt.Errorf("read archive directory: %w", err)
	}
	for _, zf := range zr.File {
		if zf.Name != memberName {
			continue
		}
		off, err := zf.DataOffset()
		if err != nil {
			return nil, fmt.Errorf("data offset for %s: %w", memberName, err)
		}
		return io.NewSectionReader(f, off, int64(zf.UncompressedSize64)), nil
	}
	return nil, fmt.Errorf("member %q not found", memberName)
}
