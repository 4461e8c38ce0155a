package memfs

import (
	"archive/tar"
	"io"
	"os"

	humanize "github.com/dustin/go-humanize"
	"github.com/klauspost/readahead"

	"github.com/evanphx/userprog/fs"
	"github.com/evanphx/userprog/log"
)

// NewFromTar builds a filesystem holding every regular file of the archive,
// keyed by its cleaned path. Directories are implied by the names and
// anything else (links, devices) is skipped.
func NewFromTar(r io.Reader) (*FS, error) {
	tr := tar.NewReader(r)

	m := New()

	var total uint64

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		if hdr.Typeflag != tar.TypeReg {
			log.L.Trace("memfs-skip-entry", "name", hdr.Name, "type", hdr.Typeflag)
			continue
		}

		name := hdr.Name

		if len(name) > 2 && name[:2] == "./" {
			name = name[2:]
		}

		name, err = fs.CleanName(name)
		if err != nil {
			return nil, err
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}

		m.files[name] = &inode{
			name: name,
			body: data,
		}

		total += uint64(len(data))
	}

	log.L.Debug("memfs-image-loaded", "files", len(m.files), "size", humanize.Bytes(total))

	return m, nil
}

const imageReadBuffer = 1 << 20

// LoadTar opens path and hands it to NewFromTar.
func LoadTar(path string) (*FS, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	ra, err := readahead.NewReaderSize(f, 4, imageReadBuffer)
	if err != nil {
		return nil, err
	}

	defer ra.Close()

	return NewFromTar(ra)
}
