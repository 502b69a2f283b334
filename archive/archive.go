// Package archive bundles converted files into a single ZIP.
//
// Entries use the Store method: SPZ payloads are already compressed and PLY
// output is handed back as produced. Entries keep the order and names they
// are given; duplicate names are written as duplicate entries.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/wippyai/spzconv"
	"github.com/wippyai/spzconv/errors"
)

// Pack returns the archive bytes for blobs. An empty list produces no
// archive: nil and no error.
func Pack(blobs []spzconv.NamedBlob) ([]byte, error) {
	if len(blobs) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := Write(&buf, blobs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the archive for blobs to w. Unlike Pack, an empty list
// writes an empty but valid archive.
func Write(w io.Writer, blobs []spzconv.NamedBlob) error {
	zw := zip.NewWriter(w)
	modified := time.Now()

	for i, b := range blobs {
		if b.Name == "" {
			return errors.New(errors.PhasePack, errors.KindInvalidInput).
				Detail("entry %d has no name", i).
				Build()
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     b.Name,
			Method:   zip.Store,
			Modified: modified,
		})
		if err != nil {
			return errors.Wrap(errors.PhasePack, errors.KindUnexpected, err, fmt.Sprintf("create entry %q", b.Name))
		}
		if _, err := fw.Write(b.Data); err != nil {
			return errors.Wrap(errors.PhasePack, errors.KindUnexpected, err, fmt.Sprintf("write entry %q", b.Name))
		}
	}

	if err := zw.Close(); err != nil {
		return errors.Wrap(errors.PhasePack, errors.KindUnexpected, err, "finalize archive")
	}
	return nil
}
