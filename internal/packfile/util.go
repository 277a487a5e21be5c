package packfile

import (
	"io"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/gitobject"
	"github.com/ArcticLampyrid/aur-mirror-meta/internal/packfile/base128"
)

// A packfile object header is a little-endian base128-encoded number
// where bits 4-6 encode the object's type and the rest its size.

func readObjHeader(r io.ByteReader) (gitobject.Type, int64, error) {
	hdr, err := base128.ReadLE(r)
	if err != nil {
		return 0, 0, err
	}
	objType := gitobject.Type(hdr >> 4 & 0x7)
	size := int64((hdr >> 3 &^ 0xF) | (hdr & 0xF))
	return objType, size, err
}

// posReader is a reader which records the current position in the
// stream.  As a local convenience, it also provides a ReadByte()
// wrapper around the reader.
type posReader struct {
	r   io.Reader
	pos int64
}

func (r *posReader) Tell() int64 {
	return r.pos
}

func (r *posReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.pos += int64(n)
	return n, err
}

func (r *posReader) ReadByte() (byte, error) {
	b := make([]byte, 1)
	_, err := io.ReadFull(r, b)
	return b[0], err
}
