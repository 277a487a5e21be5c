// Package packfile provides support for reading version 2 and 3 Git
// packfiles as produced by a Smart-HTTP v2 "fetch" response.  See
// http://git.rsbx.net/Documents/Git_Data_Formats.txt for details.
//
// Only reading is supported: this module never creates packfiles of
// its own, it only unpacks the ones the upstream server sends.
package packfile

import (
	"compress/zlib"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"hash"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/gitobject"
	"github.com/ArcticLampyrid/aur-mirror-meta/internal/packfile/base128"
	"github.com/ArcticLampyrid/aur-mirror-meta/internal/packfile/delta"
	"github.com/ArcticLampyrid/aur-mirror-meta/internal/packfile/internal"
)

// DefaultCacheSize is the number of recently materialized objects kept
// in a Reader's base-object cache for ofs-delta resolution.  It is
// sized for the batches of a few thousand objects a single "fetch"
// pass produces, not for whole-history packs.
const DefaultCacheSize = 4096

var (
	// ErrBadBase is returned when reading packfile data where the
	// base offset of a delta object does not refer to an earlier
	// object still held in the Reader's cache.
	ErrBadBase = errors.New("packfile: unknown or evicted base for delta object")
	// ErrChecksum is returned when reading packfile data that has
	// an invalid checksum.
	ErrChecksum = errors.New("packfile: invalid checksum")
	// ErrHeader is returned when reading packfile data that has
	// an invalid header.
	ErrHeader = errors.New("packfile: invalid header")
	// ErrVersion is returned when reading packfile data with a
	// version number other than 2 or 3.
	ErrVersion = errors.New("packfile: unsupported version")
	// ErrRefDelta is returned when a packfile contains a ref-delta
	// object.  The "fetch" requests this client issues always
	// negotiate ofs-delta and never request a thin pack, so a
	// conforming server has no reason to emit one; its presence is
	// treated as fatal rather than resolved, since resolving it
	// would require retaining every object the stream has ever
	// produced instead of a bounded cache.
	ErrRefDelta = errors.New("packfile: ref-delta objects are not supported")
)

var signature = [4]byte{'P', 'A', 'C', 'K'}

type header struct {
	Signature [4]byte
	Version   uint32
	Nobjects  uint32
}

// A Reader reads Git objects from a packfile stream.
type Reader struct {
	r      *posReader
	n      int64
	digest hash.Hash
	cache  *lru.Cache[int64, gitobject.Interface]
}

// NewReader creates a new Reader from r, using DefaultCacheSize as the
// size of the base-object cache.  It returns an error if r does not
// begin with a packfile header, if the packfile version is
// unsupported, or if reading the header failed.
func NewReader(r io.Reader) (*Reader, error) {
	return NewReaderSize(r, DefaultCacheSize)
}

// NewReaderSize behaves like NewReader, but allows the size of the
// base-object cache to be set explicitly.
func NewReaderSize(r io.Reader, cacheSize int) (*Reader, error) {
	p := new(Reader)
	p.digest = sha1.New()
	p.r = &posReader{r: io.TeeReader(r, p.digest)}
	var h header
	err := binary.Read(p.r, binary.BigEndian, &h)
	switch {
	case err != nil:
		return nil, err
	case h.Signature != signature:
		return nil, ErrHeader
	case h.Version < 2 || h.Version > 3:
		return nil, ErrVersion
	}
	p.n = int64(h.Nobjects)
	cache, err := lru.New[int64, gitobject.Interface](cacheSize)
	if err != nil {
		return nil, err
	}
	p.cache = cache
	return p, nil
}

// Len returns the number of objects remaining in the packfile.
func (r *Reader) Len() int64 {
	return r.n
}

// Read returns the next object in the stream along with its computed
// ID, or nil, ZeroID, io.EOF if there are no more objects.  It returns
// nil, ZeroID, ErrChecksum if the packfile ends with an invalid
// checksum.
func (r *Reader) Read() (obj gitobject.Interface, id gitobject.ID, err error) {
	if r.n > 0 {
		obj, id, err = r.readObject()
		if err == nil {
			r.n--
		}
	} else {
		err = r.readChecksum()
		if err == nil {
			err = io.EOF
		}
	}
	return
}

// readObject returns the next object in the stream along with its ID.
func (r *Reader) readObject() (obj gitobject.Interface, id gitobject.ID, err error) {
	pos := r.r.Tell()
	objType, size, err := readObjHeader(r.r)
	if err != nil {
		return
	}

	var base gitobject.Interface
	var ok bool
	switch objType {
	case delta.TypeOffset:
		var negOfs uint64
		negOfs, err = base128.ReadMBE(r.r)
		if err != nil {
			return
		}
		if int64(negOfs) < 0 {
			err = errors.New("packfile: delta offset overflows int64")
			return
		}
		base, ok = r.cache.Get(pos - int64(negOfs))
		if !ok {
			err = ErrBadBase
			return
		}
	case delta.TypeRef:
		err = ErrRefDelta
		return
	}

	zr, err := zlib.NewReader(r.r)
	if err != nil {
		return
	}
	defer zr.Close()
	data := make([]byte, size)
	if _, err = io.ReadFull(zr, data); err != nil {
		return
	}
	// If one reads the exact length of the compressed data from a
	// zlib.Reader, as above, the zlib checksum isn't read, and the
	// packfile stream is thus thrown out of sync.  One needs to
	// read "past" the end of the data to get zlib to read and check
	// the checksum.
	var dummy [4]byte
	zr.Read(dummy[:])

	if base != nil {
		var d delta.Object
		d, err = delta.Unmarshal(data)
		if err != nil {
			return
		}
		obj, err = d.Apply(base)
		if err != nil {
			return
		}
	} else {
		obj, err = gitobject.New(objType)
		if err != nil {
			return
		}
		err = internal.UnmarshalObj(obj, data)
		if err != nil {
			return
		}
	}

	id, err = gitobject.Hash(obj)
	if err != nil {
		return
	}
	r.cache.Add(pos, obj)
	return
}

// readChecksum reads the SHA-1 footer of a packfile and compares it to
// the checksum accumulated by NewReader and the readObject calls.
func (r *Reader) readChecksum() error {
	var my, other [sha1.Size]byte
	copy(my[:], r.digest.Sum(nil))
	_, err := io.ReadFull(r.r, other[:])
	if err == nil && my != other {
		err = ErrChecksum
	}
	return err
}
