package packfile

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"encoding/binary"
	"io"
	"testing"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/gitobject"
	"github.com/ArcticLampyrid/aur-mirror-meta/internal/packfile/base128"
	"github.com/ArcticLampyrid/aur-mirror-meta/internal/packfile/delta"
)

// writeObjHeaderBytes encodes a packfile object header: the low four
// bits of the first byte plus any continuation bytes carry the size,
// the three bits above that the type, matching the format util.go's
// readObjHeader decodes.
func writeObjHeaderBytes(buf *bytes.Buffer, typ gitobject.Type, size int) {
	first := byte(typ)<<4 | byte(size&0xF)
	size >>= 4
	if size > 0 {
		first |= 0x80
	}
	buf.WriteByte(first)
	for size > 0 {
		b := byte(size & 0x7F)
		size >>= 7
		if size > 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
	}
}

func writeDeflated(buf *bytes.Buffer, typ gitobject.Type, raw []byte) int64 {
	pos := int64(buf.Len())
	writeObjHeaderBytes(buf, typ, len(raw))
	zw := zlib.NewWriter(buf)
	zw.Write(raw)
	zw.Close()
	return pos
}

func writeOfsDelta(buf *bytes.Buffer, baseObjPos int64, payload []byte) int64 {
	pos := int64(buf.Len())
	writeObjHeaderBytes(buf, delta.TypeOffset, len(payload))
	base128.WriteMBE(buf, uint64(pos-baseObjPos))
	zw := zlib.NewWriter(buf)
	zw.Write(payload)
	zw.Close()
	return pos
}

// buildInsertDelta returns a delta payload that discards the base
// entirely and inserts newContent verbatim.
func buildInsertDelta(t *testing.T, baseContentLen int, newContent []byte) []byte {
	t.Helper()
	if len(newContent) > 127 {
		t.Fatalf("test helper only supports single-op inserts up to 127 bytes")
	}
	buf := new(bytes.Buffer)
	base128.WriteLE(buf, uint64(baseContentLen))
	base128.WriteLE(buf, uint64(len(newContent)))
	buf.WriteByte(byte(len(newContent)))
	buf.Write(newContent)
	return buf.Bytes()
}

func packHeaderBytes(nobjects uint32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, header{Signature: signature, Version: 2, Nobjects: nobjects})
	return buf.Bytes()
}

func TestReaderBlobAndOfsDelta(t *testing.T) {
	baseContent := []byte("hello\n")
	newContent := []byte("hello world!\n")

	buf := bytes.NewBuffer(packHeaderBytes(2))
	basePos := writeDeflated(buf, gitobject.TypeBlob, baseContent)
	deltaPayload := buildInsertDelta(t, len(baseContent), newContent)
	writeOfsDelta(buf, basePos, deltaPayload)

	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	obj1, id1, err := r.Read()
	if err != nil {
		t.Fatalf("Read() #1: %v", err)
	}
	blob1, ok := obj1.(*gitobject.Blob)
	if !ok || !bytes.Equal([]byte(*blob1), baseContent) {
		t.Fatalf("object #1 = %#v, want blob %q", obj1, baseContent)
	}
	wantID1, err := gitobject.Hash(blob1)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if id1 != wantID1 {
		t.Fatalf("id1 = %v, want %v", id1, wantID1)
	}

	obj2, id2, err := r.Read()
	if err != nil {
		t.Fatalf("Read() #2: %v", err)
	}
	blob2, ok := obj2.(*gitobject.Blob)
	if !ok || !bytes.Equal([]byte(*blob2), newContent) {
		t.Fatalf("object #2 = %#v, want blob %q", obj2, newContent)
	}
	if id2 == id1 {
		t.Fatalf("delta-resolved object got the base's id")
	}

	if _, _, err := r.Read(); err != io.EOF {
		t.Fatalf("trailing Read() = %v, want io.EOF", err)
	}
}

func TestReaderRefDeltaIsFatal(t *testing.T) {
	buf := bytes.NewBuffer(packHeaderBytes(1))
	writeObjHeaderBytes(buf, delta.TypeRef, 4)
	var zeroOID gitobject.ID
	buf.Write(zeroOID[:])
	zw := zlib.NewWriter(buf)
	zw.Write([]byte{0, 0, 0, 0})
	zw.Close()
	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, _, err := r.Read(); err != ErrRefDelta {
		t.Fatalf("Read() = %v, want ErrRefDelta", err)
	}
}

func TestReaderBadChecksum(t *testing.T) {
	buf := bytes.NewBuffer(packHeaderBytes(1))
	writeDeflated(buf, gitobject.TypeBlob, []byte("x"))
	buf.Write(make([]byte, sha1.Size)) // all-zero, almost certainly wrong

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, _, err := r.Read(); err != nil {
		t.Fatalf("Read() object: %v", err)
	}
	if _, _, err := r.Read(); err != ErrChecksum {
		t.Fatalf("Read() = %v, want ErrChecksum", err)
	}
}

func TestReaderBadBase(t *testing.T) {
	buf := bytes.NewBuffer(packHeaderBytes(1))
	pos := int64(buf.Len())
	writeObjHeaderBytes(buf, delta.TypeOffset, 2)
	base128.WriteMBE(buf, uint64(pos+1000)) // refers to an offset never written
	zw := zlib.NewWriter(buf)
	zw.Write(buildInsertDelta(t, 0, []byte("x")))
	zw.Close()
	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, _, err := r.Read(); err != ErrBadBase {
		t.Fatalf("Read() = %v, want ErrBadBase", err)
	}
}
