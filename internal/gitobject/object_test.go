package gitobject

import (
	"bytes"
	"testing"
	"time"
)

func TestBlobRoundTrip(t *testing.T) {
	b := Blob("hello world")
	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	var got Blob
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if !bytes.Equal(got, b) {
		t.Fatalf("got %q, want %q", got, b)
	}
}

func TestTreeRoundTrip(t *testing.T) {
	want := Tree{
		"README":  {Mode: ModeBlob, Object: ID{1}},
		"sub":     {Mode: ModeTree, Object: ID{2}},
		"link":    {Mode: ModeSymlink, Object: ID{3}},
		"sub.txt": {Mode: ModeBlob, Object: ID{4}},
	}
	data, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	got := Tree{}
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for name, wantInfo := range want {
		if got[name] != wantInfo {
			t.Errorf("entry %q = %+v, want %+v", name, got[name], wantInfo)
		}
	}
}

func TestTreeNamesOrdersSubtreesAsIfSlashed(t *testing.T) {
	tr := Tree{
		"sub":     {Mode: ModeTree},
		"sub.txt": {Mode: ModeBlob},
	}
	// "sub/" > "sub.txt" in C locale, since '/' (0x2F) < '.' (0x2E) is
	// false: '.' sorts before '/'. So sub.txt should come first.
	names := tr.Names()
	if len(names) != 2 || names[0] != "sub.txt" || names[1] != "sub" {
		t.Fatalf("Names() = %v, want [sub.txt sub]", names)
	}
}

func TestCommitRoundTrip(t *testing.T) {
	want := &Commit{
		Tree:      ID{1},
		Parent:    []ID{{2}, {3}},
		Author:    Signature{Name: "A U Thor", Email: "author@example.com", Date: time.Unix(1000, 0).In(time.FixedZone("", 3600))},
		Committer: Signature{Name: "C O Mitter", Email: "committer@example.com", Date: time.Unix(2000, 0).In(time.FixedZone("", -1800))},
		Message:   "subject line\n\nbody text\n",
	}
	data, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	got := &Commit{}
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.Tree != want.Tree {
		t.Errorf("Tree = %v, want %v", got.Tree, want.Tree)
	}
	if len(got.Parent) != 2 || got.Parent[0] != want.Parent[0] || got.Parent[1] != want.Parent[1] {
		t.Errorf("Parent = %v, want %v", got.Parent, want.Parent)
	}
	if got.Author.Name != want.Author.Name || got.Author.Email != want.Author.Email {
		t.Errorf("Author = %+v, want %+v", got.Author, want.Author)
	}
	if got.Author.Date.Unix() != want.Author.Date.Unix() {
		t.Errorf("Author.Date = %v, want %v", got.Author.Date, want.Author.Date)
	}
	if got.Message != want.Message {
		t.Errorf("Message = %q, want %q", got.Message, want.Message)
	}
}

func TestCommitUnmarshalBinaryWrongType(t *testing.T) {
	b := Blob("not a commit")
	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	var c Commit
	err = c.UnmarshalBinary(data)
	if _, ok := err.(*TypeError); !ok {
		t.Fatalf("UnmarshalBinary err = %v (%T), want *TypeError", err, err)
	}
}

func TestHashIsDeterministic(t *testing.T) {
	b := Blob("same content")
	id1, err := Hash(&b)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	id2, err := Hash(&b)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("Hash not deterministic: %v != %v", id1, id2)
	}
	if id1 == ZeroID {
		t.Fatalf("Hash of non-empty blob should not be ZeroID")
	}
}

func TestDecodeIDRoundTrip(t *testing.T) {
	b := Blob("round trip through hex")
	want, err := Hash(&b)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	got, err := DecodeID(want.String())
	if err != nil {
		t.Fatalf("DecodeID: %v", err)
	}
	if got != want {
		t.Fatalf("DecodeID(%s) = %v, want %v", want.String(), got, want)
	}
}

func TestDecodeIDBadLength(t *testing.T) {
	if _, err := DecodeID("deadbeef"); err == nil {
		t.Fatalf("DecodeID: want error for a too-short hex string")
	}
}

func TestTypeOfRequiresPointerReceivers(t *testing.T) {
	commit := &Commit{}
	tree := &Tree{}
	blob := &Blob{}

	cases := []struct {
		name string
		obj  Interface
		want Type
	}{
		{"commit", commit, TypeCommit},
		{"tree", tree, TypeTree},
		{"blob", blob, TypeBlob},
	}
	for _, c := range cases {
		if got := TypeOf(c.obj); got != c.want {
			t.Errorf("TypeOf(%s) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestNewReturnsTypedObject(t *testing.T) {
	obj, err := New(TypeBlob)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := obj.(*Blob); !ok {
		t.Fatalf("New(TypeBlob) = %T, want *Blob", obj)
	}
	if _, err := New(TypeUnknown); err == nil {
		t.Fatalf("New(TypeUnknown): want error")
	}
}

func TestTypeString(t *testing.T) {
	cases := map[Type]string{
		TypeCommit:  "commit",
		TypeTree:    "tree",
		TypeBlob:    "blob",
		TypeUnknown: "",
	}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", typ, got, want)
		}
	}
}
