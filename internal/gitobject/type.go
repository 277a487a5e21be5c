package gitobject

import (
	"fmt"
	"io"
)

// Type enumerates the Git object types this pipeline decodes.
type Type byte

const (
	TypeUnknown Type = iota

	TypeCommit
	TypeTree
	TypeBlob

	// typeTagCode is Git's OBJ_TAG pack type code (4). Annotated tags
	// never appear in a fetched packfile here: LsRefs advertises only
	// refs/heads/* branches (spec.md §4.D), and every fetch wants either
	// a branch's commit ID (pass 1) or a .SRCINFO blob ID (pass 2), so
	// the only objects reachable from a want are commits, trees, and
	// blobs. The slot is kept unused, rather than removed, so
	// TypeCommit/TypeTree/TypeBlob keep Git's real 1/2/3 pack type
	// codes; a type-4 object in a fetched pack makes packfile's
	// Reader.Read fail with the *TypeError that New returns for it.
	typeTagCode

	typeReserved
)

// A TypeError is used to report an invalid or unknown Git object type.
// Methods returning a TypeError specify the concrete type of the value
// it holds.
type TypeError struct {
	Value interface{}
}

func (e *TypeError) Error() string {
	if t, ok := e.Value.(Type); ok {
		return fmt.Sprintf("bad Git type code: %#x", t)
	} else {
		return fmt.Sprintf("bad Git object type: %v", e.Value)
	}
}

// TypeOf returns the type of the given object, or TypeUnknown if it is
// not one of the object types this pipeline decodes.
func TypeOf(obj Interface) Type {
	switch obj.(type) {
	case *Commit:
		return TypeCommit
	case *Tree:
		return TypeTree
	case *Blob:
		return TypeBlob
	default:
		return TypeUnknown
	}
}

// String returns "commit", "tree" or "blob" depending on the value of
// the type. It returns an empty string for any other value, including
// the reserved tag pack type code this pipeline never decodes.
func (t Type) String() string {
	switch t {
	case TypeCommit:
		return "commit"
	case TypeTree:
		return "tree"
	case TypeBlob:
		return "blob"
	default:
		return ""
	}
}

// New returns a new, empty object of the given type. It returns a
// *TypeError containing t if t is not one of TypeCommit, TypeTree, or
// TypeBlob.
func New(t Type) (Interface, error) {
	switch t {
	case TypeCommit:
		return &Commit{}, nil
	case TypeTree:
		return &Tree{}, nil
	case TypeBlob:
		return &Blob{}, nil
	default:
		return nil, &TypeError{t}
	}
}

// Scan is a support routine for fmt.Scanner.  It reads a
// whitespace-delimited word from input and attempts to interpret it
// as one of the strings returned by String.  If the word is not
// recognized, a TypeError containing it is returned.
func (t *Type) Scan(ss fmt.ScanState, verb rune) error {
	tok, err := ss.Token(true, nil)
	switch {
	case err != nil:
		return err
	case len(tok) == 0:
		return io.ErrUnexpectedEOF
	}
	switch string(tok) {
	case "commit":
		*t = TypeCommit
	case "tree":
		*t = TypeTree
	case "blob":
		*t = TypeBlob
	default:
		return &TypeError{string(tok)}
	}
	return nil
}
