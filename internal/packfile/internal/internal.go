// Package internal defines certain functions package packfile and its
// subpackages need.
package internal

import (
	"bytes"
	"fmt"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/gitobject"
)

// MarshalObj returns the binary representation of a Git object minus
// the object header.  It returns any error gitobject.Marshal returns;
// it does not check obj's type.
func MarshalObj(obj gitobject.Interface) ([]byte, error) {
	data, err := gitobject.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return data[bytes.IndexByte(data, 0)+1:], nil
}

// UnmarshalObj decodes a Git object from its binary representation
// minus the object header.  It returns a *gitobject.TypeError
// containing the obj argument if it is not one of the standard Git
// objects.
func UnmarshalObj(obj gitobject.Interface, data []byte) error {
	objType := gitobject.TypeOf(obj)
	if objType == gitobject.TypeUnknown {
		return &gitobject.TypeError{Value: obj}
	}
	header := []byte(fmt.Sprintf("%s %d\x00", objType, len(data)))
	return obj.UnmarshalBinary(append(header, data...))
}
