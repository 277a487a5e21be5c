package gitproto

import (
	"io"
	"strings"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/pktline"
)

// A CapList represents the set of protocol v2 capabilities a server
// advertised, keyed by capability name (e.g. "fetch") with its
// "=value" suffix, if any, as the map value ("shallow" for
// "fetch=shallow").
type CapList map[string]string

// parseCapAdvertisement reads the capability-advertisement substream
// of a GET info/refs response, one capability per pkt-line, until the
// closing flush-pkt.
func parseCapAdvertisement(pktr *pktline.Reader) (CapList, error) {
	caps := make(CapList)
	for {
		line, err := pktr.ReadMsgString()
		if err == io.EOF {
			return caps, nil
		}
		if err != nil {
			return nil, &ProtocolMalformed{Reason: "reading capability line: " + err.Error()}
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			continue
		}
		name, value, _ := strings.Cut(line, "=")
		caps[name] = value
	}
}
