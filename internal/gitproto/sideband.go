package gitproto

import (
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/pktline"
)

// Sideband channel bytes used inside the "packfile" section of a fetch
// response.
const (
	sidebandPack     = 0x01
	sidebandProgress = 0x02
	sidebandError    = 0x03
)

// sidebandDemuxer presents the packfile bytes embedded in a fetch
// response's sideband-multiplexed "packfile" section as a plain
// io.Reader, discarding progress messages and surfacing a fatal
// sideband-error message as an UpstreamError.
type sidebandDemuxer struct {
	pktr   *pktline.Reader
	logger *zap.Logger
	buf    []byte
}

func (d *sidebandDemuxer) Read(p []byte) (int, error) {
	for len(d.buf) == 0 {
		msg, err := d.pktr.ReadMsg()
		if err == io.EOF {
			return 0, io.EOF
		}
		if err != nil {
			return 0, &ProtocolMalformed{Reason: "reading sideband frame: " + err.Error()}
		}
		if len(msg) == 0 {
			continue
		}
		band, data := msg[0], msg[1:]
		switch band {
		case sidebandPack:
			d.buf = data
		case sidebandProgress:
			if d.logger != nil {
				d.logger.Debug("upstream progress", zap.String("msg", strings.TrimSpace(string(data))))
			}
		case sidebandError:
			return 0, &UpstreamError{Status: 0, BodyPrefix: string(data)}
		default:
			return 0, &ProtocolMalformed{Reason: "unrecognized sideband channel"}
		}
	}
	n := copy(p, d.buf)
	d.buf = d.buf[n:]
	return n, nil
}

// packfileSection advances pktr past any non-packfile sections of a
// fetch response (acknowledgments, shallow-info, wanted-refs) and
// returns a reader over the sideband-demultiplexed bytes of the
// packfile section. It returns ProtocolMalformed if the response ends
// without ever presenting a packfile section.
func packfileSection(pktr *pktline.Reader, logger *zap.Logger) (io.Reader, error) {
	for {
		if err := pktr.Next(); err != nil {
			return nil, &ProtocolMalformed{Reason: "missing packfile section: " + err.Error()}
		}
		header, err := pktr.ReadMsgString()
		if err != nil {
			return nil, &ProtocolMalformed{Reason: "missing section header: " + err.Error()}
		}
		if strings.TrimSuffix(header, "\n") != "packfile" {
			for {
				if _, err := pktr.ReadMsg(); err == io.EOF {
					break
				} else if err != nil {
					return nil, &ProtocolMalformed{Reason: "draining non-packfile section: " + err.Error()}
				}
			}
			continue
		}
		return &sidebandDemuxer{pktr: pktr, logger: logger}, nil
	}
}
