package gitproto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/gitobject"
	"github.com/ArcticLampyrid/aur-mirror-meta/internal/packfile"
)

// MaxWants is the largest number of want-lines that may appear in a
// single fetch command. Callers (internal/syncer) must partition
// larger want sets into batches of at most this size themselves; Fetch
// rejects anything over the limit rather than silently splitting it,
// since splitting changes the batch/transaction boundaries the
// orchestrator reasons about.
const MaxWants = 3000

var errTooManyWants = errors.New("gitproto: fetch request exceeds MaxWants")

// FetchCommits issues a blobless "fetch" (commits and trees only, no
// blob contents) for the given commit oids. It also sends "deepen 1"
// so the upstream does not walk history past the requested commits.
// The packfile section is read into memory and the HTTP response body
// is closed before FetchCommits returns; the returned packfile.Reader
// decodes from that in-memory copy.
func (c *Client) FetchCommits(ctx context.Context, wants []gitobject.ID) (*packfile.Reader, error) {
	return c.fetch(ctx, wants, []string{
		"ofs-delta",
		"deepen 1",
		"filter blob:none",
		"no-progress",
	})
}

// FetchBlobs issues a "fetch" for the given blob oids with no filter,
// returning their full contents.
func (c *Client) FetchBlobs(ctx context.Context, wants []gitobject.ID) (*packfile.Reader, error) {
	return c.fetch(ctx, wants, []string{
		"ofs-delta",
		"no-progress",
	})
}

func (c *Client) fetch(ctx context.Context, wants []gitobject.ID, trailingArgs []string) (*packfile.Reader, error) {
	if len(wants) == 0 {
		return nil, errors.New("gitproto: fetch called with no wants")
	}
	if len(wants) > MaxWants {
		return nil, errTooManyWants
	}

	args := make([]string, 0, len(wants)+len(trailingArgs)+1)
	for _, id := range wants {
		args = append(args, "want "+id.String())
	}
	args = append(args, trailingArgs...)
	args = append(args, "done")

	pktr, closer, err := c.sendCommand(ctx, "fetch", nil, args)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	section, err := packfileSection(pktr, c.logger)
	if err != nil {
		return nil, err
	}

	// Buffered in memory: a pass-1 or pass-2 batch is bounded at
	// MaxWants objects, which §5's memory budget sizes at well under
	// 100 MiB, so there is no need for the temp-file staging the
	// upstream implementation uses for its out-of-process pack
	// indexer.
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, section); err != nil {
		return nil, fmt.Errorf("gitproto: reading packfile section: %w", err)
	}

	pfr, err := packfile.NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, &PackfileCorrupt{Err: err}
	}
	return pfr, nil
}
