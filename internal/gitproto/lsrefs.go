package gitproto

import (
	"context"
	"io"
	"strings"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/gitobject"
)

// LsRefs invokes the "ls-refs" command and returns every ref under
// refs/heads/ as a map from bare branch name to commit oid. The ref
// named "main" is always excluded, matching the upstream's convention
// of using it as a non-package tracking branch.
func (c *Client) LsRefs(ctx context.Context) (map[string]gitobject.ID, error) {
	pktr, closer, err := c.sendCommand(ctx, "ls-refs",
		nil,
		[]string{"peel", "symrefs", "ref-prefix refs/heads/"},
	)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	if err := pktr.Next(); err != nil {
		return nil, &ProtocolMalformed{Reason: "reading ls-refs response: " + err.Error()}
	}
	refs := make(map[string]gitobject.ID)
	for {
		line, err := pktr.ReadMsgString()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ProtocolMalformed{Reason: "reading ls-refs line: " + err.Error()}
		}
		line = strings.TrimSuffix(line, "\n")
		oidStr, rest, ok := strings.Cut(line, " ")
		if !ok {
			return nil, &ProtocolMalformed{Reason: "malformed ls-refs line: " + line}
		}
		refname, _, _ := strings.Cut(rest, " ")
		branch, ok := strings.CutPrefix(refname, "refs/heads/")
		if !ok || branch == "main" {
			continue
		}
		id, err := gitobject.DecodeID(oidStr)
		if err != nil {
			return nil, &ProtocolMalformed{Reason: "malformed ls-refs oid: " + oidStr}
		}
		refs[branch] = id
	}
	return refs, nil
}
