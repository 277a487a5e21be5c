package gitobject

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// A Signature records who produced a commit and when, in the form Git
// embeds in the commit object: "Name <email> unixtime tzoffset".
type Signature struct {
	Name  string
	Email string
	Date  time.Time
}

// String returns the Signature in Git's wire format.
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> %d %s",
		s.Name,
		s.Email,
		s.Date.Unix(),
		s.Date.Format("-0700"),
	)
}

// parseSignature parses a "Name <email> unixtime tzoffset" line as
// written by Signature.String.
func parseSignature(line string) (Signature, error) {
	open := strings.LastIndexByte(line, '<')
	shut := strings.LastIndexByte(line, '>')
	if open < 0 || shut < open {
		return Signature{}, fmt.Errorf("gitobject: malformed signature %q", line)
	}
	var unix int64
	var offset string
	if _, err := fmt.Sscanf(strings.TrimSpace(line[shut+1:]), "%d %s", &unix, &offset); err != nil {
		return Signature{}, fmt.Errorf("gitobject: malformed signature %q: %w", line, err)
	}
	tz, err := time.Parse("-0700", offset)
	if err != nil {
		return Signature{}, fmt.Errorf("gitobject: malformed signature timezone %q: %w", offset, err)
	}
	_, offsetSecs := tz.Zone()
	return Signature{
		Name:  strings.TrimSpace(line[:open]),
		Email: line[open+1 : shut],
		Date:  time.Unix(unix, 0).In(time.FixedZone("", offsetSecs)),
	}, nil
}

// A Commit is a signed label for a Tree object: one revision of an AUR
// package branch, naming the root tree that holds its .SRCINFO blob
// and the author/committer who produced it (spec.md §4.E step 2).
type Commit struct {
	Tree      ID        // ID of the commit's root tree
	Parent    []ID      // the commit's parents
	Author    Signature // author name and date
	Committer Signature // committer name and date
	Message   string    // a commit message
}

func (c *Commit) MarshalBinary() ([]byte, error) {
	text, err := c.MarshalText()
	if err != nil {
		return nil, err
	}
	return prependHeader(TypeCommit, text)
}

func (c *Commit) UnmarshalBinary(data []byte) error {
	text, err := stripHeader(TypeCommit, data)
	if err != nil {
		return err
	}
	return c.UnmarshalText(text)
}

// MarshalText writes the commit in Git's own plain-text commit
// format: one "tree"/"parent"/"author"/"committer" header line per
// field, a blank line, then the commit message verbatim.
func (c *Commit) MarshalText() ([]byte, error) {
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "tree %s\n", c.Tree)
	for _, p := range c.Parent {
		fmt.Fprintf(buf, "parent %s\n", p)
	}
	fmt.Fprintf(buf, "author %s\n", c.Author)
	fmt.Fprintf(buf, "committer %s\n", c.Committer)
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes(), nil
}

// UnmarshalText parses the format written by MarshalText: header lines
// up to the first blank line, each "field value"; everything after
// that blank line is stored verbatim as Message.
func (c *Commit) UnmarshalText(text []byte) error {
	header, message := text, []byte(nil)
	if i := bytes.Index(text, []byte("\n\n")); i >= 0 {
		header, message = text[:i], text[i+2:]
	}
	for _, line := range strings.Split(string(header), "\n") {
		if line == "" {
			continue
		}
		field, value, ok := strings.Cut(line, " ")
		if !ok {
			return fmt.Errorf("gitobject: malformed commit header line %q", line)
		}
		switch field {
		case "tree":
			id, err := DecodeID(value)
			if err != nil {
				return fmt.Errorf("gitobject: commit tree: %w", err)
			}
			c.Tree = id
		case "parent":
			id, err := DecodeID(value)
			if err != nil {
				return fmt.Errorf("gitobject: commit parent: %w", err)
			}
			c.Parent = append(c.Parent, id)
		case "author":
			sig, err := parseSignature(value)
			if err != nil {
				return err
			}
			c.Author = sig
		case "committer":
			sig, err := parseSignature(value)
			if err != nil {
				return err
			}
			c.Committer = sig
		default:
			return fmt.Errorf("gitobject: unknown commit header field %q", field)
		}
	}
	c.Message = string(message)
	return nil
}
