// Package gitproto implements a Git Smart-HTTP version 2 client
// restricted to the two commands a metadata mirror needs: ls-refs and
// fetch. It never writes to the upstream and never constructs a
// packfile of its own.
package gitproto

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/pktline"
)

const userAgent = "git/aur-mirror"

// Client drives a Smart-HTTP v2 conversation against a single upstream
// repository.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger

	once sync.Once
	caps CapList
	cerr error
}

// NewClient returns a Client for the given repository base URL (e.g.
// "https://github.com/archlinux/aur.git"). token, if non-empty, is
// sent as a bearer token on every request. logger must not be nil.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    newHTTPClient(logger, 60*time.Second),
		logger:  logger,
	}
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", userAgent)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: req.Method + " " + req.URL.Path, Err: err}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, &AuthError{Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		prefix := make([]byte, 256)
		n, _ := io.ReadFull(resp.Body, prefix)
		return nil, &UpstreamError{Status: resp.StatusCode, BodyPrefix: string(prefix[:n])}
	}
	return resp, nil
}

// capabilities fetches and caches the v2 capability advertisement from
// GET <base>/info/refs?service=git-upload-pack, verifying that the
// server speaks protocol version 2.
func (c *Client) capabilities(ctx context.Context) (CapList, error) {
	c.once.Do(func() {
		c.caps, c.cerr = c.fetchCapabilities(ctx)
	})
	return c.caps, c.cerr
}

func (c *Client) fetchCapabilities(ctx context.Context) (CapList, error) {
	url := c.baseURL + "/info/refs?service=git-upload-pack"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Git-Protocol", "version=2")
	c.setAuth(req)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-git-upload-pack-advertisement") {
		return nil, &ProtocolMalformed{Reason: fmt.Sprintf("unexpected content-type %q", ct)}
	}

	pktr := pktline.NewReader(resp.Body)
	if err := pktr.Next(); err != nil {
		return nil, &ProtocolMalformed{Reason: "missing service header: " + err.Error()}
	}
	service, err := pktr.ReadMsgString()
	if err != nil || !strings.HasPrefix(service, "# service=git-upload-pack") {
		return nil, &ProtocolMalformed{Reason: "missing or wrong service header"}
	}
	if err := pktr.Next(); err != nil {
		return nil, &ProtocolMalformed{Reason: "missing capability block: " + err.Error()}
	}
	caps, err := parseCapAdvertisement(pktr)
	if err != nil {
		return nil, err
	}
	if _, ok := caps["version 2"]; !ok {
		return nil, &ProtocolMalformed{Reason: "upstream does not advertise protocol version 2"}
	}
	return caps, nil
}

// sendCommand POSTs a version-2 command request to <base>/git-upload-pack
// and returns a pktline.Reader positioned at the start of the response
// body. The caller must close the returned io.Closer once done reading.
func (c *Client) sendCommand(ctx context.Context, command string, capArgs, args []string) (*pktline.Reader, io.Closer, error) {
	if _, err := c.capabilities(ctx); err != nil {
		return nil, nil, err
	}

	body := new(bytes.Buffer)
	pktw := pktline.NewWriter(body)
	pktw.WriteString("command=" + command + "\n")
	pktw.WriteString("agent=" + userAgent + "\n")
	for _, cap := range capArgs {
		pktw.WriteString(cap + "\n")
	}
	pktw.Delim()
	for _, a := range args {
		pktw.WriteString(a + "\n")
	}
	pktw.Flush()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/git-upload-pack", bytes.NewReader(body.Bytes()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Git-Protocol", "version=2")
	req.Header.Set("Content-Type", "application/x-git-upload-pack-request")
	req.Header.Set("Accept", "application/x-git-upload-pack-result")
	c.setAuth(req)

	resp, err := c.do(req)
	if err != nil {
		return nil, nil, err
	}
	return pktline.NewReader(resp.Body), resp.Body, nil
}
