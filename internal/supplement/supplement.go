// Package supplement fetches the optional AUR RPC metadata dump used
// to enrich the index with popularity, maintainer, and out-of-date
// fields (spec.md §6).
package supplement

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/index"
)

// gzipMagic is the two-byte gzip member header; its presence at the
// start of a fetched payload means the body must be decompressed
// before JSON decoding.
var gzipMagic = [2]byte{0x1f, 0x8b}

// rpcPackageDetails mirrors one element of the AUR RPC package-details
// JSON array.
type rpcPackageDetails struct {
	Name           string   `json:"Name"`
	Version        string   `json:"Version"`
	Maintainer     *string  `json:"Maintainer"`
	Submitter      *string  `json:"Submitter"`
	NumVotes       int      `json:"NumVotes"`
	Popularity     float64  `json:"Popularity"`
	FirstSubmitted int64    `json:"FirstSubmitted"`
	LastModified   int64    `json:"LastModified"`
	OutOfDate      *int64   `json:"OutOfDate"`
	Keywords       []string `json:"Keywords"`
	CoMaintainers  []string `json:"CoMaintainers"`
}

// Fetcher retrieves supplement data from an ordered list of sources,
// each a filesystem path or an http(s):// URL, stopping at the first
// one that fetches and parses successfully.
type Fetcher struct {
	HTTP   *http.Client
	Logger *zap.Logger
}

// NewFetcher returns a Fetcher using http.DefaultClient.
func NewFetcher(logger *zap.Logger) *Fetcher {
	return &Fetcher{HTTP: http.DefaultClient, Logger: logger}
}

// Fetch tries each source in order and returns the first one that
// yields data. The literal source "none" is skipped; if every source
// fails (or the list contains only "none"), Fetch returns an error and
// the caller is expected to log it as a warning and leave
// pkg_supplement untouched, per spec.md §6/§7's SupplementUnavailable
// handling.
func (f *Fetcher) Fetch(ctx context.Context, sources []string) ([]index.Supplement, error) {
	var lastErr error
	for _, source := range sources {
		if source == "none" {
			continue
		}
		if f.Logger != nil {
			f.Logger.Info("fetching supplement data", zap.String("source", source))
		}
		data, err := f.fetchOne(ctx, source)
		if err != nil {
			lastErr = err
			if f.Logger != nil {
				f.Logger.Warn("supplement source failed, trying next",
					zap.String("source", source), zap.Error(err))
			}
			continue
		}
		return data, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("supplement: no usable sources")
	}
	return nil, fmt.Errorf("supplement: all sources failed: %w", lastErr)
}

func (f *Fetcher) fetchOne(ctx context.Context, source string) ([]index.Supplement, error) {
	raw, err := f.fetchRaw(ctx, source)
	if err != nil {
		return nil, err
	}
	data, err := decompressIfNeeded(raw)
	if err != nil {
		return nil, err
	}
	return parseJSON(data)
}

func (f *Fetcher) fetchRaw(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := f.HTTP.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http get: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("http status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(source)
}

func decompressIfNeeded(data []byte) ([]byte, error) {
	if len(data) >= 2 && data[0] == gzipMagic[0] && data[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	}
	return data, nil
}

func parseJSON(data []byte) ([]index.Supplement, error) {
	var raw []rpcPackageDetails
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode supplement JSON: %w", err)
	}
	out := make([]index.Supplement, len(raw))
	for i, r := range raw {
		out[i] = index.Supplement{
			PkgName:        r.Name,
			Version:        r.Version,
			Popularity:     r.Popularity,
			NumVotes:       r.NumVotes,
			OutOfDate:      r.OutOfDate,
			Maintainer:     r.Maintainer,
			Submitter:      r.Submitter,
			CoMaintainers:  r.CoMaintainers,
			Keywords:       r.Keywords,
			FirstSubmitted: r.FirstSubmitted,
			LastModified:   r.LastModified,
		}
	}
	return out, nil
}
