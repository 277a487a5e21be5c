// Package syncer implements the sync orchestrator: the only stateful
// component of the mirror, driving the Smart-HTTP v2 client, the
// packfile/SRCINFO decoders, and the relational index through one
// pass of spec.md §4.E's algorithm.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/gitobject"
	"github.com/ArcticLampyrid/aur-mirror-meta/internal/gitproto"
	"github.com/ArcticLampyrid/aur-mirror-meta/internal/index"
	"github.com/ArcticLampyrid/aur-mirror-meta/internal/srcinfo"
)

// FetchBatchSize is the largest number of want-lines a single pass-1
// or pass-2 fetch request may carry, mirroring gitproto.MaxWants.
const FetchBatchSize = gitproto.MaxWants

// WriteBatchSize bounds each index transaction (spec.md §4.E step 5):
// at most this many updated branches are written per transaction, and
// removed branches are deleted in separate transactions of at most
// this many each.
const WriteBatchSize = 200

// retryAttempts is the number of times a fetch or write batch is
// attempted before it is given up on, per spec.md §4.C/§4.E.
const retryAttempts = 3

// retryBackoffSchedule is the delay before each retry past the first
// attempt (spec.md §4.E: "1s, 4s, 16s").
var retryBackoffSchedule = []time.Duration{time.Second, 4 * time.Second, 16 * time.Second}

// DefaultFetchConcurrency bounds how many batches of a single pass
// run concurrently when Syncer.Concurrency is left at zero.
const DefaultFetchConcurrency = 4

// Syncer drives one sync pass against a single upstream branch
// namespace and a single index.
type Syncer struct {
	Git    *gitproto.Client
	Index  *index.Store
	Logger *zap.Logger

	// Concurrency bounds how many fetch batches of a single pass run
	// at once (spec.md §5's K). Zero means DefaultFetchConcurrency.
	Concurrency int

	// Now returns the wall-clock UNIX time stamped on freshly written
	// pkg_info rows. Defaults to time.Now's Unix value; overridable
	// for deterministic tests.
	Now func() int64
}

// Result summarizes one sync pass, per spec.md §7's exit-code table.
type Result struct {
	Added         []string
	Changed       []string
	Removed       []string
	NoSrcinfo     []string
	ParseWarnings int

	// FetchFailed lists branches whose commit/tree or blob fetch
	// exhausted its retry budget. They are left untouched in the
	// index: neither written nor deleted, so a later sync pass gets
	// another chance at them once the branch's ref changes again, or
	// simply by this branch being retried on the next run.
	FetchFailed []string

	// RefsDiffFailed and WriteFailed record whether step 1 (refs
	// diff) or any write batch exhausted its retries; both force a
	// non-zero process exit.
	RefsDiffFailed bool
	WriteFailed    bool

	// SupplementFailed records whether the optional supplement-wholesale
	// stage (spec.md §4.E step 6) ran and failed outright (e.g. every
	// source unreachable). Set by the caller driving that stage, since
	// Run itself never invokes it. Left false when supplementation is
	// disabled or simply never attempted.
	SupplementFailed bool
}

func (r Result) anyBatchFailed() bool { return r.WriteFailed || len(r.FetchFailed) > 0 }

// ExitCode maps Result to the exit code spec.md §7 specifies: 0 if
// every branch reached a terminal state without a surfaced error, 1
// if any batch (fetch or write) failed, 2 if the refs diff or the
// supplement-wholesale stage failed.
func (r Result) ExitCode() int {
	switch {
	case r.RefsDiffFailed, r.SupplementFailed:
		return 2
	case r.anyBatchFailed():
		return 1
	default:
		return 0
	}
}

func (s *Syncer) now() int64 {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().Unix()
}

func (s *Syncer) concurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return DefaultFetchConcurrency
}

// retryableFetchError reports whether err, returned by a fetch batch,
// is worth retrying: transport failures always are, upstream 5xx
// responses are, and everything else (auth, malformed protocol,
// corrupt packfile, 4xx) is not (spec.md §4.E's retry policy).
func retryableFetchError(err error) bool {
	var transport *gitproto.TransportError
	if errors.As(err, &transport) {
		return true
	}
	var upstream *gitproto.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Retryable()
	}
	return false
}

// retryWithBackoff runs fn up to retryAttempts times, sleeping
// retryBackoffSchedule[attempt-1] between attempts, stopping early if
// isRetryable reports the latest error is not worth retrying. It is
// the single mechanism behind both the index write batch retry and
// the pass-1/pass-2 fetch batch retry (spec.md §4.C, §4.E).
func retryWithBackoff(ctx context.Context, logger *zap.Logger, op string, isRetryable func(error) bool, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			if logger != nil {
				logger.Warn("retrying "+op, zap.Int("attempt", attempt), zap.Error(lastErr))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoffSchedule[attempt-1]):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, retryAttempts, lastErr)
}

// Run executes one full sync pass: refs diff, the two-pass blobless
// commit/tree then blob fetch, SRCINFO parsing, and transactional
// index writes.
//
// A fetch batch that exhausts its retries does not abort the pass: its
// branches are recorded in Result.FetchFailed and excluded from this
// pass's index updates, while every other fetch batch still runs to
// completion. A write batch that exhausts its retries ends the pass:
// Result.WriteFailed is set, the remaining write batches are not
// attempted, and Run returns an error. Run also returns an error for a
// failure at the refs-diff stage and for a .SRCINFO that fails to
// parse (such as one with a duplicate pkgbase line).
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	var res Result

	newRefs, err := s.Git.LsRefs(ctx)
	if err != nil {
		res.RefsDiffFailed = true
		return res, fmt.Errorf("syncer: ls-refs: %w", err)
	}
	stored, err := s.Index.BranchCommits(ctx)
	if err != nil {
		res.RefsDiffFailed = true
		return res, fmt.Errorf("syncer: load branch_commits: %w", err)
	}

	var addedOrChanged []string
	for branch, id := range newRefs {
		if oldCommit, ok := stored[branch]; !ok {
			res.Added = append(res.Added, branch)
			addedOrChanged = append(addedOrChanged, branch)
		} else if oldCommit != id.String() {
			res.Changed = append(res.Changed, branch)
			addedOrChanged = append(addedOrChanged, branch)
		}
	}
	for branch := range stored {
		if _, ok := newRefs[branch]; !ok {
			res.Removed = append(res.Removed, branch)
		}
	}

	if len(addedOrChanged) == 0 && len(res.Removed) == 0 {
		return res, nil
	}

	branchToBlob, noSrcinfo, fetchFailed, err := s.resolveSrcinfoBlobs(ctx, addedOrChanged, newRefs)
	if err != nil {
		return res, fmt.Errorf("syncer: resolve .SRCINFO blobs: %w", err)
	}
	res.NoSrcinfo = noSrcinfo

	blobBytes, blobFailed, err := s.fetchBlobs(ctx, branchToBlob)
	if err != nil {
		return res, fmt.Errorf("syncer: fetch blobs: %w", err)
	}

	failedSet := make(map[string]bool, len(fetchFailed)+len(blobFailed))
	for _, b := range fetchFailed {
		failedSet[b] = true
	}
	for _, id := range blobFailed {
		for branch, blobID := range branchToBlob {
			if blobID == id {
				failedSet[branch] = true
			}
		}
	}
	if len(failedSet) > 0 {
		res.Added = filterOut(res.Added, failedSet)
		res.Changed = filterOut(res.Changed, failedSet)
		for branch := range failedSet {
			res.FetchFailed = append(res.FetchFailed, branch)
		}
	}

	updates := make([]index.BranchUpdate, 0, len(branchToBlob))
	for _, branch := range addedOrChanged {
		if failedSet[branch] {
			continue // left untouched; neither written nor deleted this pass
		}
		blobID, ok := branchToBlob[branch]
		if !ok {
			continue // no .SRCINFO at root; branch data is deleted, not replaced
		}
		data := blobBytes[blobID]
		result, err := srcinfo.Parse(branch, data)
		if err != nil {
			return res, fmt.Errorf("syncer: parse .SRCINFO for %s: %w", branch, err)
		}
		res.ParseWarnings += result.Warnings
		updates = append(updates, index.BranchUpdate{
			Branch:   branch,
			CommitID: newRefs[branch].String(),
			Packages: result.Packages,
		})
	}

	removedSet := make(map[string]bool, len(res.Removed)+len(noSrcinfo))
	for _, b := range res.Removed {
		removedSet[b] = true
	}
	for _, b := range noSrcinfo {
		if !failedSet[b] {
			removedSet[b] = true
		}
	}
	removed := make([]string, 0, len(removedSet))
	for b := range removedSet {
		removed = append(removed, b)
	}

	if err := s.writeAll(ctx, updates, removed); err != nil {
		res.WriteFailed = true
		return res, fmt.Errorf("syncer: write index: %w", err)
	}

	return res, nil
}

// filterOut returns a copy of branches with every name in exclude
// removed, without aliasing branches' backing array.
func filterOut(branches []string, exclude map[string]bool) []string {
	out := branches[:0:0]
	for _, b := range branches {
		if !exclude[b] {
			out = append(out, b)
		}
	}
	return out
}

// fetchBlobs partitions the distinct blob oids named in branchToBlob
// into FetchBatchSize batches and fetches them with bounded
// concurrency (pass 2). Each batch carries its own retry-and-backoff
// budget; a batch that exhausts its retries is recorded in failed
// rather than aborting batches still in flight (spec.md §4.E).
func (s *Syncer) fetchBlobs(ctx context.Context, branchToBlob map[string]gitobject.ID) (merged map[gitobject.ID][]byte, failed []gitobject.ID, err error) {
	seen := make(map[gitobject.ID]bool)
	var distinct []gitobject.ID
	for _, id := range branchToBlob {
		if !seen[id] {
			seen[id] = true
			distinct = append(distinct, id)
		}
	}
	if len(distinct) == 0 {
		return nil, nil, nil
	}

	batches := partition(distinct, FetchBatchSize)
	results := make([]map[gitobject.ID][]byte, len(batches))
	var mu sync.Mutex
	var failedIDs []gitobject.ID

	// A plain errgroup.Group, not errgroup.WithContext: a batch that
	// exhausts its retries must not cancel the ctx siblings are using.
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency())
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			out := make(map[gitobject.ID][]byte, len(batch))
			retryErr := retryWithBackoff(ctx, s.Logger, "blob fetch batch", retryableFetchError, func() error {
				pfr, err := s.Git.FetchBlobs(ctx, batch)
				if err != nil {
					return err
				}
				for {
					obj, id, err := pfr.Read()
					if err == io.EOF {
						break
					}
					if err != nil {
						return err
					}
					if blob, ok := obj.(*gitobject.Blob); ok {
						out[id] = []byte(*blob)
					}
				}
				return nil
			})
			if retryErr != nil {
				if s.Logger != nil {
					s.Logger.Error("blob fetch batch exhausted retries", zap.Error(retryErr))
				}
				mu.Lock()
				failedIDs = append(failedIDs, batch...)
				mu.Unlock()
				return nil
			}
			results[i] = out
			return nil
		})
	}
	g.Wait()

	merged = make(map[gitobject.ID][]byte)
	for _, m := range results {
		for id, data := range m {
			merged[id] = data
		}
	}
	return merged, failedIDs, nil
}

// writeAll splits updates and removed branches into WriteBatchSize
// groups and commits each with its own retry budget, per spec.md
// §4.E step 5.
func (s *Syncer) writeAll(ctx context.Context, updates []index.BranchUpdate, removed []string) error {
	updateBatches := partitionUpdates(updates, WriteBatchSize)
	removedBatches := partition(removed, WriteBatchSize)

	n := len(updateBatches)
	if len(removedBatches) > n {
		n = len(removedBatches)
	}
	for i := 0; i < n; i++ {
		var ub []index.BranchUpdate
		var rb []string
		if i < len(updateBatches) {
			ub = updateBatches[i]
		}
		if i < len(removedBatches) {
			rb = removedBatches[i]
		}
		if err := s.writeBatchWithRetry(ctx, ub, rb); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) writeBatchWithRetry(ctx context.Context, updates []index.BranchUpdate, removed []string) error {
	return retryWithBackoff(ctx, s.Logger, "index write batch", func(error) bool { return true }, func() error {
		return s.Index.WriteBatch(ctx, updates, removed, s.now())
	})
}

func partition[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	var batches [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches
}

func partitionUpdates(updates []index.BranchUpdate, size int) [][]index.BranchUpdate {
	return partition(updates, size)
}
