package syncer

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/gitobject"
)

// resolveSrcinfoBlobs implements spec.md §4.E step 2: a blobless
// commit/tree fetch over the branches in addedOrChanged, walking each
// resolved commit to its root tree to find the .SRCINFO blob oid, if
// any. Branches whose root tree has no .SRCINFO entry are returned in
// noSrcinfo so the caller deletes their index rows without attempting
// to write new ones.
//
// Each batch is fetched with its own retry-and-backoff budget
// (spec.md §4.C/§4.E): a batch that exhausts its retries does not
// cancel batches still in flight, nor the branches other batches
// already resolved. Branches belonging to an exhausted batch are
// returned in failed and left untouched by the caller.
func (s *Syncer) resolveSrcinfoBlobs(ctx context.Context, addedOrChanged []string, newRefs map[string]gitobject.ID) (branchToBlob map[string]gitobject.ID, noSrcinfo, failed []string, err error) {
	if len(addedOrChanged) == 0 {
		return nil, nil, nil, nil
	}

	wants := make([]gitobject.ID, len(addedOrChanged))
	branchesByWant := make(map[gitobject.ID][]string, len(addedOrChanged))
	for i, branch := range addedOrChanged {
		id := newRefs[branch]
		wants[i] = id
		branchesByWant[id] = append(branchesByWant[id], branch)
	}

	batches := partition(wants, FetchBatchSize)
	commits := make(map[gitobject.ID]*gitobject.Commit)
	trees := make(map[gitobject.ID]gitobject.Tree)
	var mu sync.Mutex
	var failedWants []gitobject.ID

	// A plain errgroup.Group, not errgroup.WithContext: a batch that
	// exhausts its retries must not cancel the ctx siblings are using.
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency())
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			retryErr := retryWithBackoff(ctx, s.Logger, "fetch commits/trees batch", retryableFetchError, func() error {
				pfr, err := s.Git.FetchCommits(ctx, batch)
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
					switch o := obj.(type) {
					case *gitobject.Commit:
						mu.Lock()
						commits[id] = o
						mu.Unlock()
					case *gitobject.Tree:
						mu.Lock()
						trees[id] = *o
						mu.Unlock()
					}
				}
				return nil
			})
			if retryErr != nil {
				if s.Logger != nil {
					s.Logger.Error("commit/tree fetch batch exhausted retries", zap.Error(retryErr))
				}
				mu.Lock()
				failedWants = append(failedWants, batch...)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	failedSet := make(map[gitobject.ID]bool, len(failedWants))
	for _, id := range failedWants {
		if !failedSet[id] {
			failedSet[id] = true
			failed = append(failed, branchesByWant[id]...)
		}
	}

	branchToBlob = make(map[string]gitobject.ID)
	for _, branch := range addedOrChanged {
		want := newRefs[branch]
		if failedSet[want] {
			continue
		}
		commit, ok := commits[want]
		if !ok {
			noSrcinfo = append(noSrcinfo, branch)
			continue
		}
		tree, ok := trees[commit.Tree]
		if !ok {
			noSrcinfo = append(noSrcinfo, branch)
			continue
		}
		blobID, ok := tree.SrcinfoBlob()
		if !ok {
			noSrcinfo = append(noSrcinfo, branch)
			continue
		}
		branchToBlob[branch] = blobID
	}
	return branchToBlob, noSrcinfo, failed, nil
}
