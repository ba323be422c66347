package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/araddon/dateparse"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// Sync runs an incremental cycle over the "modified" feed. Unless force is
// set, the cycle is skipped when the feed has not changed since the last
// successful sync.
func (s *Service) Sync(ctx context.Context, force bool) (res Result, err error) {
	if !s.mu.TryLock() {
		return Result{}, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	res = s.newResult(KindIncremental)
	defer func() { s.finish(&res) }()

	if !force && s.unchanged(ctx) {
		res.Status = StatusSkipped
		return res, nil
	}

	res.Attempted = 1
	path, err := s.fetcher.FetchLatestIncremental(ctx)
	if err == nil && strings.TrimSpace(path) == "" {
		err = xerrors.New("no incremental feed path")
	}
	if err == nil {
		var n int
		n, err = s.process(ctx, path)
		res.Records = n
	}
	if err != nil {
		res.Failed = 1
		res.addError(err)
		res.classify()
		s.logger.Error("Incremental sync failed", zap.Error(err))
		return res, syncFailed(err)
	}

	res.classify()
	if err = s.updateTimestamp(ctx, res.StartedAt); err != nil {
		res.addError(err)
		return res, err
	}
	return res, nil
}

// FullSync fetches every configured year and stores the decoded records.
func (s *Service) FullSync(ctx context.Context) (res Result, err error) {
	if !s.mu.TryLock() {
		return Result{}, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	res = s.newResult(KindFull)
	defer func() { s.finish(&res) }()

	err = s.fullSync(ctx, &res)
	return res, err
}

// CleanseAndResync removes every stored record before running a full sync.
func (s *Service) CleanseAndResync(ctx context.Context) (res Result, err error) {
	if !s.mu.TryLock() {
		return Result{}, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	res = s.newResult(KindCleanse)
	defer func() { s.finish(&res) }()

	if err = s.store.RemoveAll(ctx); err != nil {
		res.Status = StatusFailure
		res.addError(err)
		s.logger.Error("Failed to remove stored dependencies", zap.Error(err))
		return res, syncFailed(err)
	}

	err = s.fullSync(ctx, &res)
	return res, err
}

func (s *Service) fullSync(ctx context.Context, res *Result) error {
	total := s.endYear - s.startYear + 1

	paths, fetchErr := s.fetcher.FetchAndExtractAll(ctx, s.startYear, s.endYear)
	if len(paths) > total {
		total = len(paths)
	}
	res.Attempted = total
	if fetchErr != nil {
		res.addFetchErrors(fetchErr)
	}

	if len(paths) == 0 {
		if fetchErr == nil {
			fetchErr = xerrors.New("no feed documents were fetched")
			res.addError(fetchErr)
		}
		res.Failed = total
		res.classify()
		s.logger.Error("Full sync failed", zap.Error(fetchErr))
		return syncFailed(fetchErr)
	}

	var (
		failed  atomic.Int64
		records atomic.Int64
		mu      sync.Mutex
		errs    *multierror.Error
	)
	failed.Store(int64(total - len(paths)))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			n, err := s.process(ctx, path)
			records.Add(int64(n))
			if err != nil {
				failed.Add(1)
				s.logger.Warn("Failed to sync feed document", zap.String("path", path), zap.Error(err))

				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Records = int(records.Load())
	res.Failed = int(failed.Load())
	if errs != nil {
		for _, err := range errs.Errors {
			res.addError(err)
		}
	}
	res.classify()

	switch res.Status {
	case StatusFailure:
		s.logger.Error("Full sync failed, every feed document failed", zap.Int("failed", res.Failed))
		return xerrors.Errorf("%d of %d feed documents failed: %w", res.Failed, res.Attempted, ErrSyncFailed)
	case StatusPartial:
		s.logger.Warn("Full sync partially succeeded",
			zap.Int("failed", res.Failed), zap.Int("total", res.Attempted))
	}

	if err := s.updateTimestamp(ctx, res.StartedAt); err != nil {
		res.addError(err)
		return err
	}
	return nil
}

// syncFailed keeps both ErrSyncFailed and the cause in the error chain.
func syncFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrSyncFailed, err)
}

func (r *Result) addFetchErrors(err error) {
	var merr *multierror.Error
	if xerrors.As(err, &merr) {
		for _, e := range merr.Errors {
			r.addError(e)
		}
		return
	}
	r.addError(err)
}

// process decodes one feed document and stores its records. It returns the
// number of records stored before any failure.
func (s *Service) process(ctx context.Context, path string) (int, error) {
	if strings.TrimSpace(path) == "" {
		return 0, xerrors.New("blank feed document path")
	}

	b, err := afero.ReadFile(s.appFs, path)
	if err != nil {
		return 0, xerrors.Errorf("failed to read %s: %w", path, err)
	}

	deps, err := s.parser.Decode(b)
	if err != nil {
		return 0, xerrors.Errorf("failed to decode %s: %w", path, err)
	}

	for i, dep := range deps {
		if err = s.store.AddOrUpdate(ctx, dep); err != nil {
			return i, xerrors.Errorf("failed to store %s from %s: %w", dep.FullName(), path, err)
		}
	}
	s.logger.Debug("Stored feed document", zap.String("path", path), zap.Int("records", len(deps)))
	return len(deps), nil
}

// updateTimestamp stores the start of the cycle. A feed modified while the
// cycle ran is still newer than the stored timestamp.
func (s *Service) updateTimestamp(ctx context.Context, startedAt time.Time) error {
	if err := s.store.UpdateSyncTimestamp(ctx, startedAt); err != nil {
		s.logger.Error("Failed to update sync timestamp", zap.Error(err))
		return xerrors.Errorf("failed to update sync timestamp: %w", err)
	}
	return nil
}

// unchanged reports whether the remote feed was last modified before the
// stored sync timestamp. Any failure to tell counts as changed.
func (s *Service) unchanged(ctx context.Context) bool {
	last, err := s.store.GetSyncTimestamp(ctx)
	if err != nil {
		s.logger.Warn("Failed to read sync timestamp", zap.Error(err))
		return false
	}
	if last == "" {
		return false
	}

	synced, err := dateparse.ParseIn(last, time.UTC)
	if err != nil {
		s.logger.Warn("Failed to parse sync timestamp", zap.String("timestamp", last), zap.Error(err))
		return false
	}

	modified, err := s.fetcher.ModifiedSince(ctx)
	if err != nil {
		s.logger.Warn("Failed to check feed modification date", zap.Error(err))
		return false
	}

	if modified.After(synced) {
		return false
	}
	s.logger.Info("Feed unchanged since last sync",
		zap.Time("modified", modified), zap.Time("synced", synced))
	return true
}
