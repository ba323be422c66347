package service

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/vulquery/vulquery/utils"
)

type Kind string

const (
	KindIncremental Kind = "incremental"
	KindFull        Kind = "full"
	KindCleanse     Kind = "cleanse"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailure Status = "failure"
	StatusSkipped Status = "skipped"
)

// Result summarizes one sync cycle. A unit is one feed document.
type Result struct {
	Kind       Kind      `json:"kind"`
	Status     Status    `json:"status"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Records    int       `json:"records"`
	Errors     []string  `json:"errors,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (s *Service) newResult(kind Kind) Result {
	return Result{
		Kind:      kind,
		StartedAt: s.clock().UTC(),
	}
}

func (r *Result) addError(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}

// classify applies the failure policy: no failures is a success, some
// failures a partial success and only failed units a failure.
func (r *Result) classify() {
	r.Succeeded = r.Attempted - r.Failed
	switch {
	case r.Failed == 0:
		r.Status = StatusSuccess
	case r.Failed < r.Attempted:
		r.Status = StatusPartial
	default:
		r.Status = StatusFailure
	}
}

// finish stamps the result and writes the report. A report that cannot be
// written does not fail the cycle.
func (s *Service) finish(r *Result) {
	r.FinishedAt = s.clock().UTC()

	s.logger.Info("Sync cycle finished",
		zap.String("kind", string(r.Kind)),
		zap.String("status", string(r.Status)),
		zap.Int("attempted", r.Attempted),
		zap.Int("succeeded", r.Succeeded),
		zap.Int("failed", r.Failed),
		zap.Int("records", r.Records),
	)

	if s.reportPath == "" {
		return
	}
	if err := utils.NewFs(s.appFs).WriteJSON(s.reportPath, r); err != nil {
		s.logger.Warn("Failed to write sync report", zap.String("path", s.reportPath), zap.Error(err))
	}
}

// LastResult reads the report written by the most recent cycle.
func (s *Service) LastResult() (Result, error) {
	if s.reportPath == "" {
		return Result{}, xerrors.New("no report path configured")
	}

	var res Result
	if err := utils.NewFs(s.appFs).ReadJSON(s.reportPath, &res); err != nil {
		return Result{}, xerrors.Errorf("failed to read sync report: %w", err)
	}
	return res, nil
}
