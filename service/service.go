package service

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/vulquery/vulquery/parser"
	"github.com/vulquery/vulquery/store"
)

const (
	defaultStartYear = 2002
	defaultEndYear   = 2018
	defaultWorkers   = 1
)

var (
	ErrSyncInProgress = xerrors.New("sync cycle already in progress")
	ErrSyncFailed     = xerrors.New("sync cycle failed")
)

// Fetcher places extracted feed documents on the filesystem and reports
// their paths. datafeed.Downloader satisfies it.
type Fetcher interface {
	FetchLatestIncremental(ctx context.Context) (string, error)
	FetchAndExtractAll(ctx context.Context, startYear, endYear int) ([]string, error)
	ModifiedSince(ctx context.Context) (time.Time, error)
}

type options struct {
	startYear  int
	endYear    int
	workers    int
	appFs      afero.Fs
	reportPath string
	logger     *zap.Logger
	clock      func() time.Time
}

type option func(*options)

func WithYearRange(startYear, endYear int) option {
	return func(opts *options) {
		opts.startYear = startYear
		opts.endYear = endYear
	}
}

func WithWorkers(workers int) option {
	return func(opts *options) { opts.workers = workers }
}

func WithFs(appFs afero.Fs) option {
	return func(opts *options) { opts.appFs = appFs }
}

// WithReportPath sets where the result of every cycle is written. No report
// is written when it is empty.
func WithReportPath(path string) option {
	return func(opts *options) { opts.reportPath = path }
}

func WithLogger(logger *zap.Logger) option {
	return func(opts *options) { opts.logger = logger }
}

func WithClock(clock func() time.Time) option {
	return func(opts *options) { opts.clock = clock }
}

type Service struct {
	*options

	fetcher Fetcher
	parser  parser.Parser
	store   store.Store

	// held for the whole of a sync cycle
	mu sync.Mutex
}

func New(fetcher Fetcher, p parser.Parser, s store.Store, opts ...option) *Service {
	o := &options{
		startYear: defaultStartYear,
		endYear:   defaultEndYear,
		workers:   defaultWorkers,
		appFs:     afero.NewOsFs(),
		logger:    zap.NewNop(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers < 1 {
		o.workers = 1
	}

	return &Service{
		options: o,
		fetcher: fetcher,
		parser:  p,
		store:   s,
	}
}
