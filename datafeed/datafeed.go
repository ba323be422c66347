package datafeed

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	pb "github.com/cheggaaa/pb/v3"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/vulquery/vulquery/utils"
)

const (
	urlRoot      = "https://nvd.nist.gov/feeds/json/cve/1.0/nvdcve-1.0-"
	indexURL     = "https://nvd.nist.gov/vuln/data-feeds"
	filePrefix   = "nvdcve-1.0-"
	archiveExt   = ".json.zip"
	metaExt      = ".meta"
	modifiedFeed = "modified"
	feedDir      = "datafeed"

	earliestFeedYear = 2002
	latestFeedYear   = 2018

	timeout = 5 * time.Minute
	retry   = 0
	workers = 1
)

var (
	ErrInvalidInput = xerrors.New("invalid input")
	ErrInvalidYear  = xerrors.Errorf("invalid feed year: %w", ErrInvalidInput)
)

// YearError reports a yearly feed that could not be fetched.
type YearError struct {
	Year int
	Err  error
}

func (e *YearError) Error() string {
	return fmt.Sprintf("feed %d: %s", e.Year, e.Err)
}

func (e *YearError) Unwrap() error {
	return e.Err
}

type options struct {
	dir      string
	urlRoot  string
	prefix   string
	suffix   string
	minYear  int
	maxYear  int
	timeout  time.Duration
	retry    int
	workers  int
	metaURL  string
	indexURL string
	logger   *zap.Logger
}

type option func(*options)

func WithDir(dir string) option {
	return func(opts *options) { opts.dir = dir }
}

// WithURLRoot sets the URL every feed name is appended to, e.g.
// https://nvd.nist.gov/feeds/json/cve/1.0/nvdcve-1.0-
func WithURLRoot(root string) option {
	return func(opts *options) { opts.urlRoot = root }
}

func WithPrefix(prefix string) option {
	return func(opts *options) { opts.prefix = prefix }
}

// WithSuffix sets the archive suffix, ".json.zip" or ".json.gz".
func WithSuffix(suffix string) option {
	return func(opts *options) { opts.suffix = suffix }
}

func WithYearRange(minYear, maxYear int) option {
	return func(opts *options) {
		opts.minYear = minYear
		opts.maxYear = maxYear
	}
}

func WithTimeout(timeout time.Duration) option {
	return func(opts *options) { opts.timeout = timeout }
}

func WithRetry(retry int) option {
	return func(opts *options) { opts.retry = retry }
}

func WithWorkers(workers int) option {
	return func(opts *options) { opts.workers = workers }
}

func WithMetaURL(metaURL string) option {
	return func(opts *options) { opts.metaURL = metaURL }
}

func WithIndexURL(indexURL string) option {
	return func(opts *options) { opts.indexURL = indexURL }
}

func WithLogger(logger *zap.Logger) option {
	return func(opts *options) { opts.logger = logger }
}

// Downloader fetches NVD feed archives and extracts their documents under
// <dir>/datafeed.
type Downloader struct {
	*options
}

func NewDownloader(opts ...option) Downloader {
	o := &options{
		dir:      utils.CacheDir(),
		urlRoot:  urlRoot,
		prefix:   filePrefix,
		suffix:   archiveExt,
		minYear:  earliestFeedYear,
		maxYear:  latestFeedYear,
		timeout:  timeout,
		retry:    retry,
		workers:  workers,
		indexURL: indexURL,
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(o)
	}
	if o.metaURL == "" {
		o.metaURL = o.urlRoot + modifiedFeed + metaExt
	}
	if o.workers < 1 {
		o.workers = 1
	}
	if o.retry < 0 {
		o.retry = 0
	}

	return Downloader{
		options: o,
	}
}

// FetchLatestIncremental replaces the local copy of the "modified" feed and
// returns the path of its extracted document.
func (d Downloader) FetchLatestIncremental(ctx context.Context) (string, error) {
	d.logger.Info("Fetching modified feed")
	path, err := d.fetch(ctx, modifiedFeed)
	if err != nil {
		d.logger.Error("Failed to fetch modified feed", zap.Error(err))
		return "", xerrors.Errorf("failed to fetch modified feed: %w", err)
	}
	return path, nil
}

// FetchAndExtractAll fetches every yearly feed in [startYear, endYear]. A year
// that fails does not stop the others: the returned paths hold every document
// that was extracted, in year order, and the error is a *multierror.Error of
// *YearError for the years that failed.
func (d Downloader) FetchAndExtractAll(ctx context.Context, startYear, endYear int) ([]string, error) {
	if startYear > endYear {
		return nil, xerrors.Errorf("start year %d is after end year %d: %w", startYear, endYear, ErrInvalidYear)
	}
	for _, year := range []int{startYear, endYear} {
		if err := d.validateYear(year); err != nil {
			return nil, err
		}
	}

	years := lo.RangeFrom(startYear, endYear-startYear+1)
	d.logger.Info("Fetching yearly feeds", zap.Int("from", startYear), zap.Int("to", endYear), zap.Int("workers", d.workers))

	paths := make([]string, len(years))
	errs := make([]error, len(years))

	bar := pb.StartNew(len(years))
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, year := range years {
		i, year := i, year
		g.Go(func() error {
			defer bar.Increment()
			path, err := d.FetchSpecific(ctx, year)
			if err != nil {
				d.logger.Error("Failed to fetch feed", zap.Int("year", year), zap.Error(err))
				errs[i] = &YearError{Year: year, Err: err}
				return nil
			}
			paths[i] = path
			return nil
		})
	}
	_ = g.Wait()
	bar.Finish()

	var fetched []string
	var result *multierror.Error
	for i := range years {
		if errs[i] != nil {
			result = multierror.Append(result, errs[i])
			continue
		}
		fetched = append(fetched, paths[i])
	}
	return fetched, result.ErrorOrNil()
}

// FetchSpecific fetches the feed of one year and returns the path of its
// extracted document. It does not retry unless a retry count is configured.
func (d Downloader) FetchSpecific(ctx context.Context, year int) (string, error) {
	if err := d.validateYear(year); err != nil {
		return "", err
	}
	return d.fetch(ctx, strconv.Itoa(year))
}

// ArchivePath is the local path the archive of a feed is downloaded to.
func (d Downloader) ArchivePath(name string) string {
	return filepath.Join(d.dir, d.prefix+name+d.suffix)
}

// DocumentPath is the local path the document of a feed is extracted to.
func (d Downloader) DocumentPath(name string) string {
	docExt := strings.TrimSuffix(strings.TrimSuffix(d.suffix, ".zip"), ".gz")
	return filepath.Join(d.dir, feedDir, d.prefix+name+docExt)
}

func (d Downloader) validateYear(year int) error {
	if year < d.minYear || year > d.maxYear {
		return xerrors.Errorf("year %d is out of range, specify a year between %d and %d: %w",
			year, d.minYear, d.maxYear, ErrInvalidYear)
	}
	return nil
}

func (d Downloader) fetch(ctx context.Context, name string) (string, error) {
	archivePath := d.ArchivePath(name)
	docPath := d.DocumentPath(name)

	for _, stale := range []string{archivePath, docPath} {
		exists, err := utils.Exists(stale)
		if err != nil {
			return "", xerrors.Errorf("unable to stat %s: %w", stale, err)
		} else if !exists {
			continue
		}
		if err = os.Remove(stale); err != nil {
			return "", xerrors.Errorf("failed to remove stale file %s: %w", stale, err)
		}
	}

	src, err := d.sourceURL(name)
	if err != nil {
		return "", err
	}

	d.logger.Debug("Downloading feed", zap.String("url", src), zap.String("path", archivePath))
	if err = d.download(ctx, src, archivePath); err != nil {
		return "", xerrors.Errorf("failed to download %s: %w", src, err)
	}
	defer os.Remove(archivePath)

	if err = Extract(archivePath, docPath); err != nil {
		return "", xerrors.Errorf("failed to extract %s: %w", archivePath, err)
	}
	return docPath, nil
}

func (d Downloader) sourceURL(name string) (string, error) {
	u, err := url.Parse(d.urlRoot + name + d.suffix)
	if err != nil {
		return "", xerrors.Errorf("unable to parse feed url: %w", err)
	}
	// the archive is extracted locally, go-getter must store it untouched
	q := u.Query()
	q.Set("archive", "false")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d Downloader) download(ctx context.Context, src, dst string) error {
	op := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		return utils.DownloadFile(reqCtx, src, dst)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(d.retry)), ctx)
	return backoff.RetryNotify(op, bo, func(err error, wait time.Duration) {
		d.logger.Warn("Retrying feed download", zap.String("url", src), zap.Duration("wait", wait), zap.Error(err))
	})
}
