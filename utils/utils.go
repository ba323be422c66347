package utils

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/parnurzeal/gorequest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/xerrors"
)

const fetchTimeout = time.Minute

func CacheDir() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	dir := filepath.Join(cacheDir, "vulquery")
	return dir
}

// NewLogger builds a console logger with ISO8601 timestamps.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, xerrors.Errorf("invalid log level %q: %w", level, err)
	}

	prodConfig := zap.NewProductionConfig()
	prodConfig.Level = zap.NewAtomicLevelAt(lvl)
	prodConfig.Encoding = "console"
	prodConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	prodConfig.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	logger, err := prodConfig.Build()
	if err != nil {
		return nil, xerrors.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// FetchURL returns HTTP response body with retry
func FetchURL(ctx context.Context, url string, retry int) (res []byte, err error) {
	for i := 0; i <= retry; i++ {
		if i > 0 {
			wait := math.Pow(float64(i), 2) + float64(randInt()%10)
			select {
			case <-ctx.Done():
				return nil, xerrors.Errorf("failed to fetch URL: %w", ctx.Err())
			case <-time.After(time.Duration(wait) * time.Second):
			}
		}
		res, err = fetchURL(ctx, url)
		if err == nil {
			return res, nil
		}
	}
	return nil, xerrors.Errorf("failed to fetch URL: %w", err)
}

func randInt() int {
	seed, _ := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	return int(seed.Int64())
}

func fetchURL(ctx context.Context, url string) ([]byte, error) {
	timeout := fetchTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	type response struct {
		resp gorequest.Response
		body []byte
		errs []error
	}
	// gorequest builds requests without a context; the buffered channel lets
	// an abandoned request finish on its own timeout.
	ch := make(chan response, 1)
	go func() {
		resp, body, errs := gorequest.New().Get(url).Timeout(timeout).Type("text").EndBytes()
		ch <- response{resp: resp, body: body, errs: errs}
	}()

	var r response
	select {
	case <-ctx.Done():
		return nil, xerrors.Errorf("HTTP error. url: %s, err: %w", url, ctx.Err())
	case r = <-ch:
	}

	if len(r.errs) > 0 {
		return nil, xerrors.Errorf("HTTP error. url: %s, err: %w", url, r.errs[0])
	}
	if r.resp.StatusCode != 200 {
		return nil, xerrors.Errorf("HTTP error. status code: %d, url: %s", r.resp.StatusCode, url)
	}
	return r.body, nil
}

func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return true, err
}

func LookupEnv(key, defaultValue string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultValue
}
