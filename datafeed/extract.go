package datafeed

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/xerrors"
)

// Extract writes the single document of the archive src to dst. A zip archive
// must hold exactly one entry: an empty archive or one with several entries is
// an error.
func Extract(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return xerrors.Errorf("unable to create %s: %w", filepath.Dir(dst), err)
	}

	switch {
	case strings.HasSuffix(src, ".zip"):
		zd := &getter.ZipDecompressor{}
		if err := zd.Decompress(dst, src, false, 0); err != nil {
			return xerrors.Errorf("failed to unzip: %w", err)
		}
	case strings.HasSuffix(src, ".gz"):
		if err := gunzip(src, dst); err != nil {
			return xerrors.Errorf("failed to gunzip: %w", err)
		}
	default:
		return xerrors.Errorf("unsupported archive %s: %w", filepath.Base(src), ErrInvalidInput)
	}
	return nil
}

func gunzip(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer r.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err = io.Copy(out, r); err != nil {
		return err
	}
	return out.Close()
}
