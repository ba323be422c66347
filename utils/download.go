package utils

import (
	"context"
	"os"
	"path/filepath"

	getter "github.com/hashicorp/go-getter"
	"golang.org/x/xerrors"
)

// DownloadFile fetches src into the file dst. Archives are stored as they are:
// callers pass archive=false in src when the URL ends in a known archive suffix.
func DownloadFile(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return xerrors.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}

	if err := download(ctx, src, dst, getter.ClientModeFile); err != nil {
		return xerrors.Errorf("download error: %w", err)
	}

	return nil
}

func download(ctx context.Context, src, dst string, mode getter.ClientMode) error {
	pwd, err := os.Getwd()
	if err != nil {
		return xerrors.Errorf("unable to get the current dir: %w", err)
	}

	// Build the client
	client := &getter.Client{
		Ctx:     ctx,
		Src:     src,
		Dst:     dst,
		Pwd:     pwd,
		Getters: getters(),
		Mode:    mode,
	}

	if err = client.Get(); err != nil {
		return xerrors.Errorf("failed to download: %w", err)
	}

	return nil
}

// getters returns a new getter set for each client. go-getter's package-level
// Getters are shared and Client.Get rebinds them to the calling client.
func getters() map[string]getter.Getter {
	httpGetter := &getter.HttpGetter{Netrc: true}
	return map[string]getter.Getter{
		"file":  new(getter.FileGetter),
		"http":  httpGetter,
		"https": httpGetter,
	}
}
