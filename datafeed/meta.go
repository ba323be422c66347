package datafeed

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"

	"github.com/vulquery/vulquery/utils"
)

const lastModifiedKey = "lastModifiedDate"

// ModifiedSince returns the lastModifiedDate published in the meta file of the
// modified feed.
func (d Downloader) ModifiedSince(ctx context.Context) (time.Time, error) {
	b, err := utils.FetchURL(ctx, d.metaURL, d.retry)
	if err != nil {
		return time.Time{}, xerrors.Errorf("failed to fetch feed meta: %w", err)
	}

	for _, line := range strings.Split(string(b), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || key != lastModifiedKey {
			continue
		}
		t, err := dateparse.ParseAny(strings.TrimSpace(value))
		if err != nil {
			return time.Time{}, xerrors.Errorf("invalid %s %q: %w", lastModifiedKey, value, err)
		}
		return t, nil
	}
	return time.Time{}, xerrors.Errorf("%s not found in %s", lastModifiedKey, d.metaURL)
}

// AvailableYears lists the yearly feeds linked from the data feeds page.
func (d Downloader) AvailableYears(ctx context.Context) ([]int, error) {
	b, err := utils.FetchURL(ctx, d.indexURL, d.retry)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch feed index: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return nil, xerrors.Errorf("failed to read feed index: %w", err)
	}

	reg := regexp.MustCompile(regexp.QuoteMeta(d.prefix) + `(\d{4})` + regexp.QuoteMeta(d.suffix) + `$`)
	var years []int
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		m := reg.FindStringSubmatch(href)
		if m == nil {
			return
		}
		year, err := strconv.Atoi(m[1])
		if err != nil {
			return
		}
		years = append(years, year)
	})

	if len(years) == 0 {
		return nil, xerrors.Errorf("no %s feeds found in %s", d.suffix, d.indexURL)
	}

	years = lo.Uniq(years)
	slices.Sort(years)
	d.logger.Debug("Available feeds", zap.Ints("years", years))
	return years, nil
}
