package parser

import (
	"bytes"
	"encoding/json"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/vulquery/vulquery/dependency"
)

var ErrInvalidInput = xerrors.New("invalid feed document")

// Parser converts a downloaded feed document into dependencies.
type Parser interface {
	Decode(data []byte) ([]dependency.Dependency, error)
}

// NVDParser decodes NVD JSON 1.0 feeds.
type NVDParser struct {
	logger *zap.Logger
}

func NewNVDParser(logger *zap.Logger) NVDParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return NVDParser{logger: logger}
}

// Decode walks every CVE item and returns one dependency per vendor, product and
// version, merged by full name. Items without a CVSS v2 base score or without
// vendor data are skipped. A document that is blank or not a feed fails as a
// whole and no dependencies are returned.
func (p NVDParser) Decode(data []byte) ([]dependency.Dependency, error) {
	items, err := p.items(data)
	if err != nil {
		return nil, err
	}

	deps := map[string]*dependency.Dependency{}
	for i, raw := range items {
		var item cveItem
		if err = json.Unmarshal(raw, &item); err != nil {
			p.logger.Debug("Skip malformed vulnerability", zap.Int("item", i), zap.Error(err))
			continue
		}

		score, ok := item.baseScore()
		if !ok {
			p.logger.Debug("Skip vulnerability without CVSS v2 base score", zap.Int("item", i))
			continue
		}

		vendors := item.CVE.Affects.Vendor.VendorData
		if len(vendors) == 0 {
			// not tied to a product, e.g. a web resource advisory
			p.logger.Debug("Skip vulnerability without vendor data", zap.Int("item", i))
			continue
		}

		for _, vendor := range vendors {
			for _, product := range vendor.Product.ProductData {
				for _, version := range product.Version.VersionData {
					d := dependency.New(vendor.VendorName, product.ProductName, version.VersionValue)
					if d.Validate() != nil {
						continue
					}
					merged, found := deps[d.FullName()]
					if !found {
						merged = &d
						deps[d.FullName()] = merged
					}
					merged.AddScore(score)
				}
			}
		}
	}

	return lo.Map(lo.Values(deps), func(d *dependency.Dependency, _ int) dependency.Dependency {
		return *d
	}), nil
}

func (p NVDParser) items(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, xerrors.Errorf("document is blank: %w", ErrInvalidInput)
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, xerrors.Errorf("failed to decode vulnerability list: %v: %w", err, ErrInvalidInput)
		}
		return items, nil
	case '{':
		var f feed
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, xerrors.Errorf("failed to decode feed: %v: %w", err, ErrInvalidInput)
		}
		if f.CVEItems == nil {
			return nil, xerrors.Errorf("CVE_Items is missing: %w", ErrInvalidInput)
		}
		return *f.CVEItems, nil
	default:
		return nil, xerrors.Errorf("top-level value is neither an object nor an array: %w", ErrInvalidInput)
	}
}

func (i cveItem) baseScore() (float64, bool) {
	m := i.Impact.BaseMetricV2
	if m == nil || m.CVSSV2 == nil || m.CVSSV2.BaseScore == nil {
		return 0, false
	}
	return *m.CVSSV2.BaseScore, true
}
