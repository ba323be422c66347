package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/vulquery/vulquery/utils"
)

const envPrefix = "VULQUERY_"

var ErrInvalidConfig = xerrors.New("invalid config")

type Config struct {
	DownloadDir string `yaml:"download_dir"`
	DBPath      string `yaml:"db_path"`

	FeedURLRoot string `yaml:"feed_url_root"`
	FeedPrefix  string `yaml:"feed_prefix"`
	FeedSuffix  string `yaml:"feed_suffix"`
	MetaURL     string `yaml:"meta_url"`
	IndexURL    string `yaml:"index_url"`

	// MinYear and MaxYear bound the yearly feeds that exist. StartYear and
	// EndYear select the ones a full sync fetches.
	MinYear   int `yaml:"min_year"`
	MaxYear   int `yaml:"max_year"`
	StartYear int `yaml:"start_year"`
	EndYear   int `yaml:"end_year"`

	Timeout time.Duration `yaml:"timeout"`
	Retry   int           `yaml:"retry"`
	Workers int           `yaml:"workers"`

	LogLevel string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		DownloadDir: utils.CacheDir(),
		FeedURLRoot: "https://nvd.nist.gov/feeds/json/cve/1.0/nvdcve-1.0-",
		FeedPrefix:  "nvdcve-1.0-",
		FeedSuffix:  ".json.zip",
		IndexURL:    "https://nvd.nist.gov/vuln/data-feeds",
		MinYear:     2002,
		MaxYear:     2018,
		Timeout:     5 * time.Minute,
		Retry:       0,
		Workers:     1,
		LogLevel:    "info",
	}
}

// Load reads the YAML file at path when it is not empty, applies VULQUERY_*
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, xerrors.Errorf("failed to read config: %w", err)
		}
		if err = yaml.UnmarshalStrict(b, &c); err != nil {
			return Config{}, xerrors.Errorf("failed to decode config %s: %w", path, err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}

	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DownloadDir, "vulquery.db")
	}
	if c.MetaURL == "" {
		c.MetaURL = c.FeedURLRoot + "modified.meta"
	}
	if c.StartYear == 0 {
		c.StartYear = c.MinYear
	}
	if c.EndYear == 0 {
		c.EndYear = c.MaxYear
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.DownloadDir) == "":
		return xerrors.Errorf("download directory is blank: %w", ErrInvalidConfig)
	case strings.TrimSpace(c.FeedURLRoot) == "":
		return xerrors.Errorf("feed url root is blank: %w", ErrInvalidConfig)
	case c.FeedSuffix != ".json.zip" && c.FeedSuffix != ".json.gz":
		return xerrors.Errorf("feed suffix %q must be .json.zip or .json.gz: %w", c.FeedSuffix, ErrInvalidConfig)
	case c.MinYear > c.MaxYear:
		return xerrors.Errorf("min year %d is after max year %d: %w", c.MinYear, c.MaxYear, ErrInvalidConfig)
	case c.StartYear < c.MinYear || c.EndYear > c.MaxYear || c.StartYear > c.EndYear:
		return xerrors.Errorf("sync years %d-%d must be within %d-%d: %w", c.StartYear, c.EndYear, c.MinYear, c.MaxYear, ErrInvalidConfig)
	case c.Timeout <= 0:
		return xerrors.Errorf("timeout must be positive: %w", ErrInvalidConfig)
	case c.Retry < 0:
		return xerrors.Errorf("retry must not be negative: %w", ErrInvalidConfig)
	case c.Workers < 1:
		return xerrors.Errorf("workers must be at least 1: %w", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"DOWNLOAD_DIR":  &c.DownloadDir,
		"DB_PATH":       &c.DBPath,
		"FEED_URL_ROOT": &c.FeedURLRoot,
		"FEED_PREFIX":   &c.FeedPrefix,
		"FEED_SUFFIX":   &c.FeedSuffix,
		"META_URL":      &c.MetaURL,
		"INDEX_URL":     &c.IndexURL,
		"LOG_LEVEL":     &c.LogLevel,
	}
	for key, field := range strs {
		*field = utils.LookupEnv(envPrefix+key, *field)
	}

	ints := map[string]*int{
		"MIN_YEAR":   &c.MinYear,
		"MAX_YEAR":   &c.MaxYear,
		"START_YEAR": &c.StartYear,
		"END_YEAR":   &c.EndYear,
		"RETRY":      &c.Retry,
		"WORKERS":    &c.Workers,
	}
	for key, field := range ints {
		val := utils.LookupEnv(envPrefix+key, "")
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return xerrors.Errorf("invalid %s%s %q: %w", envPrefix, key, val, ErrInvalidConfig)
		}
		*field = n
	}

	if val := utils.LookupEnv(envPrefix+"TIMEOUT", ""); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return xerrors.Errorf("invalid %sTIMEOUT %q: %w", envPrefix, val, ErrInvalidConfig)
		}
		c.Timeout = d
	}
	return nil
}
