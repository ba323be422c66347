package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulquery/vulquery/config"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		check   func(t *testing.T, c config.Config)
		wantErr string
	}{
		{
			name: "defaults",
			env:  map[string]string{"VULQUERY_DOWNLOAD_DIR": "/var/lib/vulquery"},
			check: func(t *testing.T, c config.Config) {
				assert.Equal(t, "/var/lib/vulquery", c.DownloadDir)
				assert.Equal(t, filepath.Join("/var/lib/vulquery", "vulquery.db"), c.DBPath)
				assert.Equal(t, 2002, c.StartYear)
				assert.Equal(t, 2018, c.EndYear)
				assert.Equal(t, "https://nvd.nist.gov/feeds/json/cve/1.0/nvdcve-1.0-modified.meta", c.MetaURL)
				assert.Equal(t, 1, c.Workers)
				assert.Equal(t, 0, c.Retry)
			},
		},
		{
			name: "yaml file",
			yaml: `
download_dir: /data/feeds
min_year: 2002
max_year: 2024
start_year: 2015
timeout: 90s
workers: 4
feed_suffix: .json.gz
`,
			check: func(t *testing.T, c config.Config) {
				assert.Equal(t, "/data/feeds", c.DownloadDir)
				assert.Equal(t, 2015, c.StartYear)
				assert.Equal(t, 2024, c.EndYear)
				assert.Equal(t, 90*time.Second, c.Timeout)
				assert.Equal(t, 4, c.Workers)
				assert.Equal(t, ".json.gz", c.FeedSuffix)
			},
		},
		{
			name: "environment wins over yaml",
			yaml: "workers: 4\n",
			env: map[string]string{
				"VULQUERY_WORKERS": "2",
				"VULQUERY_TIMEOUT": "30s",
				"VULQUERY_RETRY":   "3",
			},
			check: func(t *testing.T, c config.Config) {
				assert.Equal(t, 2, c.Workers)
				assert.Equal(t, 30*time.Second, c.Timeout)
				assert.Equal(t, 3, c.Retry)
			},
		},
		{
			name:    "unknown yaml field",
			yaml:    "download_directory: /tmp\n",
			wantErr: "failed to decode config",
		},
		{
			name:    "invalid integer",
			env:     map[string]string{"VULQUERY_WORKERS": "many"},
			wantErr: "invalid VULQUERY_WORKERS",
		},
		{
			name:    "sync years out of range",
			yaml:    "start_year: 1999\n",
			wantErr: "sync years 1999-2018 must be within 2002-2018",
		},
		{
			name:    "unsupported suffix",
			yaml:    "feed_suffix: .xml.zip\n",
			wantErr: "feed suffix",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var path string
			if tt.yaml != "" {
				path = filepath.Join(t.TempDir(), "vulquery.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0600))
			}

			c, err := config.Load(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}
