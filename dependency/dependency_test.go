package dependency_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulquery/vulquery/dependency"
)

func TestDependency_FullName(t *testing.T) {
	d := dependency.New("acme", "widget", "1.0")
	assert.Equal(t, "acme:widget:1.0", d.FullName())
	assert.Equal(t, 0.0, d.AverageScore)
	assert.Equal(t, 0, d.OccurrenceCount)
}

func TestDependency_AddScore(t *testing.T) {
	tests := []struct {
		name      string
		scores    []float64
		wantScore float64
		wantCount int
	}{
		{
			name:      "single occurrence",
			scores:    []float64{5.0},
			wantScore: 5.0,
			wantCount: 1,
		},
		{
			name:      "two occurrences",
			scores:    []float64{5.0, 7.0},
			wantScore: 6.0,
			wantCount: 2,
		},
		{
			// (((4 / 1) + 4) / 2 + 10) / 3 = 14 / 3
			name:      "three occurrences keep the compatibility formula",
			scores:    []float64{4.0, 4.0, 10.0},
			wantScore: 14.0 / 3.0,
			wantCount: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := dependency.New("acme", "widget", "1.0")
			for _, s := range tt.scores {
				d.AddScore(s)
			}
			assert.InDelta(t, tt.wantScore, d.AverageScore, 1e-9)
			assert.Equal(t, tt.wantCount, d.OccurrenceCount)
		})
	}
}

func TestDependency_Validate(t *testing.T) {
	tests := []struct {
		name    string
		dep     dependency.Dependency
		wantErr string
	}{
		{
			name: "happy path",
			dep:  dependency.New("acme", "widget", "1.0"),
		},
		{
			name:    "blank group",
			dep:     dependency.New(" ", "widget", "1.0"),
			wantErr: "group is blank",
		},
		{
			name:    "blank artifact",
			dep:     dependency.New("acme", "", "1.0"),
			wantErr: "artifact is blank",
		},
		{
			name:    "blank version",
			dep:     dependency.New("acme", "widget", ""),
			wantErr: "version is blank",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dep.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, dependency.ErrInvalidDependency)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
