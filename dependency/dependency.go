package dependency

import (
	"fmt"
	"strings"

	"golang.org/x/xerrors"
)

const separator = ":"

var ErrInvalidDependency = xerrors.New("invalid dependency")

// Dependency is an (organization, product, version) triple affected by at least
// one scored vulnerability.
type Dependency struct {
	Group           string  `json:"groupId" db:"group_id"`
	Artifact        string  `json:"artifactId" db:"artifact_id"`
	Version         string  `json:"version" db:"version"`
	AverageScore    float64 `json:"averageScore" db:"average_score"`
	OccurrenceCount int     `json:"occurrenceCount" db:"occurrence_count"`
}

func New(group, artifact, version string) Dependency {
	return Dependency{
		Group:    group,
		Artifact: artifact,
		Version:  version,
	}
}

// FullName returns group:artifact:version, the key dependencies are merged and stored by.
func (d Dependency) FullName() string {
	return d.Group + separator + d.Artifact + separator + d.Version
}

// AddScore folds one more occurrence into the dependency.
//
// The new average is (average + score) / (count + 1). This is not a running mean
// over every sample: earlier occurrences lose weight. Stored scores depend on
// this exact rule, so it must not change silently.
func (d *Dependency) AddScore(score float64) {
	d.AverageScore = (d.AverageScore + score) / float64(d.OccurrenceCount+1)
	d.OccurrenceCount++
}

func (d Dependency) Validate() error {
	switch {
	case strings.TrimSpace(d.Group) == "":
		return xerrors.Errorf("group is blank: %w", ErrInvalidDependency)
	case strings.TrimSpace(d.Artifact) == "":
		return xerrors.Errorf("artifact is blank: %w", ErrInvalidDependency)
	case strings.TrimSpace(d.Version) == "":
		return xerrors.Errorf("version is blank: %w", ErrInvalidDependency)
	case d.OccurrenceCount < 0:
		return xerrors.Errorf("negative occurrence count %d: %w", d.OccurrenceCount, ErrInvalidDependency)
	}
	return nil
}

func (d Dependency) String() string {
	return fmt.Sprintf("%s (score: %.2f, occurrences: %d)", d.FullName(), d.AverageScore, d.OccurrenceCount)
}
