package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/vulquery/vulquery/dependency"
)

const (
	blankMessage    = "Internal Server Error: Message is null or blank."
	notFoundMessage = "Failed to find any dependency with given group and artifact ID."
	pong            = "pong"
)

type messagePayload struct {
	Message string `json:"message"`
}

type dependencyPayload struct {
	Group        string                  `json:"groupId"`
	Artifact     string                  `json:"artifactId"`
	Version      string                  `json:"version,omitempty"`
	Dependencies []dependency.Dependency `json:"dependencies"`
}

// GetDependency looks up the stored records of group and artifact, narrowed
// to version when it is not blank. Failures are reported as a message
// payload, never as an error.
func (s *Service) GetDependency(ctx context.Context, group, artifact, version string) string {
	if strings.TrimSpace(group) == "" {
		return message(fmt.Sprintf("Group ID %s is null or blank.", group))
	}
	if strings.TrimSpace(artifact) == "" {
		return message(fmt.Sprintf("Artifact ID %s is null or blank.", artifact))
	}

	deps, err := s.store.GetByGroupAndArtifact(ctx, group, artifact)
	if err != nil {
		s.logger.Error("Failed to look up dependency",
			zap.String("group", group), zap.String("artifact", artifact), zap.Error(err))
		return message("Internal Service Error with null dependency List.")
	}

	if version = strings.TrimSpace(version); version != "" {
		var matched []dependency.Dependency
		for _, dep := range deps {
			if dep.Version == version {
				matched = append(matched, dep)
			}
		}
		deps = matched
	}
	if len(deps) == 0 {
		return message(notFoundMessage)
	}

	slices.SortFunc(deps, func(a, b dependency.Dependency) int {
		return strings.Compare(a.Version, b.Version)
	})

	b, err := json.Marshal(dependencyPayload{
		Group:        group,
		Artifact:     artifact,
		Version:      version,
		Dependencies: deps,
	})
	if err != nil {
		s.logger.Error("Failed to marshal dependencies", zap.Error(err))
		return message("")
	}
	return string(b)
}

// LastSyncDate reports the stored sync timestamp. It is blank when no cycle
// has updated it yet.
func (s *Service) LastSyncDate(ctx context.Context) string {
	ts, err := s.store.GetSyncTimestamp(ctx)
	if err != nil {
		s.logger.Error("Failed to read sync timestamp", zap.Error(err))
		return message("Internal Service Error: failed to read the last sync date.")
	}
	return message(ts)
}

func (s *Service) Ping() string {
	return message(pong)
}

func message(msg string) string {
	if strings.TrimSpace(msg) == "" {
		msg = blankMessage
	}
	b, _ := json.Marshal(messagePayload{Message: msg})
	return string(b)
}
