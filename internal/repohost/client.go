// Package repohost defines the contracts repowatch consumes from the
// repository-host collaborator: snapshot fetches, dependency update
// listings, release readiness, and opening update PRs.
package repohost

import (
	"context"
	"errors"
	"fmt"

	"github.com/good-yellow-bee/repowatch/internal/models"
)

// Client is the abstract collaborator contract. Implementations wrap
// whatever service actually hosts the repositories.
type Client interface {
	// FetchRepoSnapshot returns the build/PR view of a target.
	FetchRepoSnapshot(ctx context.Context, target string) (*models.RepoSnapshot, error)

	// FetchDependencyUpdates returns the available dependency updates
	// for a target, with update-type classification and eligibility.
	FetchDependencyUpdates(ctx context.Context, target string) ([]models.DependencyUpdate, error)

	// FetchReleaseReadiness reports whether a target warrants a release.
	FetchReleaseReadiness(ctx context.Context, target string) (*models.ReleaseReadiness, error)

	// OpenUpdatePR opens a dependency-update PR for the given updates
	// and returns its identifier.
	OpenUpdatePR(ctx context.Context, target string, updates []models.DependencyUpdate) (string, error)
}

// FetchError wraps a collaborator fetch failure (unreachable, 4xx/5xx).
// The target's cycle is skipped and its previous state left untouched.
type FetchError struct {
	Target string
	Op     string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s: %v", e.Op, e.Target, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err is (or wraps) a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
