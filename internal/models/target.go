package models

import "time"

// ConditionKind is a category of noteworthy change tracked per target.
type ConditionKind string

const (
	// ConditionBuildFailure fires when the failed build count becomes
	// nonzero or changes between polls.
	ConditionBuildFailure ConditionKind = "build_failure"

	// ConditionDependencyUpdate fires when auto-eligible dependency
	// updates exist and no update PR is currently pending.
	ConditionDependencyUpdate ConditionKind = "dependency_update"

	// ConditionReleaseNeeded fires when a release newly becomes
	// warranted and the target has not yet been notified.
	ConditionReleaseNeeded ConditionKind = "release_needed"
)

// TargetState holds the last-observed value per condition kind for one
// monitored target. It is created on the first poll and mutated only by
// the poll orchestrator after a completed cycle.
type TargetState struct {
	// Target is the monitored target identifier (e.g. "owner/repo").
	Target string `json:"target"`

	// FailedBuildCount is the failed build count observed last cycle.
	FailedBuildCount int `json:"failed_build_count"`

	// PendingUpdatePR is the identifier of the open dependency-update
	// PR, empty when none is pending. Set once a PR is opened and
	// cleared externally when the PR is merged or closed.
	PendingUpdatePR string `json:"pending_update_pr,omitempty"`

	// ReleaseNotified is sticky: once a "release needed" notification
	// fires it stays true until a release is actually published.
	ReleaseNotified bool `json:"release_notified"`

	// UpdatedAt is when the state was last persisted.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy of the state.
func (s *TargetState) Clone() *TargetState {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// RepoSnapshot is the build/PR view of a target fetched from the
// repository host.
type RepoSnapshot struct {
	FailedBuildCount int       `json:"failed_build_count"`
	OpenPRs          int       `json:"open_prs"`
	DefaultBranch    string    `json:"default_branch"`
	LastPush         time.Time `json:"last_push"`
}

// ReleaseReadiness reports whether a target warrants a release.
type ReleaseReadiness struct {
	Needed bool   `json:"needed"`
	Reason string `json:"reason,omitempty"`
}

// ObservedSnapshot is everything one poll cycle observed about a target,
// assembled from the collaborator fetches.
type ObservedSnapshot struct {
	Target           string
	FailedBuildCount int
	EligibleUpdates  []DependencyUpdate
	ReleaseNeeded    bool
	ReleaseReason    string
}
