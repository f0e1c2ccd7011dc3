// Package tracker maintains per-target state across poll cycles and
// computes which observed conditions are new. It is the reason a
// repeated identical observation never produces a duplicate alert.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/good-yellow-bee/repowatch/internal/models"
	"github.com/good-yellow-bee/repowatch/internal/storage"
)

// Diff compares the previous state of a target against the current
// observation and returns the proposed next state plus the set of newly
// detected conditions. The rules apply independently per condition kind:
//
//   - Build failures: new iff the count is nonzero AND differs from the
//     previous cycle's count. An unchanged nonzero count never re-fires.
//   - Dependency update PR: new iff auto-eligible updates exist AND no
//     update PR is pending. The PR identifier is filled in by the caller
//     once the PR is actually opened.
//   - Release readiness: new iff a release is needed AND the target has
//     not been notified. The notified flag is sticky until a release is
//     published.
//
// A nil prev means first poll: every nonzero/true observation is new
// exactly once, so an operator restarting after an outage gets one batch
// of catch-up notifications.
//
// The proposed next state assumes every condition's side effect will
// succeed; callers revert individual fields for side effects that fail,
// so those conditions stay new and retry next cycle.
func Diff(prev *models.TargetState, snap *models.ObservedSnapshot, now time.Time) (*models.TargetState, []models.ConditionKind) {
	next := &models.TargetState{
		Target:    snap.Target,
		UpdatedAt: now,
	}
	var conds []models.ConditionKind

	// Build failures
	prevFailed := 0
	if prev != nil {
		prevFailed = prev.FailedBuildCount
	}
	next.FailedBuildCount = snap.FailedBuildCount
	if snap.FailedBuildCount > 0 && snap.FailedBuildCount != prevFailed {
		conds = append(conds, models.ConditionBuildFailure)
	}

	// Dependency update PR
	if prev != nil {
		next.PendingUpdatePR = prev.PendingUpdatePR
	}
	if len(AutoEligible(snap.EligibleUpdates)) > 0 && next.PendingUpdatePR == "" {
		conds = append(conds, models.ConditionDependencyUpdate)
	}

	// Release readiness
	prevNotified := prev != nil && prev.ReleaseNotified
	next.ReleaseNotified = prevNotified
	if snap.ReleaseNeeded && !prevNotified {
		conds = append(conds, models.ConditionReleaseNeeded)
		next.ReleaseNotified = true
	}

	return next, conds
}

// AutoEligible filters updates down to those eligible for unattended
// action.
func AutoEligible(updates []models.DependencyUpdate) []models.DependencyUpdate {
	var eligible []models.DependencyUpdate
	for _, u := range updates {
		if u.AutoEligible {
			eligible = append(eligible, u)
		}
	}
	return eligible
}

// UpdatePolicy is the set of update types eligible for unattended PRs.
type UpdatePolicy map[models.UpdateType]struct{}

// NewUpdatePolicy builds a policy from a list of update types.
func NewUpdatePolicy(types []models.UpdateType) UpdatePolicy {
	p := make(UpdatePolicy, len(types))
	for _, t := range types {
		p[t] = struct{}{}
	}
	return p
}

// Apply marks updates whose type the policy allows as auto-eligible.
// Eligibility the collaborator already granted is kept; a nil or empty
// policy changes nothing. The input slice is not mutated.
func (p UpdatePolicy) Apply(updates []models.DependencyUpdate) []models.DependencyUpdate {
	if len(p) == 0 || len(updates) == 0 {
		return updates
	}
	out := make([]models.DependencyUpdate, len(updates))
	copy(out, updates)
	for i := range out {
		if _, ok := p[out[i].UpdateType]; ok {
			out[i].AutoEligible = true
		}
	}
	return out
}

// Tracker wraps the persisted per-target state and the hooks exposed to
// collaborators.
type Tracker struct {
	states storage.TargetStateRepository
}

// New creates a tracker over the given state repository.
func New(states storage.TargetStateRepository) *Tracker {
	return &Tracker{states: states}
}

// Load returns the stored state for a target, or nil on first poll.
func (t *Tracker) Load(ctx context.Context, target string) (*models.TargetState, error) {
	return t.states.Get(ctx, target)
}

// Persist writes the next state for a target. The write is atomic per
// target.
func (t *Tracker) Persist(ctx context.Context, state *models.TargetState) error {
	return t.states.Put(ctx, state)
}

// List returns the stored state for every known target.
func (t *Tracker) List(ctx context.Context) ([]*models.TargetState, error) {
	return t.states.List(ctx)
}

// ClearPendingPR clears the pending update PR for a target. Called by
// the collaborator when it observes the PR merged or closed; the next
// cycle may then open a new one.
func (t *Tracker) ClearPendingPR(ctx context.Context, target string) error {
	if err := t.states.ClearPendingPR(ctx, target); err != nil {
		return fmt.Errorf("clear pending PR for %s: %w", target, err)
	}
	return nil
}

// OnReleasePublished resets the sticky release-notified flag for a
// target after a release actually happened, re-arming the release
// condition.
func (t *Tracker) OnReleasePublished(ctx context.Context, target string) error {
	if err := t.states.SetReleaseNotified(ctx, target, false); err != nil {
		return fmt.Errorf("reset release notified for %s: %w", target, err)
	}
	return nil
}
