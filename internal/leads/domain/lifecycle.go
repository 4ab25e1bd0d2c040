package domain

import "time"

// Default inactivity thresholds. A lead on its first assignment gets a short
// leash; reassigned leads get longer windows that depend on classification.
const (
	FirstAssignmentThreshold = 24 * time.Hour
	HotThreshold             = 20 * 24 * time.Hour
	YetToDecideThreshold     = 17 * 24 * time.Hour
	DefaultThreshold         = 15 * 24 * time.Hour
)

// ThresholdRules carries the inactivity windows used by the sweep. The zero
// value is not usable; construct via DefaultThresholdRules and override.
type ThresholdRules struct {
	FirstAssignment time.Duration
	Hot             time.Duration
	YetToDecide     time.Duration
	Default         time.Duration
}

// DefaultThresholdRules returns the built-in inactivity windows.
func DefaultThresholdRules() ThresholdRules {
	return ThresholdRules{
		FirstAssignment: FirstAssignmentThreshold,
		Hot:             HotThreshold,
		YetToDecide:     YetToDecideThreshold,
		Default:         DefaultThreshold,
	}
}

// SweepAction is the transition the sweep decided for one lead.
type SweepAction int

const (
	// SweepNone means the lead is left alone this tick.
	SweepNone SweepAction = iota
	// SweepUnassign clears the assignment and bumps the reassignment count.
	SweepUnassign
	// SweepArchive moves the lead to the unassigned master-data pool and
	// deletes the original record with its children.
	SweepArchive
)

// IsFirstAssignment reports whether the lead is still on its very first
// assignment: the first-assignment date is unset or equals the current
// assignment date.
func (l Lead) IsFirstAssignment() bool {
	if l.FirstAssignmentDate == nil {
		return true
	}
	if l.AssignedDate == nil {
		return true
	}
	return l.FirstAssignmentDate.Equal(*l.AssignedDate)
}

// InactivityThreshold computes the window after which the lead becomes a
// sweep candidate under the given rules.
func (l Lead) InactivityThreshold(rules ThresholdRules) time.Duration {
	if l.IsFirstAssignment() {
		return rules.FirstAssignment
	}
	if l.Heat == HeatHot {
		return rules.Hot
	}
	if l.Status == StatusYetToDecide {
		return rules.YetToDecide
	}
	return rules.Default
}

// EvaluateSweep decides the lifecycle transition for one lead at the given
// instant. Unassigned leads and matured leads are permanently exempt. The
// activity clock falls back to the assignment date when no activity has been
// recorded; a lead with neither is left alone.
func EvaluateSweep(l Lead, now time.Time, rules ThresholdRules) SweepAction {
	if !l.IsAssigned() {
		return SweepNone
	}
	if l.Heat == HeatMatured {
		return SweepNone
	}

	reference := l.LastActivityTime
	if reference == nil {
		reference = l.AssignedDate
	}
	if reference == nil {
		return SweepNone
	}

	if now.Sub(*reference) < l.InactivityThreshold(rules) {
		return SweepNone
	}

	if l.IsFirstAssignment() || l.ReassignmentCount == 0 {
		return SweepUnassign
	}
	return SweepArchive
}

// InactiveDays is the whole number of days since the lead's activity
// reference, used in sweep narration comments.
func InactiveDays(l Lead, now time.Time) int {
	reference := l.LastActivityTime
	if reference == nil {
		reference = l.AssignedDate
	}
	if reference == nil {
		return 0
	}
	return int(now.Sub(*reference).Hours() / 24)
}
