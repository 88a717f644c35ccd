// Package policy evaluates postponement risk for upcoming course dates.
// It is pure: both the dashboard and the sweep feed it the same inputs and
// act on the result themselves.
package policy

import (
	"time"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
)

// Assessment is the outcome of evaluating one course date against a policy.
type Assessment struct {
	DaysUntilStart  int  `json:"days_until_start"`
	AtRisk          bool `json:"at_risk"`
	BelowMinimum    bool `json:"below_minimum"`
	WithinDeadline  bool `json:"within_deadline"`
	MinimumRequired int  `json:"minimum_required"`
}

// DaysUntilStart returns the number of whole days until start, rounded up.
// A session starting in 25 hours is 2 days out; one starting in 10 minutes
// is 1 day out. Sessions already started yield zero or negative values.
func DaysUntilStart(start, now time.Time) int {
	diff := start.Sub(now)
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// Evaluate classifies a course date against its effective policy. A date is
// at risk when it starts within the policy deadline and enrollment is still
// below the minimum.
func Evaluate(cd *models.CourseDate, pol *models.PostponementPolicy, now time.Time) Assessment {
	days := DaysUntilStart(cd.StartDate, now)
	below := cd.EnrolledCount < pol.MinimumRequired
	within := days <= pol.DeadlineDays

	return Assessment{
		DaysUntilStart:  days,
		AtRisk:          within && below,
		BelowMinimum:    below,
		WithinDeadline:  within,
		MinimumRequired: pol.MinimumRequired,
	}
}
