package journey

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: once ready, a journey stays ready for the same payload as time passes.
func TestIsReadyForListingIsMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	statuses := []interface{}{StatusActive, StatusRecovered, StatusExpired, StatusCancelled}

	properties.Property("readiness never reverts", prop.ForAll(
		func(status Status, attempts, inactivity, idleMinutes, laterMinutes int) bool {
			j := activeJourney("p1")
			j.Status = status
			j.LastAttemptNo = attempts

			now := t0.Add(time.Duration(idleMinutes) * time.Minute)
			later := now.Add(time.Duration(laterMinutes) * time.Minute)

			if !IsReadyForListing(j, inactivity, now) {
				return true
			}
			return IsReadyForListing(j, inactivity, later)
		},
		gen.OneConstOf(statuses...),
		gen.IntRange(0, 6),
		gen.IntRange(-5, 600),
		gen.IntRange(0, 2000),
		gen.IntRange(0, 2000),
	))

	properties.Property("an attempted or terminal journey is always ready", prop.ForAll(
		func(status Status, attempts, idleMinutes int) bool {
			j := activeJourney("p2")
			j.Status = status
			j.LastAttemptNo = attempts
			now := t0.Add(time.Duration(idleMinutes) * time.Minute)

			if status == StatusActive && attempts == 0 {
				return true
			}
			return IsReadyForListing(j, 1440, now)
		},
		gen.OneConstOf(statuses...),
		gen.IntRange(0, 6),
		gen.IntRange(0, 60),
	))

	properties.TestingRun(t)
}
