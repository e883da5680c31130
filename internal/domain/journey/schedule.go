package journey

import (
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/campaign"
)

// IsReadyForListing decides whether a journey is shown to operators and
// eligible for dispatch. Terminal journeys and journeys with at least one
// attempt are always ready; a fresh active cart becomes ready once it has been
// idle for max(1, inactivityMinutes) minutes. A fresh cart without a known
// last activity is never ready.
func IsReadyForListing(j Journey, inactivityMinutes int, now time.Time) bool {
	if j.Status != StatusActive {
		return true
	}
	if j.LastAttemptNo > 0 {
		return true
	}
	if j.LastActivityAt.IsZero() {
		return false
	}
	return now.Sub(j.LastActivityAt) >= campaign.InactivityThreshold(inactivityMinutes)
}

// Action is what the dispatcher should do next for a journey.
type Action string

const (
	ActionNone      Action = "none"
	ActionFire      Action = "fire"
	ActionExpire    Action = "expire"
	ActionExhausted Action = "exhausted"
)

// Decision is the advisory next step for a journey. It mirrors the external
// dispatcher; the console never persists it.
type Decision struct {
	Action          Action     `json:"action"`
	AttemptNo       int        `json:"attemptNo,omitempty"`
	DueAt           *time.Time `json:"dueAt,omitempty"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	DiscountPercent int        `json:"discountPercent"`
}

// ExpiresAt is the hard deadline of an active journey.
func ExpiresAt(p campaign.Policy, j Journey) time.Time {
	return j.CreatedAt.Add(p.EffectiveRecoveryWindow())
}

// NextAttempt computes when the next attempt is due. Attempt n is due
// delays[n-1] minutes after the previous attempt fired, or after the
// inactivity threshold for the first attempt. An attempt that would fall past
// the recovery window turns into an expiry.
func NextAttempt(p campaign.Policy, j Journey, lastFiredAt *time.Time) Decision {
	expiresAt := ExpiresAt(p, j)
	if j.Status.IsTerminal() {
		return Decision{Action: ActionNone, ExpiresAt: expiresAt}
	}

	n := j.LastAttemptNo + 1
	if j.LastAttemptNo >= p.MaxAttempts || n > len(p.AttemptDelaysMinutes) {
		return Decision{Action: ActionExhausted, ExpiresAt: expiresAt}
	}

	var prev time.Time
	switch {
	case n == 1:
		prev = j.LastActivityAt.Add(p.InactivityThreshold())
	case lastFiredAt != nil:
		prev = *lastFiredAt
	default:
		prev = j.UpdatedAt
	}

	due := prev.Add(time.Duration(p.AttemptDelaysMinutes[n-1]) * time.Minute)
	if due.After(expiresAt) {
		return Decision{Action: ActionExpire, AttemptNo: n, ExpiresAt: expiresAt}
	}
	return Decision{
		Action:          ActionFire,
		AttemptNo:       n,
		DueAt:           &due,
		ExpiresAt:       expiresAt,
		DiscountPercent: DiscountFor(p, n, j.CartTotalMinorUnits),
	}
}

// Readiness classifies a journey for dispatch at a point in time.
type Readiness string

const (
	ReadinessTerminal  Readiness = "terminal"
	ReadinessFresh     Readiness = "fresh"
	ReadinessWaiting   Readiness = "waiting"
	ReadinessDue       Readiness = "due"
	ReadinessExhausted Readiness = "exhausted"
	ReadinessExpire    Readiness = "expire"
)

// Classify reports whether a journey is fresh, waiting, due for its next
// attempt, out of attempts, or past the point where it must expire.
func Classify(p campaign.Policy, j Journey, lastFiredAt *time.Time, now time.Time) Readiness {
	if j.Status.IsTerminal() {
		return ReadinessTerminal
	}
	if !IsReadyForListing(j, p.InactivityMinutes, now) {
		return ReadinessFresh
	}

	d := NextAttempt(p, j, lastFiredAt)
	if !now.Before(d.ExpiresAt) {
		return ReadinessExpire
	}
	switch d.Action {
	case ActionExhausted:
		return ReadinessExhausted
	case ActionExpire:
		return ReadinessExpire
	}
	if !now.Before(*d.DueAt) {
		return ReadinessDue
	}
	return ReadinessWaiting
}

// DiscountFor returns the discount offered at an attempt. Carts below the
// minimum value get nothing; ladder values are capped by the maximum.
func DiscountFor(p campaign.Policy, attemptNo int, cartTotalMinorUnits int64) int {
	if attemptNo < 1 || attemptNo > len(p.DiscountLadderPercent) {
		return 0
	}
	if float64(cartTotalMinorUnits)/100.0 < p.MinDiscountCartValue {
		return 0
	}
	percent := p.DiscountLadderPercent[attemptNo-1]
	if percent > p.MaxDiscountPercent {
		percent = p.MaxDiscountPercent
	}
	if percent < 0 {
		return 0
	}
	return percent
}

// ApplyAttemptOutcome folds a finalized attempt into the journey. Only a sent
// attempt advances the ladder; failed and pending attempts leave the journey
// untouched, so delivery failures never trigger extra sends.
func ApplyAttemptOutcome(p campaign.Policy, j Journey, a Attempt) Journey {
	if j.Status.IsTerminal() || a.Status != AttemptSent || a.AttemptNo <= j.LastAttemptNo {
		return j
	}

	out := j.Clone()
	out.LastAttemptNo = a.AttemptNo
	out.UpdatedAt = a.CreatedAt

	fired := a.CreatedAt
	if d := NextAttempt(p, out, &fired); d.Action == ActionFire {
		out.NextAttemptAt = d.DueAt
	} else {
		out.NextAttemptAt = nil
	}
	return out
}

// FiredAttempts counts attempts that left the dispatcher, failed ones included.
func FiredAttempts(attempts []Attempt) int {
	n := 0
	for _, a := range attempts {
		if a.Status == AttemptSent || a.Status == AttemptFailed {
			n++
		}
	}
	return n
}

// LastFiredAt returns when the given attempt number was sent, if it was.
func LastFiredAt(attempts []Attempt, attemptNo int) *time.Time {
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].AttemptNo == attemptNo && attempts[i].Status == AttemptSent {
			t := attempts[i].CreatedAt
			return &t
		}
	}
	return nil
}
