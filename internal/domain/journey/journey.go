// Package journey models the recovery lifecycle of one abandoned cart.
package journey

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a journey.
type Status string

const (
	StatusActive    Status = "active"
	StatusRecovered Status = "recovered"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no transition can leave the status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRecovered, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsKnown reports whether s is one of the four lifecycle states.
func (s Status) IsKnown() bool {
	return s == StatusActive || s.IsTerminal()
}

var (
	// ErrTerminal is returned when a terminal journey is asked to move.
	ErrTerminal = errors.New("journey is in a terminal state")
	// ErrInvalidTransition is returned for any edge outside active -> terminal.
	ErrInvalidTransition = errors.New("invalid journey transition")
)

// Journey is one abandoned cart under recovery.
type Journey struct {
	ID                  string     `json:"id"`
	Status              Status     `json:"status"`
	CartTotalMinorUnits int64      `json:"cartTotalMinorUnits"`
	Currency            string     `json:"currency,omitempty"`
	CustomerName        string     `json:"customerName,omitempty"`
	CustomerEmail       string     `json:"customerEmail,omitempty"`
	CustomerPhone       string     `json:"customerPhone,omitempty"`
	LastAttemptNo       int        `json:"lastAttemptNo"`
	LastActivityAt      time.Time  `json:"lastActivityAt"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	NextAttemptAt       *time.Time `json:"nextAttemptAt"`
	RecoveredOrderRef   *string    `json:"recoveredOrderRef"`
	RecoveryReason      *string    `json:"recoveryReason"`
}

// TransitionInput carries the optional details of a terminal transition.
type TransitionInput struct {
	OrderRef string
	Reason   string
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	return from == StatusActive && to.IsTerminal()
}

// Transition moves an active journey into a terminal state. Once terminal the
// journey rejects every further transition.
func (j *Journey) Transition(to Status, at time.Time, in TransitionInput) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, j.ID, j.Status)
	}
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}

	j.Status = to
	j.UpdatedAt = at
	j.NextAttemptAt = nil
	if in.OrderRef != "" {
		ref := in.OrderRef
		j.RecoveredOrderRef = &ref
	}
	if in.Reason != "" {
		reason := in.Reason
		j.RecoveryReason = &reason
	}
	return nil
}

// Recover marks the journey recovered by a completed order.
func (j *Journey) Recover(at time.Time, orderRef, reason string) error {
	return j.Transition(StatusRecovered, at, TransitionInput{OrderRef: orderRef, Reason: reason})
}

// Expire marks the journey expired after its recovery window elapsed.
func (j *Journey) Expire(at time.Time) error {
	return j.Transition(StatusExpired, at, TransitionInput{Reason: "recovery_window_elapsed"})
}

// Cancel marks the journey cancelled by an operator or the customer.
func (j *Journey) Cancel(at time.Time, reason string) error {
	return j.Transition(StatusCancelled, at, TransitionInput{Reason: reason})
}

// Clone returns a copy that shares no pointers with j.
func (j Journey) Clone() Journey {
	out := j
	if j.NextAttemptAt != nil {
		t := *j.NextAttemptAt
		out.NextAttemptAt = &t
	}
	if j.RecoveredOrderRef != nil {
		s := *j.RecoveredOrderRef
		out.RecoveredOrderRef = &s
	}
	if j.RecoveryReason != nil {
		s := *j.RecoveryReason
		out.RecoveryReason = &s
	}
	return out
}

// AttemptStatus is the delivery state of one outreach attempt.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSent    AttemptStatus = "sent"
	AttemptFailed  AttemptStatus = "failed"
)

// Attempt is one outreach action. Append-only: only the status is finalized.
type Attempt struct {
	AttemptNo       int           `json:"attemptNo"`
	Status          AttemptStatus `json:"status"`
	Channels        []string      `json:"channels"`
	DiscountCode    string        `json:"discountCode,omitempty"`
	DiscountPercent int           `json:"discountPercent"`
	PaymentLinkID   string        `json:"paymentLinkId,omitempty"`
	PaymentLinkURL  string        `json:"paymentLinkUrl,omitempty"`
	FailureReason   string        `json:"failureReason,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// Finalize settles a pending attempt. Settled attempts never change again.
func (a *Attempt) Finalize(status AttemptStatus, reason string) error {
	if a.Status != AttemptPending {
		return fmt.Errorf("attempt %d already %s", a.AttemptNo, a.Status)
	}
	if status != AttemptSent && status != AttemptFailed {
		return fmt.Errorf("attempt %d cannot be finalized as %q", a.AttemptNo, status)
	}
	a.Status = status
	if status == AttemptFailed {
		a.FailureReason = reason
	}
	return nil
}

// Discount is a code issued to the customer during a journey.
type Discount struct {
	Code      string    `json:"code"`
	Percent   int       `json:"percent"`
	AttemptNo int       `json:"attemptNo"`
	Redeemed  bool      `json:"redeemed"`
	CreatedAt time.Time `json:"createdAt"`
}

// Timeline is the full history of one journey.
type Timeline struct {
	Journey   Journey    `json:"journey"`
	Attempts  []Attempt  `json:"attempts"`
	Discounts []Discount `json:"discounts"`
}
