// Package campaign defines the recovery campaign policy and its validation rules.
package campaign

import (
	"math"
	"time"
)

const (
	// MinAttempts and MaxAttempts bound the attempt ladder length.
	MinAttempts = 1
	MaxAttempts = 6

	// RecoveryWindowBufferHours is added on top of the attempt schedule when
	// computing the smallest recovery window that covers it.
	RecoveryWindowBufferHours = 2

	// MaxAttemptDelayMinutes caps a single attempt delay at one year.
	MaxAttemptDelayMinutes = 365 * 24 * 60
)

// Field names used as keys in validation error maps.
const (
	FieldEnabled               = "enabled"
	FieldInactivityMinutes     = "inactivityMinutes"
	FieldMaxAttempts           = "maxAttempts"
	FieldAttemptDelaysMinutes  = "attemptDelaysMinutes"
	FieldDiscountLadderPercent = "discountLadderPercent"
	FieldMaxDiscountPercent    = "maxDiscountPercent"
	FieldMinDiscountCartValue  = "minDiscountCartValue"
	FieldRecoveryWindowHours   = "recoveryWindowHours"
)

// Policy is the operator-editable campaign configuration. It is passed
// explicitly to everything that needs it; there is no process-wide instance.
type Policy struct {
	Enabled               bool    `json:"enabled"`
	InactivityMinutes     int     `json:"inactivityMinutes"`
	MaxAttempts           int     `json:"maxAttempts"`
	AttemptDelaysMinutes  []int   `json:"attemptDelaysMinutes"`
	DiscountLadderPercent []int   `json:"discountLadderPercent"`
	MaxDiscountPercent    int     `json:"maxDiscountPercent"`
	MinDiscountCartValue  float64 `json:"minDiscountCartValue"`
	RecoveryWindowHours   int     `json:"recoveryWindowHours"`
	SendEmail             bool    `json:"sendEmail"`
	SendWhatsapp          bool    `json:"sendWhatsapp"`
	SendPaymentLink       bool    `json:"sendPaymentLink"`
	ReminderEnable        bool    `json:"reminderEnable"`
}

// MinRecommendedRecoveryWindowHours returns ceil(sum(delays)/60) + buffer.
// Each delay counts at most MaxAttemptDelayMinutes.
func MinRecommendedRecoveryWindowHours(delaysMinutes []int) int {
	total := 0
	for _, d := range delaysMinutes {
		total += min(max(d, 0), MaxAttemptDelayMinutes)
	}
	return int(math.Ceil(float64(total)/60.0)) + RecoveryWindowBufferHours
}

// EffectiveRecoveryWindowHours is the configured window extended, never
// shortened, to cover the full attempt schedule.
func (p Policy) EffectiveRecoveryWindowHours() int {
	minimum := MinRecommendedRecoveryWindowHours(p.AttemptDelaysMinutes)
	if p.RecoveryWindowHours < minimum {
		return minimum
	}
	return p.RecoveryWindowHours
}

// EffectiveRecoveryWindow is EffectiveRecoveryWindowHours as a duration.
func (p Policy) EffectiveRecoveryWindow() time.Duration {
	return time.Duration(p.EffectiveRecoveryWindowHours()) * time.Hour
}

// InactivityThreshold returns the idle time after which a cart becomes
// actionable, never less than one minute.
func (p Policy) InactivityThreshold() time.Duration {
	return InactivityThreshold(p.InactivityMinutes)
}

// InactivityThreshold converts minutes to a duration with a floor of one minute.
func InactivityThreshold(minutes int) time.Duration {
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes) * time.Minute
}

// Channels lists the delivery channels switched on by the policy.
func (p Policy) Channels() []string {
	var channels []string
	if p.SendEmail {
		channels = append(channels, "email")
	}
	if p.SendWhatsapp {
		channels = append(channels, "whatsapp")
	}
	if p.SendPaymentLink {
		channels = append(channels, "payment_link")
	}
	return channels
}

// Clone returns a deep copy so callers never share the ladder slices.
func (p Policy) Clone() Policy {
	out := p
	out.AttemptDelaysMinutes = append([]int(nil), p.AttemptDelaysMinutes...)
	out.DiscountLadderPercent = append([]int(nil), p.DiscountLadderPercent...)
	return out
}
