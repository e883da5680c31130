package journey

import (
	"bytes"
	"encoding/json"
	"time"
)

// Optional distinguishes a field the payload omitted (Set == false) from one
// it sent as null (Set == true, Valid == false).
type Optional[T any] struct {
	Set   bool
	Valid bool
	Value T
}

// UnmarshalJSON is only called for keys present in the payload.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Valid = false
		var zero T
		o.Value = zero
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

// Some builds a present, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Valid: true, Value: v}
}

// Null builds a present, explicitly null Optional.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

// Patch is a full or partial journey payload as carried by real-time events.
type Patch struct {
	ID                  string              `json:"id"`
	Status              Optional[Status]    `json:"status"`
	CartTotalMinorUnits Optional[int64]     `json:"cartTotalMinorUnits"`
	Currency            Optional[string]    `json:"currency"`
	CustomerName        Optional[string]    `json:"customerName"`
	CustomerEmail       Optional[string]    `json:"customerEmail"`
	CustomerPhone       Optional[string]    `json:"customerPhone"`
	LastAttemptNo       Optional[int]       `json:"lastAttemptNo"`
	LastActivityAt      Optional[time.Time] `json:"lastActivityAt"`
	CreatedAt           Optional[time.Time] `json:"createdAt"`
	UpdatedAt           Optional[time.Time] `json:"updatedAt"`
	NextAttemptAt       Optional[time.Time] `json:"nextAttemptAt"`
	RecoveredOrderRef   Optional[string]    `json:"recoveredOrderRef"`
	RecoveryReason      Optional[string]    `json:"recoveryReason"`
}

// PatchFromJourney turns a complete journey into a patch that sets every field.
func PatchFromJourney(j Journey) Patch {
	p := Patch{
		ID:                  j.ID,
		Status:              Some(j.Status),
		CartTotalMinorUnits: Some(j.CartTotalMinorUnits),
		Currency:            Some(j.Currency),
		CustomerName:        Some(j.CustomerName),
		CustomerEmail:       Some(j.CustomerEmail),
		CustomerPhone:       Some(j.CustomerPhone),
		LastAttemptNo:       Some(j.LastAttemptNo),
		LastActivityAt:      Some(j.LastActivityAt),
		CreatedAt:           Some(j.CreatedAt),
		UpdatedAt:           Some(j.UpdatedAt),
		NextAttemptAt:       Null[time.Time](),
		RecoveredOrderRef:   Null[string](),
		RecoveryReason:      Null[string](),
	}
	if j.NextAttemptAt != nil {
		p.NextAttemptAt = Some(*j.NextAttemptAt)
	}
	if j.RecoveredOrderRef != nil {
		p.RecoveredOrderRef = Some(*j.RecoveredOrderRef)
	}
	if j.RecoveryReason != nil {
		p.RecoveryReason = Some(*j.RecoveryReason)
	}
	return p
}

// Merge applies a patch on top of a known journey. Omitted fields keep their
// local value. Null or zero lastActivityAt/createdAt/updatedAt are treated as
// omitted so locally known timestamps survive partial payloads; nullable
// fields (nextAttemptAt, recoveredOrderRef, recoveryReason) are cleared by null.
// A terminal journey only accepts display fields.
func Merge(existing Journey, p Patch) Journey {
	out := existing.Clone()
	if out.ID == "" {
		out.ID = p.ID
	}

	mergeDisplay(&out, p)
	if existing.Status.IsTerminal() {
		return out
	}

	if p.Status.Valid && p.Status.Value != "" {
		out.Status = p.Status.Value
	}
	if p.CartTotalMinorUnits.Valid {
		out.CartTotalMinorUnits = p.CartTotalMinorUnits.Value
	}
	if p.LastAttemptNo.Valid {
		out.LastAttemptNo = p.LastAttemptNo.Value
	}

	mergeTimestamp(&out.LastActivityAt, p.LastActivityAt)
	mergeTimestamp(&out.CreatedAt, p.CreatedAt)

	if p.NextAttemptAt.Set {
		if p.NextAttemptAt.Valid {
			t := p.NextAttemptAt.Value
			out.NextAttemptAt = &t
		} else {
			out.NextAttemptAt = nil
		}
	}
	if p.RecoveredOrderRef.Set {
		out.RecoveredOrderRef = optionalString(p.RecoveredOrderRef)
	}
	if p.RecoveryReason.Set {
		out.RecoveryReason = optionalString(p.RecoveryReason)
	}

	if out.Status.IsTerminal() {
		out.NextAttemptAt = nil
	}
	return out
}

func mergeDisplay(out *Journey, p Patch) {
	if p.Currency.Valid {
		out.Currency = p.Currency.Value
	}
	if p.CustomerName.Valid {
		out.CustomerName = p.CustomerName.Value
	}
	if p.CustomerEmail.Valid {
		out.CustomerEmail = p.CustomerEmail.Value
	}
	if p.CustomerPhone.Valid {
		out.CustomerPhone = p.CustomerPhone.Value
	}
	mergeTimestamp(&out.UpdatedAt, p.UpdatedAt)
}

func mergeTimestamp(dst *time.Time, src Optional[time.Time]) {
	if src.Valid && !src.Value.IsZero() {
		*dst = src.Value
	}
}

func optionalString(o Optional[string]) *string {
	if !o.Valid {
		return nil
	}
	s := o.Value
	return &s
}
