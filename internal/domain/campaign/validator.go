package campaign

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// RawValue is operator input as typed into a form. It decodes from either a
// JSON string or a JSON number so that non-numeric input stays representable.
type RawValue string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (v *RawValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = RawValue(s)
		return nil
	}
	if data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			var part RawValue
			if err := part.UnmarshalJSON(item); err != nil {
				return err
			}
			parts = append(parts, string(part))
		}
		*v = RawValue(strings.Join(parts, ","))
		return nil
	}
	*v = RawValue(data)
	return nil
}

// RawConfig is the unvalidated campaign form.
type RawConfig struct {
	Enabled               bool     `json:"enabled"`
	InactivityMinutes     RawValue `json:"inactivityMinutes"`
	MaxAttempts           RawValue `json:"maxAttempts"`
	AttemptDelaysMinutes  RawValue `json:"attemptDelaysMinutes"`
	DiscountLadderPercent RawValue `json:"discountLadderPercent"`
	MaxDiscountPercent    RawValue `json:"maxDiscountPercent"`
	MinDiscountCartValue  RawValue `json:"minDiscountCartValue"`
	RecoveryWindowHours   RawValue `json:"recoveryWindowHours"`
	SendEmail             bool     `json:"sendEmail"`
	SendWhatsapp          bool     `json:"sendWhatsapp"`
	SendPaymentLink       bool     `json:"sendPaymentLink"`
	ReminderEnable        bool     `json:"reminderEnable"`
}

// RawFromPolicy renders a typed policy back into form input.
func RawFromPolicy(p Policy) RawConfig {
	return RawConfig{
		Enabled:               p.Enabled,
		InactivityMinutes:     RawValue(strconv.Itoa(p.InactivityMinutes)),
		MaxAttempts:           RawValue(strconv.Itoa(p.MaxAttempts)),
		AttemptDelaysMinutes:  RawValue(joinInts(p.AttemptDelaysMinutes)),
		DiscountLadderPercent: RawValue(joinInts(p.DiscountLadderPercent)),
		MaxDiscountPercent:    RawValue(strconv.Itoa(p.MaxDiscountPercent)),
		MinDiscountCartValue:  RawValue(strconv.FormatFloat(p.MinDiscountCartValue, 'f', -1, 64)),
		RecoveryWindowHours:   RawValue(strconv.Itoa(p.RecoveryWindowHours)),
		SendEmail:             p.SendEmail,
		SendWhatsapp:          p.SendWhatsapp,
		SendPaymentLink:       p.SendPaymentLink,
		ReminderEnable:        p.ReminderEnable,
	}
}

// Result is the outcome of Validate.
type Result struct {
	IsValid                           bool              `json:"isValid"`
	Errors                            map[string]string `json:"errors"`
	Normalized                        Policy            `json:"normalized"`
	MinRecommendedRecoveryWindowHours int               `json:"minRecommendedRecoveryWindowHours,omitempty"`
	ConfiguredRecoveryWindowHours     int               `json:"configuredRecoveryWindowHours,omitempty"`
	WindowExtended                    bool              `json:"windowExtended"`
}

// Err returns a *ValidationError when the result is invalid, nil otherwise.
func (r Result) Err() error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{Fields: r.Errors}
}

// ValidationError carries field-level errors. It blocks a save and is never
// forwarded to the remote service.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+e.Fields[field])
	}
	return "invalid campaign policy: " + strings.Join(parts, "; ")
}

// Validate checks every rule independently and collects all field errors.
// When the configured recovery window is shorter than the attempt schedule
// needs, the normalized policy carries the extended window instead.
func Validate(raw RawConfig) Result {
	errs := make(map[string]string)
	normalized := Policy{
		Enabled:         raw.Enabled,
		SendEmail:       raw.SendEmail,
		SendWhatsapp:    raw.SendWhatsapp,
		SendPaymentLink: raw.SendPaymentLink,
		ReminderEnable:  raw.ReminderEnable,
	}

	maxAttempts, maxAttemptsOK := parseInt(raw.MaxAttempts)
	if !maxAttemptsOK || maxAttempts < MinAttempts || maxAttempts > MaxAttempts {
		errs[FieldMaxAttempts] = fmt.Sprintf("must be an integer between %d and %d", MinAttempts, MaxAttempts)
		maxAttemptsOK = false
	} else {
		normalized.MaxAttempts = maxAttempts
	}

	if v, ok := parseInt(raw.InactivityMinutes); ok && v >= 1 {
		normalized.InactivityMinutes = v
	} else {
		errs[FieldInactivityMinutes] = "must be an integer of at least 1"
	}

	windowOK := false
	if v, ok := parseInt(raw.RecoveryWindowHours); ok && v >= 1 {
		normalized.RecoveryWindowHours = v
		windowOK = true
	} else {
		errs[FieldRecoveryWindowHours] = "must be an integer of at least 1"
	}

	maxDiscount, maxDiscountOK := parseInt(raw.MaxDiscountPercent)
	if !maxDiscountOK || maxDiscount < 0 {
		errs[FieldMaxDiscountPercent] = "must be an integer of at least 0"
		maxDiscountOK = false
	} else {
		normalized.MaxDiscountPercent = maxDiscount
	}

	if v, err := strconv.ParseFloat(strings.TrimSpace(string(raw.MinDiscountCartValue)), 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 {
		normalized.MinDiscountCartValue = v
	} else {
		errs[FieldMinDiscountCartValue] = "must be a finite number of at least 0"
	}

	expected := 0
	if maxAttemptsOK {
		expected = maxAttempts
	}

	delays, msg := parseList(string(raw.AttemptDelaysMinutes), 1, MaxAttemptDelayMinutes, expected)
	if msg != "" {
		errs[FieldAttemptDelaysMinutes] = msg
	} else {
		normalized.AttemptDelaysMinutes = delays
	}

	ladder, msg := parseList(string(raw.DiscountLadderPercent), 0, 0, expected)
	if msg == "" && maxDiscountOK {
		for _, v := range ladder {
			if v > maxDiscount {
				msg = fmt.Sprintf("value %d exceeds maxDiscountPercent (%d)", v, maxDiscount)
				break
			}
		}
	}
	if msg != "" {
		errs[FieldDiscountLadderPercent] = msg
	} else {
		normalized.DiscountLadderPercent = ladder
	}

	result := Result{
		Errors:     errs,
		Normalized: normalized,
	}

	if maxAttemptsOK && errs[FieldAttemptDelaysMinutes] == "" {
		result.MinRecommendedRecoveryWindowHours = MinRecommendedRecoveryWindowHours(delays)
		if windowOK {
			result.ConfiguredRecoveryWindowHours = normalized.RecoveryWindowHours
			if normalized.RecoveryWindowHours < result.MinRecommendedRecoveryWindowHours {
				result.Normalized.RecoveryWindowHours = result.MinRecommendedRecoveryWindowHours
				result.WindowExtended = true
			}
		}
	}

	result.IsValid = len(errs) == 0
	return result
}

func parseInt(v RawValue) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(v)))
	if err != nil {
		return 0, false
	}
	return n, true
}

func isListSeparator(r rune) bool {
	return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// parseList parses delimiter-separated integers. expected <= 0 skips the
// length check, which happens when maxAttempts itself is invalid.
// parseList reads a separated integer list. A ceiling of 0 means unbounded.
func parseList(text string, floor, ceiling, expected int) ([]int, string) {
	tokens := strings.FieldsFunc(text, isListSeparator)
	if len(tokens) == 0 {
		return nil, "required"
	}
	values := make([]int, 0, len(tokens))
	for _, token := range tokens {
		n, err := strconv.Atoi(token)
		if err != nil {
			return nil, fmt.Sprintf("invalid value %q: must be an integer", token)
		}
		values = append(values, n)
	}
	for _, n := range values {
		if n < floor {
			return nil, fmt.Sprintf("value %d is below the minimum of %d", n, floor)
		}
		if ceiling > 0 && n > ceiling {
			return nil, fmt.Sprintf("value %d is above the maximum of %d", n, ceiling)
		}
	}
	if expected > 0 && len(values) != expected {
		return nil, fmt.Sprintf("expected %d values", expected)
	}
	return values, ""
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
