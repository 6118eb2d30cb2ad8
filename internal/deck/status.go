package deck

import (
	"encoding/json"
	"fmt"
)

// StatusKind is the resolution state of an entry.
type StatusKind string

const (
	StatusUnresolved StatusKind = "unresolved"
	StatusValid      StatusKind = "valid"
	StatusRescued    StatusKind = "rescued"
	StatusInvalid    StatusKind = "invalid"
)

// InvalidReason explains why an entry was rejected.
type InvalidReason string

const (
	ReasonNotFound               InvalidReason = "not_found"
	ReasonColorIdentityViolation InvalidReason = "color_identity_violation"
	ReasonDuplicate              InvalidReason = "duplicate"
	ReasonAnchorNotFound         InvalidReason = "commander_not_found"
)

// Status is Unresolved, Valid, RescuedAs(name) or Invalid(reason).
type Status struct {
	Kind          StatusKind
	CorrectedName string
	Reason        InvalidReason
	Detail        string
}

// Unresolved is the status of freshly parsed entries.
func Unresolved() Status { return Status{Kind: StatusUnresolved} }

// Valid marks an exact match.
func Valid() Status { return Status{Kind: StatusValid} }

// RescuedAs marks an entry replaced by a confident fuzzy match.
func RescuedAs(name string) Status {
	return Status{Kind: StatusRescued, CorrectedName: name}
}

// Invalid marks a rejected entry.
func Invalid(reason InvalidReason, detail string) Status {
	return Status{Kind: StatusInvalid, Reason: reason, Detail: detail}
}

// Accepted reports whether the entry is Valid or Rescued.
func (s Status) Accepted() bool {
	return s.Kind == StatusValid || s.Kind == StatusRescued
}

func (s Status) String() string {
	switch s.Kind {
	case StatusRescued:
		return fmt.Sprintf("RescuedAs(%s)", s.CorrectedName)
	case StatusInvalid:
		return fmt.Sprintf("Invalid(%s)", s.Reason)
	case StatusValid:
		return "Valid"
	default:
		return "Unresolved"
	}
}

type statusJSON struct {
	Kind          StatusKind    `json:"kind"`
	CorrectedName string        `json:"corrected_name,omitempty"`
	Reason        InvalidReason `json:"reason,omitempty"`
	Detail        string        `json:"detail,omitempty"`
}

// MarshalJSON writes the status as a tagged object.
func (s Status) MarshalJSON() ([]byte, error) {
	kind := s.Kind
	if kind == "" {
		kind = StatusUnresolved
	}
	return json.Marshal(statusJSON{
		Kind:          kind,
		CorrectedName: s.CorrectedName,
		Reason:        s.Reason,
		Detail:        s.Detail,
	})
}

// UnmarshalJSON reads a tagged status object.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw statusJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Status(raw)
	return nil
}
