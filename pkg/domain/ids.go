// Package domain holds typed identifiers shared across the acceptance lifecycle.
//
// Every id is a distinct named UUID type so a UserID can never be passed where
// an AcceptanceID is expected. Parse* functions are the trust-boundary entry
// points: they reject empty, malformed and nil UUIDs with CodeInvalidInput.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "riskaccept/pkg/domain-errors"
)

type (
	UserID       uuid.UUID
	AcceptanceID uuid.UUID
	RiskID       uuid.UUID
	ControlID    uuid.UUID
	ActionID     uuid.UUID
	CommentID    uuid.UUID
	EntryID      uuid.UUID
	EventID      uuid.UUID
)

func (id UserID) String() string { return uuid.UUID(id).String() }
func (id AcceptanceID) String() string { return uuid.UUID(id).String() }
func (id RiskID) String() string { return uuid.UUID(id).String() }
func (id ControlID) String() string { return uuid.UUID(id).String() }
func (id ActionID) String() string { return uuid.UUID(id).String() }
func (id CommentID) String() string { return uuid.UUID(id).String() }
func (id EntryID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AcceptanceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RiskID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ControlID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ActionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshalling lets ids appear as canonical UUID strings in JSON and YAML.

func (id UserID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id AcceptanceID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id RiskID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ControlID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ActionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id CommentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EntryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AcceptanceID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RiskID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ControlID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ActionID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CommentID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EntryID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EventID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

func parseID(kind, raw string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" format")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

func ParseUserID(s string) (UserID, error) {
	id, err := parseID("user ID", s)
	return UserID(id), err
}

func ParseAcceptanceID(s string) (AcceptanceID, error) {
	id, err := parseID("acceptance ID", s)
	return AcceptanceID(id), err
}

func ParseRiskID(s string) (RiskID, error) {
	id, err := parseID("risk ID", s)
	return RiskID(id), err
}

func ParseControlID(s string) (ControlID, error) {
	id, err := parseID("control ID", s)
	return ControlID(id), err
}

func ParseActionID(s string) (ActionID, error) {
	id, err := parseID("action ID", s)
	return ActionID(id), err
}

func NewAcceptanceID() AcceptanceID { return AcceptanceID(uuid.New()) }
func NewCommentID() CommentID { return CommentID(uuid.New()) }
func NewEntryID() EntryID { return EntryID(uuid.New()) }
func NewEventID() EventID { return EventID(uuid.New()) }
