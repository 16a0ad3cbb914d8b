package models

import (
	id "riskaccept/pkg/domain"
	dErrors "riskaccept/pkg/domain-errors"
)

// Filter narrows List. Nil fields match everything.
type Filter struct {
	Status     *Status
	RiskID     *id.RiskID
	ProposerID *id.UserID
}

// Matches reports whether a satisfies every set field.
func (f Filter) Matches(a *Acceptance) bool {
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.RiskID != nil && (a.RiskID == nil || *a.RiskID != *f.RiskID) {
		return false
	}
	if f.ProposerID != nil && a.ProposerID != *f.ProposerID {
		return false
	}
	return true
}

// Warning is a non-fatal problem attached to an otherwise successful response.
type Warning struct {
	Code    dErrors.Code `json:"code"`
	Message string       `json:"message"`
}

// View is the read-side projection of an acceptance with display names
// resolved from the directories. Names are empty when a lookup failed.
type View struct {
	*Acceptance
	ProposerName  string    `json:"proposer_name,omitempty"`
	ApproverName  string    `json:"approver_name,omitempty"`
	RiskReference string    `json:"risk_reference,omitempty"`
	Warnings      []Warning `json:"warnings,omitempty"`
}

// HistoryEntry is a ledger row with the actor's display name.
type HistoryEntry struct {
	*AuditEntry
	ActorName string `json:"actor_name,omitempty"`
}
