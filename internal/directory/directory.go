// Package directory defines the outbound collaborators of the acceptance
// lifecycle: the risk register, the user directory and the action tracker.
//
// Implementations return sentinel.ErrNotFound when an id does not resolve
// and sentinel.ErrUnavailable (wrapped) when the collaborator cannot answer.
package directory

import (
	"context"
	"time"

	"riskaccept/internal/acceptance/scoring"
	id "riskaccept/pkg/domain"
)

// RoleCCROTeam marks users who act as lifecycle reviewers.
const RoleCCROTeam = "CCRO_TEAM"

// Risk is the register's view of a risk, reduced to what breach scoring needs.
type Risk struct {
	ID                 id.RiskID        `json:"id" yaml:"id"`
	Reference          string           `json:"reference" yaml:"reference"`
	Title              string           `json:"title" yaml:"title"`
	ResidualLikelihood int              `json:"residual_likelihood" yaml:"residual_likelihood"`
	ResidualImpact     int              `json:"residual_impact" yaml:"residual_impact"`
	Appetite           scoring.Appetite `json:"risk_appetite" yaml:"risk_appetite"`
}

// User is the directory's view of a person.
type User struct {
	ID     id.UserID `json:"id" yaml:"id"`
	Name   string    `json:"name" yaml:"name"`
	Role   string    `json:"role" yaml:"role"`
	Active bool      `json:"is_active" yaml:"is_active"`
}

// IsReviewer reports whether the user belongs to the CCRO team.
func (u *User) IsReviewer() bool {
	return u != nil && u.Role == RoleCCROTeam
}

// ActionRequest asks the action tracker for a remediation action.
type ActionRequest struct {
	AcceptanceID id.AcceptanceID `json:"acceptance_id"`
	Reference    string          `json:"reference"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	OwnerID      id.UserID       `json:"owner_id"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
}

type RiskDirectory interface {
	GetRisk(ctx context.Context, riskID id.RiskID) (*Risk, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, userID id.UserID) (*User, error)
}

type ActionTracker interface {
	CreateAction(ctx context.Context, req ActionRequest) (id.ActionID, error)
}
