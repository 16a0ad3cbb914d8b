package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"riskaccept/internal/directory"
	id "riskaccept/pkg/domain"
	"riskaccept/pkg/platform/sentinel"
)

// RiskClient implements directory.RiskDirectory against GET /risks/{id}.
type RiskClient struct {
	*Client
}

func NewRiskClient(baseURL string, opts ...Option) *RiskClient {
	return &RiskClient{Client: newClient("risk", baseURL, opts...)}
}

func (c *RiskClient) GetRisk(ctx context.Context, riskID id.RiskID) (*directory.Risk, error) {
	var risk directory.Risk
	if err := c.do(ctx, http.MethodGet, "/risks/"+riskID.String(), nil, &risk); err != nil {
		return nil, err
	}
	return &risk, nil
}

// UserClient implements directory.UserDirectory against GET /users/{id}.
type UserClient struct {
	*Client
}

func NewUserClient(baseURL string, opts ...Option) *UserClient {
	return &UserClient{Client: newClient("user", baseURL, opts...)}
}

func (c *UserClient) GetUser(ctx context.Context, userID id.UserID) (*directory.User, error) {
	var user directory.User
	if err := c.do(ctx, http.MethodGet, "/users/"+userID.String(), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ActionClient implements directory.ActionTracker against POST /actions.
type ActionClient struct {
	*Client
}

func NewActionClient(baseURL string, opts ...Option) *ActionClient {
	return &ActionClient{Client: newClient("action", baseURL, opts...)}
}

type createdAction struct {
	ID id.ActionID `json:"id"`
}

func (c *ActionClient) CreateAction(ctx context.Context, req directory.ActionRequest) (id.ActionID, error) {
	var created createdAction
	if err := c.do(ctx, http.MethodPost, "/actions", req, &created); err != nil {
		return id.ActionID{}, err
	}
	if created.ID.IsNil() {
		return id.ActionID{}, fmt.Errorf("action tracker returned no id: %w", sentinel.ErrUnavailable)
	}
	return created.ID, nil
}
