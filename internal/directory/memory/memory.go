// Package memory serves the directory ports from in-process maps, seeded
// programmatically or from a YAML fixtures file.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"riskaccept/internal/directory"
	id "riskaccept/pkg/domain"
	"riskaccept/pkg/platform/sentinel"
)

// Fixtures is the YAML shape accepted by LoadFixtures.
type Fixtures struct {
	Users []directory.User `yaml:"users"`
	Risks []directory.Risk `yaml:"risks"`
}

// Directory implements RiskDirectory, UserDirectory and ActionTracker.
type Directory struct {
	mu      sync.RWMutex
	users   map[id.UserID]*directory.User
	risks   map[id.RiskID]*directory.Risk
	actions map[id.ActionID]directory.ActionRequest
}

func NewInMemory() *Directory {
	return &Directory{
		users:   make(map[id.UserID]*directory.User),
		risks:   make(map[id.RiskID]*directory.Risk),
		actions: make(map[id.ActionID]directory.ActionRequest),
	}
}

// LoadFixtures reads a fixtures file into a new Directory.
func LoadFixtures(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var f Fixtures
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	d := NewInMemory()
	for _, u := range f.Users {
		d.PutUser(u)
	}
	for _, r := range f.Risks {
		d.PutRisk(r)
	}
	return d, nil
}

func (d *Directory) PutUser(u directory.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = &u
}

func (d *Directory) PutRisk(r directory.Risk) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.risks[r.ID] = &r
}

func (d *Directory) GetUser(_ context.Context, userID id.UserID) (*directory.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (d *Directory) GetRisk(_ context.Context, riskID id.RiskID) (*directory.Risk, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.risks[riskID]
	if !ok {
		return nil, fmt.Errorf("risk %s: %w", riskID, sentinel.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (d *Directory) CreateAction(_ context.Context, req directory.ActionRequest) (id.ActionID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	actionID := id.ActionID(uuid.New())
	d.actions[actionID] = req
	return actionID, nil
}

// Action returns a request recorded by CreateAction.
func (d *Directory) Action(actionID id.ActionID) (directory.ActionRequest, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	req, ok := d.actions[actionID]
	return req, ok
}
