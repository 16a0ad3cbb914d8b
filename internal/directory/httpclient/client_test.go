package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"riskaccept/internal/acceptance/scoring"
	"riskaccept/internal/directory"
	id "riskaccept/pkg/domain"
	"riskaccept/pkg/platform/circuit"
	"riskaccept/pkg/platform/sentinel"
)

type recordingObserver struct {
	mu      sync.Mutex
	results []string
	open    map[string]bool
}

func (o *recordingObserver) ObserveLookup(_, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func (o *recordingObserver) SetBreakerOpen(dir string, open bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.open == nil {
		o.open = map[string]bool{}
	}
	o.open[dir] = open
}

type DirectoryClientSuite struct {
	suite.Suite
	ctx      context.Context
	riskID   id.RiskID
	userID   id.UserID
	status   atomic.Int32
	calls    atomic.Int32
	server   *httptest.Server
	observer *recordingObserver
}

func TestDirectoryClientSuite(t *testing.T) {
	suite.Run(t, new(DirectoryClientSuite))
}

func (s *DirectoryClientSuite) SetupTest() {
	s.ctx = context.Background()
	s.riskID = id.RiskID(uuid.New())
	s.userID = id.UserID(uuid.New())
	s.status.Store(http.StatusOK)
	s.calls.Store(0)
	s.observer = &recordingObserver{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /risks/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		if r.PathValue("id") != s.riskID.String() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if code := int(s.status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                  s.riskID.String(),
			"reference":           "R-007",
			"title":               "Legacy firewall",
			"residual_likelihood": 4,
			"residual_impact":     4,
			"risk_appetite":       "LOW",
		})
	})
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != s.userID.String() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":        s.userID.String(),
			"name":      "Dana Reviewer",
			"role":      "CCRO_TEAM",
			"is_active": true,
		})
	})
	mux.HandleFunc("POST /actions", func(w http.ResponseWriter, r *http.Request) {
		var req directory.ActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"` + uuid.NewString() + `"}`))
	})
	mux.HandleFunc("GET /slow/risks/{id}", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /garbage/risks/{id}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})
	s.server = httptest.NewServer(mux)
	s.T().Cleanup(s.server.Close)
}

func (s *DirectoryClientSuite) riskClient(opts ...Option) *RiskClient {
	return NewRiskClient(s.server.URL+"/", append([]Option{WithObserver(s.observer)}, opts...)...)
}

// =============================================================================
// Lookups
// =============================================================================

func (s *DirectoryClientSuite) TestGetRisk() {
	s.Run("decodes the register's view", func() {
		risk, err := s.riskClient().GetRisk(s.ctx, s.riskID)
		s.Require().NoError(err)
		s.Equal("R-007", risk.Reference)
		s.Equal(4, risk.ResidualLikelihood)
		s.Equal(scoring.AppetiteLow, risk.Appetite)
	})

	s.Run("404 is not found and does not trip the breaker", func() {
		breaker := circuit.New("risk", circuit.WithFailureThreshold(1))
		_, err := s.riskClient(WithBreaker(breaker)).GetRisk(s.ctx, id.RiskID(uuid.New()))
		s.ErrorIs(err, sentinel.ErrNotFound)
		s.False(breaker.IsOpen())
	})

	s.Run("5xx is unavailable", func() {
		s.status.Store(http.StatusBadGateway)
		defer s.status.Store(http.StatusOK)
		_, err := s.riskClient().GetRisk(s.ctx, s.riskID)
		s.ErrorIs(err, sentinel.ErrUnavailable)
	})
}

func (s *DirectoryClientSuite) TestTimeoutIsUnavailable() {
	c := NewRiskClient(s.server.URL+"/slow", WithTimeout(20*time.Millisecond))
	_, err := c.GetRisk(s.ctx, s.riskID)
	s.ErrorIs(err, sentinel.ErrUnavailable)
}

func (s *DirectoryClientSuite) TestUndecodableBodyIsUnavailable() {
	c := NewRiskClient(s.server.URL + "/garbage")
	_, err := c.GetRisk(s.ctx, s.riskID)
	s.ErrorIs(err, sentinel.ErrUnavailable)
}

func (s *DirectoryClientSuite) TestGetUser() {
	c := NewUserClient(s.server.URL)
	user, err := c.GetUser(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal("Dana Reviewer", user.Name)
	s.True(user.Active)
	s.True(user.IsReviewer())

	_, err = c.GetUser(s.ctx, id.UserID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *DirectoryClientSuite) TestCreateAction() {
	c := NewActionClient(s.server.URL)
	actionID, err := c.CreateAction(s.ctx, directory.ActionRequest{
		AcceptanceID: id.NewAcceptanceID(),
		Reference:    "RA-001",
		Title:        "Conditions for RA-001",
		OwnerID:      s.userID,
	})
	s.Require().NoError(err)
	s.False(actionID.IsNil())

	_, err = c.CreateAction(s.ctx, directory.ActionRequest{})
	s.Require().Error(err)
	s.NotErrorIs(err, sentinel.ErrUnavailable, "a rejected request is not an outage")
}

// =============================================================================
// Circuit breaker
// =============================================================================

func (s *DirectoryClientSuite) TestBreakerFailsFastWhileOpen() {
	breaker := circuit.New("risk", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	c := s.riskClient(WithBreaker(breaker))
	s.status.Store(http.StatusServiceUnavailable)

	for range 2 {
		_, err := c.GetRisk(s.ctx, s.riskID)
		s.ErrorIs(err, sentinel.ErrUnavailable)
	}
	s.True(breaker.IsOpen())
	s.True(s.observer.open["risk"])

	s.status.Store(http.StatusOK)
	before := s.calls.Load()
	_, err := c.GetRisk(s.ctx, s.riskID)
	s.ErrorIs(err, sentinel.ErrUnavailable)
	s.Equal(before, s.calls.Load(), "open breaker must not reach the server")
}

func (s *DirectoryClientSuite) TestBreakerClosesAfterProbesSucceed() {
	breaker := circuit.New("risk",
		circuit.WithFailureThreshold(1),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Millisecond),
	)
	c := s.riskClient(WithBreaker(breaker))

	s.status.Store(http.StatusInternalServerError)
	_, err := c.GetRisk(s.ctx, s.riskID)
	s.ErrorIs(err, sentinel.ErrUnavailable)
	s.Require().True(breaker.IsOpen())

	s.status.Store(http.StatusOK)
	time.Sleep(5 * time.Millisecond)
	_, err = c.GetRisk(s.ctx, s.riskID)
	s.Require().NoError(err)
	s.False(breaker.IsOpen())
	s.False(s.observer.open["risk"])
}

func TestBaseURLTrailingSlashIsTrimmed(t *testing.T) {
	c := newClient("risk", "http://example.test///")
	assert.Equal(t, "http://example.test", c.baseURL)
	require.NotNil(t, c.breaker)
}
