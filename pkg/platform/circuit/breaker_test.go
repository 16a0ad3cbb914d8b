package circuit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskaccept/internal/directory/httpclient"
	id "riskaccept/pkg/domain"
	"riskaccept/pkg/platform/circuit"
	"riskaccept/pkg/platform/sentinel"
)

type outcome bool

const (
	fail outcome = false
	ok   outcome = true
)

func TestBreakerOutcomeSequences(t *testing.T) {
	tests := []struct {
		name      string
		opts      []circuit.Option
		outcomes  []outcome
		wantState circuit.State
	}{
		{
			name:      "fresh breaker is closed",
			wantState: circuit.StateClosed,
		},
		{
			name:      "opens on the threshold failure",
			opts:      []circuit.Option{circuit.WithFailureThreshold(3)},
			outcomes:  []outcome{fail, fail, fail},
			wantState: circuit.StateOpen,
		},
		{
			name:      "an answer in between resets the failure run",
			opts:      []circuit.Option{circuit.WithFailureThreshold(3)},
			outcomes:  []outcome{fail, fail, ok, fail, fail},
			wantState: circuit.StateClosed,
		},
		{
			name:      "stays open until enough consecutive answers",
			opts:      []circuit.Option{circuit.WithFailureThreshold(1), circuit.WithSuccessThreshold(2)},
			outcomes:  []outcome{fail, ok},
			wantState: circuit.StateOpen,
		},
		{
			name:      "closes after consecutive answers",
			opts:      []circuit.Option{circuit.WithFailureThreshold(1), circuit.WithSuccessThreshold(2)},
			outcomes:  []outcome{fail, ok, ok},
			wantState: circuit.StateClosed,
		},
		{
			name:      "a failure while recovering restarts the count",
			opts:      []circuit.Option{circuit.WithFailureThreshold(1), circuit.WithSuccessThreshold(2)},
			outcomes:  []outcome{fail, ok, fail, ok},
			wantState: circuit.StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := circuit.New("risk", tt.opts...)
			for _, o := range tt.outcomes {
				if o == ok {
					b.RecordSuccess()
				} else {
					b.RecordFailure()
				}
			}
			assert.Equal(t, tt.wantState, b.State())
			assert.Equal(t, tt.wantState == circuit.StateOpen, b.IsOpen())
		})
	}
}

func TestBreakerReportsEachStateChangeOnce(t *testing.T) {
	b := circuit.New("user", circuit.WithFailureThreshold(1), circuit.WithSuccessThreshold(1))
	assert.Equal(t, "user", b.Name())

	fallback, change := b.RecordFailure()
	assert.True(t, fallback)
	assert.True(t, change.Opened)

	fallback, change = b.RecordFailure()
	assert.True(t, fallback)
	assert.False(t, change.Opened)

	primary, change := b.RecordSuccess()
	assert.True(t, primary)
	assert.True(t, change.Closed)

	b.RecordFailure()
	b.Reset()
	assert.Equal(t, circuit.StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
}

func TestBreakerAllowsOneTrialCallPerCooldown(t *testing.T) {
	b := circuit.New("risk", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Minute))
	now := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)

	assert.True(t, b.Allow(now), "closed breaker always allows")

	b.RecordFailure()
	assert.False(t, b.Allow(now), "open breaker blocks inside cooldown")
	assert.True(t, b.Allow(now.Add(2*time.Minute)), "one trial call after cooldown")
	assert.False(t, b.Allow(now.Add(2*time.Minute+time.Second)), "next trial call waits another cooldown")
}

func TestBreakerShieldsRiskRegister(t *testing.T) {
	riskID := id.RiskID(uuid.New())
	var calls atomic.Int32
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                  riskID.String(),
			"reference":           "R-042",
			"title":               "Shared admin credentials",
			"residual_likelihood": 3,
			"residual_impact":     4,
			"risk_appetite":       "LOW",
		})
	}))
	t.Cleanup(srv.Close)

	breaker := circuit.New("risk",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(200*time.Millisecond),
	)
	risks := httpclient.NewRiskClient(srv.URL, httpclient.WithBreaker(breaker))
	ctx := context.Background()

	for range 2 {
		_, err := risks.GetRisk(ctx, riskID)
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
	}
	require.True(t, breaker.IsOpen())

	healthy.Store(true)
	before := calls.Load()
	_, err := risks.GetRisk(ctx, riskID)
	assert.ErrorIs(t, err, sentinel.ErrUnavailable, "lookup inside the cooldown fails fast")
	assert.Equal(t, before, calls.Load())

	require.Eventually(t, func() bool {
		risk, err := risks.GetRisk(ctx, riskID)
		return err == nil && risk.Reference == "R-042"
	}, time.Second, 5*time.Millisecond)
	assert.False(t, breaker.IsOpen())
}
