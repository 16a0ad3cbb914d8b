package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskaccept/internal/acceptance/scoring"
	"riskaccept/internal/directory"
	id "riskaccept/pkg/domain"
	"riskaccept/pkg/platform/sentinel"
)

type mapKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	readErr error
}

func newMapKV() *mapKV {
	return &mapKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mapKV) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return redis.NewStringResult("", m.readErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (m *mapKV) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := value.([]byte)
	if !ok {
		return redis.NewStatusResult("", fmt.Errorf("unexpected value %T", value))
	}
	m.data[key] = b
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

type countingRisks struct {
	calls atomic.Int32
	risk  *directory.Risk
	err   error
	delay time.Duration
}

func (c *countingRisks) GetRisk(_ context.Context, riskID id.RiskID) (*directory.Risk, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	if c.err != nil {
		return nil, c.err
	}
	r := *c.risk
	r.ID = riskID
	return &r, nil
}

type countingUsers struct {
	calls atomic.Int32
}

func (c *countingUsers) GetUser(_ context.Context, userID id.UserID) (*directory.User, error) {
	c.calls.Add(1)
	return &directory.User{ID: userID, Name: "Ana Owner", Role: "RISK_OWNER", Active: true}, nil
}

func sampleRisk() *directory.Risk {
	return &directory.Risk{Reference: "R-007", ResidualLikelihood: 4, ResidualImpact: 4, Appetite: scoring.AppetiteLow}
}

func TestRiskCacheReadThrough(t *testing.T) {
	kv := newMapKV()
	upstream := &countingRisks{risk: sampleRisk()}
	risks := New(kv, time.Minute).Risks(upstream)
	riskID := id.RiskID(uuid.New())

	first, err := risks.GetRisk(context.Background(), riskID)
	require.NoError(t, err)
	second, err := risks.GetRisk(context.Background(), riskID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), upstream.calls.Load())
	assert.Equal(t, time.Minute, kv.ttls[keyPrefix+"risk:"+riskID.String()])
}

func TestRiskCacheDoesNotCacheFailures(t *testing.T) {
	for _, failure := range []error{sentinel.ErrNotFound, sentinel.ErrUnavailable} {
		t.Run(failure.Error(), func(t *testing.T) {
			kv := newMapKV()
			upstream := &countingRisks{err: failure}
			risks := New(kv, time.Minute).Risks(upstream)
			riskID := id.RiskID(uuid.New())

			_, err := risks.GetRisk(context.Background(), riskID)
			require.ErrorIs(t, err, failure)
			_, err = risks.GetRisk(context.Background(), riskID)
			require.ErrorIs(t, err, failure)

			assert.Equal(t, int32(2), upstream.calls.Load())
			assert.Empty(t, kv.data)
		})
	}
}

func TestRiskCacheSurvivesRedisOutage(t *testing.T) {
	kv := newMapKV()
	kv.readErr = errors.New("connection refused")
	upstream := &countingRisks{risk: sampleRisk()}
	risks := New(kv, time.Minute).Risks(upstream)

	risk, err := risks.GetRisk(context.Background(), id.RiskID(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, "R-007", risk.Reference)
}

func TestConcurrentMissesShareOneUpstreamCall(t *testing.T) {
	kv := newMapKV()
	upstream := &countingRisks{risk: sampleRisk(), delay: 50 * time.Millisecond}
	risks := New(kv, time.Minute).Risks(upstream)
	riskID := id.RiskID(uuid.New())

	const callers = 10
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := risks.GetRisk(context.Background(), riskID)
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), upstream.calls.Load())
}

func TestCallersGetIndependentCopies(t *testing.T) {
	risks := New(newMapKV(), time.Minute).Risks(&countingRisks{risk: sampleRisk()})
	riskID := id.RiskID(uuid.New())

	first, err := risks.GetRisk(context.Background(), riskID)
	require.NoError(t, err)
	first.Title = "mutated"

	second, err := risks.GetRisk(context.Background(), riskID)
	require.NoError(t, err)
	assert.Empty(t, second.Title)
}

func TestUserCache(t *testing.T) {
	upstream := &countingUsers{}
	users := New(newMapKV(), time.Minute).Users(upstream)
	userID := id.UserID(uuid.New())

	for range 3 {
		u, err := users.GetUser(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, userID, u.ID)
		assert.True(t, u.Active)
	}
	assert.Equal(t, int32(1), upstream.calls.Load())
}
