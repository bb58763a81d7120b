package telemedicine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheuspdias/managerclin/internal/tenancy"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

type recordingChecker struct {
	mu      sync.Mutex
	calls   map[string]string
	failIDs map[string]bool
}

func (r *recordingChecker) CheckCredits(ctx context.Context, id string) (CheckResult, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	r.mu.Lock()
	r.calls[id] = scope.OrgID + "/" + scope.ActorID
	r.mu.Unlock()
	if r.failIDs[id] {
		return CheckResult{}, errors.New("boom")
	}
	return CheckResult{Debited: 1}, nil
}

func activeSession(id, orgID string) *Session {
	started := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	return &Session{ID: id, OrgID: orgID, AppointmentID: "appt-" + id, Status: StatusActive, StartedAt: &started}
}

func TestSweepOnceChecksEveryActiveSessionInItsOrg(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, activeSession("s1", "org-1")))
	require.NoError(t, store.Insert(ctx, activeSession("s2", "org-1")))
	require.NoError(t, store.Insert(ctx, activeSession("s3", "org-2")))
	require.NoError(t, store.Insert(ctx, &Session{ID: "s4", OrgID: "org-2", AppointmentID: "appt-s4", Status: StatusWaiting}))

	checker := &recordingChecker{calls: map[string]string{}, failIDs: map[string]bool{"s2": true}}
	sweeper := NewSweeper(store, checker, logging.Default(), WithSweepConcurrency(2))

	report, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Orgs: 2, Checked: 2, Debited: 2, Failures: 1}, report)
	assert.Equal(t, map[string]string{
		"s1": "org-1/" + tenancy.SystemActor,
		"s2": "org-1/" + tenancy.SystemActor,
		"s3": "org-2/" + tenancy.SystemActor,
	}, checker.calls)
}

func TestSweeperTerminatesExhaustedSessions(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, 1)
	sess := env.startedSession(t)
	env.clock.Advance(31 * time.Minute)

	report, err := NewSweeper(env.store, env.svc, logging.Default()).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Terminated)

	stored, err := env.svc.GetSession(scoped(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Equal(t, ReasonInsufficientCredits, stored.EndReason)
}

func TestSweeperStartStopsWithContext(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Insert(context.Background(), activeSession("s1", "org-1")))
	checker := &recordingChecker{calls: map[string]string{}}
	sweeper := NewSweeper(store, checker, logging.Default(), WithSweepInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		checker.mu.Lock()
		defer checker.mu.Unlock()
		return len(checker.calls) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
