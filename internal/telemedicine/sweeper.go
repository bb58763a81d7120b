package telemedicine

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matheuspdias/managerclin/internal/observability/metrics"
	"github.com/matheuspdias/managerclin/internal/tenancy"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

const (
	DefaultSweepInterval    = 5 * time.Minute
	DefaultSweepConcurrency = 4
)

// Checker is the part of Service the sweeper drives.
type Checker interface {
	CheckCredits(ctx context.Context, id string) (CheckResult, error)
}

// SweepReport summarises one pass over the ACTIVE sessions.
type SweepReport struct {
	Orgs       int `json:"orgs"`
	Checked    int `json:"checked"`
	Debited    int `json:"debited"`
	Terminated int `json:"terminated"`
	Failures   int `json:"failures"`
}

// Sweeper periodically runs credit checks for every ACTIVE session.
type Sweeper struct {
	store       Store
	checker     Checker
	interval    time.Duration
	concurrency int
	metrics     *metrics.TelemedicineMetrics
	logger      *logging.Logger
}

type SweeperOption func(*Sweeper)

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSweepConcurrency(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithSweepMetrics(m *metrics.TelemedicineMetrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

func NewSweeper(store Store, checker Checker, logger *logging.Logger, opts ...SweeperOption) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Sweeper{
		store:       store,
		checker:     checker,
		interval:    DefaultSweepInterval,
		concurrency: DefaultSweepConcurrency,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("credit sweeper started", "interval", s.interval, "concurrency", s.concurrency)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("credit sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("credit sweep failed", "error", err)
	}
}

// SweepOnce checks every ACTIVE session once. Orgs are processed
// concurrently; sessions within an org run in order. A failing session is
// counted and logged without stopping the pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	began := time.Now()
	active, err := s.store.ListActive(ctx, "")
	if err != nil {
		return SweepReport{}, err
	}

	byOrg := make(map[string][]string)
	var orgs []string
	for _, sess := range active {
		if _, ok := byOrg[sess.OrgID]; !ok {
			orgs = append(orgs, sess.OrgID)
		}
		byOrg[sess.OrgID] = append(byOrg[sess.OrgID], sess.ID)
	}

	var checked, debited, terminated, failures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, orgID := range orgs {
		ids := byOrg[orgID]
		orgCtx := tenancy.WithScope(gctx, tenancy.Scope{OrgID: orgID, ActorID: tenancy.SystemActor})
		g.Go(func() error {
			for _, id := range ids {
				if orgCtx.Err() != nil {
					return orgCtx.Err()
				}
				res, err := s.checker.CheckCredits(orgCtx, id)
				if err != nil {
					failures.Add(1)
					s.logger.Warn("credit check failed", "org_id", orgID, "session_id", id, "error", err)
					continue
				}
				checked.Add(1)
				debited.Add(int64(res.Debited))
				if res.Terminated {
					terminated.Add(1)
				}
			}
			return nil
		})
	}
	err = g.Wait()

	report := SweepReport{
		Orgs:       len(orgs),
		Checked:    int(checked.Load()),
		Debited:    int(debited.Load()),
		Terminated: int(terminated.Load()),
		Failures:   int(failures.Load()),
	}
	s.metrics.ObserveSweep(time.Since(began).Seconds(), len(active), report.Failures)
	if len(active) > 0 {
		s.logger.Info("credit sweep complete",
			"orgs", report.Orgs,
			"checked", report.Checked,
			"debited", report.Debited,
			"terminated", report.Terminated,
			"failures", report.Failures,
			"duration", time.Since(began),
		)
	}
	return report, err
}
