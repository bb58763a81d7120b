package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matheuspdias/managerclin/internal/audit"
	"github.com/matheuspdias/managerclin/internal/availability"
	"github.com/matheuspdias/managerclin/internal/calendar"
	appconfig "github.com/matheuspdias/managerclin/internal/config"
	"github.com/matheuspdias/managerclin/internal/credits"
	"github.com/matheuspdias/managerclin/internal/dashboard"
	"github.com/matheuspdias/managerclin/internal/database"
	"github.com/matheuspdias/managerclin/internal/directory"
	"github.com/matheuspdias/managerclin/internal/notify"
	"github.com/matheuspdias/managerclin/internal/observability/metrics"
	"github.com/matheuspdias/managerclin/internal/scheduling"
	"github.com/matheuspdias/managerclin/internal/telemedicine"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

// AuditLog records and queries lifecycle events.
type AuditLog interface {
	audit.Recorder
	audit.Querier
}

// Stack holds the wired domain services shared by the API and the workers.
type Stack struct {
	Directory    directory.Directory
	Availability *availability.Service
	Scheduling   *scheduling.Service
	Credits      *credits.Service
	Telemedicine *telemedicine.Service
	Sessions     telemedicine.Store
	Events       *telemedicine.Hub
	Audit        AuditLog
	// Dashboard is nil without Postgres.
	Dashboard *dashboard.Repository

	SchedulingMetrics   *metrics.SchedulingMetrics
	TelemedicineMetrics *metrics.TelemedicineMetrics
}

type stores struct {
	dir          directory.Directory
	tx           database.TxRunner
	availability availability.Store
	appointments scheduling.Store
	credits      credits.Store
	sessions     telemedicine.Store
	audit        AuditLog
}

// BuildStack wires every service. A nil pool selects in-memory stores.
func BuildStack(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, email notify.EmailSender, reg prometheus.Registerer, logger *logging.Logger) (*Stack, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	dayStart, err := calendar.ParseTimeOfDay(cfg.DefaultDayStart)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: DEFAULT_DAY_START: %w", err)
	}
	dayEnd, err := calendar.ParseTimeOfDay(cfg.DefaultDayEnd)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: DEFAULT_DAY_END: %w", err)
	}

	st := buildStores(pool, logger)
	schedMetrics := metrics.NewSchedulingMetrics(reg)
	teleMetrics := metrics.NewTelemedicineMetrics(reg)

	avail := availability.NewService(st.availability, logger,
		availability.WithDefaultHours(calendar.Range{Start: dayStart, End: dayEnd}))
	sched := scheduling.NewService(st.appointments, st.dir, avail, st.tx, logger,
		scheduling.WithAuditRecorder(st.audit),
		scheduling.WithMetrics(schedMetrics),
		scheduling.WithSlotCadence(cfg.SlotCadenceMinutes),
	)
	creditSvc := credits.NewService(st.credits, logger, credits.WithAuditRecorder(st.audit))

	hub := telemedicine.NewHub(logger)
	opts := []telemedicine.Option{
		telemedicine.WithTxRunner(st.tx),
		telemedicine.WithPublisher(hub),
		telemedicine.WithAuditRecorder(st.audit),
		telemedicine.WithMetrics(teleMetrics),
	}
	if email != nil {
		opts = append(opts, telemedicine.WithNotifier(notify.NewService(email, st.dir, logger)))
	}
	tele := telemedicine.NewService(st.sessions, sched, creditSvc, telemedicine.Config{
		BaseURL:    cfg.TelemedicineBaseURL,
		RoomPrefix: cfg.TelemedicineRoomPrefix,
	}, logger, opts...)

	stack := &Stack{
		Directory:           st.dir,
		Availability:        avail,
		Scheduling:          sched,
		Credits:             creditSvc,
		Telemedicine:        tele,
		Sessions:            st.sessions,
		Events:              hub,
		Audit:               st.audit,
		SchedulingMetrics:   schedMetrics,
		TelemedicineMetrics: teleMetrics,
	}
	if pool != nil {
		stack.Dashboard = dashboard.NewRepository(pool)
	}
	return stack, nil
}

// NewSweeper builds the metering sweeper over the stack's sessions.
func (s *Stack) NewSweeper(cfg *appconfig.Config, logger *logging.Logger) *telemedicine.Sweeper {
	return telemedicine.NewSweeper(s.Sessions, s.Telemedicine, logger,
		telemedicine.WithSweepInterval(cfg.MeteringInterval),
		telemedicine.WithSweepConcurrency(cfg.MeteringConcurrency),
		telemedicine.WithSweepMetrics(s.TelemedicineMetrics),
	)
}

func buildStores(pool *pgxpool.Pool, logger *logging.Logger) stores {
	if pool == nil {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
		return stores{
			dir:          directory.NewMemory(),
			tx:           database.NewLocalRunner(),
			availability: availability.NewMemoryStore(),
			appointments: scheduling.NewMemoryStore(),
			credits:      credits.NewMemoryStore(),
			sessions:     telemedicine.NewMemoryStore(),
			audit:        audit.NewMemoryRecorder(),
		}
	}
	tx := database.NewPgxRunner(pool)
	return stores{
		dir:          directory.NewPostgres(pool),
		tx:           tx,
		availability: availability.NewPostgresStore(pool),
		appointments: scheduling.NewPostgresStore(pool),
		credits:      credits.NewPostgresStore(pool, tx),
		sessions:     telemedicine.NewPostgresStore(pool),
		audit:        audit.NewService(stdlib.OpenDBFromPool(pool)),
	}
}
