package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/matheuspdias/managerclin/internal/audit"
	"github.com/matheuspdias/managerclin/internal/clock"
	"github.com/matheuspdias/managerclin/internal/tenancy"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

const defaultLedgerLimit = 50

// Service applies credit changes on behalf of the scoped clinic.
type Service struct {
	store  Store
	clock  clock.Clock
	audit  audit.Recorder
	logger *logging.Logger
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithAuditRecorder(rec audit.Recorder) Option {
	return func(s *Service) { s.audit = rec }
}

func NewService(store Store, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{store: store, clock: clock.Real{}, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Balance returns the scoped clinic's balance.
func (s *Service) Balance(ctx context.Context) (Balance, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return Balance{}, err
	}
	return s.store.Balance(ctx, scope.OrgID)
}

// Ledger returns the most recent ledger rows, newest first.
func (s *Service) Ledger(ctx context.Context, limit int) ([]Transaction, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLedgerLimit
	}
	return s.store.Ledger(ctx, scope.OrgID, limit)
}

// TryDebit takes amount credits from the scoped clinic. It reports false,
// with no error, when the balance does not cover the whole amount.
func (s *Service) TryDebit(ctx context.Context, amount int, ref Reference) (int, bool, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return 0, false, err
	}
	if amount <= 0 {
		return 0, false, ErrInvalidAmount
	}
	tx, err := s.store.Debit(ctx, s.entry(scope, scope.OrgID, amount, ref))
	if errors.Is(err, ErrInsufficientCredits) {
		s.logger.Info("credits: debit declined", "org_id", scope.OrgID, "amount", amount, "reference_id", ref.ID)
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return tx.BalanceAfter, true, nil
}

// GrantRequest tops up a clinic's balance.
type GrantRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// Grant adds credits to orgID. The actor comes from ctx; the org is explicit
// because grants are issued by platform admins.
func (s *Service) Grant(ctx context.Context, orgID string, req GrantRequest) (*Transaction, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, tenancy.ErrMissingScope
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	actorID, ok := tenancy.ActorIDFromContext(ctx)
	if !ok {
		actorID = tenancy.SystemActor
	}
	scope := tenancy.Scope{OrgID: orgID, ActorID: actorID}
	tx, err := s.store.Grant(ctx, s.entry(scope, orgID, req.Amount, Reference{Type: "grant", ID: strings.TrimSpace(req.Reason)}))
	if err != nil {
		return nil, fmt.Errorf("credits: grant: %w", err)
	}
	if err := audit.Record(ctx, s.audit, orgID, actorID, audit.EventCreditsGranted, audit.EntityCredits, tx.ID, map[string]any{
		"amount":        req.Amount,
		"balance_after": tx.BalanceAfter,
		"reason":        req.Reason,
	}); err != nil {
		s.logger.Warn("credits: audit write failed", "org_id", orgID, "error", err)
	}
	s.logger.Info("credits: granted", "org_id", orgID, "amount", req.Amount, "balance", tx.BalanceAfter, "actor_id", actorID)
	return tx, nil
}

func (s *Service) entry(scope tenancy.Scope, orgID string, amount int, ref Reference) Entry {
	return Entry{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		Amount:    amount,
		Reference: ref,
		CreatedAt: s.clock.Now(),
		CreatedBy: scope.ActorID,
	}
}
