// Package directory answers reference lookups for tenant-owned records the
// scheduling engine points at but does not manage: providers, rooms,
// services and customers.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/matheuspdias/managerclin/internal/database"
)

// Kind names a referenced record type.
type Kind string

const (
	KindProvider Kind = "provider"
	KindRoom     Kind = "room"
	KindService  Kind = "service"
	KindCustomer Kind = "customer"
)

var ErrNotFound = errors.New("directory: record not found")

// Contact is the display name and email of a provider or customer.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Reference is one id to verify.
type Reference struct {
	Kind Kind
	ID   string
}

// Directory resolves references within a single org.
type Directory interface {
	// Missing returns the references that do not exist in the org.
	Missing(ctx context.Context, orgID string, refs ...Reference) ([]Reference, error)
	// Contacts returns contacts keyed by id. Unknown ids are omitted.
	Contacts(ctx context.Context, orgID string, kind Kind, ids ...string) (map[string]Contact, error)
}

// Describe renders missing references as "provider_id, room_id".
func Describe(refs []Reference) string {
	parts := make([]string, len(refs))
	for i, ref := range refs {
		parts[i] = string(ref.Kind) + "_id"
	}
	return strings.Join(parts, ", ")
}

// LookupContact fetches a single contact or ErrNotFound.
func LookupContact(ctx context.Context, dir Directory, orgID string, kind Kind, id string) (Contact, error) {
	contacts, err := dir.Contacts(ctx, orgID, kind, id)
	if err != nil {
		return Contact{}, err
	}
	c, ok := contacts[id]
	if !ok {
		return Contact{}, fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return c, nil
}

type recordKey struct {
	orgID string
	kind  Kind
	id    string
}

// Memory is an in-process directory used by the development server and tests.
type Memory struct {
	mu      sync.RWMutex
	records map[recordKey]Contact
}

func NewMemory() *Memory {
	return &Memory{records: make(map[recordKey]Contact)}
}

// Put registers a record for an org.
func (m *Memory) Put(orgID string, kind Kind, c Contact) {
	m.mu.Lock()
	m.records[recordKey{orgID, kind, c.ID}] = c
	m.mu.Unlock()
}

func (m *Memory) Missing(_ context.Context, orgID string, refs ...Reference) ([]Reference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var missing []Reference
	for _, ref := range refs {
		if _, ok := m.records[recordKey{orgID, ref.Kind, ref.ID}]; !ok {
			missing = append(missing, ref)
		}
	}
	return missing, nil
}

func (m *Memory) Contacts(_ context.Context, orgID string, kind Kind, ids ...string) (map[string]Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Contact, len(ids))
	for _, id := range ids {
		if c, ok := m.records[recordKey{orgID, kind, id}]; ok {
			out[id] = c
		}
	}
	return out, nil
}

var tables = map[Kind]string{
	KindProvider: "providers",
	KindRoom:     "rooms",
	KindService:  "services",
	KindCustomer: "customers",
}

// Postgres reads the reference tables. Soft-deleted rows do not resolve.
type Postgres struct {
	db database.Querier
}

func NewPostgres(db database.Querier) *Postgres {
	if db == nil {
		panic("directory: database required")
	}
	return &Postgres{db: db}
}

func (p *Postgres) Missing(ctx context.Context, orgID string, refs ...Reference) ([]Reference, error) {
	var missing []Reference
	for _, ref := range refs {
		table, ok := tables[ref.Kind]
		if !ok {
			return nil, fmt.Errorf("directory: unknown kind %q", ref.Kind)
		}
		query := `SELECT EXISTS (SELECT 1 FROM ` + table + ` WHERE org_id = $1 AND id::text = $2 AND deleted_at IS NULL)`
		var exists bool
		if err := database.Conn(ctx, p.db).QueryRow(ctx, query, orgID, ref.ID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("directory: check %s: %w", ref.Kind, err)
		}
		if !exists {
			missing = append(missing, ref)
		}
	}
	return missing, nil
}

func (p *Postgres) Contacts(ctx context.Context, orgID string, kind Kind, ids ...string) (map[string]Contact, error) {
	table, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("directory: unknown kind %q", kind)
	}
	out := make(map[string]Contact, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT id::text, name, COALESCE(email, '') FROM ` + table + ` WHERE org_id = $1 AND id::text = ANY($2)`
	rows, err := database.Conn(ctx, p.db).Query(ctx, query, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("directory: list %s contacts: %w", kind, err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email); err != nil {
			return nil, fmt.Errorf("directory: scan %s contact: %w", kind, err)
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}
