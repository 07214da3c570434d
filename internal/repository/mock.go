package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lance0/prefixd-sub000/internal/domain"
)

// Mock is an in-memory Repository: one mutex-guarded slice per entity,
// linear scans for lookups. This is also the concrete driver behind
// config.StorageMemory for small single-POP deployments, not just a test
// double.
type Mock struct {
	mu sync.Mutex

	events      []domain.AttackEvent
	mitigations []domain.Mitigation
	safelist    []domain.SafelistEntry
	audit       []domain.AuditEntry
	operators   []domain.Operator
}

func NewMock() *Mock {
	return &Mock{}
}

func (r *Mock) InsertEvent(ctx context.Context, event domain.AttackEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Mock) FindEventByExternalID(ctx context.Context, source, externalID string) (*domain.AttackEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if e.Source == source && e.ExternalEventID != nil && *e.ExternalEventID == externalID {
			return &e, nil
		}
	}
	return nil, nil
}

func (r *Mock) ListEvents(ctx context.Context, limit, offset uint32) ([]domain.AttackEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginate(r.events, limit, offset), nil
}

func (r *Mock) InsertAudit(ctx context.Context, entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = append(r.audit, entry)
	return nil
}

func (r *Mock) ListAudit(ctx context.Context, limit, offset uint32) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginate(r.audit, limit, offset), nil
}

func (r *Mock) InsertMitigation(ctx context.Context, m domain.Mitigation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.mitigations {
		if existing.ScopeHash == m.ScopeHash && existing.POP == m.POP && existing.Status.IsActive() {
			return ErrScopeConflict
		}
	}
	r.mitigations = append(r.mitigations, m)
	return nil
}

func (r *Mock) UpdateMitigation(ctx context.Context, m domain.Mitigation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.mitigations {
		if r.mitigations[i].MitigationID == m.MitigationID {
			r.mitigations[i] = m
			return nil
		}
	}
	return ErrNotFound
}

func (r *Mock) GetMitigation(ctx context.Context, id string) (*domain.Mitigation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mitigations {
		if m.MitigationID == id {
			return &m, nil
		}
	}
	return nil, nil
}

func (r *Mock) FindActiveByScope(ctx context.Context, scopeHash, pop string) (*domain.Mitigation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mitigations {
		if m.ScopeHash == scopeHash && m.POP == pop && m.Status.IsActive() {
			return &m, nil
		}
	}
	return nil, nil
}

func (r *Mock) FindActiveByVictim(ctx context.Context, victimIP string) ([]domain.Mitigation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Mitigation
	for _, m := range r.mitigations {
		if m.VictimIP == victimIP && m.Status.IsActive() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *Mock) FindActiveByTriggeringEvent(ctx context.Context, eventID string) (*domain.Mitigation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mitigations {
		if m.TriggeringEventID == eventID && m.Status.IsActive() {
			return &m, nil
		}
	}
	return nil, nil
}

func (r *Mock) ListMitigations(ctx context.Context, statusFilter []domain.MitigationStatus, customerID *string, limit, offset uint32) ([]domain.Mitigation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var filtered []domain.Mitigation
	for _, m := range r.mitigations {
		if !matchesStatus(m.Status, statusFilter) {
			continue
		}
		if customerID != nil && (m.CustomerID == nil || *m.CustomerID != *customerID) {
			continue
		}
		filtered = append(filtered, m)
	}
	return paginate(filtered, limit, offset), nil
}

func (r *Mock) ListMitigationsAllPOPs(ctx context.Context, statusFilter []domain.MitigationStatus, customerID *string, limit, offset uint32) ([]domain.Mitigation, error) {
	return r.ListMitigations(ctx, statusFilter, customerID, limit, offset)
}

func (r *Mock) CountActiveByCustomer(ctx context.Context, customerID string) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n uint32
	for _, m := range r.mitigations {
		if m.Status.IsActive() && m.CustomerID != nil && *m.CustomerID == customerID {
			n++
		}
	}
	return n, nil
}

func (r *Mock) CountActiveByPOP(ctx context.Context, pop string) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n uint32
	for _, m := range r.mitigations {
		if m.Status.IsActive() && m.POP == pop {
			n++
		}
	}
	return n, nil
}

func (r *Mock) CountActiveGlobal(ctx context.Context) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n uint32
	for _, m := range r.mitigations {
		if m.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

func (r *Mock) FindExpiredMitigations(ctx context.Context, now time.Time) ([]domain.Mitigation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Mitigation
	for _, m := range r.mitigations {
		if m.Status.IsActive() && now.After(m.ExpiresAt) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *Mock) InsertSafelist(ctx context.Context, prefix, addedBy string, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.safelist {
		if s.Prefix == prefix {
			return ErrScopeConflict
		}
	}
	r.safelist = append(r.safelist, domain.SafelistEntry{Prefix: prefix, AddedBy: addedBy, AddedAt: time.Now().UTC(), Reason: reason})
	return nil
}

func (r *Mock) RemoveSafelist(ctx context.Context, prefix string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.safelist {
		if s.Prefix == prefix {
			r.safelist = append(r.safelist[:i], r.safelist[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *Mock) ListSafelist(ctx context.Context) ([]domain.SafelistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SafelistEntry, len(r.safelist))
	copy(out, r.safelist)
	return out, nil
}

func (r *Mock) IsSafelisted(ctx context.Context, ip string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.safelist {
		if containsIP(s.Prefix, ip) {
			if s.ExpiresAt != nil && time.Now().UTC().After(*s.ExpiresAt) {
				continue
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *Mock) ListPOPs(ctx context.Context) ([]PopInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]uint32)
	for _, m := range r.mitigations {
		if m.Status.IsActive() {
			counts[m.POP]++
		}
	}
	pops := make([]PopInfo, 0, len(counts))
	for pop, n := range counts {
		pops = append(pops, PopInfo{POP: pop, ActiveMitigations: n, LastSeenAt: time.Now().UTC()})
	}
	return pops, nil
}

func (r *Mock) GetStats(ctx context.Context) (GlobalStats, error) {
	pops, _ := r.ListPOPs(ctx)
	active, _ := r.CountActiveGlobal(ctx)

	r.mu.Lock()
	cutoff := time.Now().UTC().Add(-time.Hour)
	var eventsLastHour uint32
	for _, e := range r.events {
		if e.IngestedAt.After(cutoff) {
			eventsLastHour++
		}
	}
	r.mu.Unlock()

	return GlobalStats{ActiveMitigations: active, EventsLastHour: eventsLastHour, POPs: pops}, nil
}

func (r *Mock) TimeseriesMitigations(ctx context.Context, rangeHours, bucketMinutes uint32) ([]TimeseriesBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	times := make([]time.Time, len(r.mitigations))
	for i, m := range r.mitigations {
		times[i] = m.CreatedAt
	}
	return bucketize(times, rangeHours, bucketMinutes), nil
}

func (r *Mock) TimeseriesEvents(ctx context.Context, rangeHours, bucketMinutes uint32) ([]TimeseriesBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	times := make([]time.Time, len(r.events))
	for i, e := range r.events {
		times[i] = e.IngestedAt
	}
	return bucketize(times, rangeHours, bucketMinutes), nil
}

func (r *Mock) ListEventsByIP(ctx context.Context, ip string, limit uint32) ([]domain.AttackEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AttackEvent
	for i := len(r.events) - 1; i >= 0 && uint32(len(out)) < limit; i-- {
		if r.events[i].VictimIP == ip {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

func (r *Mock) ListMitigationsByIP(ctx context.Context, ip string, limit uint32) ([]domain.Mitigation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Mitigation
	for i := len(r.mitigations) - 1; i >= 0 && uint32(len(out)) < limit; i-- {
		if r.mitigations[i].VictimIP == ip {
			out = append(out, r.mitigations[i])
		}
	}
	return out, nil
}

func (r *Mock) GetOperatorByUsername(ctx context.Context, username string) (*domain.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.operators {
		if o.Username == username {
			return &o, nil
		}
	}
	return nil, nil
}

func (r *Mock) GetOperatorByID(ctx context.Context, id string) (*domain.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.operators {
		if o.OperatorID == id {
			return &o, nil
		}
	}
	return nil, nil
}

func (r *Mock) CreateOperator(ctx context.Context, username, passwordHash string, role domain.OperatorRole, createdBy *string) (domain.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.operators {
		if o.Username == username {
			return domain.Operator{}, ErrScopeConflict
		}
	}
	op := domain.Operator{
		OperatorID:   uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
		CreatedBy:    createdBy,
	}
	r.operators = append(r.operators, op)
	return op, nil
}

func (r *Mock) UpdateOperatorLastLogin(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.operators {
		if r.operators[i].OperatorID == id {
			r.operators[i].LastLoginAt = &at
			return nil
		}
	}
	return ErrNotFound
}

func (r *Mock) UpdateOperatorPassword(ctx context.Context, id string, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.operators {
		if r.operators[i].OperatorID == id {
			r.operators[i].PasswordHash = passwordHash
			return nil
		}
	}
	return ErrNotFound
}

func (r *Mock) DeleteOperator(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, o := range r.operators {
		if o.OperatorID == id {
			r.operators = append(r.operators[:i], r.operators[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *Mock) ListOperators(ctx context.Context) ([]domain.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Operator, len(r.operators))
	copy(out, r.operators)
	return out, nil
}
