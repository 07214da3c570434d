// Package repository is the persistence contract (L3): events, audit log,
// mitigations, safelist, multi-POP coordination, timeseries, IP history,
// and operator accounts. Two drivers satisfy it: sqlrepo (Postgres, via
// database/sql + lib/pq) and the in-memory Mock used by tests and by
// config.StorageMemory deployments.
package repository

import (
	"context"
	"time"

	"github.com/lance0/prefixd-sub000/internal/domain"
)

// PopInfo is one row of the multi-POP coordination view.
type PopInfo struct {
	POP               string
	ActiveMitigations uint32
	LastSeenAt        time.Time
}

// GlobalStats is the cross-POP summary backing GET /v1/stats-equivalent
// aggregation queries.
type GlobalStats struct {
	ActiveMitigations uint32
	EventsLastHour    uint32
	POPs              []PopInfo
}

// TimeseriesBucket is one point of a timeseries query response.
type TimeseriesBucket struct {
	BucketStart time.Time
	Count       uint32
}

// Repository is the full persistence surface the rest of the daemon depends
// on. Implementations must make (scope_hash, pop) uniqueness a database/map
// constraint — not a read-then-write race — so two concurrent ingests of the
// same scope coalesce instead of double-creating (§5 at-most-once).
type Repository interface {
	// Events
	InsertEvent(ctx context.Context, event domain.AttackEvent) error
	FindEventByExternalID(ctx context.Context, source, externalID string) (*domain.AttackEvent, error)
	ListEvents(ctx context.Context, limit, offset uint32) ([]domain.AttackEvent, error)

	// Audit log
	InsertAudit(ctx context.Context, entry domain.AuditEntry) error
	ListAudit(ctx context.Context, limit, offset uint32) ([]domain.AuditEntry, error)

	// Mitigations
	InsertMitigation(ctx context.Context, m domain.Mitigation) error
	UpdateMitigation(ctx context.Context, m domain.Mitigation) error
	GetMitigation(ctx context.Context, id string) (*domain.Mitigation, error)
	FindActiveByScope(ctx context.Context, scopeHash, pop string) (*domain.Mitigation, error)
	FindActiveByVictim(ctx context.Context, victimIP string) ([]domain.Mitigation, error)
	FindActiveByTriggeringEvent(ctx context.Context, eventID string) (*domain.Mitigation, error)
	ListMitigations(ctx context.Context, statusFilter []domain.MitigationStatus, customerID *string, limit, offset uint32) ([]domain.Mitigation, error)
	CountActiveByCustomer(ctx context.Context, customerID string) (uint32, error)
	CountActiveByPOP(ctx context.Context, pop string) (uint32, error)
	CountActiveGlobal(ctx context.Context) (uint32, error)
	FindExpiredMitigations(ctx context.Context, now time.Time) ([]domain.Mitigation, error)

	// Safelist
	InsertSafelist(ctx context.Context, prefix, addedBy string, reason *string) error
	RemoveSafelist(ctx context.Context, prefix string) (bool, error)
	ListSafelist(ctx context.Context) ([]domain.SafelistEntry, error)
	IsSafelisted(ctx context.Context, ip string) (bool, error)

	// Multi-POP coordination
	ListPOPs(ctx context.Context) ([]PopInfo, error)
	GetStats(ctx context.Context) (GlobalStats, error)
	ListMitigationsAllPOPs(ctx context.Context, statusFilter []domain.MitigationStatus, customerID *string, limit, offset uint32) ([]domain.Mitigation, error)

	// Timeseries
	TimeseriesMitigations(ctx context.Context, rangeHours, bucketMinutes uint32) ([]TimeseriesBucket, error)
	TimeseriesEvents(ctx context.Context, rangeHours, bucketMinutes uint32) ([]TimeseriesBucket, error)

	// IP history
	ListEventsByIP(ctx context.Context, ip string, limit uint32) ([]domain.AttackEvent, error)
	ListMitigationsByIP(ctx context.Context, ip string, limit uint32) ([]domain.Mitigation, error)

	// Operators
	GetOperatorByUsername(ctx context.Context, username string) (*domain.Operator, error)
	GetOperatorByID(ctx context.Context, id string) (*domain.Operator, error)
	CreateOperator(ctx context.Context, username, passwordHash string, role domain.OperatorRole, createdBy *string) (domain.Operator, error)
	UpdateOperatorLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateOperatorPassword(ctx context.Context, id string, passwordHash string) error
	DeleteOperator(ctx context.Context, id string) (bool, error)
	ListOperators(ctx context.Context) ([]domain.Operator, error)
}

// ErrNotFound is returned by single-row lookups that find nothing, wrapped
// into a perr.KindNotFound/KindMitigationNotFound by callers that need the
// HTTP-facing taxonomy; repository itself stays dependency-free of perr so
// it can be imported by tooling that doesn't want the HTTP error mapping.
var ErrNotFound = repoNotFoundError{}

type repoNotFoundError struct{}

func (repoNotFoundError) Error() string { return "repository: not found" }
