// Package sqlrepo is the Postgres-backed Repository driver, built on
// database/sql and lib/pq (the pack's own Postgres driver choice — see
// DESIGN.md). No ORM or query-builder layer: plain parameterized SQL,
// matching the rest of the corpus's direct-SQL style.
package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/lance0/prefixd-sub000/internal/domain"
	"github.com/lance0/prefixd-sub000/internal/repository"
)

type SQLRepo struct {
	db *sql.DB
}

// Open connects to dsn, applies any pending migrations, and returns a ready
// repository.
func Open(ctx context.Context, dsn string) (*SQLRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlrepo: opening connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("sqlrepo: pinging database: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLRepo{db: db}, nil
}

func (r *SQLRepo) Close() error { return r.db.Close() }

func (r *SQLRepo) InsertEvent(ctx context.Context, e domain.AttackEvent) error {
	ports := make([]int64, len(e.TopDstPorts))
	for i, p := range e.TopDstPorts {
		ports[i] = int64(p)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attack_events
			(event_id, external_event_id, source, event_timestamp, ingested_at,
			 victim_ip, vector, protocol, bps, pps, top_dst_ports, confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.EventID, e.ExternalEventID, e.Source, e.EventTimestamp, e.IngestedAt,
		e.VictimIP, e.Vector, e.Protocol, e.BPS, e.PPS, pq.Array(ports), e.Confidence)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return repository.ErrScopeConflict
		}
		return fmt.Errorf("sqlrepo: insert event: %w", err)
	}
	return nil
}

func (r *SQLRepo) FindEventByExternalID(ctx context.Context, source, externalID string) (*domain.AttackEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT event_id, external_event_id, source, event_timestamp, ingested_at,
		       victim_ip, vector, protocol, bps, pps, top_dst_ports, confidence
		FROM attack_events
		WHERE source = $1 AND external_event_id = $2
		ORDER BY ingested_at DESC LIMIT 1`, source, externalID)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (r *SQLRepo) ListEvents(ctx context.Context, limit, offset uint32) ([]domain.AttackEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, external_event_id, source, event_timestamp, ingested_at,
		       victim_ip, vector, protocol, bps, pps, top_dst_ports, confidence
		FROM attack_events ORDER BY ingested_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlrepo: list events: %w", err)
	}
	defer rows.Close()

	var out []domain.AttackEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.AttackEvent, error) {
	var e domain.AttackEvent
	var ports pq.Int64Array
	if err := row.Scan(&e.EventID, &e.ExternalEventID, &e.Source, &e.EventTimestamp, &e.IngestedAt,
		&e.VictimIP, &e.Vector, &e.Protocol, &e.BPS, &e.PPS, &ports, &e.Confidence); err != nil {
		return nil, fmt.Errorf("sqlrepo: scan event: %w", err)
	}
	for _, p := range ports {
		e.TopDstPorts = append(e.TopDstPorts, uint16(p))
	}
	return &e, nil
}

func (r *SQLRepo) InsertAudit(ctx context.Context, entry domain.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("sqlrepo: marshal audit details: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_entries (audit_id, ts, schema_version, actor_type, actor_id, action, target_type, target_id, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.AuditID, entry.Timestamp, entry.SchemaVersion, entry.ActorType, entry.ActorID,
		entry.Action, entry.TargetType, entry.TargetID, details)
	if err != nil {
		return fmt.Errorf("sqlrepo: insert audit: %w", err)
	}
	return nil
}

func (r *SQLRepo) ListAudit(ctx context.Context, limit, offset uint32) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT audit_id, ts, schema_version, actor_type, actor_id, action, target_type, target_id, details
		FROM audit_entries ORDER BY ts DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlrepo: list audit: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var details []byte
		if err := rows.Scan(&entry.AuditID, &entry.Timestamp, &entry.SchemaVersion, &entry.ActorType,
			&entry.ActorID, &entry.Action, &entry.TargetType, &entry.TargetID, &details); err != nil {
			return nil, fmt.Errorf("sqlrepo: scan audit: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("sqlrepo: unmarshal audit details: %w", err)
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *SQLRepo) InsertMitigation(ctx context.Context, m domain.Mitigation) error {
	ports := make([]int64, len(m.MatchCriteria.DstPorts))
	for i, p := range m.MatchCriteria.DstPorts {
		ports[i] = int64(p)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mitigations
			(mitigation_id, scope_hash, pop, customer_id, service_id, victim_ip, vector,
			 dst_prefix, protocol, dst_ports, action_type, rate_bps, status,
			 created_at, updated_at, expires_at, triggering_event_id, last_event_id, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		m.MitigationID, m.ScopeHash, m.POP, m.CustomerID, m.ServiceID, m.VictimIP, m.Vector,
		m.MatchCriteria.DstPrefix, m.MatchCriteria.Protocol, pq.Array(ports), m.ActionType, m.ActionParams.RateBPS, m.Status,
		m.CreatedAt, m.UpdatedAt, m.ExpiresAt, m.TriggeringEventID, m.LastEventID, m.Reason)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return repository.ErrScopeConflict
		}
		return fmt.Errorf("sqlrepo: insert mitigation: %w", err)
	}
	return nil
}

func (r *SQLRepo) UpdateMitigation(ctx context.Context, m domain.Mitigation) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mitigations SET
			status = $2, updated_at = $3, expires_at = $4, withdrawn_at = $5,
			action_type = $6, rate_bps = $7, last_event_id = $8,
			escalated_from_id = $9, reason = $10, rejection_reason = $11
		WHERE mitigation_id = $1`,
		m.MitigationID, m.Status, m.UpdatedAt, m.ExpiresAt, m.WithdrawnAt,
		m.ActionType, m.ActionParams.RateBPS, m.LastEventID, m.EscalatedFromID, m.Reason, m.RejectionReason)
	if err != nil {
		return fmt.Errorf("sqlrepo: update mitigation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlrepo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

const mitigationColumns = `mitigation_id, scope_hash, pop, customer_id, service_id, victim_ip, vector,
	dst_prefix, protocol, dst_ports, action_type, rate_bps, status,
	created_at, updated_at, expires_at, withdrawn_at, triggering_event_id, last_event_id,
	escalated_from_id, reason, rejection_reason`

func scanMitigation(row rowScanner) (*domain.Mitigation, error) {
	var m domain.Mitigation
	var ports pq.Int64Array
	if err := row.Scan(&m.MitigationID, &m.ScopeHash, &m.POP, &m.CustomerID, &m.ServiceID, &m.VictimIP, &m.Vector,
		&m.MatchCriteria.DstPrefix, &m.MatchCriteria.Protocol, &ports, &m.ActionType, &m.ActionParams.RateBPS, &m.Status,
		&m.CreatedAt, &m.UpdatedAt, &m.ExpiresAt, &m.WithdrawnAt, &m.TriggeringEventID, &m.LastEventID,
		&m.EscalatedFromID, &m.Reason, &m.RejectionReason); err != nil {
		return nil, fmt.Errorf("sqlrepo: scan mitigation: %w", err)
	}
	for _, p := range ports {
		m.MatchCriteria.DstPorts = append(m.MatchCriteria.DstPorts, uint16(p))
	}
	return &m, nil
}

func (r *SQLRepo) GetMitigation(ctx context.Context, id string) (*domain.Mitigation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mitigationColumns+` FROM mitigations WHERE mitigation_id = $1`, id)
	m, err := scanMitigation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *SQLRepo) FindActiveByScope(ctx context.Context, scopeHash, pop string) (*domain.Mitigation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+mitigationColumns+` FROM mitigations
		WHERE scope_hash = $1 AND pop = $2 AND status IN ('pending','active','escalated')`, scopeHash, pop)
	m, err := scanMitigation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *SQLRepo) FindActiveByVictim(ctx context.Context, victimIP string) ([]domain.Mitigation, error) {
	return r.queryMitigations(ctx, `
		SELECT `+mitigationColumns+` FROM mitigations
		WHERE victim_ip = $1 AND status IN ('pending','active','escalated')`, victimIP)
}

func (r *SQLRepo) FindActiveByTriggeringEvent(ctx context.Context, eventID string) (*domain.Mitigation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+mitigationColumns+` FROM mitigations
		WHERE triggering_event_id = $1 AND status IN ('pending','active','escalated')`, eventID)
	m, err := scanMitigation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *SQLRepo) queryMitigations(ctx context.Context, query string, args ...any) ([]domain.Mitigation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlrepo: query mitigations: %w", err)
	}
	defer rows.Close()

	var out []domain.Mitigation
	for rows.Next() {
		m, err := scanMitigation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *SQLRepo) ListMitigations(ctx context.Context, statusFilter []domain.MitigationStatus, customerID *string, limit, offset uint32) ([]domain.Mitigation, error) {
	query := `SELECT ` + mitigationColumns + ` FROM mitigations WHERE 1=1`
	var args []any
	if len(statusFilter) > 0 {
		statuses := make([]string, len(statusFilter))
		for i, s := range statusFilter {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if customerID != nil {
		args = append(args, *customerID)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return r.queryMitigations(ctx, query, args...)
}

func (r *SQLRepo) ListMitigationsAllPOPs(ctx context.Context, statusFilter []domain.MitigationStatus, customerID *string, limit, offset uint32) ([]domain.Mitigation, error) {
	return r.ListMitigations(ctx, statusFilter, customerID, limit, offset)
}

func (r *SQLRepo) CountActiveByCustomer(ctx context.Context, customerID string) (uint32, error) {
	return r.countActive(ctx, "customer_id = $1", customerID)
}

func (r *SQLRepo) CountActiveByPOP(ctx context.Context, pop string) (uint32, error) {
	return r.countActive(ctx, "pop = $1", pop)
}

func (r *SQLRepo) CountActiveGlobal(ctx context.Context) (uint32, error) {
	return r.countActive(ctx, "TRUE")
}

func (r *SQLRepo) countActive(ctx context.Context, predicate string, args ...any) (uint32, error) {
	var n uint32
	query := fmt.Sprintf(`SELECT COUNT(*) FROM mitigations WHERE status IN ('pending','active','escalated') AND %s`, predicate)
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlrepo: count active: %w", err)
	}
	return n, nil
}

func (r *SQLRepo) FindExpiredMitigations(ctx context.Context, now time.Time) ([]domain.Mitigation, error) {
	return r.queryMitigations(ctx, `
		SELECT `+mitigationColumns+` FROM mitigations
		WHERE status IN ('pending','active','escalated') AND expires_at < $1`, now)
}

func (r *SQLRepo) InsertSafelist(ctx context.Context, prefix, addedBy string, reason *string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO safelist_entries (prefix, added_by, added_at, reason) VALUES ($1,$2,$3,$4)`,
		prefix, addedBy, time.Now().UTC(), reason)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
		return repository.ErrScopeConflict
	}
	if err != nil {
		return fmt.Errorf("sqlrepo: insert safelist: %w", err)
	}
	return nil
}

func (r *SQLRepo) RemoveSafelist(ctx context.Context, prefix string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM safelist_entries WHERE prefix = $1`, prefix)
	if err != nil {
		return false, fmt.Errorf("sqlrepo: remove safelist: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLRepo) ListSafelist(ctx context.Context) ([]domain.SafelistEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT prefix, added_by, added_at, reason, expires_at FROM safelist_entries ORDER BY added_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlrepo: list safelist: %w", err)
	}
	defer rows.Close()

	var out []domain.SafelistEntry
	for rows.Next() {
		var s domain.SafelistEntry
		if err := rows.Scan(&s.Prefix, &s.AddedBy, &s.AddedAt, &s.Reason, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("sqlrepo: scan safelist: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLRepo) IsSafelisted(ctx context.Context, ip string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM safelist_entries
			WHERE $1::inet <<= prefix::inet
			  AND (expires_at IS NULL OR expires_at > now())
		)`, ip).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlrepo: is safelisted: %w", err)
	}
	return exists, nil
}

func (r *SQLRepo) ListPOPs(ctx context.Context) ([]repository.PopInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pop, COUNT(*) AS active, MAX(updated_at) AS last_seen
		FROM mitigations WHERE status IN ('pending','active','escalated')
		GROUP BY pop`)
	if err != nil {
		return nil, fmt.Errorf("sqlrepo: list pops: %w", err)
	}
	defer rows.Close()

	var out []repository.PopInfo
	for rows.Next() {
		var p repository.PopInfo
		if err := rows.Scan(&p.POP, &p.ActiveMitigations, &p.LastSeenAt); err != nil {
			return nil, fmt.Errorf("sqlrepo: scan pop: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLRepo) GetStats(ctx context.Context) (repository.GlobalStats, error) {
	pops, err := r.ListPOPs(ctx)
	if err != nil {
		return repository.GlobalStats{}, err
	}
	active, err := r.CountActiveGlobal(ctx)
	if err != nil {
		return repository.GlobalStats{}, err
	}
	var eventsLastHour uint32
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attack_events WHERE ingested_at > now() - interval '1 hour'`).Scan(&eventsLastHour); err != nil {
		return repository.GlobalStats{}, fmt.Errorf("sqlrepo: events last hour: %w", err)
	}
	return repository.GlobalStats{ActiveMitigations: active, EventsLastHour: eventsLastHour, POPs: pops}, nil
}

func (r *SQLRepo) timeseries(ctx context.Context, table, tsColumn string, rangeHours, bucketMinutes uint32) ([]repository.TimeseriesBucket, error) {
	if bucketMinutes == 0 {
		bucketMinutes = 5
	}
	query := fmt.Sprintf(`
		SELECT date_trunc('minute', %s) - (EXTRACT(minute FROM %s)::int %% $1) * interval '1 minute' AS bucket, COUNT(*)
		FROM %s
		WHERE %s > now() - ($2 || ' hours')::interval
		GROUP BY bucket ORDER BY bucket`, tsColumn, tsColumn, table, tsColumn)
	rows, err := r.db.QueryContext(ctx, query, bucketMinutes, rangeHours)
	if err != nil {
		return nil, fmt.Errorf("sqlrepo: timeseries %s: %w", table, err)
	}
	defer rows.Close()

	var out []repository.TimeseriesBucket
	for rows.Next() {
		var b repository.TimeseriesBucket
		if err := rows.Scan(&b.BucketStart, &b.Count); err != nil {
			return nil, fmt.Errorf("sqlrepo: scan timeseries bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLRepo) TimeseriesMitigations(ctx context.Context, rangeHours, bucketMinutes uint32) ([]repository.TimeseriesBucket, error) {
	return r.timeseries(ctx, "mitigations", "created_at", rangeHours, bucketMinutes)
}

func (r *SQLRepo) TimeseriesEvents(ctx context.Context, rangeHours, bucketMinutes uint32) ([]repository.TimeseriesBucket, error) {
	return r.timeseries(ctx, "attack_events", "ingested_at", rangeHours, bucketMinutes)
}

func (r *SQLRepo) ListEventsByIP(ctx context.Context, ip string, limit uint32) ([]domain.AttackEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, external_event_id, source, event_timestamp, ingested_at,
		       victim_ip, vector, protocol, bps, pps, top_dst_ports, confidence
		FROM attack_events WHERE victim_ip = $1 ORDER BY ingested_at DESC LIMIT $2`, ip, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlrepo: list events by ip: %w", err)
	}
	defer rows.Close()

	var out []domain.AttackEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *SQLRepo) ListMitigationsByIP(ctx context.Context, ip string, limit uint32) ([]domain.Mitigation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mitigationColumns+` FROM mitigations WHERE victim_ip = $1 ORDER BY created_at DESC LIMIT $2`, ip, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlrepo: list mitigations by ip: %w", err)
	}
	defer rows.Close()

	var out []domain.Mitigation
	for rows.Next() {
		m, err := scanMitigation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *SQLRepo) GetOperatorByUsername(ctx context.Context, username string) (*domain.Operator, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT operator_id, username, password_hash, role, created_at, created_by, last_login_at
		FROM operators WHERE username = $1`, username)
	return scanOperator(row)
}

func (r *SQLRepo) GetOperatorByID(ctx context.Context, id string) (*domain.Operator, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT operator_id, username, password_hash, role, created_at, created_by, last_login_at
		FROM operators WHERE operator_id = $1`, id)
	return scanOperator(row)
}

func scanOperator(row rowScanner) (*domain.Operator, error) {
	var o domain.Operator
	if err := row.Scan(&o.OperatorID, &o.Username, &o.PasswordHash, &o.Role, &o.CreatedAt, &o.CreatedBy, &o.LastLoginAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlrepo: scan operator: %w", err)
	}
	return &o, nil
}

func (r *SQLRepo) CreateOperator(ctx context.Context, username, passwordHash string, role domain.OperatorRole, createdBy *string) (domain.Operator, error) {
	op := domain.Operator{
		OperatorID:   uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
		CreatedBy:    createdBy,
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO operators (operator_id, username, password_hash, role, created_at, created_by)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		op.OperatorID, op.Username, op.PasswordHash, op.Role, op.CreatedAt, op.CreatedBy)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
		return domain.Operator{}, repository.ErrScopeConflict
	}
	if err != nil {
		return domain.Operator{}, fmt.Errorf("sqlrepo: create operator: %w", err)
	}
	return op, nil
}

func (r *SQLRepo) UpdateOperatorLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE operators SET last_login_at = $2 WHERE operator_id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("sqlrepo: update last login: %w", err)
	}
	return nil
}

func (r *SQLRepo) UpdateOperatorPassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE operators SET password_hash = $2 WHERE operator_id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("sqlrepo: update password: %w", err)
	}
	return nil
}

func (r *SQLRepo) DeleteOperator(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM operators WHERE operator_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("sqlrepo: delete operator: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLRepo) ListOperators(ctx context.Context) ([]domain.Operator, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT operator_id, username, password_hash, role, created_at, created_by, last_login_at
		FROM operators ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("sqlrepo: list operators: %w", err)
	}
	defer rows.Close()

	var out []domain.Operator
	for rows.Next() {
		var o domain.Operator
		if err := rows.Scan(&o.OperatorID, &o.Username, &o.PasswordHash, &o.Role, &o.CreatedAt, &o.CreatedBy, &o.LastLoginAt); err != nil {
			return nil, fmt.Errorf("sqlrepo: scan operator: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

var _ repository.Repository = (*SQLRepo)(nil)
