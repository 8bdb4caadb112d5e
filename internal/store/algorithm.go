package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/vibeops/internal/algorithm"
)

// AlgorithmConfigRecord is one stored version of an algorithm config.
type AlgorithmConfigRecord struct {
	ID            string               `json:"id"`
	Type          algorithm.ConfigType `json:"config_type"`
	Version       int                  `json:"version"`
	Data          json.RawMessage      `json:"config_data"`
	IsActive      bool                 `json:"is_active"`
	CreatedBy     *string              `json:"created_by,omitempty"`
	Note          *string              `json:"note,omitempty"`
	EffectiveFrom *time.Time           `json:"effective_from,omitempty"`
	ActivatedAt   *time.Time           `json:"activated_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// SaveConfigParams describes a new config version.
type SaveConfigParams struct {
	Type          algorithm.ConfigType
	Data          json.RawMessage
	CreatedBy     string
	Note          string
	EffectiveFrom *time.Time // nil or past activates immediately
}

const algorithmConfigColumns = `id, config_type, version, config_data, is_active, created_by, note, effective_from, activated_at, created_at`

// SaveAlgorithmConfig stores a new version of a config type. When the version
// takes effect now, the previous active row of the same type is deactivated in
// the same transaction, serialized per type by an advisory lock.
func (s *Store) SaveAlgorithmConfig(ctx context.Context, p SaveConfigParams, now time.Time) (AlgorithmConfigRecord, error) {
	if p.Type == "" {
		return AlgorithmConfigRecord{}, fmt.Errorf("config_type required")
	}
	if len(p.Data) == 0 {
		return AlgorithmConfigRecord{}, fmt.Errorf("config_data required")
	}
	activate := p.EffectiveFrom == nil || !p.EffectiveFrom.After(now)
	var effective interface{}
	if p.EffectiveFrom != nil {
		effective = p.EffectiveFrom.UTC()
	}
	var rec AlgorithmConfigRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(p.Type)); err != nil {
			return fmt.Errorf("lock config type: %w", err)
		}
		var version int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM algorithm_configs WHERE config_type=$1`, string(p.Type)).Scan(&version); err != nil {
			return fmt.Errorf("next version: %w", err)
		}
		if activate {
			if _, err := tx.ExecContext(ctx, `UPDATE algorithm_configs SET is_active=FALSE WHERE config_type=$1 AND is_active`, string(p.Type)); err != nil {
				return fmt.Errorf("deactivate previous: %w", err)
			}
		}
		row := tx.QueryRowContext(ctx, `
INSERT INTO algorithm_configs (config_type, version, config_data, is_active, created_by, note, effective_from, activated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7, CASE WHEN $4::boolean THEN NOW() END)
RETURNING `+algorithmConfigColumns,
			string(p.Type), version, []byte(p.Data), activate, nullString(p.CreatedBy), nullString(p.Note), effective)
		var err error
		rec, err = scanAlgorithmConfig(row)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: config %s version %d", ErrConflict, p.Type, version)
		}
		return err
	})
	return rec, err
}

// ActivateAlgorithmConfig makes an existing version the active one for its type.
func (s *Store) ActivateAlgorithmConfig(ctx context.Context, t algorithm.ConfigType, version int) (AlgorithmConfigRecord, error) {
	var rec AlgorithmConfigRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		rec, err = activateTx(ctx, tx, t, version)
		return err
	})
	return rec, err
}

func activateTx(ctx context.Context, tx *sql.Tx, t algorithm.ConfigType, version int) (AlgorithmConfigRecord, error) {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(t)); err != nil {
		return AlgorithmConfigRecord{}, fmt.Errorf("lock config type: %w", err)
	}
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM algorithm_configs WHERE config_type=$1 AND version=$2 FOR UPDATE`, string(t), version).Scan(&id)
	if err == sql.ErrNoRows {
		return AlgorithmConfigRecord{}, fmt.Errorf("%w: config %s version %d", ErrNotFound, t, version)
	}
	if err != nil {
		return AlgorithmConfigRecord{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE algorithm_configs SET is_active=FALSE WHERE config_type=$1 AND is_active AND id<>$2`, string(t), id); err != nil {
		return AlgorithmConfigRecord{}, fmt.Errorf("deactivate previous: %w", err)
	}
	row := tx.QueryRowContext(ctx, `
UPDATE algorithm_configs SET is_active=TRUE, activated_at=COALESCE(activated_at, NOW())
WHERE id=$1
RETURNING `+algorithmConfigColumns, id)
	return scanAlgorithmConfig(row)
}

// ActiveAlgorithmConfigs returns the active row of every type that has one.
func (s *Store) ActiveAlgorithmConfigs(ctx context.Context) ([]AlgorithmConfigRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+algorithmConfigColumns+` FROM algorithm_configs WHERE is_active ORDER BY config_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AlgorithmConfigRecord
	for rows.Next() {
		rec, err := scanAlgorithmConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ActiveAlgorithmConfig returns the active row of one type.
func (s *Store) ActiveAlgorithmConfig(ctx context.Context, t algorithm.ConfigType) (AlgorithmConfigRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+algorithmConfigColumns+` FROM algorithm_configs WHERE config_type=$1 AND is_active`, string(t))
	rec, err := scanAlgorithmConfig(row)
	if err == sql.ErrNoRows {
		return AlgorithmConfigRecord{}, false, nil
	}
	if err != nil {
		return AlgorithmConfigRecord{}, false, err
	}
	return rec, true, nil
}

// ListAlgorithmConfigHistory returns versions of a type, newest first.
func (s *Store) ListAlgorithmConfigHistory(ctx context.Context, t algorithm.ConfigType, limit int) ([]AlgorithmConfigRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+algorithmConfigColumns+`
FROM algorithm_configs
WHERE config_type=$1
ORDER BY version DESC
LIMIT $2
`, string(t), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AlgorithmConfigRecord{}
	for rows.Next() {
		rec, err := scanAlgorithmConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ActiveSnapshot assembles the active parameters, using built-in defaults for
// types without an active row.
func (s *Store) ActiveSnapshot(ctx context.Context) (algorithm.Snapshot, error) {
	recs, err := s.ActiveAlgorithmConfigs(ctx)
	if err != nil {
		return algorithm.Snapshot{}, err
	}
	snap := algorithm.Defaults()
	for _, rec := range recs {
		cfg, err := algorithm.Decode(rec.Type, rec.Data)
		if err != nil {
			return algorithm.Snapshot{}, fmt.Errorf("active %s config v%d: %w", rec.Type, rec.Version, err)
		}
		snap.Apply(cfg, rec.Version)
	}
	return snap, nil
}

// ActivateScheduledConfigs activates every saved version whose effective_from
// has passed, in version order per type so the newest due version ends active.
func (s *Store) ActivateScheduledConfigs(ctx context.Context, now time.Time) ([]AlgorithmConfigRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT config_type, version
FROM algorithm_configs
WHERE NOT is_active AND activated_at IS NULL AND effective_from IS NOT NULL AND effective_from <= $1
ORDER BY config_type, version
`, now.UTC())
	if err != nil {
		return nil, err
	}
	type due struct {
		t       algorithm.ConfigType
		version int
	}
	var pending []due
	for rows.Next() {
		var d due
		var t string
		if err := rows.Scan(&t, &d.version); err != nil {
			rows.Close()
			return nil, err
		}
		d.t = algorithm.ConfigType(t)
		pending = append(pending, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var out []AlgorithmConfigRecord
	for _, d := range pending {
		rec, err := s.ActivateAlgorithmConfig(ctx, d.t, d.version)
		if err != nil {
			return out, fmt.Errorf("activate %s v%d: %w", d.t, d.version, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func scanAlgorithmConfig(row scanner) (AlgorithmConfigRecord, error) {
	var rec AlgorithmConfigRecord
	var t string
	var raw []byte
	var createdBy, note sql.NullString
	var effective, activated sql.NullTime
	if err := row.Scan(&rec.ID, &t, &rec.Version, &raw, &rec.IsActive, &createdBy, &note, &effective, &activated, &rec.CreatedAt); err != nil {
		return AlgorithmConfigRecord{}, err
	}
	rec.Type = algorithm.ConfigType(t)
	rec.Data = append(json.RawMessage{}, raw...)
	rec.CreatedBy = stringPtr(createdBy)
	rec.Note = stringPtr(note)
	rec.EffectiveFrom = timePtr(effective)
	rec.ActivatedAt = timePtr(activated)
	return rec, nil
}
