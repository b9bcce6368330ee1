// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package aggregate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/wontakkang/jais-backend-sub000/internal/kv"
)

// SQLStore persists the bucket tables in MySQL with
// INSERT ... ON DUPLICATE KEY UPDATE upserts. Timestamps live in the
// database shifted by the configured save offset (a display
// convention kept from the operator tooling); in memory every instant
// stays UTC.
type SQLStore struct {
	db     *sql.DB
	offset time.Duration
}

// NewSQLStore opens the database. The driver (go-sql-driver/mysql)
// must be imported by the caller. offsetHours is DB_SAVE_OFFSET_HOURS.
func NewSQLStore(driver, dsn string, offsetHours int) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("aggregate: open db: %w", err)
	}
	return &SQLStore{db: db, offset: time.Duration(offsetHours) * time.Hour}, nil
}

// InitSchema creates the four bucket tables if they are missing.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	for _, res := range []Resolution{TwoMinute, TenMinute, Hourly, Daily} {
		query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		timestamp  DATETIME NOT NULL,
		client_id  INT NOT NULL DEFAULT 0,
		group_id   INT NOT NULL DEFAULT 0,
		var_id     INT NOT NULL,
		value      DOUBLE NULL,
		value_type VARCHAR(8) NOT NULL DEFAULT 'null',
		min_value  DOUBLE NOT NULL DEFAULT 0,
		max_value  DOUBLE NOT NULL DEFAULT 0,
		avg_value  DOUBLE NULL,
		sum_value  DOUBLE NOT NULL DEFAULT 0,
		` + "`count`" + `    BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uniq_ts_var (timestamp, var_id),
		KEY idx_ts_var (timestamp, var_id)
	)`, res.Table())
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("aggregate: create %s: %w", res.Table(), err)
		}
	}
	return nil
}

const timestampLayout = "2006-01-02 15:04:05"

func (s *SQLStore) toDB(t time.Time) string {
	return t.UTC().Add(s.offset).Format(timestampLayout)
}

func (s *SQLStore) fromDB(v string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(-s.offset).UTC(), nil
}

// Upsert writes rows one by one. A failed row is a consistency error:
// it is logged and skipped, and the job carries on with the rest.
func (s *SQLStore) Upsert(ctx context.Context, res Resolution, rows []Row) error {
	query := fmt.Sprintf(`
	INSERT INTO %s
		(timestamp, client_id, group_id, var_id, value, value_type,
		 min_value, max_value, avg_value, sum_value, `+"`count`"+`,
		 created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		client_id = VALUES(client_id),
		group_id = VALUES(group_id),
		value = VALUES(value),
		value_type = VALUES(value_type),
		min_value = VALUES(min_value),
		max_value = VALUES(max_value),
		avg_value = VALUES(avg_value),
		sum_value = VALUES(sum_value),
		`+"`count`"+` = VALUES(`+"`count`"+`),
		updated_at = VALUES(updated_at)`, res.Table())

	now := s.toDB(time.Now())
	for _, r := range rows {
		_, err := s.db.ExecContext(ctx, query,
			s.toDB(r.Timestamp), r.ClientID, r.GroupID, r.VarID,
			r.Value, string(r.ValueType),
			r.Min, r.Max, r.Avg, r.Sum, r.Count,
			now, now)
		if err != nil {
			slog.Error("aggregate upsert failed, skipping row",
				"table", res.Table(), "var_id", r.VarID, "bucket", r.Timestamp, "err", err)
		}
	}
	return nil
}

func (s *SQLStore) Range(ctx context.Context, res Resolution, from, to time.Time) ([]Row, error) {
	query := fmt.Sprintf(`
	SELECT timestamp, client_id, group_id, var_id, value, value_type,
	       min_value, max_value, avg_value, sum_value, `+"`count`"+`
	FROM %s
	WHERE timestamp >= ? AND timestamp < ?
	ORDER BY timestamp, var_id`, res.Table())

	rows, err := s.db.QueryContext(ctx, query, s.toDB(from), s.toDB(to))
	if err != nil {
		return nil, fmt.Errorf("aggregate: query %s: %w", res.Table(), err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r  Row
			ts string
			vt string
		)
		if err := rows.Scan(&ts, &r.ClientID, &r.GroupID, &r.VarID,
			&r.Value, &vt, &r.Min, &r.Max, &r.Avg, &r.Sum, &r.Count); err != nil {
			return nil, fmt.Errorf("aggregate: scan %s: %w", res.Table(), err)
		}
		if r.Timestamp, err = s.fromDB(ts); err != nil {
			return nil, fmt.Errorf("aggregate: bad timestamp in %s: %w", res.Table(), err)
		}
		r.ValueType = kv.TypeTag(vt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error { return s.db.Close() }
