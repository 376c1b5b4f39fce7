package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// RelationalStore is a database/sql backed Backend. One table per
// Collection, each with (id TEXT PRIMARY KEY, seq INTEGER, doc TEXT,
// deleted_at TIMESTAMP NULL). Deletes are soft: the row is marked with
// deleted_at rather than removed, so audit/history collections retain a
// record of what existed even after removal. The driver is supplied by
// the caller via sql.Open elsewhere; this package only issues portable
// SQL and never imports a concrete driver, so it works unchanged against
// sqlite, postgres, or mysql so long as the driver understands standard
// placeholder-free DDL with a TEXT/INTEGER/TIMESTAMP column set.
type RelationalStore struct {
	db *sql.DB
}

// NewRelationalStore wraps an already-open *sql.DB and ensures the tables
// for every known Collection exist.
func NewRelationalStore(ctx context.Context, db *sql.DB) (*RelationalStore, error) {
	rs := &RelationalStore{db: db}
	for _, c := range allCollections {
		if err := rs.ensureTable(ctx, c); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

var allCollections = []Collection{
	CollectionJobs, CollectionExecutions, CollectionSessions,
	CollectionConfig, CollectionAliases, CollectionFunctions, CollectionHistory,
}

func (rs *RelationalStore) ensureTable(ctx context.Context, c Collection) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		doc TEXT NOT NULL,
		deleted_at TIMESTAMP NULL
	)`, tableName(c))
	_, err := rs.db.ExecContext(ctx, stmt)
	if err != nil {
		logger.ErrorF("RelationalStore: failed to create table for %s: %v", c, err)
	}
	return err
}

// tableName maps a Collection to its snake_case table name, e.g.
// CollectionExecutions -> "lsh_executions".
func tableName(c Collection) string {
	return "lsh_" + string(c)
}

func (rs *RelationalStore) Upsert(ctx context.Context, collection Collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	tbl := tableName(collection)
	res, err := rs.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET doc = ?, deleted_at = NULL WHERE id = ?`, tbl),
		string(raw), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = rs.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, seq, doc, deleted_at) SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, NULL FROM %s`, tbl, tbl),
		id, string(raw))
	return err
}

func (rs *RelationalStore) Get(ctx context.Context, collection Collection, id string, out any) (bool, error) {
	tbl := tableName(collection)
	row := rs.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE id = ? AND deleted_at IS NULL`, tbl), id)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, json.Unmarshal([]byte(raw), out)
}

func (rs *RelationalStore) Delete(ctx context.Context, collection Collection, id string) error {
	tbl := tableName(collection)
	res, err := rs.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, tbl), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (rs *RelationalStore) List(ctx context.Context, collection Collection, out any) error {
	return rs.query(ctx, fmt.Sprintf(
		`SELECT doc FROM %s WHERE deleted_at IS NULL ORDER BY seq ASC`, tableName(collection)), out)
}

func (rs *RelationalStore) ListRecent(ctx context.Context, collection Collection, n int, out any) error {
	return rs.query(ctx, fmt.Sprintf(
		`SELECT doc FROM %s WHERE deleted_at IS NULL ORDER BY seq DESC LIMIT %d`, tableName(collection), n), out)
}

func (rs *RelationalStore) query(ctx context.Context, stmt string, out any) error {
	rows, err := rs.db.QueryContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	var docs []json.RawMessage
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		docs = append(docs, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	merged, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	return json.Unmarshal(merged, out)
}

func (rs *RelationalStore) Close() error {
	return rs.db.Close()
}
