package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const insertChunkSize = 100 // 8 bind variables per row keeps us under SQLite's 999 limit

const positionColumns = "region, latitude, longitude, bearing, speed, vehicle_id, timestamp, insert_timestamp"

// Store is the append-only vehicle position table.
type Store struct {
	db    *sqlx.DB
	table string
	log   logrus.FieldLogger
}

// OpenStore opens (creating if needed) the SQLite file at path.
func OpenStore(path, table string, log logrus.FieldLogger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// single writer; also keeps temp staging tables on one connection
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}
	return NewStore(db, table, log), nil
}

func NewStore(db *sqlx.DB, table string, log logrus.FieldLogger) *Store {
	return &Store{db: db, table: table, log: log}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) quoted() string {
	return `"` + s.table + `"`
}

type queryerContext interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func (s *Store) tableExists(ctx context.Context, q queryerContext) (bool, error) {
	var n int
	err := q.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, s.table)
	if err != nil {
		return false, fmt.Errorf("failed to check table: %w", err)
	}
	return n > 0, nil
}

// State reports whether the table is missing, empty or holds rows.
func (s *Store) State(ctx context.Context) (StoreState, error) {
	exists, err := s.tableExists(ctx, s.db)
	if err != nil {
		return StoreUninitialized, err
	}
	if !exists {
		return StoreUninitialized, nil
	}
	var hasRows bool
	if err := s.db.GetContext(ctx, &hasRows, `SELECT EXISTS (SELECT 1 FROM `+s.quoted()+`)`); err != nil {
		return StoreUninitialized, fmt.Errorf("failed to count rows: %w", err)
	}
	if !hasRows {
		return StoreEmpty, nil
	}
	return StorePopulated, nil
}

// Merge writes batch in one transaction and returns the number of rows inserted.
// On first run the table is created and the whole batch inserted; afterwards only
// rows with no exact match on the dedup key are added.
func (s *Store) Merge(ctx context.Context, batch []VehiclePosition, now time.Time) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exists, err := s.tableExists(ctx, tx)
	if err != nil {
		return 0, err
	}

	var inserted int64
	if !exists {
		if err := s.createTable(ctx, tx); err != nil {
			return 0, err
		}
		if err := insertPositions(ctx, tx, s.quoted(), batch); err != nil {
			return 0, err
		}
		inserted = int64(len(batch))
	} else {
		if err := s.migrate(ctx, tx, now); err != nil {
			return 0, err
		}
		inserted, err = s.mergeNew(ctx, tx, batch)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit merge: %w", err)
	}
	return inserted, nil
}

func (s *Store) createTable(ctx context.Context, tx *sqlx.Tx) error {
	ddl := `CREATE TABLE ` + s.quoted() + ` (
		region TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		bearing REAL NOT NULL DEFAULT 0,
		speed REAL NOT NULL DEFAULT 0,
		vehicle_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		insert_timestamp INTEGER
	)`
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	idx := `CREATE INDEX IF NOT EXISTS "idx_` + s.table + `_vehicle_ts" ON ` + s.quoted() + ` (vehicle_id, timestamp)`
	if _, err := tx.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	s.log.WithField("table", s.table).Info("store table created")
	return nil
}

// migrate adds insert_timestamp to tables written before it existed.
func (s *Store) migrate(ctx context.Context, tx *sqlx.Tx, now time.Time) error {
	var n int
	err := tx.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = 'insert_timestamp'`, s.table)
	if err != nil {
		return fmt.Errorf("failed to inspect table: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE `+s.quoted()+` ADD COLUMN insert_timestamp INTEGER`); err != nil {
		return fmt.Errorf("failed to add insert_timestamp: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE `+s.quoted()+` SET insert_timestamp = ? WHERE insert_timestamp IS NULL`, now.Unix())
	if err != nil {
		return fmt.Errorf("failed to backfill insert_timestamp: %w", err)
	}
	backfilled, _ := res.RowsAffected()
	s.log.WithFields(logrus.Fields{
		"table":      s.table,
		"backfilled": backfilled,
	}).Info("added insert_timestamp column")
	return nil
}

func (s *Store) mergeNew(ctx context.Context, tx *sqlx.Tx, batch []VehiclePosition) (int64, error) {
	staging := `"` + s.table + `_staging"`
	stmts := []string{
		`DROP TABLE IF EXISTS temp.` + staging,
		`CREATE TEMP TABLE ` + staging + ` AS SELECT ` + positionColumns + ` FROM ` + s.quoted() + ` WHERE 0`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return 0, fmt.Errorf("failed to prepare staging table: %w", err)
		}
	}
	if err := insertPositions(ctx, tx, "temp."+staging, batch); err != nil {
		return 0, err
	}

	merge := `INSERT INTO ` + s.quoted() + ` (` + positionColumns + `)
		SELECT DISTINCT ` + positionColumns + ` FROM temp.` + staging + ` AS s
		WHERE NOT EXISTS (
			SELECT 1 FROM ` + s.quoted() + ` AS t
			WHERE t.region = s.region
			  AND t.vehicle_id = s.vehicle_id
			  AND t.timestamp = s.timestamp
			  AND t.latitude = s.latitude
			  AND t.longitude = s.longitude
			  AND t.bearing = s.bearing
			  AND t.speed = s.speed
		)`
	res, err := tx.ExecContext(ctx, merge)
	if err != nil {
		return 0, fmt.Errorf("failed to merge batch: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read merge result: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE temp.`+staging); err != nil {
		return 0, fmt.Errorf("failed to drop staging table: %w", err)
	}
	return inserted, nil
}

func insertPositions(ctx context.Context, tx *sqlx.Tx, table string, rows []VehiclePosition) error {
	q := `INSERT INTO ` + table + ` (` + positionColumns + `) VALUES
		(:region, :latitude, :longitude, :bearing, :speed, :vehicle_id, :timestamp, :insert_timestamp)`
	for start := 0; start < len(rows); start += insertChunkSize {
		end := min(start+insertChunkSize, len(rows))
		if _, err := tx.NamedExecContext(ctx, q, rows[start:end]); err != nil {
			return fmt.Errorf("failed to insert positions: %w", err)
		}
	}
	return nil
}

// MaxTimestamp returns the newest vehicle timestamp; ok is false when the table
// is empty.
func (s *Store) MaxTimestamp(ctx context.Context) (ts int64, ok bool, err error) {
	var newest sql.NullInt64
	if err := s.db.GetContext(ctx, &newest, `SELECT MAX(timestamp) FROM `+s.quoted()); err != nil {
		return 0, false, fmt.Errorf("failed to read max timestamp: %w", err)
	}
	return newest.Int64, newest.Valid, nil
}

// PositionsSince returns every row with timestamp >= from.
func (s *Store) PositionsSince(ctx context.Context, from int64) ([]VehiclePosition, error) {
	var rows []VehiclePosition
	q := `SELECT rowid AS seq, region, latitude, longitude, bearing, speed, vehicle_id, timestamp,
		COALESCE(insert_timestamp, 0) AS insert_timestamp
		FROM ` + s.quoted() + ` WHERE timestamp >= ? ORDER BY rowid`
	if err := s.db.SelectContext(ctx, &rows, q, from); err != nil {
		return nil, fmt.Errorf("failed to select positions: %w", err)
	}
	return rows, nil
}

// AllPositions returns the full history in insertion order.
func (s *Store) AllPositions(ctx context.Context) ([]VehiclePosition, error) {
	var rows []VehiclePosition
	q := `SELECT rowid AS seq, region, latitude, longitude, bearing, speed, vehicle_id, timestamp,
		COALESCE(insert_timestamp, 0) AS insert_timestamp
		FROM ` + s.quoted() + ` ORDER BY rowid`
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("failed to select positions: %w", err)
	}
	return rows, nil
}
