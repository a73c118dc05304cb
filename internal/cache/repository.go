package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dabrowsk/upcast/internal/upnp"
)

const (
	// compressionThreshold is the serialized size above which payloads
	// are gzip-compressed before storage.
	compressionThreshold = 1024

	// DefaultTTL is how long a record counts as live after its last
	// sighting.
	DefaultTTL = 24 * time.Hour
)

// Record is one cached discovery result.
type Record struct {
	IP       string       `json:"ip"`
	Port     int          `json:"port"`
	Device   *upnp.Device `json:"device"`
	LastSeen time.Time    `json:"last_seen"`
}

// Logger is the logging interface used by the repository, satisfied by
// logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Repository defines the interface for device cache persistence.
type Repository interface {
	Upsert(ctx context.Context, ip string, port int, dev *upnp.Device) error
	Get(ctx context.Context, ip string) (*Record, error)
	List(ctx context.Context, maxAge time.Duration) ([]Record, error)
	CleanupExpired(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error

	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db     *sql.DB
	ttl    time.Duration
	logger Logger

	// now is overridable for TTL tests.
	now func() time.Time
}

// NewSQLiteRepository creates a SQLite-backed device cache with the
// given TTL. A zero ttl means DefaultTTL.
func NewSQLiteRepository(db *sql.DB, ttl time.Duration) *SQLiteRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SQLiteRepository{
		db:     db,
		ttl:    ttl,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the repository.
func (r *SQLiteRepository) SetLogger(logger Logger) {
	r.logger = logger
}

// Upsert writes or overwrites the record for ip with the current
// timestamp. Payloads above the compression threshold are gzipped.
func (r *SQLiteRepository) Upsert(ctx context.Context, ip string, port int, dev *upnp.Device) error {
	payload, err := json.Marshal(dev)
	if err != nil {
		return fmt.Errorf("serializing device %s: %w", ip, err)
	}

	compressed := 0
	if len(payload) > compressionThreshold {
		payload, err = gzipBytes(payload)
		if err != nil {
			return fmt.Errorf("compressing device %s: %w", ip, err)
		}
		compressed = 1
	}

	const query = `INSERT INTO devices (ip, port, data, compressed, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ip) DO UPDATE SET
			port = excluded.port,
			data = excluded.data,
			compressed = excluded.compressed,
			last_seen = excluded.last_seen`
	_, err = r.db.ExecContext(ctx, query,
		ip, port, payload, compressed, r.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", ip, err)
	}
	return nil
}

// Get returns the record for ip if it is within the TTL. Expired
// records behave as not-found and stay in place for CleanupExpired.
func (r *SQLiteRepository) Get(ctx context.Context, ip string) (*Record, error) {
	const query = `SELECT ip, port, data, compressed, last_seen FROM devices WHERE ip = ?`
	row := r.db.QueryRowContext(ctx, query, ip)

	rec, err := r.scanRecord(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if r.now().Sub(rec.LastSeen) >= r.ttl {
		return nil, ErrNotFound
	}
	return rec, nil
}

// List returns all non-expired records ordered by last sighting,
// newest first. A zero maxAge means the repository TTL. Corrupt
// records are logged and skipped.
func (r *SQLiteRepository) List(ctx context.Context, maxAge time.Duration) ([]Record, error) {
	if maxAge <= 0 {
		maxAge = r.ttl
	}
	cutoff := r.now().Add(-maxAge).UTC().Format(time.RFC3339)

	const query = `SELECT ip, port, data, compressed, last_seen FROM devices
		WHERE last_seen > ? ORDER BY last_seen DESC`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := r.scanRecord(rows.Scan)
		if err != nil {
			r.logger.Warn("skipping corrupt cache record", "error", err)
			continue
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return records, nil
}

// CleanupExpired physically deletes all records older than the TTL and
// returns the removed count.
func (r *SQLiteRepository) CleanupExpired(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.ttl).UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE last_seen <= ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired devices: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	return n, nil
}

// Clear removes all device records and metadata.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM devices"); err != nil {
		return fmt.Errorf("clearing devices: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM metadata"); err != nil {
		return fmt.Errorf("clearing metadata: %w", err)
	}
	return nil
}

// SetMetadata writes a key/value pair of auxiliary scan state.
func (r *SQLiteRepository) SetMetadata(ctx context.Context, key, value string) error {
	const query = `INSERT INTO metadata (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query, key, value, r.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("setting metadata %s: %w", key, err)
	}
	return nil
}

// GetMetadata returns the value stored under key, or ErrNotFound.
func (r *SQLiteRepository) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("getting metadata %s: %w", key, err)
	}
	return value, nil
}

// scanRecord scans one device row and decodes its payload.
func (r *SQLiteRepository) scanRecord(scan func(...any) error) (*Record, error) {
	var rec Record
	var payload []byte
	var compressed int
	var lastSeen string

	if err := scan(&rec.IP, &rec.Port, &payload, &compressed, &lastSeen); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning device row: %w", err)
	}

	if compressed != 0 {
		var err error
		payload, err = gunzipBytes(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: decompressing %s: %w", ErrInvalidRecord, rec.IP, err)
		}
	}
	if err := json.Unmarshal(payload, &rec.Device); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrInvalidRecord, rec.IP, err)
	}

	t, err := time.Parse(time.RFC3339, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp %q: %w", ErrInvalidRecord, lastSeen, err)
	}
	rec.LastSeen = t
	return &rec, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
