package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, memory, mock)
// and enables unit testing without database dependencies.
//
// Implementations must be safe for concurrent use. They do not need to
// make multi-step operations atomic; the Registry serialises those.
type Repository interface {
	// GetByName retrieves a device by name.
	// Returns ErrNotFound if the device does not exist.
	GetByName(ctx context.Context, name string) (*Device, error)

	// GetByMAC retrieves the device holding a MAC.
	// Returns ErrNotFound if no device holds it.
	GetByMAC(ctx context.Context, mac string) (*Device, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDuplicateKey if the name or MAC is already present.
	Create(ctx context.Context, device *Device) error

	// Update overwrites the mutable fields (passphrase, ip, port, active) of a device.
	// Returns ErrNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device by name.
	// Returns ErrNotFound if the device does not exist.
	Delete(ctx context.Context, name string) error
}

// deviceRow is the registration table row.
type deviceRow struct {
	Name       string         `db:"deviceName"`
	Passphrase string         `db:"passphrase"`
	MAC        string         `db:"mac"`
	IP         sql.NullString `db:"ip"`
	Port       sql.NullInt64  `db:"port"`
	Active     bool           `db:"active"`
	CreatedAt  string         `db:"created_at"`
	UpdatedAt  string         `db:"updated_at"`
}

func (row deviceRow) toDevice() *Device {
	d := &Device{
		Name:       row.Name,
		Passphrase: row.Passphrase,
		MAC:        row.MAC,
		IP:         row.IP.String,
		Port:       int(row.Port.Int64),
		Active:     row.Active,
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, row.CreatedAt) //nolint:errcheck // Format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, row.UpdatedAt) //nolint:errcheck // Format is controlled
	return d
}

const selectColumns = `SELECT deviceName, passphrase, mac, ip, port, active, created_at, updated_at FROM registration`

// SQLiteRepository implements Repository using the registration table.
type SQLiteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open connection with migrations applied.
func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByName retrieves a device by name.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*Device, error) {
	return r.getOne(ctx, selectColumns+" WHERE deviceName = ?", name)
}

// GetByMAC retrieves the device holding a MAC.
func (r *SQLiteRepository) GetByMAC(ctx context.Context, mac string) (*Device, error) {
	return r.getOne(ctx, selectColumns+" WHERE mac = ?", mac)
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, arg string) (*Device, error) {
	var row deviceRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return row.toDevice(), nil
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	var rows []deviceRow
	if err := r.db.SelectContext(ctx, &rows, selectColumns+" ORDER BY deviceName"); err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}

	devices := make([]Device, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, *row.toDevice())
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO registration (deviceName, passphrase, mac, ip, port, active, created_at, updated_at)
		VALUES (:deviceName, :passphrase, :mac, :ip, :port, :active, :created_at, :updated_at)`,
		toRow(device),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, device.Name)
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a device.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	device.UpdatedAt = time.Now().UTC()

	result, err := r.db.NamedExecContext(ctx, `
		UPDATE registration
		SET passphrase = :passphrase, ip = :ip, port = :port, active = :active, updated_at = :updated_at
		WHERE deviceName = :deviceName`,
		toRow(device),
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireAffected(result)
}

// Delete removes a device by name.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM registration WHERE deviceName = ?", name)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireAffected(result)
}

func toRow(d *Device) deviceRow {
	return deviceRow{
		Name:       d.Name,
		Passphrase: d.Passphrase,
		MAC:        d.MAC,
		IP:         sql.NullString{String: d.IP, Valid: d.IP != ""},
		Port:       sql.NullInt64{Int64: int64(d.Port), Valid: d.Port > 0},
		Active:     d.Active,
		CreatedAt:  d.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  d.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
