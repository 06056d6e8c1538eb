// Package history journals completed and failed runs to a local SQLite
// database so operators can audit what was written to which stick.
package history

import (
	"database/sql"
	"log/slog"

	"github.com/zikani/smartboot/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for the run journal.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (and if needed creates) the journal database.
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("history_db_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("history_db_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open history database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("history_db_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new run record and fills in its ID.
func (r *Repository) Create(run *Run) error {
	slog.Info("history_create_run", "device", run.DeviceName, "image", run.ImagePath)

	query := `
		INSERT INTO runs (device_name, device_label, image_path, image_type, filesystem, scheme, boot_type, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		run.DeviceName, run.DeviceLabel, run.ImagePath, run.ImageType,
		run.Filesystem, run.Scheme, run.BootType, run.Status, run.ErrorMessage)
	if err != nil {
		slog.Error("history_insert_failed", "device", run.DeviceName, "error", err)
		return errors.Wrap(err, "failed to insert run")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get last insert id")
	}
	run.ID = id
	return nil
}

// UpdateStatus records the terminal outcome of a run.
func (r *Repository) UpdateStatus(id int64, status, errorMessage string) error {
	slog.Info("history_update_status", "run_id", id, "status", status)

	query := `UPDATE runs SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	result, err := r.db.Exec(query, status, errorMessage, id)
	if err != nil {
		slog.Error("history_status_update_failed", "run_id", id, "error", err)
		return errors.Wrap(err, "failed to update status")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.New("run not found"), "id=%d", id)
	}
	return nil
}

// Get retrieves one run by ID, nil when not found.
func (r *Repository) Get(id int64) (*Run, error) {
	query := `
		SELECT id, device_name, device_label, image_path, image_type, filesystem, scheme, boot_type, status, error_message, created_at, updated_at
		FROM runs WHERE id = ?
	`
	run, err := scanRun(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query run")
	}
	return run, nil
}

// List retrieves the most recent runs, newest first. limit <= 0 means
// no limit.
func (r *Repository) List(limit int) ([]*Run, error) {
	query := `
		SELECT id, device_name, device_label, image_path, image_type, filesystem, scheme, boot_type, status, error_message, created_at, updated_at
		FROM runs ORDER BY created_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		slog.Error("history_list_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return runs, nil
}

// Prune deletes journal rows older than the newest keep entries.
func (r *Repository) Prune(keep int) (int64, error) {
	query := `DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY created_at DESC, id DESC LIMIT ?)`
	result, err := r.db.Exec(query, keep)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune runs")
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	slog.Info("history_pruned", "deleted", deleted, "kept", keep)
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var label, errorMessage sql.NullString
	err := row.Scan(
		&run.ID, &run.DeviceName, &label, &run.ImagePath, &run.ImageType,
		&run.Filesystem, &run.Scheme, &run.BootType, &run.Status,
		&errorMessage, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	run.DeviceLabel = label.String
	run.ErrorMessage = errorMessage.String
	return &run, nil
}
