package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/appointment-desk/internal/persistence"
)

const appointmentColumns = `id, user_id, user_name, user_email, date, requested_time, arrival_time, finished_time,
	description, image_ids, status, revision, created_at, updated_at`

// AppointmentRepository implements persistence.AppointmentRepository using SQLite
type AppointmentRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewAppointmentRepository creates a new SQLite appointment repository
func NewAppointmentRepository(pool *ConnectionPool) *AppointmentRepository {
	return &AppointmentRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// CreateAppointment inserts a new appointment record
func (r *AppointmentRepository) CreateAppointment(ctx context.Context, appointment persistence.Appointment) error {
	if appointment.ID == "" {
		return fmt.Errorf("%w: appointment id is required", persistence.ErrConstraintViolation)
	}

	imageIDs, err := encodeImageIDs(appointment.ImageIDs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.helper.Exec(ctx, query,
			appointment.ID,
			appointment.UserID,
			nullString(appointment.UserName),
			appointment.UserEmail,
			appointment.Date,
			appointment.RequestedTime,
			nullString(appointment.ArrivalTime),
			nullString(appointment.FinishedTime),
			appointment.Description,
			imageIDs,
			appointment.Status,
			appointment.Revision,
			formatTimestamp(appointment.CreatedAt),
			formatTimestamp(appointment.UpdatedAt),
		)
		return r.mapper.MapError(err)
	})
}

// GetAppointment retrieves an appointment by ID
func (r *AppointmentRepository) GetAppointment(ctx context.Context, id string) (persistence.Appointment, error) {
	if id == "" {
		return persistence.Appointment{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	appointment, err := scanAppointment(row)
	if err != nil {
		return persistence.Appointment{}, r.mapper.MapError(err)
	}
	return appointment, nil
}

const updateAppointmentQuery = `
	UPDATE appointments
	SET user_name = ?, user_email = ?, date = ?, requested_time = ?, arrival_time = ?, finished_time = ?,
		description = ?, image_ids = ?, status = ?, revision = revision + 1, updated_at = ?
	WHERE id = ? AND revision = ?
`

// overlapQuery finds an approved appointment on the date, other than the one being
// approved, whose window intersects [arrival, finished). Times are zero-padded HH:MM.
const overlapQuery = `
	SELECT id, arrival_time, finished_time FROM appointments
	WHERE date = ? AND status = ? AND id <> ?
		AND arrival_time IS NOT NULL AND finished_time IS NOT NULL
		AND arrival_time < ? AND finished_time > ?
	ORDER BY arrival_time
	LIMIT 1
`

func updateAppointmentArgs(appointment persistence.Appointment, imageIDs string, expectedRevision int) []any {
	return []any{
		nullString(appointment.UserName),
		appointment.UserEmail,
		appointment.Date,
		appointment.RequestedTime,
		nullString(appointment.ArrivalTime),
		nullString(appointment.FinishedTime),
		appointment.Description,
		imageIDs,
		appointment.Status,
		formatTimestamp(appointment.UpdatedAt),
		appointment.ID,
		expectedRevision,
	}
}

// UpdateAppointment replaces the mutable fields of an appointment when the
// stored revision still equals expectedRevision, and bumps the revision.
func (r *AppointmentRepository) UpdateAppointment(ctx context.Context, appointment persistence.Appointment, expectedRevision int) (persistence.Appointment, error) {
	if appointment.ID == "" {
		return persistence.Appointment{}, persistence.ErrNotFound
	}

	imageIDs, err := encodeImageIDs(appointment.ImageIDs)
	if err != nil {
		return persistence.Appointment{}, err
	}

	var rowsAffected int64
	err = r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, updateAppointmentQuery, updateAppointmentArgs(appointment, imageIDs, expectedRevision)...)
		if err != nil {
			return r.mapper.MapError(err)
		}
		rowsAffected, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return persistence.Appointment{}, err
	}

	if rowsAffected == 0 {
		if _, err := r.GetAppointment(ctx, appointment.ID); err != nil {
			return persistence.Appointment{}, err
		}
		return persistence.Appointment{}, persistence.ErrStaleRevision
	}

	return r.GetAppointment(ctx, appointment.ID)
}

// ApproveAppointment writes the approval and checks for overlapping approved windows in one
// transaction. The UPDATE runs first so the transaction holds the database write lock
// before the check reads; approvals from other connections, including other processes
// sharing the file, wait on busy_timeout until it commits or rolls back.
func (r *AppointmentRepository) ApproveAppointment(ctx context.Context, appointment persistence.Appointment, expectedRevision int) (persistence.Appointment, error) {
	if appointment.ID == "" {
		return persistence.Appointment{}, persistence.ErrNotFound
	}
	if appointment.ArrivalTime == nil || appointment.FinishedTime == nil {
		return persistence.Appointment{}, fmt.Errorf("%w: approval requires arrival and finished time", persistence.ErrConstraintViolation)
	}

	imageIDs, err := encodeImageIDs(appointment.ImageIDs)
	if err != nil {
		return persistence.Appointment{}, err
	}

	err = r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			result, err := r.helper.ExecTx(ctx, tx, updateAppointmentQuery, updateAppointmentArgs(appointment, imageIDs, expectedRevision)...)
			if err != nil {
				return r.mapper.MapError(err)
			}
			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if rowsAffected == 0 {
				var exists int
				if err := r.helper.QueryRowTx(ctx, tx, `SELECT 1 FROM appointments WHERE id = ?`, appointment.ID).Scan(&exists); err != nil {
					return r.mapper.MapError(err)
				}
				return persistence.ErrStaleRevision
			}

			var conflict persistence.WindowConflictError
			err = r.helper.QueryRowTx(ctx, tx, overlapQuery,
				appointment.Date,
				persistence.StatusApproved,
				appointment.ID,
				*appointment.FinishedTime,
				*appointment.ArrivalTime,
			).Scan(&conflict.AppointmentID, &conflict.ArrivalTime, &conflict.FinishedTime)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return nil
			case err != nil:
				return r.mapper.MapError(err)
			}
			return &conflict
		})
	})
	if err != nil {
		return persistence.Appointment{}, err
	}

	return r.GetAppointment(ctx, appointment.ID)
}

// DeleteAppointment removes an appointment by ID
func (r *AppointmentRepository) DeleteAppointment(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	return r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, "DELETE FROM appointments WHERE id = ?", id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

// ListAppointments lists appointments matching the filter, newest first
func (r *AppointmentRepository) ListAppointments(ctx context.Context, filter persistence.AppointmentFilter) ([]persistence.Appointment, error) {
	where, args := buildAppointmentWhere(filter)
	query := `SELECT ` + appointmentColumns + ` FROM appointments` + where + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var appointments []persistence.Appointment
	for rows.Next() {
		appointment, err := scanAppointment(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		appointments = append(appointments, appointment)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return appointments, nil
}

// CountAppointments counts appointments matching the filter. Limit is ignored.
func (r *AppointmentRepository) CountAppointments(ctx context.Context, filter persistence.AppointmentFilter) (int, error) {
	where, args := buildAppointmentWhere(filter)

	var count int
	if err := r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&count); err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

func buildAppointmentWhere(filter persistence.AppointmentFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Date != "" {
		conditions = append(conditions, "date = ?")
		args = append(args, filter.Date)
	}
	if filter.DateFrom != "" {
		conditions = append(conditions, "date >= ?")
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		conditions = append(conditions, "date < ?")
		args = append(args, filter.DateTo)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (persistence.Appointment, error) {
	var appointment persistence.Appointment
	var userName, arrivalTime, finishedTime sql.NullString
	var imageIDs, createdAt, updatedAt string

	err := row.Scan(
		&appointment.ID,
		&appointment.UserID,
		&userName,
		&appointment.UserEmail,
		&appointment.Date,
		&appointment.RequestedTime,
		&arrivalTime,
		&finishedTime,
		&appointment.Description,
		&imageIDs,
		&appointment.Status,
		&appointment.Revision,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Appointment{}, err
	}

	appointment.UserName = stringPtr(userName)
	appointment.ArrivalTime = stringPtr(arrivalTime)
	appointment.FinishedTime = stringPtr(finishedTime)

	if imageIDs != "" {
		if err := json.Unmarshal([]byte(imageIDs), &appointment.ImageIDs); err != nil {
			return persistence.Appointment{}, fmt.Errorf("failed to decode image_ids: %w", err)
		}
	}
	if appointment.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Appointment{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if appointment.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.Appointment{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return appointment, nil
}

func encodeImageIDs(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("failed to encode image_ids: %w", err)
	}
	return string(data), nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

// Timestamps are stored with fixed-width fractional seconds so that text
// ordering matches chronological ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
