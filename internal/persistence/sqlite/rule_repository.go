package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/appointment-desk/internal/persistence"
)

const ruleColumns = `id, type, value, reason, start_time, end_time, is_closed, created_at, updated_at`

// RuleRepository implements persistence.AvailabilityRuleRepository using SQLite
type RuleRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewRuleRepository creates a new SQLite availability rule repository
func NewRuleRepository(pool *ConnectionPool) *RuleRepository {
	return &RuleRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// CreateRule inserts a rule. A second rule with the same type and value fails
// with persistence.ErrDuplicate.
func (r *RuleRepository) CreateRule(ctx context.Context, rule persistence.AvailabilityRule) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", persistence.ErrConstraintViolation)
	}

	query := `INSERT INTO availability_rules (` + ruleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.helper.Exec(ctx, query,
			rule.ID,
			rule.Type,
			rule.Value,
			rule.Reason,
			nullString(rule.StartTime),
			nullString(rule.EndTime),
			rule.IsClosed,
			formatTimestamp(rule.CreatedAt),
			formatTimestamp(rule.UpdatedAt),
		)
		return r.mapper.MapError(err)
	})
}

// GetRule retrieves a rule by ID
func (r *RuleRepository) GetRule(ctx context.Context, id string) (persistence.AvailabilityRule, error) {
	if id == "" {
		return persistence.AvailabilityRule{}, persistence.ErrNotFound
	}

	rule, err := scanRule(r.helper.QueryRow(ctx, `SELECT `+ruleColumns+` FROM availability_rules WHERE id = ?`, id))
	if err != nil {
		return persistence.AvailabilityRule{}, r.mapper.MapError(err)
	}
	return rule, nil
}

// UpdateRule replaces every field of an existing rule except its creation time
func (r *RuleRepository) UpdateRule(ctx context.Context, rule persistence.AvailabilityRule) error {
	if rule.ID == "" {
		return persistence.ErrNotFound
	}

	query := `
		UPDATE availability_rules
		SET type = ?, value = ?, reason = ?, start_time = ?, end_time = ?, is_closed = ?, updated_at = ?
		WHERE id = ?
	`

	return r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, query,
			rule.Type,
			rule.Value,
			rule.Reason,
			nullString(rule.StartTime),
			nullString(rule.EndTime),
			rule.IsClosed,
			formatTimestamp(rule.UpdatedAt),
			rule.ID,
		)
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

// DeleteRule removes a rule by ID
func (r *RuleRepository) DeleteRule(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	return r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, "DELETE FROM availability_rules WHERE id = ?", id)
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

// ListRules lists every rule, oldest first
func (r *RuleRepository) ListRules(ctx context.Context) ([]persistence.AvailabilityRule, error) {
	rows, err := r.helper.Query(ctx, `SELECT `+ruleColumns+` FROM availability_rules ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var rules []persistence.AvailabilityRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return rules, nil
}

func scanRule(row rowScanner) (persistence.AvailabilityRule, error) {
	var rule persistence.AvailabilityRule
	var startTime, endTime sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&rule.ID,
		&rule.Type,
		&rule.Value,
		&rule.Reason,
		&startTime,
		&endTime,
		&rule.IsClosed,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.AvailabilityRule{}, err
	}

	rule.StartTime = stringPtr(startTime)
	rule.EndTime = stringPtr(endTime)
	if rule.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.AvailabilityRule{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if rule.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.AvailabilityRule{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return rule, nil
}
