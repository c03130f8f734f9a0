package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"assay-backoffice/internal/auth"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicatePeriod indicates a rate already exists for the (type, item, week) key.
	ErrDuplicatePeriod = errors.New("storage: rate already exists for period")
	// ErrNotPending indicates a decision was attempted on an already decided rate.
	ErrNotPending = errors.New("storage: rate is not pending")
)

const uniqueViolation = "23505"

const (
	selectRateSQL = `SELECT
        wp.id,
        wp.type,
        wp.item_id,
        COALESCE(e.name, c.name, ''),
        wp.price::text,
        wp.week_start_date,
        wp.week_end_date,
        wp.status,
        wp.submitted_by,
        COALESCE(su.name, ''),
        wp.approved_by,
        au.name,
        wp.approved_at,
        wp.rejection_reason,
        wp.notification_sent,
        wp.created_at
    FROM weekly_prices wp
    LEFT JOIN exchanges e   ON wp.type = 'EXCHANGE'  AND e.id = wp.item_id
    LEFT JOIN commodities c ON wp.type = 'COMMODITY' AND c.id = wp.item_id
    LEFT JOIN users su      ON su.id = wp.submitted_by
    LEFT JOIN users au      ON au.id = wp.approved_by`

	insertRateSQL = `INSERT INTO weekly_prices (
        id,
        type,
        item_id,
        price,
        week_start_date,
        week_end_date,
        status,
        submitted_by,
        notification_sent,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    );`

	decideRateSQL = `UPDATE weekly_prices
    SET status = $2,
        approved_by = $3,
        approved_at = $4,
        rejection_reason = $5
    WHERE id = $1
      AND status = 'PENDING';`

	rateExistsSQL = `SELECT EXISTS(SELECT 1 FROM weekly_prices WHERE id = $1);`

	rateStatusSQL = `SELECT status FROM weekly_prices WHERE id = $1;`

	markNotificationSentSQL = `UPDATE weekly_prices SET notification_sent = TRUE WHERE id = $1;`

	countPendingSQL = `SELECT COUNT(*) FROM weekly_prices WHERE status = 'PENDING';`

	selectUserSQL = `SELECT id, name, email, phone, role, is_active FROM users`
)

// RateStore defines persistence for weekly rate records.
type RateStore interface {
	CreateRate(ctx context.Context, rec RateRecord) (RateRecord, error)
	FindRateForPeriod(ctx context.Context, typ RateType, itemID string, weekStart time.Time) (RateRecord, error)
	GetRate(ctx context.Context, id string) (RateRecord, error)
	RateStatus(ctx context.Context, id string) (RateStatus, error)
	ListRates(ctx context.Context, filter RateFilter) ([]RateRecord, error)
	DecideRate(ctx context.Context, id string, decision Decision) (RateRecord, error)
	MarkNotificationSent(ctx context.Context, id string) error
	CountPending(ctx context.Context) (int64, error)
}

// UserStore defines read access to back-office users.
type UserStore interface {
	GetUser(ctx context.Context, id string) (User, error)
	ListUsersByRoles(ctx context.Context, roles []auth.Role, activeOnly bool) ([]User, error)
}

// Store is the PostgreSQL implementation of RateStore and UserStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// CreateRate inserts a new record and returns it with relations resolved.
func (s *Store) CreateRate(ctx context.Context, rec RateRecord) (RateRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return RateRecord{}, err
	}

	_, execErr := pool.Exec(ctx, insertRateSQL,
		rec.ID,
		string(rec.Type),
		rec.ItemID,
		rec.Price.String(),
		rec.WeekStartDate,
		rec.WeekEndDate,
		string(rec.Status),
		rec.SubmittedBy,
		rec.NotificationSent,
		rec.CreatedAt,
	)
	if execErr != nil {
		var pgErr *pgconn.PgError
		if errors.As(execErr, &pgErr) && pgErr.Code == uniqueViolation {
			return RateRecord{}, ErrDuplicatePeriod
		}
		return RateRecord{}, fmt.Errorf("insert rate: %w", execErr)
	}
	return s.GetRate(ctx, rec.ID)
}

// FindRateForPeriod returns the record for the (type, item, week) key.
func (s *Store) FindRateForPeriod(ctx context.Context, typ RateType, itemID string, weekStart time.Time) (RateRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return RateRecord{}, err
	}
	query := selectRateSQL + ` WHERE wp.type = $1 AND wp.item_id = $2 AND wp.week_start_date = $3;`
	rec, err := scanRate(pool.QueryRow(ctx, query, string(typ), itemID, weekStart))
	if err != nil {
		return RateRecord{}, wrapNoRows(err, "find rate for period")
	}
	return rec, nil
}

// GetRate loads one record by id.
func (s *Store) GetRate(ctx context.Context, id string) (RateRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return RateRecord{}, err
	}
	rec, err := scanRate(pool.QueryRow(ctx, selectRateSQL+` WHERE wp.id = $1;`, id))
	if err != nil {
		return RateRecord{}, wrapNoRows(err, "get rate")
	}
	return rec, nil
}

// RateStatus reads only the status column; the escalation timer uses it at fire time.
func (s *Store) RateStatus(ctx context.Context, id string) (RateStatus, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", err
	}
	var status string
	if err := pool.QueryRow(ctx, rateStatusSQL, id).Scan(&status); err != nil {
		return "", wrapNoRows(err, "rate status")
	}
	return RateStatus(status), nil
}

// ListRates lists records matching filter, newest week first.
func (s *Store) ListRates(ctx context.Context, filter RateFilter) ([]RateRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var (
		conds []string
		args  []any
	)
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("wp.type = $%d", len(args)))
	}
	if filter.ItemID != "" {
		args = append(args, filter.ItemID)
		conds = append(conds, fmt.Sprintf("wp.item_id = $%d", len(args)))
	}
	if filter.WeekStart != nil {
		args = append(args, *filter.WeekStart)
		conds = append(conds, fmt.Sprintf("wp.week_start_date = $%d", len(args)))
	}
	if filter.ApprovedOnly {
		conds = append(conds, "wp.status = 'APPROVED'")
	}

	query := selectRateSQL
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY wp.week_start_date DESC, wp.created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list rates: %w", queryErr)
	}
	defer rows.Close()

	records := make([]RateRecord, 0)
	for rows.Next() {
		rec, scanErr := scanRate(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// DecideRate moves a PENDING record to the decision status in a single conditional
// update, so two concurrent decisions cannot both succeed.
func (s *Store) DecideRate(ctx context.Context, id string, decision Decision) (RateRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return RateRecord{}, err
	}

	var reason any
	if decision.Reason != nil {
		reason = *decision.Reason
	}

	tag, execErr := pool.Exec(ctx, decideRateSQL, id, string(decision.Status), decision.DecidedBy, decision.DecidedAt, reason)
	if execErr != nil {
		return RateRecord{}, fmt.Errorf("decide rate: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := pool.QueryRow(ctx, rateExistsSQL, id).Scan(&exists); err != nil {
			return RateRecord{}, fmt.Errorf("check rate exists: %w", err)
		}
		if !exists {
			return RateRecord{}, ErrNotFound
		}
		return RateRecord{}, ErrNotPending
	}
	return s.GetRate(ctx, id)
}

// MarkNotificationSent flags that the submission notification went out.
func (s *Store) MarkNotificationSent(ctx context.Context, id string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, markNotificationSentSQL, id)
	if execErr != nil {
		return fmt.Errorf("mark notification sent: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPending counts records awaiting a decision.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countPendingSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count pending: %w", scanErr)
	}
	return count, nil
}

// GetUser loads one user by id.
func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	pool, err := s.getPool()
	if err != nil {
		return User{}, err
	}
	user, err := scanUser(pool.QueryRow(ctx, selectUserSQL+` WHERE id = $1;`, id))
	if err != nil {
		return User{}, wrapNoRows(err, "get user")
	}
	return user, nil
}

// ListUsersByRoles lists users holding any of roles.
func (s *Store) ListUsersByRoles(ctx context.Context, roles []auth.Role, activeOnly bool) ([]User, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return []User{}, nil
	}

	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}

	query := selectUserSQL + ` WHERE role = ANY($1) AND ($2 = FALSE OR is_active) ORDER BY name;`
	rows, queryErr := pool.Query(ctx, query, names, activeOnly)
	if queryErr != nil {
		return nil, fmt.Errorf("list users by roles: %w", queryErr)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		users = append(users, user)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return users, nil
}

func wrapNoRows(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanRate(row pgx.Row) (RateRecord, error) {
	var (
		rec      RateRecord
		typ      string
		priceStr string
		status   string
	)

	if err := row.Scan(
		&rec.ID,
		&typ,
		&rec.ItemID,
		&rec.ItemName,
		&priceStr,
		&rec.WeekStartDate,
		&rec.WeekEndDate,
		&status,
		&rec.SubmittedBy,
		&rec.SubmittedByName,
		&rec.ApprovedBy,
		&rec.ApprovedByName,
		&rec.ApprovedAt,
		&rec.RejectionReason,
		&rec.NotificationSent,
		&rec.CreatedAt,
	); err != nil {
		return RateRecord{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return RateRecord{}, fmt.Errorf("parse price: %w", err)
	}
	rec.Price = price
	rec.Type = RateType(typ)
	rec.Status = RateStatus(status)
	return rec, nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		user User
		role string
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &role, &user.IsActive); err != nil {
		return User{}, err
	}
	user.Role = auth.Role(role)
	return user, nil
}

var (
	_ RateStore = (*Store)(nil)
	_ UserStore = (*Store)(nil)
)
