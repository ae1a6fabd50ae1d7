package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-sql/civil"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jbweber/homelab/policyd/internal/dialect"
	"github.com/jbweber/homelab/policyd/internal/domain"
)

const policyColumns = "id, policy_number, type, coverage_amount, premium, start_date, end_date"

// PolicyRepository extends the generic Repository with policy-specific operations
type PolicyRepository interface {
	Repository[domain.Policy, int64]

	// Count returns the number of stored policies
	Count(ctx context.Context) (int64, error)

	// Close releases the prepared statements held by the repository
	Close() error
}

// policyRepositoryImpl implements PolicyRepository
type policyRepositoryImpl struct {
	db      *sql.DB
	dialect dialect.Dialect
	stmts   *PreparedStatementCache
}

// NewPolicyRepository creates a new policy repository for the given dialect
func NewPolicyRepository(db *sql.DB, d dialect.Dialect) PolicyRepository {
	return &policyRepositoryImpl{
		db:      db,
		dialect: d,
		stmts:   NewPreparedStatementCache(db),
	}
}

func (r *policyRepositoryImpl) stmt(ctx context.Context, query string) (*sql.Stmt, error) {
	return r.stmts.Get(ctx, r.dialect.Rebind(query))
}

// Save creates or updates a policy
func (r *policyRepositoryImpl) Save(ctx context.Context, entity domain.Policy) (domain.Policy, error) {
	if entity.IsNew() {
		return r.insert(ctx, entity)
	}
	return r.update(ctx, entity)
}

func (r *policyRepositoryImpl) insert(ctx context.Context, p domain.Policy) (domain.Policy, error) {
	stmt, err := r.stmt(ctx, `
		INSERT INTO policies (policy_number, type, coverage_amount, premium, start_date, end_date)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+policyColumns)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("failed to prepare policy insert: %w", err)
	}

	saved, err := scanPolicy(stmt.QueryRowContext(ctx,
		p.PolicyNumber, p.Type, p.CoverageAmount, p.Premium, p.StartDate.String(), p.EndDate.String()))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Policy{}, fmt.Errorf("policy %s: %w", p.PolicyNumber, ErrDuplicate)
		}
		return domain.Policy{}, fmt.Errorf("failed to create policy: %w", err)
	}
	return saved, nil
}

func (r *policyRepositoryImpl) update(ctx context.Context, p domain.Policy) (domain.Policy, error) {
	stmt, err := r.stmt(ctx, `
		UPDATE policies
		SET policy_number = ?, type = ?, coverage_amount = ?, premium = ?,
		    start_date = ?, end_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING `+policyColumns)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("failed to prepare policy update: %w", err)
	}

	saved, err := scanPolicy(stmt.QueryRowContext(ctx,
		p.PolicyNumber, p.Type, p.CoverageAmount, p.Premium, p.StartDate.String(), p.EndDate.String(), p.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Policy{}, fmt.Errorf("policy with ID %d: %w", p.ID, ErrNotFound)
		}
		if isUniqueViolation(err) {
			return domain.Policy{}, fmt.Errorf("policy %s: %w", p.PolicyNumber, ErrDuplicate)
		}
		return domain.Policy{}, fmt.Errorf("failed to update policy %d: %w", p.ID, err)
	}
	return saved, nil
}

// FindByID retrieves a policy by its ID
func (r *policyRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.Policy, error) {
	stmt, err := r.stmt(ctx, "SELECT "+policyColumns+" FROM policies WHERE id = ?")
	if err != nil {
		return domain.Policy{}, fmt.Errorf("failed to prepare policy lookup: %w", err)
	}

	p, err := scanPolicy(stmt.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Policy{}, fmt.Errorf("policy with ID %d: %w", id, ErrNotFound)
		}
		return domain.Policy{}, fmt.Errorf("failed to find policy: %w", err)
	}
	return p, nil
}

// FindAll retrieves all policies ordered by ID
func (r *policyRepositoryImpl) FindAll(ctx context.Context) ([]domain.Policy, error) {
	stmt, err := r.stmt(ctx, "SELECT "+policyColumns+" FROM policies ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy listing: %w", err)
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list all policies: %w", err)
	}
	defer rows.Close()

	policies := []domain.Policy{}
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate policies: %w", err)
	}
	return policies, nil
}

// Delete removes the given policy
func (r *policyRepositoryImpl) Delete(ctx context.Context, entity domain.Policy) error {
	if entity.IsNew() {
		return fmt.Errorf("cannot delete unsaved policy: %w", ErrInvalidEntity)
	}
	return r.DeleteByID(ctx, entity.ID)
}

// DeleteByID deletes a policy by its ID
func (r *policyRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	stmt, err := r.stmt(ctx, "DELETE FROM policies WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare policy delete: %w", err)
	}

	res, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("policy with ID %d: %w", id, ErrNotFound)
	}
	return nil
}

// ExistsByID checks if a policy exists by its ID
func (r *policyRepositoryImpl) ExistsByID(ctx context.Context, id int64) (bool, error) {
	stmt, err := r.stmt(ctx, "SELECT COUNT(*) FROM policies WHERE id = ?")
	if err != nil {
		return false, fmt.Errorf("failed to prepare policy existence check: %w", err)
	}

	var count int
	if err := stmt.QueryRowContext(ctx, id).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check policy existence: %w", err)
	}
	return count > 0, nil
}

// Count returns the number of stored policies
func (r *policyRepositoryImpl) Count(ctx context.Context) (int64, error) {
	stmt, err := r.stmt(ctx, "SELECT COUNT(*) FROM policies")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare policy count: %w", err)
	}

	var count int64
	if err := stmt.QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count policies: %w", err)
	}
	return count, nil
}

// Close releases cached prepared statements
func (r *policyRepositoryImpl) Close() error {
	return r.stmts.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (domain.Policy, error) {
	var (
		p          domain.Policy
		start, end sqlDate
	)
	if err := row.Scan(&p.ID, &p.PolicyNumber, &p.Type, &p.CoverageAmount, &p.Premium, &start, &end); err != nil {
		return domain.Policy{}, err
	}
	p.StartDate = civil.Date(start)
	p.EndDate = civil.Date(end)
	return p, nil
}

// sqlDate scans DATE columns (Postgres) and YYYY-MM-DD text columns (SQLite)
type sqlDate civil.Date

func (d *sqlDate) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = sqlDate(civil.DateOf(v))
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	case nil:
		return errors.New("unexpected NULL date")
	default:
		return fmt.Errorf("cannot scan %T into date", src)
	}
}

func (d *sqlDate) parse(s string) error {
	// SQLite may hand back a full timestamp when the value was written as one
	if len(s) > len("2006-01-02") {
		s = s[:len("2006-01-02")]
	}
	parsed, err := civil.ParseDate(s)
	if err != nil {
		return err
	}
	*d = sqlDate(parsed)
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
