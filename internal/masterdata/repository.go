package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusledger/campusledger/internal/shared"
)

// RepositoryPort defines data access for reference records.
type RepositoryPort interface {
	CreateSession(ctx context.Context, s AcademicSession) (*AcademicSession, error)
	ListSessions(ctx context.Context, branchID int64) ([]AcademicSession, error)
	GetSession(ctx context.Context, branchID, id int64) (*AcademicSession, error)
	ActiveSession(ctx context.Context, branchID int64) (*AcademicSession, error)

	CreateClass(ctx context.Context, c Class) (*Class, error)
	ListClasses(ctx context.Context, branchID, sessionID int64) ([]Class, error)
	GetClass(ctx context.Context, branchID, id int64) (*Class, error)

	CreateStudent(ctx context.Context, s Student) (*Student, error)
	ListStudents(ctx context.Context, branchID, classID int64) ([]Student, error)
	GetStudent(ctx context.Context, branchID, id int64) (*Student, error)

	CreateFeeGroup(ctx context.Context, g FeeGroup) (*FeeGroup, error)
	GetFeeGroup(ctx context.Context, branchID, id int64) (*FeeGroup, error)
	ListFeeGroups(ctx context.Context, branchID int64) ([]FeeGroup, error)
	ListFeeGroupsForClass(ctx context.Context, branchID, classID int64) ([]FeeGroup, error)

	CreateConcession(ctx context.Context, c ConcessionCategory) (*ConcessionCategory, error)
	ListConcessions(ctx context.Context, branchID int64) ([]ConcessionCategory, error)
	GetConcession(ctx context.Context, branchID, id int64) (*ConcessionCategory, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateSession inserts an academic session.
func (r *Repository) CreateSession(ctx context.Context, s AcademicSession) (*AcademicSession, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO academic_sessions (branch_id, name, start_date, end_date, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at`,
		s.BranchID, s.Name, s.StartDate, s.EndDate, s.IsActive,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns sessions for a branch, newest first.
func (r *Repository) ListSessions(ctx context.Context, branchID int64) ([]AcademicSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, branch_id, name, start_date, end_date, is_active, created_at
		FROM academic_sessions
		WHERE branch_id = $1
		ORDER BY start_date DESC`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []AcademicSession
	for rows.Next() {
		var s AcademicSession
		if err := rows.Scan(&s.ID, &s.BranchID, &s.Name, &s.StartDate, &s.EndDate, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// GetSession fetches one session scoped to the branch.
func (r *Repository) GetSession(ctx context.Context, branchID, id int64) (*AcademicSession, error) {
	var s AcademicSession
	err := r.pool.QueryRow(ctx, `
		SELECT id, branch_id, name, start_date, end_date, is_active, created_at
		FROM academic_sessions
		WHERE branch_id = $1 AND id = $2`, branchID, id,
	).Scan(&s.ID, &s.BranchID, &s.Name, &s.StartDate, &s.EndDate, &s.IsActive, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundError("session")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ActiveSession returns the branch's current academic session.
func (r *Repository) ActiveSession(ctx context.Context, branchID int64) (*AcademicSession, error) {
	var s AcademicSession
	err := r.pool.QueryRow(ctx, `
		SELECT id, branch_id, name, start_date, end_date, is_active, created_at
		FROM academic_sessions
		WHERE branch_id = $1 AND is_active
		ORDER BY start_date DESC
		LIMIT 1`, branchID,
	).Scan(&s.ID, &s.BranchID, &s.Name, &s.StartDate, &s.EndDate, &s.IsActive, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundError("active session")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateClass inserts a class.
func (r *Repository) CreateClass(ctx context.Context, c Class) (*Class, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO classes (branch_id, session_id, name, section, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`,
		c.BranchID, c.SessionID, c.Name, c.Section,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListClasses returns classes for a branch, optionally filtered by session.
func (r *Repository) ListClasses(ctx context.Context, branchID, sessionID int64) ([]Class, error) {
	query := `
		SELECT id, branch_id, session_id, name, section, created_at
		FROM classes
		WHERE branch_id = $1`
	args := []any{branchID}
	if sessionID > 0 {
		query += ` AND session_id = $2`
		args = append(args, sessionID)
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []Class
	for rows.Next() {
		var c Class
		if err := rows.Scan(&c.ID, &c.BranchID, &c.SessionID, &c.Name, &c.Section, &c.CreatedAt); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// GetClass fetches one class scoped to the branch.
func (r *Repository) GetClass(ctx context.Context, branchID, id int64) (*Class, error) {
	var c Class
	err := r.pool.QueryRow(ctx, `
		SELECT id, branch_id, session_id, name, section, created_at
		FROM classes
		WHERE branch_id = $1 AND id = $2`, branchID, id,
	).Scan(&c.ID, &c.BranchID, &c.SessionID, &c.Name, &c.Section, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundError("class")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateStudent inserts a student.
func (r *Repository) CreateStudent(ctx context.Context, s Student) (*Student, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO students (branch_id, class_id, admission_no, name, guardian_name, guardian_phone, concession_id, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0), $8, NOW())
		RETURNING id, created_at`,
		s.BranchID, s.ClassID, s.AdmissionNo, s.Name, s.GuardianName, s.GuardianPhone, s.ConcessionID, s.IsActive,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListStudents returns students for a branch, optionally filtered by class.
func (r *Repository) ListStudents(ctx context.Context, branchID, classID int64) ([]Student, error) {
	query := `
		SELECT id, branch_id, class_id, admission_no, name,
			COALESCE(guardian_name, ''), COALESCE(guardian_phone, ''),
			COALESCE(concession_id, 0), is_active, created_at
		FROM students
		WHERE branch_id = $1`
	args := []any{branchID}
	if classID > 0 {
		query += ` AND class_id = $2`
		args = append(args, classID)
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.BranchID, &s.ClassID, &s.AdmissionNo, &s.Name, &s.GuardianName, &s.GuardianPhone, &s.ConcessionID, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// GetStudent fetches one student scoped to the branch.
func (r *Repository) GetStudent(ctx context.Context, branchID, id int64) (*Student, error) {
	var s Student
	err := r.pool.QueryRow(ctx, `
		SELECT id, branch_id, class_id, admission_no, name,
			COALESCE(guardian_name, ''), COALESCE(guardian_phone, ''),
			COALESCE(concession_id, 0), is_active, created_at
		FROM students
		WHERE branch_id = $1 AND id = $2`, branchID, id,
	).Scan(&s.ID, &s.BranchID, &s.ClassID, &s.AdmissionNo, &s.Name, &s.GuardianName, &s.GuardianPhone, &s.ConcessionID, &s.IsActive, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundError("student")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateFeeGroup inserts a fee group and its class mappings.
func (r *Repository) CreateFeeGroup(ctx context.Context, g FeeGroup) (*FeeGroup, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO fee_groups (branch_id, name, periodicity, amount, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`,
		g.BranchID, g.Name, g.Periodicity, g.Amount,
	).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	for _, classID := range g.ClassIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO fee_group_classes (fee_group_id, class_id) VALUES ($1, $2)`,
			g.ID, classID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetFeeGroup fetches one fee group with its class mappings.
func (r *Repository) GetFeeGroup(ctx context.Context, branchID, id int64) (*FeeGroup, error) {
	var g FeeGroup
	err := r.pool.QueryRow(ctx, `
		SELECT g.id, g.branch_id, g.name, g.periodicity, g.amount, g.created_at,
			COALESCE(array_agg(gc.class_id) FILTER (WHERE gc.class_id IS NOT NULL), '{}')
		FROM fee_groups g
		LEFT JOIN fee_group_classes gc ON gc.fee_group_id = g.id
		WHERE g.branch_id = $1 AND g.id = $2
		GROUP BY g.id`, branchID, id,
	).Scan(&g.ID, &g.BranchID, &g.Name, &g.Periodicity, &g.Amount, &g.CreatedAt, &g.ClassIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundError("fee group")
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListFeeGroups returns all fee groups for a branch.
func (r *Repository) ListFeeGroups(ctx context.Context, branchID int64) ([]FeeGroup, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT g.id, g.branch_id, g.name, g.periodicity, g.amount, g.created_at,
			COALESCE(array_agg(gc.class_id) FILTER (WHERE gc.class_id IS NOT NULL), '{}')
		FROM fee_groups g
		LEFT JOIN fee_group_classes gc ON gc.fee_group_id = g.id
		WHERE g.branch_id = $1
		GROUP BY g.id
		ORDER BY g.name`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []FeeGroup
	for rows.Next() {
		var g FeeGroup
		if err := rows.Scan(&g.ID, &g.BranchID, &g.Name, &g.Periodicity, &g.Amount, &g.CreatedAt, &g.ClassIDs); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ListFeeGroupsForClass returns the fee groups mapped to one class.
func (r *Repository) ListFeeGroupsForClass(ctx context.Context, branchID, classID int64) ([]FeeGroup, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT g.id, g.branch_id, g.name, g.periodicity, g.amount, g.created_at
		FROM fee_groups g
		JOIN fee_group_classes gc ON gc.fee_group_id = g.id
		WHERE g.branch_id = $1 AND gc.class_id = $2
		ORDER BY g.name`, branchID, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []FeeGroup
	for rows.Next() {
		var g FeeGroup
		if err := rows.Scan(&g.ID, &g.BranchID, &g.Name, &g.Periodicity, &g.Amount, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// CreateConcession inserts a concession category with its rules.
func (r *Repository) CreateConcession(ctx context.Context, c ConcessionCategory) (*ConcessionCategory, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO concession_categories (branch_id, name, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at`,
		c.BranchID, c.Name,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	for _, rule := range c.Rules {
		if _, err := tx.Exec(ctx, `
			INSERT INTO concession_rules (concession_id, fee_group_id, percent_discount)
			VALUES ($1, $2, $3)`,
			c.ID, rule.FeeGroupID, rule.PercentDiscount); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConcessions returns concession categories with their rules.
func (r *Repository) ListConcessions(ctx context.Context, branchID int64) ([]ConcessionCategory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, branch_id, name, created_at
		FROM concession_categories
		WHERE branch_id = $1
		ORDER BY name`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []ConcessionCategory
	for rows.Next() {
		var c ConcessionCategory
		if err := rows.Scan(&c.ID, &c.BranchID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range categories {
		rules, err := r.listRules(ctx, categories[i].ID)
		if err != nil {
			return nil, err
		}
		categories[i].Rules = rules
	}
	return categories, nil
}

// GetConcession fetches one concession category with rules.
func (r *Repository) GetConcession(ctx context.Context, branchID, id int64) (*ConcessionCategory, error) {
	var c ConcessionCategory
	err := r.pool.QueryRow(ctx, `
		SELECT id, branch_id, name, created_at
		FROM concession_categories
		WHERE branch_id = $1 AND id = $2`, branchID, id,
	).Scan(&c.ID, &c.BranchID, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundError("concession category")
	}
	if err != nil {
		return nil, err
	}
	rules, err := r.listRules(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Rules = rules
	return &c, nil
}

func (r *Repository) listRules(ctx context.Context, concessionID int64) ([]ConcessionRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT fee_group_id, percent_discount
		FROM concession_rules
		WHERE concession_id = $1
		ORDER BY fee_group_id`, concessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []ConcessionRule
	for rows.Next() {
		var rule ConcessionRule
		if err := rows.Scan(&rule.FeeGroupID, &rule.PercentDiscount); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
