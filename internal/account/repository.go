package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"schooladmin/internal/metrics"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

var (
	ErrParentNotFound      = errors.New("parent not found")
	ErrStudentNotFound     = errors.New("student not found")
	ErrDuplicateAdmission  = errors.New("admission number already exists")
	ErrDuplicateEmployeeID = errors.New("employee id already exists")
)

type Repository interface {
	InsertAccount(ctx context.Context, a *Account) error
	GrantRole(ctx context.Context, userID, roleID int64) error
	InsertStudent(ctx context.Context, s *StudentProfile) error
	InsertTeacher(ctx context.Context, t *TeacherProfile) error
	UpsertGuardianLink(ctx context.Context, link *GuardianLink) error

	ClassIsActive(ctx context.Context, classID int64) (bool, error)
	GetParent(ctx context.Context, id int64) (*Account, error)
	GetStudents(ctx context.Context, ids []int64) ([]StudentProfile, error)

	ListClasses(ctx context.Context) ([]Class, error)
	ListParents(ctx context.Context) ([]Account, error)
	ListStudents(ctx context.Context) ([]StudentProfile, error)
	Stats(ctx context.Context) (*Stats, error)
}

type repository struct {
	db      bun.IDB
	metrics *metrics.Metrics
}

// NewRepository works on a pool or on a transaction.
func NewRepository(db bun.IDB, m *metrics.Metrics) Repository {
	return &repository{
		db:      db,
		metrics: m,
	}
}

func (r *repository) InsertAccount(ctx context.Context, a *Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := r.db.NewInsert().Model(a).Exec(ctx)

	r.metrics.DB().RecordQuery(ctx, "insert", "users", time.Since(start), err)

	return err
}

func (r *repository) GrantRole(ctx context.Context, userID, roleID int64) error {
	start := time.Now()
	_, err := r.db.NewInsert().Model(&RoleGrant{UserID: userID, RoleID: roleID}).Exec(ctx)

	r.metrics.DB().RecordQuery(ctx, "insert", "user_roles", time.Since(start), err)

	return err
}

func (r *repository) InsertStudent(ctx context.Context, s *StudentProfile) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := r.db.NewInsert().Model(s).Exec(ctx)

	r.metrics.DB().RecordQuery(ctx, "insert", "students", time.Since(start), err)

	if isUniqueViolation(err, "admission_number") {
		return ErrDuplicateAdmission
	}
	return err
}

func (r *repository) InsertTeacher(ctx context.Context, t *TeacherProfile) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := r.db.NewInsert().Model(t).Exec(ctx)

	r.metrics.DB().RecordQuery(ctx, "insert", "teachers", time.Since(start), err)

	if isUniqueViolation(err, "employee_id") {
		return ErrDuplicateEmployeeID
	}
	return err
}

// UpsertGuardianLink inserts the link or, when the pair already exists,
// overwrites its relationship and flags.
func (r *repository) UpsertGuardianLink(ctx context.Context, link *GuardianLink) error {
	now := time.Now().UTC()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	link.UpdatedAt = now

	start := time.Now()
	_, err := r.db.NewInsert().
		Model(link).
		On("CONFLICT (parent_id, student_id) DO UPDATE").
		Set("relationship = EXCLUDED.relationship").
		Set("is_primary = EXCLUDED.is_primary").
		Set("is_emergency_contact = EXCLUDED.is_emergency_contact").
		Set("can_pickup = EXCLUDED.can_pickup").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	r.metrics.DB().RecordQuery(ctx, "upsert", "student_parents", time.Since(start), err)

	return err
}

func (r *repository) ClassIsActive(ctx context.Context, classID int64) (bool, error) {
	start := time.Now()
	exists, err := r.db.NewSelect().
		Model((*Class)(nil)).
		Where("id = ?", classID).
		Where("is_active = ?", true).
		Exists(ctx)

	r.metrics.DB().RecordQuery(ctx, "select", "classes", time.Since(start), err)

	return exists, err
}

func (r *repository) GetParent(ctx context.Context, id int64) (*Account, error) {
	start := time.Now()
	parent := new(Account)
	err := r.db.NewSelect().
		Model(parent).
		Where("id = ?", id).
		Where("user_type = ?", KindParent).
		Scan(ctx)

	r.metrics.DB().RecordQuery(ctx, "select", "users", time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParentNotFound
		}
		return nil, err
	}
	return parent, nil
}

// GetStudents returns the profiles for ids, failing with ErrStudentNotFound
// if any of them is missing.
func (r *repository) GetStudents(ctx context.Context, ids []int64) ([]StudentProfile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	start := time.Now()
	var students []StudentProfile
	err := r.db.NewSelect().
		Model(&students).
		Where("id IN (?)", bun.In(ids)).
		Order("id ASC").
		Scan(ctx)

	r.metrics.DB().RecordQuery(ctx, "select", "students", time.Since(start), err)

	if err != nil {
		return nil, err
	}
	if len(students) != len(distinct(ids)) {
		return nil, ErrStudentNotFound
	}
	return students, nil
}

func (r *repository) ListClasses(ctx context.Context) ([]Class, error) {
	start := time.Now()
	var classes []Class
	err := r.db.NewSelect().
		Model(&classes).
		Where("is_active = ?", true).
		Order("name ASC", "section ASC").
		Scan(ctx)

	r.metrics.DB().RecordQuery(ctx, "select", "classes", time.Since(start), err)

	return classes, err
}

func (r *repository) ListParents(ctx context.Context) ([]Account, error) {
	start := time.Now()
	var parents []Account
	err := r.db.NewSelect().
		Model(&parents).
		Where("user_type = ?", KindParent).
		Order("name ASC").
		Scan(ctx)

	r.metrics.DB().RecordQuery(ctx, "select", "users", time.Since(start), err)

	return parents, err
}

func (r *repository) ListStudents(ctx context.Context) ([]StudentProfile, error) {
	start := time.Now()
	var students []StudentProfile
	err := r.db.NewSelect().
		Model(&students).
		Where("status = ?", "active").
		Order("last_name ASC", "first_name ASC").
		Scan(ctx)

	r.metrics.DB().RecordQuery(ctx, "select", "students", time.Since(start), err)

	return students, err
}

func (r *repository) Stats(ctx context.Context) (*Stats, error) {
	var rows []struct {
		UserType Kind `bun:"user_type"`
		Count    int  `bun:"count"`
	}

	start := time.Now()
	err := r.db.NewSelect().
		Model((*Account)(nil)).
		Column("user_type").
		ColumnExpr("count(*) AS count").
		Group("user_type").
		Scan(ctx, &rows)
	r.metrics.DB().RecordQuery(ctx, "select", "users", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, row := range rows {
		switch row.UserType {
		case KindStudent:
			stats.Students = row.Count
		case KindTeacher:
			stats.Teachers = row.Count
		case KindParent:
			stats.Parents = row.Count
		case KindAdmin:
			stats.Admins = row.Count
		}
	}

	start = time.Now()
	stats.GuardianLinks, err = r.db.NewSelect().Model((*GuardianLink)(nil)).Count(ctx)
	r.metrics.DB().RecordQuery(ctx, "select", "student_parents", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	stats.ActiveClasses, err = r.db.NewSelect().Model((*Class)(nil)).Where("is_active = ?", true).Count(ctx)
	r.metrics.DB().RecordQuery(ctx, "select", "classes", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// isUniqueViolation matches postgres 23505 and the sqlite equivalent on column.
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505" && strings.Contains(pgErr.Field('D')+pgErr.Field('n'), column)
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}

func distinct(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
