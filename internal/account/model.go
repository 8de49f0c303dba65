package account

import (
	"time"

	"github.com/uptrace/bun"
)

type Kind string

const (
	KindStudent Kind = "student"
	KindTeacher Kind = "teacher"
	KindParent  Kind = "parent"
	KindAdmin   Kind = "admin"
)

// Fixed role ids, seeded by Migrate.
const (
	RoleAdmin   int64 = 1
	RoleTeacher int64 = 2
	RoleStudent int64 = 3
	RoleParent  int64 = 4
)

func (k Kind) RoleID() int64 {
	switch k {
	case KindTeacher:
		return RoleTeacher
	case KindStudent:
		return RoleStudent
	case KindParent:
		return RoleParent
	default:
		return RoleAdmin
	}
}

// ParseKind accepts the kinds that can be provisioned from the admin panel.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindStudent, KindTeacher, KindParent:
		return k, true
	}
	return "", false
}

// Account is a login identity inside one tenant store.
type Account struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID          int64      `bun:"id,pk,autoincrement" json:"id"`
	Name        string     `bun:"name,notnull" json:"name"`
	Email       *string    `bun:"email" json:"email,omitempty"`
	Phone       *string    `bun:"phone" json:"phone,omitempty"`
	Password    string     `bun:"password,notnull" json:"-"` // bcrypt hash
	UserType    Kind       `bun:"user_type,notnull" json:"userType"`
	Gender      string     `bun:"gender" json:"gender,omitempty"`
	DateOfBirth *time.Time `bun:"date_of_birth" json:"dateOfBirth,omitempty"`
	Address     *string    `bun:"address" json:"address,omitempty"`
	BloodGroup  *string    `bun:"blood_group" json:"bloodGroup,omitempty"`
	Religion    *string    `bun:"religion" json:"religion,omitempty"`
	IsActive    bool       `bun:"is_active,notnull" json:"isActive"`
	CreatedAt   time.Time  `bun:"created_at,notnull" json:"createdAt"`
}

type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID   int64  `bun:"id,pk" json:"id"`
	Name string `bun:"name,unique,notnull" json:"name"`
}

type RoleGrant struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`

	UserID int64 `bun:"user_id,pk"`
	RoleID int64 `bun:"role_id,pk"`
}

type Class struct {
	bun.BaseModel `bun:"table:classes,alias:c"`

	ID       int64  `bun:"id,pk,autoincrement" json:"id"`
	Name     string `bun:"name,notnull" json:"name"`
	Section  string `bun:"section" json:"section,omitempty"`
	IsActive bool   `bun:"is_active,notnull" json:"isActive"`
}

type StudentProfile struct {
	bun.BaseModel `bun:"table:students,alias:s"`

	ID              int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID          int64     `bun:"user_id,notnull,unique" json:"userId"`
	AdmissionNumber string    `bun:"admission_number,notnull,unique" json:"admissionNumber"`
	FirstName       string    `bun:"first_name,notnull" json:"firstName"`
	MiddleName      *string   `bun:"middle_name" json:"middleName,omitempty"`
	LastName        string    `bun:"last_name,notnull" json:"lastName"`
	DateOfBirth     time.Time `bun:"date_of_birth,notnull" json:"dateOfBirth"`
	ClassID         int64     `bun:"class_id,notnull" json:"classId"`
	AdmissionDate   time.Time `bun:"admission_date,notnull" json:"admissionDate"`
	BloodGroup      *string   `bun:"blood_group" json:"bloodGroup,omitempty"`
	Religion        *string   `bun:"religion" json:"religion,omitempty"`
	Status          string    `bun:"status,notnull" json:"status"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"createdAt"`
}

func (s *StudentProfile) FullName() string {
	if s.MiddleName != nil && *s.MiddleName != "" {
		return s.FirstName + " " + *s.MiddleName + " " + s.LastName
	}
	return s.FirstName + " " + s.LastName
}

type TeacherProfile struct {
	bun.BaseModel `bun:"table:teachers,alias:te"`

	ID              int64      `bun:"id,pk,autoincrement" json:"id"`
	UserID          int64      `bun:"user_id,notnull,unique" json:"userId"`
	EmployeeID      string     `bun:"employee_id,notnull,unique" json:"employeeId"`
	Qualification   *string    `bun:"qualification" json:"qualification,omitempty"`
	Specialization  *string    `bun:"specialization" json:"specialization,omitempty"`
	ExperienceYears int        `bun:"experience_years,notnull" json:"experienceYears"`
	JoiningDate     *time.Time `bun:"joining_date" json:"joiningDate,omitempty"`
	IsActive        bool       `bun:"is_active,notnull" json:"isActive"`
	CreatedAt       time.Time  `bun:"created_at,notnull" json:"createdAt"`
}

// GuardianLink connects a parent account to a student profile. At most one
// row exists per (parent_id, student_id).
type GuardianLink struct {
	bun.BaseModel `bun:"table:student_parents,alias:sp"`

	ID                 int64     `bun:"id,pk,autoincrement" json:"id"`
	ParentID           int64     `bun:"parent_id,notnull,unique:guardian_pair" json:"parentId"`
	StudentID          int64     `bun:"student_id,notnull,unique:guardian_pair" json:"studentId"`
	Relationship       string    `bun:"relationship,notnull" json:"relationship"`
	IsPrimary          bool      `bun:"is_primary,notnull" json:"isPrimary"`
	IsEmergencyContact bool      `bun:"is_emergency_contact,notnull" json:"isEmergencyContact"`
	CanPickup          bool      `bun:"can_pickup,notnull" json:"canPickup"`
	CreatedAt          time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt          time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// Stats summarises one tenant store for the dashboard.
type Stats struct {
	Students      int `json:"students"`
	Teachers      int `json:"teachers"`
	Parents       int `json:"parents"`
	Admins        int `json:"admins"`
	GuardianLinks int `json:"guardianLinks"`
	ActiveClasses int `json:"activeClasses"`
}

// TenantModels lists the tables of a tenant store in creation order.
func TenantModels() []interface{} {
	return []interface{}{
		(*Role)(nil),
		(*Account)(nil),
		(*RoleGrant)(nil),
		(*Class)(nil),
		(*StudentProfile)(nil),
		(*TeacherProfile)(nil),
		(*GuardianLink)(nil),
	}
}
