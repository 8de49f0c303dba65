// Package intake turns raw admin form submissions into typed records.
//
// Validation is a pure function of the submitted values: no store is
// consulted. Every free-text field is trimmed first, and messages are
// returned in form order so they can be shown as-is.
package intake

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

const (
	DefaultGender       = "male"
	DefaultRelationship = "parent"
)

// Relationships a guardian may have to a student.
var Relationships = []string{"father", "mother", "guardian", "parent"}

type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// New returns a Validator. now supplies the current time for defaulted
// dates; nil means time.Now.
func New(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{
		validate: validator.New(),
		now:      now,
	}
}

// ParentInput is the optional guardian section of the student form.
type ParentInput struct {
	ExistingID         int64
	Name               string
	Email              *string
	Phone              *string
	Relationship       string
	IsPrimary          bool
	IsEmergencyContact bool
	CanPickup          bool
}

// Supplied reports whether any guardian field was filled in.
func (p ParentInput) Supplied() bool {
	return p.ExistingID > 0 || p.Name != "" || p.Email != nil || p.Phone != nil
}

// CanCreate reports whether there is enough data to create a new parent
// account: a name and at least one contact.
func (p ParentInput) CanCreate() bool {
	return p.Name != "" && (p.Email != nil || p.Phone != nil)
}

type StudentRecord struct {
	Name            string
	FirstName       string
	MiddleName      *string
	LastName        string
	AdmissionNumber string
	DateOfBirth     time.Time
	ClassID         int64
	Gender          string
	Address         *string
	BloodGroup      *string
	Religion        *string
	AdmissionDate   time.Time
	Email           *string
	Phone           *string
	Parent          ParentInput
}

type TeacherRecord struct {
	Name            string
	Email           string
	Phone           *string
	EmployeeID      string
	Qualification   *string
	Specialization  *string
	ExperienceYears int
	JoiningDate     *time.Time
	Gender          string
}

type ParentRecord struct {
	Name               string
	Email              *string
	Phone              *string
	Gender             string
	Relationship       string
	IsPrimary          bool
	IsEmergencyContact bool
	CanPickup          bool
	StudentIDs         []int64
}

func (v *Validator) Student(form url.Values) (*StudentRecord, []string) {
	f := fields(form)
	var errs []string

	rec := &StudentRecord{
		Name:            f.text("name"),
		FirstName:       f.text("first_name"),
		MiddleName:      f.optional("middle_name"),
		LastName:        f.text("last_name"),
		AdmissionNumber: f.text("admission_number"),
		Gender:          f.textOr("gender", DefaultGender),
		Address:         f.optional("address"),
		BloodGroup:      f.optional("blood_group"),
		Religion:        f.optional("religion"),
		Email:           f.optional("email"),
		Phone:           f.optional("phone"),
	}

	if rec.Name == "" {
		errs = append(errs, "Full name is required")
	}
	if rec.FirstName == "" {
		errs = append(errs, "First name is required")
	}
	if rec.LastName == "" {
		errs = append(errs, "Last name is required")
	}
	if rec.AdmissionNumber == "" {
		errs = append(errs, "Admission number is required")
	}

	if dob := f.text("date_of_birth"); dob == "" {
		errs = append(errs, "Date of birth is required")
	} else if d, err := time.Parse(dateLayout, dob); err != nil {
		errs = append(errs, "Date of birth must be a valid date (YYYY-MM-DD)")
	} else {
		rec.DateOfBirth = d
	}

	rec.ClassID = f.number("class_id")
	if rec.ClassID <= 0 {
		errs = append(errs, "Please select a class")
	}

	if admitted := f.text("admission_date"); admitted == "" {
		rec.AdmissionDate = v.today()
	} else if d, err := time.Parse(dateLayout, admitted); err != nil {
		errs = append(errs, "Admission date must be a valid date (YYYY-MM-DD)")
	} else {
		rec.AdmissionDate = d
	}

	errs = v.checkEmail(errs, "Email", rec.Email)
	errs = v.checkGender(errs, rec.Gender)

	rec.Parent = ParentInput{
		ExistingID:         f.number("parent_id"),
		Name:               f.text("parent_name"),
		Email:              f.optional("parent_email"),
		Phone:              f.optional("parent_phone"),
		Relationship:       f.textOr("parent_relationship", DefaultRelationship),
		IsPrimary:          f.flag("parent_is_primary"),
		IsEmergencyContact: f.flag("parent_emergency_contact"),
		CanPickup:          f.flag("parent_can_pickup"),
	}
	if rec.Parent.ExistingID < 0 {
		rec.Parent.ExistingID = 0
	}
	errs = v.checkEmail(errs, "Parent email", rec.Parent.Email)
	if rec.Parent.Supplied() {
		errs = v.checkRelationship(errs, rec.Parent.Relationship)
	}

	return rec, errs
}

func (v *Validator) Teacher(form url.Values) (*TeacherRecord, []string) {
	f := fields(form)
	var errs []string

	rec := &TeacherRecord{
		Name:           f.text("name"),
		Email:          f.text("email"),
		Phone:          f.optional("phone"),
		EmployeeID:     f.text("employee_id"),
		Qualification:  f.optional("qualification"),
		Specialization: f.optional("specialization"),
		Gender:         f.textOr("gender", DefaultGender),
	}

	if rec.Name == "" {
		errs = append(errs, "Name is required")
	}
	if rec.EmployeeID == "" {
		errs = append(errs, "Employee ID is required")
	}
	if rec.Email == "" {
		errs = append(errs, "Email is required")
	} else {
		errs = v.checkEmail(errs, "Email", &rec.Email)
	}

	if years := f.leadingInt("experience_years"); years > 0 {
		rec.ExperienceYears = years
	}

	if joined := f.text("joining_date"); joined != "" {
		if d, err := time.Parse(dateLayout, joined); err != nil {
			errs = append(errs, "Joining date must be a valid date (YYYY-MM-DD)")
		} else {
			rec.JoiningDate = &d
		}
	}

	errs = v.checkGender(errs, rec.Gender)

	return rec, errs
}

func (v *Validator) Parent(form url.Values) (*ParentRecord, []string) {
	f := fields(form)
	var errs []string

	rec := &ParentRecord{
		Name:               f.text("name"),
		Email:              f.optional("email"),
		Phone:              f.optional("phone"),
		Gender:             f.textOr("gender", DefaultGender),
		Relationship:       f.textOr("relationship", DefaultRelationship),
		IsPrimary:          f.flag("is_primary"),
		IsEmergencyContact: f.flag("is_emergency_contact"),
		CanPickup:          f.flag("can_pickup"),
		StudentIDs:         f.ids("student_ids"),
	}

	if rec.Name == "" {
		errs = append(errs, "Name is required")
	}
	if rec.Email == nil && rec.Phone == nil {
		errs = append(errs, "Either email or phone is required")
	}

	errs = v.checkEmail(errs, "Email", rec.Email)
	errs = v.checkRelationship(errs, rec.Relationship)
	errs = v.checkGender(errs, rec.Gender)

	return rec, errs
}

func (v *Validator) today() time.Time {
	now := v.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (v *Validator) checkEmail(errs []string, label string, email *string) []string {
	if email == nil {
		return errs
	}
	if v.validate.Var(*email, "email") != nil {
		return append(errs, label+" must be a valid email address")
	}
	return errs
}

func (v *Validator) checkRelationship(errs []string, rel string) []string {
	if v.validate.Var(rel, "oneof="+strings.Join(Relationships, " ")) != nil {
		return append(errs, "Relationship must be one of "+strings.Join(Relationships, ", "))
	}
	return errs
}

func (v *Validator) checkGender(errs []string, gender string) []string {
	if v.validate.Var(gender, "oneof=male female other") != nil {
		return append(errs, "Gender must be one of male, female, other")
	}
	return errs
}

type fields url.Values

func (f fields) text(key string) string {
	return strings.TrimSpace(url.Values(f).Get(key))
}

func (f fields) textOr(key, fallback string) string {
	if s := strings.ToLower(f.text(key)); s != "" {
		return s
	}
	return fallback
}

func (f fields) optional(key string) *string {
	s := f.text(key)
	if s == "" {
		return nil
	}
	return &s
}

func (f fields) number(key string) int64 {
	n, err := strconv.ParseInt(f.text(key), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// flag is true when key is present, unless it carries an explicit negative.
// leadingInt reads the integer prefix of a value, so "5.5" and "5 years"
// both give 5. Anything without leading digits gives 0.
func (f fields) leadingInt(key string) int {
	s := f.text(key)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func (f fields) flag(key string) bool {
	if !url.Values(f).Has(key) {
		return false
	}
	switch strings.ToLower(f.text(key)) {
	case "0", "false", "off", "no":
		return false
	}
	return true
}

// ids collects positive integers; a comma separated single value is accepted too.
func (f fields) ids(key string) []int64 {
	var out []int64
	seen := make(map[int64]bool)
	for _, raw := range url.Values(f)[key] {
		for _, part := range strings.Split(raw, ",") {
			n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil || n <= 0 || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
