package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"schooladmin/internal/account"
	"schooladmin/internal/credential"
	"schooladmin/internal/intake"
	"schooladmin/internal/metrics"
	"schooladmin/internal/notify"

	"github.com/uptrace/bun"
)

// unitOfWork collects everything one provisioning call produces. All store
// access goes through tx.
type unitOfWork struct {
	kind    account.Kind
	tx      bun.Tx
	repo    account.Repository
	logger  *slog.Logger
	metrics *metrics.Metrics

	accountID   int64
	credentials []credential.Credential
	notices     []notify.Notice
	warnings    []string
}

func (w *unitOfWork) student(ctx context.Context, rec *intake.StudentRecord) error {
	active, err := w.repo.ClassIsActive(ctx, rec.ClassID)
	if err != nil {
		return err
	}
	if !active {
		return invalid("Selected class does not exist or is inactive")
	}

	dob := rec.DateOfBirth
	student := &account.Account{
		Name:        rec.Name,
		Email:       rec.Email,
		Phone:       rec.Phone,
		UserType:    account.KindStudent,
		Gender:      rec.Gender,
		DateOfBirth: &dob,
		Address:     rec.Address,
		BloodGroup:  rec.BloodGroup,
		Religion:    rec.Religion,
		IsActive:    true,
	}
	if _, err := w.createAccount(ctx, student); err != nil {
		return err
	}
	w.accountID = student.ID

	profile := &account.StudentProfile{
		UserID:          student.ID,
		AdmissionNumber: rec.AdmissionNumber,
		FirstName:       rec.FirstName,
		MiddleName:      rec.MiddleName,
		LastName:        rec.LastName,
		DateOfBirth:     rec.DateOfBirth,
		ClassID:         rec.ClassID,
		AdmissionDate:   rec.AdmissionDate,
		BloodGroup:      rec.BloodGroup,
		Religion:        rec.Religion,
		Status:          "active",
	}
	if err := w.repo.InsertStudent(ctx, profile); err != nil {
		if errors.Is(err, account.ErrDuplicateAdmission) {
			return invalid("Admission number already exists")
		}
		return err
	}

	p := rec.Parent
	if !p.Supplied() {
		return nil
	}

	var parent *account.Account
	var password string
	switch {
	case p.ExistingID > 0:
		parent, err = w.repo.GetParent(ctx, p.ExistingID)
		if errors.Is(err, account.ErrParentNotFound) {
			return invalid("Selected parent does not exist")
		}
		if err != nil {
			return err
		}
	case p.CanCreate():
		parent = &account.Account{
			Name:     p.Name,
			Email:    p.Email,
			Phone:    p.Phone,
			UserType: account.KindParent,
			IsActive: true,
		}
		if password, err = w.createAccount(ctx, parent); err != nil {
			return err
		}
	default:
		w.logger.InfoContext(ctx, "parent details incomplete, no parent account created")
		return nil
	}

	link := &account.GuardianLink{
		ParentID:           parent.ID,
		StudentID:          profile.ID,
		Relationship:       p.Relationship,
		IsPrimary:          p.IsPrimary,
		IsEmergencyContact: p.IsEmergencyContact,
		CanPickup:          p.CanPickup,
	}
	if err := w.repo.UpsertGuardianLink(ctx, link); err != nil {
		return err
	}

	w.notify(parent, password, []string{student.Name})
	return nil
}

func (w *unitOfWork) teacher(ctx context.Context, rec *intake.TeacherRecord) error {
	email := rec.Email
	teacher := &account.Account{
		Name:     rec.Name,
		Email:    &email,
		Phone:    rec.Phone,
		UserType: account.KindTeacher,
		Gender:   rec.Gender,
		IsActive: true,
	}
	if _, err := w.createAccount(ctx, teacher); err != nil {
		return err
	}
	w.accountID = teacher.ID

	profile := &account.TeacherProfile{
		UserID:          teacher.ID,
		EmployeeID:      rec.EmployeeID,
		Qualification:   rec.Qualification,
		Specialization:  rec.Specialization,
		ExperienceYears: rec.ExperienceYears,
		JoiningDate:     rec.JoiningDate,
		IsActive:        true,
	}
	if err := w.repo.InsertTeacher(ctx, profile); err != nil {
		if errors.Is(err, account.ErrDuplicateEmployeeID) {
			return invalid("Employee ID already exists")
		}
		return err
	}
	return nil
}

func (w *unitOfWork) parent(ctx context.Context, rec *intake.ParentRecord) error {
	students, err := w.repo.GetStudents(ctx, rec.StudentIDs)
	if errors.Is(err, account.ErrStudentNotFound) {
		return invalid("One or more selected students do not exist")
	}
	if err != nil {
		return err
	}

	parent := &account.Account{
		Name:     rec.Name,
		Email:    rec.Email,
		Phone:    rec.Phone,
		UserType: account.KindParent,
		Gender:   rec.Gender,
		IsActive: true,
	}
	password, err := w.createAccount(ctx, parent)
	if err != nil {
		return err
	}
	w.accountID = parent.ID

	names := make([]string, 0, len(students))
	for _, s := range students {
		link := &account.GuardianLink{
			ParentID:           parent.ID,
			StudentID:          s.ID,
			Relationship:       rec.Relationship,
			IsPrimary:          rec.IsPrimary,
			IsEmergencyContact: rec.IsEmergencyContact,
			CanPickup:          rec.CanPickup,
		}
		if err := w.repo.UpsertGuardianLink(ctx, link); err != nil {
			return err
		}
		names = append(names, s.FullName())
	}

	w.notify(parent, password, names)
	return nil
}

// createAccount stores a with a fresh password, grants its role and records
// the plaintext credential. The plaintext is returned for the welcome notice.
func (w *unitOfWork) createAccount(ctx context.Context, a *account.Account) (string, error) {
	plaintext, hash, err := credential.New()
	if err != nil {
		return "", err
	}
	a.Password = hash

	if err := w.repo.InsertAccount(ctx, a); err != nil {
		return "", fmt.Errorf("failed to insert %s account: %w", a.UserType, err)
	}

	w.grantRole(ctx, a)

	w.credentials = append(w.credentials, credential.Credential{
		Kind:     string(a.UserType),
		Name:     a.Name,
		Email:    deref(a.Email),
		Phone:    deref(a.Phone),
		Password: plaintext,
	})
	return plaintext, nil
}

// grantRole runs in a savepoint so a failure leaves the outer transaction usable.
func (w *unitOfWork) grantRole(ctx context.Context, a *account.Account) {
	err := w.tx.RunInTx(ctx, nil, func(ctx context.Context, sp bun.Tx) error {
		return account.NewRepository(sp, w.metrics).GrantRole(ctx, a.ID, a.UserType.RoleID())
	})
	if err != nil {
		w.logger.WarnContext(ctx, "failed to grant role", "account_id", a.ID, "role_id", a.UserType.RoleID(), "error", err)
		w.warnings = append(w.warnings, fmt.Sprintf("Role could not be assigned to %s", a.Name))
	}
}

func (w *unitOfWork) notify(parent *account.Account, password string, students []string) {
	if parent.Email == nil {
		return
	}
	w.notices = append(w.notices, notify.Notice{
		GuardianName: parent.Name,
		Email:        *parent.Email,
		StudentNames: students,
		Password:     password,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
