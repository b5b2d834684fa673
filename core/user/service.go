package user

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core"
)

const defaultTeacherPassword = "123456"

var (
	// errors
	ErrNotFound          = core.NotFound("المستخدم غير موجود")
	ErrUnknownUsername   = core.BadRequest("المستخدم غير موجود")
	ErrWrongUserType     = core.BadRequest("يرجى اختيار نوع الحساب الصحيح (أستاذ/طالبة) من الشاشة الرئيسية")
	ErrWrongPassword     = core.BadRequest("كلمة المرور غير صحيحة")
	ErrWrongOldPassword  = core.BadRequest("كلمة المرور القديمة غير صحيحة")
	ErrEmailNotFound     = core.NotFound("البريد غير مسجل")
	ErrInvalidResetToken = core.BadRequest("رابط غير صالح أو منتهي")
	ErrUsernameExists    = core.BadRequest("خطأ: قد يكون الاسم مكرراً")
	ErrInvalidStatsCode  = core.Forbidden("Invalid code")
	ErrNotAdmin          = core.Forbidden("Unauthorized")
	ErrResetNotFound     = errors.New("password reset not found")
)

type (
	Repository interface {
		// CreateUser returns ErrUsernameExists when the username is taken.
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id int) (User, error)
		GetUserByUsername(ctx context.Context, username string) (User, error)
		GetAdminByEmail(ctx context.Context, email string) (User, error)
		GetStudent(ctx context.Context, id int) (StudentView, error)
		// QueryUsers returns users of the given type ordered by name.
		QueryUsers(ctx context.Context, typ string) ([]User, error)
		QueryStudents(ctx context.Context) ([]StudentView, error)
		TeacherSubjectNames(ctx context.Context, teacherID int) ([]string, error)
		LastStudentRegistrationNumber(ctx context.Context) (string, error)
		// UpdateUser saves every field but the login counters; ErrUsernameExists when the username is taken.
		UpdateUser(ctx context.Context, usr User) error
		// RecordLogin increments the login count and sets the last login of a user.
		RecordLogin(ctx context.Context, id int) (User, error)
		// DeleteUsers removes users with their links, teacher assignments and group memberships.
		// Their messages are kept.
		DeleteUsers(ctx context.Context, ids ...int) error

		CreatePasswordReset(ctx context.Context, pr PasswordReset) error
		// GetPasswordReset returns ErrResetNotFound for unknown tokens.
		GetPasswordReset(ctx context.Context, token string) (PasswordReset, error)
		// RedeemPasswordReset sets the password of the token's user and deletes the token.
		RedeemPasswordReset(ctx context.Context, pr PasswordReset, passwordHash []byte) error

		QueryUsageStats(ctx context.Context) ([]UsageStat, error)
		ResetUsageStats(ctx context.Context) error
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf}
}

// Login authenticates a user. userType, when set, must match the user's type unless the user is an admin.
func (svc *Service) Login(ctx context.Context, lr LoginRequest) (Profile, error) {
	usr, err := svc.repo.GetUserByUsername(ctx, lr.Username)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Profile{}, ErrUnknownUsername
		}
		return Profile{}, errors.Wrap(err, "finding user by username")
	}
	if lr.UserType != "" && !usr.IsAdmin() && usr.Type != lr.UserType {
		return Profile{}, ErrWrongUserType
	}
	if err = usr.CheckPassword(lr.Password); err != nil {
		return Profile{}, ErrWrongPassword
	}

	if usr, err = svc.repo.RecordLogin(ctx, usr.ID); err != nil {
		return Profile{}, errors.Wrap(err, "recording login")
	}

	prof := Profile{User: usr}
	switch usr.Type {
	case TypeTeacher:
		names, err := svc.repo.TeacherSubjectNames(ctx, usr.ID)
		if err != nil {
			return Profile{}, errors.Wrap(err, "querying teacher subjects")
		}
		subjects := strings.Join(names, ", ")
		prof.Subjects = &subjects
	case TypeStudent:
		sv, err := svc.repo.GetStudent(ctx, usr.ID)
		if err != nil {
			return Profile{}, errors.Wrap(err, "finding student")
		}
		prof.LevelName = sv.LevelName.Ptr()
		prof.GroupName = sv.GroupName.Ptr()
	}
	return prof, nil
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByUsername(ctx context.Context, username string) (User, error) {
	return svc.repo.GetUserByUsername(ctx, core.CleanString(username))
}

// ChangeCredentials lets an admin rotate its password and/or email, given its current password.
func (svc *Service) ChangeCredentials(ctx context.Context, cc ChangeCredentials) error {
	usr, err := svc.repo.GetUserByID(ctx, cc.ID)
	if err != nil {
		return err
	}
	if !usr.IsAdmin() {
		return ErrNotFound
	}
	if err = usr.CheckPassword(cc.OldPassword); err != nil {
		return ErrWrongOldPassword
	}

	if cc.NewEmail != "" {
		usr.Email = null.StringFrom(cc.NewEmail)
	}
	if cc.NewPassword != "" {
		if err = validatePassword("newPassword", cc.NewPassword, usr); err != nil {
			return err
		}
		if err = usr.SetPassword(cc.NewPassword); err != nil {
			return errors.Wrap(err, "setting password")
		}
	}
	return svc.repo.UpdateUser(ctx, usr)
}

// RequestPasswordReset issues a reset token for the admin owning email and mails the reset link.
// The link is returned as well: the admin UI displays it directly.
func (svc *Service) RequestPasswordReset(ctx context.Context, email, baseURL string) (string, error) {
	usr, err := svc.repo.GetAdminByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return "", ErrEmailNotFound
		}
		return "", errors.Wrap(err, "finding admin by email")
	}

	pr, err := newPasswordReset(usr, svc.conf.PasswordResetTimeoutDelta)
	if err != nil {
		return "", errors.Wrap(err, "making reset token")
	}
	if err = svc.repo.CreatePasswordReset(ctx, pr); err != nil {
		return "", errors.Wrap(err, "saving reset token")
	}

	link := fmt.Sprintf("%s/admin?reset=%s", strings.TrimSuffix(baseURL, "/"), pr.Token)
	svc.sendPasswordResetMail(usr, link)
	return link, nil
}

func (svc *Service) sendPasswordResetMail(usr User, link string) {
	if svc.mailSvc == nil || !usr.Email.Valid {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email.String}},
		Subject:      "استعادة كلمة المرور",
		TemplateName: "password_reset",
		TemplateData: map[string]string{"Name": usr.Name, "Link": link},
	})
}

// ResetPassword redeems a reset token. Tokens are single use.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	pr, err := svc.repo.GetPasswordReset(ctx, rp.Token)
	if err != nil {
		if errors.Cause(err) == ErrResetNotFound {
			return ErrInvalidResetToken
		}
		return errors.Wrap(err, "finding reset token")
	}
	if pr.Expired(nowFunc()) {
		return ErrInvalidResetToken
	}

	usr, err := svc.repo.GetUserByID(ctx, pr.UserID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrInvalidResetToken
		}
		return errors.Wrap(err, "finding user")
	}
	if err = validatePassword("newPassword", rp.NewPassword, usr); err != nil {
		return err
	}
	if err = usr.SetPassword(rp.NewPassword); err != nil {
		return errors.Wrap(err, "setting password")
	}
	return svc.repo.RedeemPasswordReset(ctx, pr, usr.PasswordHash)
}

// CreateTeacher creates a teacher whose password is its phone number ("123456" without one).
func (svc *Service) CreateTeacher(ctx context.Context, nt NewTeacher) (User, error) {
	usr := User{
		Name:     nt.Name,
		Username: nt.Username,
		Type:     TypeTeacher,
		Phone:    null.NewString(nt.Phone, nt.Phone != ""),
	}
	pwd := nt.Phone
	if pwd == "" {
		pwd = defaultTeacherPassword
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

// CreateStudent creates a student with a random 6 digits registration number,
// which is also its password when none is given.
func (svc *Service) CreateStudent(ctx context.Context, ns NewStudent) (CreatedStudent, error) {
	regNum := core.RandomDigits(6)
	usr := User{
		Name:               ns.Name,
		Username:           ns.Username,
		Type:               TypeStudent,
		LevelID:            positiveID(ns.LevelID),
		GroupID:            positiveID(ns.GroupID),
		RegistrationNumber: null.StringFrom(regNum),
	}
	pwd := ns.Password
	if pwd == "" {
		pwd = regNum
	}
	if err := usr.SetPassword(pwd); err != nil {
		return CreatedStudent{}, errors.Wrap(err, "setting password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return CreatedStudent{}, err
	}
	return CreatedStudent{ID: usr.ID, RegistrationNumber: regNum}, nil
}

// Create creates a user of any type. Students get the next sequential registration number
// and the first letter of their name as avatar.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	usr := User{
		Name:     nu.Name,
		Username: nu.Username,
		Email:    null.NewString(nu.Email, nu.Email != ""),
		Type:     nu.Type,
	}
	if usr.IsStudent() {
		regNum, err := svc.NextRegistrationNumber(ctx)
		if err != nil {
			return User{}, err
		}
		usr.RegistrationNumber = null.StringFrom(regNum)
		usr.Avatar = null.StringFrom(string([]rune(usr.Name)[:1]))
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

// NextRegistrationNumber returns the current year followed by the 3 digits sequence
// following the last created student's number (2025001, 2025002, ...).
func (svc *Service) NextRegistrationNumber(ctx context.Context) (string, error) {
	last, err := svc.repo.LastStudentRegistrationNumber(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting last registration number")
	}
	next := 1
	if len(last) >= 3 {
		if seq, err := strconv.Atoi(last[len(last)-3:]); err == nil {
			next = seq + 1
		}
	}
	return fmt.Sprintf("%d%03d", nowFunc().Year(), next), nil
}

// Update replaces the name & username of a user.
// A teacher whose phone changes without a new password gets the new phone as password.
func (svc *Service) Update(ctx context.Context, id int, uu UpdateUser) error {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	usr.Name = uu.Name
	usr.Username = uu.Username

	pwd := uu.Password
	newPhone := uu.Phone.Value
	if usr.IsTeacher() && pwd == "" && newPhone.Valid && newPhone.String != "" && newPhone.String != usr.Phone.String {
		pwd = newPhone.String
	}
	if pwd != "" {
		if err = usr.SetPassword(pwd); err != nil {
			return errors.Wrap(err, "setting password")
		}
	}

	if uu.Phone.Present {
		usr.Phone = newPhone
	}
	if uu.LevelID.Present {
		usr.LevelID = uu.LevelID.Value
	}
	if uu.GroupID.Present {
		usr.GroupID = uu.GroupID.Value
	}
	return svc.repo.UpdateUser(ctx, usr)
}

// SetAvatar sets the avatar file name of a user.
func (svc *Service) SetAvatar(ctx context.Context, id int, avatar string) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.Avatar = null.StringFrom(avatar)
	if err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, err
	}
	return usr, nil
}

// SetPassword sets a user's password without any check. Used by the admin CLI.
func (svc *Service) SetPassword(ctx context.Context, username, pwd string) error {
	usr, err := svc.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	return svc.repo.UpdateUser(ctx, usr)
}

// Delete removes users, their links, assignments & group memberships. Messages are kept.
func (svc *Service) Delete(ctx context.Context, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	return svc.repo.DeleteUsers(ctx, ids...)
}

func (svc *Service) QueryTeachers(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsers(ctx, TypeTeacher)
}

func (svc *Service) QueryStudents(ctx context.Context) ([]StudentView, error) {
	return svc.repo.QueryStudents(ctx)
}

// EnsureAdmin creates the default admin when missing, else resets its display name.
// It reports whether the admin was created.
func (svc *Service) EnsureAdmin(ctx context.Context, seed core.SeedConfig) (bool, error) {
	usr, err := svc.repo.GetUserByUsername(ctx, seed.AdminUsername)
	switch {
	case err == nil:
		if usr.Name == seed.AdminName {
			return false, nil
		}
		usr.Name = seed.AdminName
		return false, errors.Wrap(svc.repo.UpdateUser(ctx, usr), "renaming admin")
	case errors.Cause(err) != ErrNotFound:
		return false, errors.Wrap(err, "finding admin")
	}

	usr = User{
		Name:     seed.AdminName,
		Username: seed.AdminUsername,
		Email:    null.NewString(seed.AdminEmail, seed.AdminEmail != ""),
		Type:     TypeAdmin,
	}
	if err = usr.SetPassword(seed.AdminPassword); err != nil {
		return false, errors.Wrap(err, "setting password")
	}
	if _, err = svc.repo.CreateUser(ctx, usr); err != nil {
		return false, errors.Wrap(err, "creating admin")
	}
	return true, nil
}

// CheckAdminPassword checks that id is an admin whose password is pwd.
func (svc *Service) CheckAdminPassword(ctx context.Context, id int, pwd string) error {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrNotAdmin
		}
		return err
	}
	if !usr.IsAdmin() {
		return ErrNotAdmin
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return ErrWrongPassword
	}
	return nil
}

func (svc *Service) UsageStats(ctx context.Context) ([]UsageStat, error) {
	return svc.repo.QueryUsageStats(ctx)
}

// ResetStats zeroes every login counter, given the configured reset code.
func (svc *Service) ResetStats(ctx context.Context, code string) error {
	if code == "" || code != svc.conf.ResetStatsCode {
		return ErrInvalidStatsCode
	}
	return svc.repo.ResetUsageStats(ctx)
}

func positiveID(id null.Int) null.Int {
	if id.Valid && id.Int > 0 {
		return id
	}
	return null.Int{}
}
