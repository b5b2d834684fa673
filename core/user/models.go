package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/madrasa/core"
)

// User types
const (
	TypeAdmin   = "admin"
	TypeTeacher = "teacher"
	TypeStudent = "student"
)

var Types = []string{TypeAdmin, TypeTeacher, TypeStudent}

type User struct {
	ID                 int         `db:"id" json:"id"`
	Name               string      `db:"name" json:"name"`
	Username           string      `db:"username" json:"username"`
	PasswordHash       []byte      `db:"password_hash" json:"-"`
	Email              null.String `db:"email" json:"email"`
	Type               string      `db:"type" json:"type"`
	Phone              null.String `db:"phone" json:"phone"`
	Avatar             null.String `db:"avatar" json:"avatar"`
	LevelID            null.Int    `db:"level_id" json:"level_id"`
	GroupID            null.Int    `db:"group_id" json:"group_id"`
	RegistrationNumber null.String `db:"registration_number" json:"registration_number"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"` // UTC
	LoginCount         int         `db:"login_count" json:"login_count"`
	LastLogin          null.Time   `db:"last_login" json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Type == TypeAdmin }
func (u *User) IsTeacher() bool { return u.Type == TypeTeacher }
func (u *User) IsStudent() bool { return u.Type == TypeStudent }

// StudentView is a student with its level & group names resolved.
type StudentView struct {
	User
	LevelName null.String `db:"level_name" json:"level_name"`
	GroupName null.String `db:"group_name" json:"group_name"`
}

// Profile is what a successful login returns.
// Teachers get their subject names, students their level & group names.
type Profile struct {
	User
	Subjects  *string `json:"subjects,omitempty"`
	LevelName *string `json:"level_name,omitempty"`
	GroupName *string `json:"group_name,omitempty"`
}

type PasswordReset struct {
	Token     string    `db:"token"`
	UserID    int       `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (pr PasswordReset) Expired(now time.Time) bool {
	return now.After(pr.ExpiresAt)
}

type UsageStat struct {
	ID         int       `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Type       string    `db:"type" json:"type"`
	LoginCount int       `db:"login_count" json:"login_count"`
	LastLogin  null.Time `db:"last_login" json:"last_login"`
}

// OptionalString tells an absent JSON field apart from an explicit null.
type OptionalString struct {
	Value   null.String
	Present bool
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Present = true
	return o.Value.UnmarshalJSON(data)
}

// OptionalInt tells an absent JSON field apart from an explicit null.
type OptionalInt struct {
	Value   null.Int
	Present bool
}

func (o *OptionalInt) UnmarshalJSON(data []byte) error {
	o.Present = true
	return o.Value.UnmarshalJSON(data)
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
		UserType string `json:"userType" validate:"omitempty,usertype"`
	}

	ChangeCredentials struct {
		ID          int    `json:"id" validate:"required"`
		OldPassword string `json:"oldPassword" validate:"required"`
		NewPassword string `json:"newPassword"`
		NewEmail    string `json:"newEmail" validate:"omitempty,email"`
	}

	ResetUserPassword struct {
		Token       string `json:"token" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required"`
	}

	NewTeacher struct {
		Name     string `json:"name" validate:"required"`
		Username string `json:"username" validate:"required,username"`
		Phone    string `json:"phone"`
	}

	NewStudent struct {
		Name     string   `json:"name" validate:"required"`
		Username string   `json:"username" validate:"required,username"`
		LevelID  null.Int `json:"level_id"`
		GroupID  null.Int `json:"group_id"`
		Password string   `json:"password"`
	}

	// NewUser is used by the admin CLI to create any type of user.
	NewUser struct {
		Name     string `json:"name" validate:"required"`
		Username string `json:"username" validate:"required,username"`
		Email    string `json:"email" validate:"omitempty,email"`
		Type     string `json:"type" validate:"required,usertype"`
		Password string `json:"password" validate:"required"`
	}

	// UpdateUser replaces name & username; Phone, LevelID and GroupID are only changed when present.
	UpdateUser struct {
		Name     string         `json:"name" validate:"required"`
		Username string         `json:"username" validate:"required,username"`
		Password string         `json:"password"`
		Phone    OptionalString `json:"phone"`
		LevelID  OptionalInt    `json:"level_id"`
		GroupID  OptionalInt    `json:"group_id"`
	}

	// CreatedStudent is returned on student creation.
	CreatedStudent struct {
		ID                 int    `json:"id"`
		RegistrationNumber string `json:"registration_number"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username)
	return validate.Struct(lr)
}

func (cc *ChangeCredentials) Validate(validate *validator.Validate) error {
	cc.NewEmail = core.CleanString(cc.NewEmail, true /* lower */)
	return validate.Struct(cc)
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

func (nt *NewTeacher) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Username = core.CleanString(nt.Username)
	nt.Phone = core.CleanString(nt.Phone)
	return validate.Struct(nt)
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Username = core.CleanString(ns.Username)
	return validate.Struct(ns)
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	return validate.Struct(nu)
}

func (uu *UpdateUser) Validate(validate *validator.Validate) error {
	uu.Name = core.CleanString(uu.Name)
	uu.Username = core.CleanString(uu.Username)
	return validate.Struct(uu)
}
