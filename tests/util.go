package testutil

import (
	"context"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/directory"
	"github.com/trezcool/madrasa/core/user"
)

// NewValidator returns a validator with every custom validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// UserOption customizes a user before its creation.
type UserOption func(*user.User)

func WithEmail(email string) UserOption {
	return func(u *user.User) { u.Email = null.StringFrom(email) }
}

func WithPhone(phone string) UserOption {
	return func(u *user.User) { u.Phone = null.StringFrom(phone) }
}

func WithPlacement(levelID, groupID int) UserOption {
	return func(u *user.User) {
		u.LevelID = null.NewInt(levelID, levelID != 0)
		u.GroupID = null.NewInt(groupID, groupID != 0)
	}
}

func WithRegistrationNumber(num string) UserOption {
	return func(u *user.User) { u.RegistrationNumber = null.StringFrom(num) }
}

func CreateUser(t *testing.T, repo user.Repository, typ, name, uname, pwd string, opts ...UserOption) user.User {
	usr := user.User{
		Name:     name,
		Username: uname,
		Type:     typ,
	}
	for _, opt := range opts {
		opt(&usr)
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateAdmin(t *testing.T, repo user.Repository, uname, pwd string) user.User {
	return CreateUser(t, repo, user.TypeAdmin, "السيد المدير", uname, pwd, WithEmail(uname+"@school.com"))
}

func CreateLevel(t *testing.T, repo directory.Repository, name string) directory.Level {
	lvl, err := repo.CreateLevel(context.Background(), directory.Level{Name: name})
	if err != nil {
		t.Fatalf("CreateLevel() failed: %v", err)
	}
	return lvl
}

func CreateGroup(t *testing.T, repo directory.Repository, name string, levelID int) directory.Group {
	grp, err := repo.CreateGroup(context.Background(), directory.Group{
		Name:    name,
		LevelID: null.NewInt(levelID, levelID != 0),
	})
	if err != nil {
		t.Fatalf("CreateGroup() failed: %v", err)
	}
	return grp
}

func CreateSubject(t *testing.T, repo directory.Repository, name string) directory.Subject {
	sub, err := repo.CreateSubject(context.Background(), directory.Subject{Name: name})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	return sub
}
