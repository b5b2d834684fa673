package user

import (
	"fmt"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/madrasa/core"
)

var (
	userTypeTag  = "usertype"
	userTypeText = "invalid user type"

	// password policy
	pwdMinLen      = 6
	pwdMinLenText  = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)
	pwdNoSpaceText = "password must not contain whitespace"
	pwdMaxSim      = .7
	pwdAttrSimText = "password cannot be similar to the username or email"
)

// InitValidators registers the user validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(userTypeTag, userTypeValidation)
	core.RegisterCustomTranslation(validate, translator, userTypeTag, userTypeText)
}

// userTypeValidation checks that the value is one of Types
func userTypeValidation(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	for _, typ := range Types {
		if val == typ {
			return true
		}
	}
	return false
}

// validatePassword applies the password policy to a new password:
// - minLen: 6
// - no whitespace
// - no similarity with the username or email
func validatePassword(field, pwd string, usr User) error {
	fail := func(text string) error {
		return core.NewValidationError(errors.New(text), core.FieldError{Field: field, Error: text})
	}

	if len([]rune(pwd)) < pwdMinLen {
		return fail(pwdMinLenText)
	}
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			return fail(pwdNoSpaceText)
		}
	}

	getRatio := func(pass, usrAttr string) float64 {
		if usrAttr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(strings.ToLower(pass), ""), strings.Split(strings.ToLower(usrAttr), "")).QuickRatio()
	}
	if getRatio(pwd, usr.Username) >= pwdMaxSim || getRatio(pwd, usr.Email.String) >= pwdMaxSim {
		return fail(pwdAttrSimText)
	}
	return nil
}
