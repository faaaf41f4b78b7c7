package user

import (
	"fmt"
	"strings"
	"unicode/utf8"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/prsonline/core"
)

var (
	usrEmailTag  = "usremail"
	usrEmailText = "invalid email"

	usrMinLen     = 3
	usrMinLenTag  = "usrminlen"
	usrMinLenText = fmt.Sprintf("length must be greater than %d", usrMinLen-1)

	usrNoAtTag  = "usrnoat"
	usrNoAtText = "cannot include an @"

	// password policy
	pwdMinLen     = 4
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("length must be greater than %d", pwdMinLen-1)

	changePwdMinLenText = "Length must be greater than 4"
)

// InitValidators registers the user validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(usrEmailTag, usrEmailValidation)
	core.RegisterCustomTranslation(validate, translator, usrEmailTag, usrEmailText)

	_ = validate.RegisterValidation(usrMinLenTag, usrMinLenValidation)
	core.RegisterCustomTranslation(validate, translator, usrMinLenTag, usrMinLenText)

	_ = validate.RegisterValidation(usrNoAtTag, usrNoAtValidation)
	core.RegisterCustomTranslation(validate, translator, usrNoAtTag, usrNoAtText)

	_ = validate.RegisterValidation(pwdMinLenTag, pwdMinLenValidation)
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
}

// Custom Validators

func usrEmailValidation(fl validator.FieldLevel) bool {
	return strings.Contains(fl.Field().String(), "@")
}

func usrMinLenValidation(fl validator.FieldLevel) bool {
	return utf8.RuneCountInString(fl.Field().String()) >= usrMinLen
}

func usrNoAtValidation(fl validator.FieldLevel) bool {
	return !strings.Contains(fl.Field().String(), "@")
}

func pwdMinLenValidation(fl validator.FieldLevel) bool {
	return isValidPassword(fl.Field().String())
}

func isValidPassword(pwd string) bool {
	return utf8.RuneCountInString(pwd) >= pwdMinLen
}
