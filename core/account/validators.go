package account

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/madrasa-app/madrasa/core"
)

var (
	accountRoleTag  = "accountrole"
	accountRoleText = "invalid role"

	gradeTag  = "grade"
	gradeText = "invalid grade"

	egPhoneTag   = "egphone"
	egPhoneText  = "enter a valid Egyptian mobile number"
	egPhoneRegex = regexp.MustCompile(`^01[0125]\d{8}$`)

	// password policy
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", minPasswordLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to the username or email"
)

// InitValidators registers the account validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(accountRoleTag, oneOfValidation(AllRoles))
	core.RegisterCustomTranslation(validate, translator, accountRoleTag, accountRoleText)

	_ = validate.RegisterValidation(gradeTag, oneOfValidation(AllGrades))
	core.RegisterCustomTranslation(validate, translator, gradeTag, gradeText)

	_ = validate.RegisterValidation(egPhoneTag, egPhoneValidation)
	core.RegisterCustomTranslation(validate, translator, egPhoneTag, egPhoneText)

	validate.RegisterStructValidation(accountStructValidation, NewAccount{}, UpdateAccount{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
}

// Custom Validators

func oneOfValidation(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		val := fl.Field().String()
		for _, a := range allowed {
			if val == a {
				return true
			}
		}
		return false
	}
}

func egPhoneValidation(fl validator.FieldLevel) bool {
	return egPhoneRegex.MatchString(fl.Field().String())
}

func accountStructValidation(sl validator.StructLevel) {
	switch data := sl.Current().Interface().(type) {
	case NewAccount:
		if data.Password != "" {
			validatePassword(data.Password, data.Username, data.Email, sl)
		}
	case UpdateAccount:
		if data.Password != "" {
			validatePassword(data.Password, data.Username, "", sl)
		}
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 6
// - no whitespace
// - no username/email similarity
func validatePassword(pwd, uname, email string, sl validator.StructLevel) {
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	if len(pwd) < minPasswordLen {
		reportErr(pwdMinLenTag)
		return
	}
	if strings.IndexFunc(pwd, unicode.IsSpace) >= 0 {
		reportErr(pwdNoSpaceTag)
		return
	}

	getRatio := func(pass, attr string) float64 {
		if attr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(strings.ToLower(pass), ""), strings.Split(strings.ToLower(attr), "")).QuickRatio()
	}
	if local := strings.SplitN(email, "@", 2)[0]; getRatio(pwd, uname) >= pwdMaxSim || getRatio(pwd, local) >= pwdMaxSim {
		reportErr(pwdAttrSimTag)
	}
}
