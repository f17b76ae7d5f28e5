package view

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var fieldMessages = map[string]string{
	"required": "Ce champ est obligatoire",
	"email":    "Adresse email invalide",
	"min":      "Valeur trop courte",
	"max":      "Valeur trop longue",
	"oneof":    "Valeur non autorisée",
	"datetime": "Date invalide (AAAA-MM-JJ)",
	"gtefield": "La date de fin doit suivre la date de début",
	"numeric":  "Nombre attendu",
	"alphanum": "Lettres et chiffres uniquement",
	"password": "Au moins une majuscule, une minuscule, un chiffre et un caractère spécial (@$!%*?&)",
}

// strongPassword mirrors the API rule for new accounts.
func strongPassword(fl validator.FieldLevel) bool {
	var lower, upper, digit, special bool
	for _, r := range fl.Field().String() {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune("@$!%*?&", r):
			special = true
		default:
			return false
		}
	}
	return lower && upper && digit && special
}

// NewValidator returns a validator that reports fields by their form tag.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("password", strongPassword)
	return v
}

// FormErrors converts validation failures into French messages keyed by form
// field. Any other error is reported under "general".
func FormErrors(err error) map[string]string {
	out := make(map[string]string)
	if err == nil {
		return out
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["general"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Tag()]
		if !ok {
			msg = "Valeur invalide"
		}
		if _, exists := out[fe.Field()]; !exists {
			out[fe.Field()] = msg
		}
	}
	return out
}
