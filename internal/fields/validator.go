package fields

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// MaxNameLength is the longest accepted field name
const MaxNameLength = 64

// ErrInvalidName is returned for names outside [a-z0-9_]{1,64}
var ErrInvalidName = errors.New("invalid field name")

var nameRegex = regexp.MustCompile(`^[a-z0-9_]+$`)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("fieldname", func(fl validator.FieldLevel) bool {
		return nameRegex.MatchString(fl.Field().String())
	})
}

// ValidateName checks a field name taken from the request path
func ValidateName(name string) error {
	if err := validate.Var(name, "required,max=64,fieldname"); err != nil {
		return ErrInvalidName
	}
	return nil
}
