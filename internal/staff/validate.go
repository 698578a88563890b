package staff

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

// requestValidator checks decoded request bodies and reports the first
// failing field by its JSON name.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})
	return &requestValidator{validate: v}
}

func (v *requestValidator) Validate(req any) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", rbac.ErrValidation, err)
	}

	fe := verrs[0]
	field := fe.Field()
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		msg = fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		msg = fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "uuid":
		msg = fmt.Sprintf("%s must be a valid UUID", field)
	default:
		msg = fmt.Sprintf("%s failed validation for %s", field, fe.Tag())
	}
	return rbac.WithField(fmt.Errorf("%w: %s", rbac.ErrValidation, msg), field, "")
}
