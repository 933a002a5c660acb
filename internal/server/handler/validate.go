package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/domain"
)

var validate = newValidator()

// FieldError is one failed rule on a request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("principal", func(fl validator.FieldLevel) bool {
		_, err := clarity.ParsePrincipal(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("contractid", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseContractRef(fl.Field().String())
		return err == nil
	})
	return v
}

// validateStruct runs the struct's validate tags.
func validateStruct(s any) []FieldError {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "hexadecimal":
		return fmt.Sprintf("%s must be hexadecimal", fe.Field())
	case "principal":
		return fmt.Sprintf("%s must be a Stacks principal", fe.Field())
	case "contractid":
		return fmt.Sprintf("%s must be a contract id (ADDRESS.name)", fe.Field())
	case "url":
		return fmt.Sprintf("%s must be a URL", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
