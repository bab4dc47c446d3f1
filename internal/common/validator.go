package common

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// GenericEchoValidator adapts go-playground/validator to echo.Validator
type GenericEchoValidator struct {
	Validator *validator.Validate
}

func NewGenericEchoValidator() *GenericEchoValidator {
	return &GenericEchoValidator{Validator: validator.New()}
}

func (gv *GenericEchoValidator) Validate(i interface{}) error {
	if gv.Validator == nil {
		gv.Validator = validator.New()
	}
	if err := gv.Validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request body: %s", describe(err)))
	}
	return nil
}

// describe lists the failing fields without leaking Go type names
func describe(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		message := fmt.Sprintf("%s failed %s", fieldErr.Field(), fieldErr.Tag())
		if fieldErr.Param() != "" {
			message += fmt.Sprintf(" (%s)", fieldErr.Param())
		}
		messages = append(messages, message)
	}
	return strings.Join(messages, "; ")
}
