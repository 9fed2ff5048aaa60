package util

import (
	"context"
	"reflect"
	"strings"

	"space-pulse/internal/model"

	"github.com/go-playground/validator/v10"
)

// RegisterSpaceRole registers the "space_role" tag, which accepts ADMIN and MEMBER.
// Registering twice is not an error.
func RegisterSpaceRole(v *validator.Validate) error {
	err := v.RegisterValidation("space_role", func(fl validator.FieldLevel) bool {
		return model.Role(fl.Field().String()).Valid()
	})
	if err != nil && err.Error() == "validator: tag 'space_role' already exists" {
		return nil
	}
	return err
}

// NewValidator returns a validator with the custom tags registered and field names taken
// from json tags, so errors name fields the way clients send them.
func NewValidator() (*validator.Validate, error) {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := RegisterSpaceRole(v); err != nil {
		return nil, err
	}
	return v, nil
}

// ValidateCtx executes v.StructCtx.
func ValidateCtx(ctx context.Context, v *validator.Validate, req any) error {
	return v.StructCtx(ctx, req)
}
