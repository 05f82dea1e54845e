package httpapi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const msgInvalidBody = "Invalid request body."

var registerLabels sync.Once

// useLabels makes validation errors report the `label` tag instead of the
// Go field name.
func useLabels() {
	registerLabels.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			if l := f.Tag.Get("label"); l != "" {
				return l
			}
			return f.Name
		})
	})
}

// bindJSON decodes and validates the request body into dst. On failure the
// returned error is a 400 describing the first offending field.
func bindJSON(c *gin.Context, dst any) error {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return common.BadRequest(fieldMessage(ve[0]), common.ErrValidation)
	}
	return common.BadRequest(msgInvalidBody, fmt.Errorf("%w: %v", common.ErrValidation, err))
}

func fieldMessage(fe validator.FieldError) string {
	label := fmt.Sprintf("%q", fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return label + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s length must be at least %s characters long", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s length must be less than or equal to %s characters long", label, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", label, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "eqfield":
		return label + " does not match"
	}
	return label + " is invalid"
}
