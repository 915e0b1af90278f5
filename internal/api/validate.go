package api

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/campusattend/attendance/internal/identity"
)

var validatorsOnce sync.Once

// registerValidators adds the "mobile" rule and reports fields by their JSON name.
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
			return identity.MobilePattern.MatchString(fl.Field().String())
		})
	})
}

// bindMessage turns a binding error into a short client-facing message.
func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "email":
			msgs = append(msgs, fe.Field()+" must be a valid email")
		case "min":
			msgs = append(msgs, fe.Field()+" must be at least "+fe.Param()+" characters")
		case "mobile":
			msgs = append(msgs, fe.Field()+" must be 10 digits")
		case "oneof":
			msgs = append(msgs, fe.Field()+" must be one of "+fe.Param())
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
