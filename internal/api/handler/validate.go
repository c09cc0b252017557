package handler

import (
	"errors"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("video_url", func(fl validator.FieldLevel) bool {
		return validVideoURL(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validationErrorsToMap flattens validator errors into field -> message for
// the details of a 400 response.
func validationErrorsToMap(err error) map[string]string {
	errs := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["error"] = err.Error()
		return errs
	}
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			errs[field] = "is required"
		case "min":
			errs[field] = "must have at least " + e.Param() + unit(e.Kind())
		case "max":
			errs[field] = "must have at most " + e.Param() + unit(e.Kind())
		case "video_url":
			errs[field] = "must be an absolute http(s) URL"
		case "oneof":
			errs[field] = "must be one of: " + e.Param()
		default:
			errs[field] = "invalid value"
		}
	}
	return errs
}

func unit(k reflect.Kind) string {
	if k == reflect.String {
		return " characters"
	}
	return " entries"
}

func validVideoURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
