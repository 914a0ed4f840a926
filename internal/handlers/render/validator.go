package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// No custom validations are registered on purpose: a presented token
// string must reach the verifier whatever it looks like, so it can be
// classified as malformed instead of bouncing with a request error.
func configureValidator(validate *validator.Validate) {
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}
