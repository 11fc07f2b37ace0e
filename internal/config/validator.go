// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals the merged Koanf tree and resolves secrets.  Any violation
// aborts startup, so the binary never runs with partial or malformed
// configuration.
//
// Custom rules
// ------------
//   • sqlident – a bare SQL identifier (letters, digits, underscore, not
//     starting with a digit).  Guards `settings.table`, which is spliced
//     into a query and cannot be a bind parameter.
package config

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	_ = val.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return identRe.MatchString(fl.Field().String())
	})
	return val
}

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	return v.Struct(c)
}
