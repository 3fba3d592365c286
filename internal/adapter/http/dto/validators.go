package dto

import (
	"html"
	"reflect"
	"regexp"
	"strings"

	"credit-mint-engine/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.:@]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("mint_id", validateMintID)
		_ = v.RegisterValidation("recipient_id", validateRecipientID)
		_ = v.RegisterValidation("mint_reason", validateMintReason)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, dot, colon and at.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(strings.TrimSpace(fl.Field().String()))
}

func validateMintID(fl validator.FieldLevel) bool {
	return domain.ValidMintID(strings.TrimSpace(fl.Field().String()))
}

func validateRecipientID(fl validator.FieldLevel) bool {
	return domain.ValidRecipientID(strings.TrimSpace(fl.Field().String()))
}

func validateMintReason(fl validator.FieldLevel) bool {
	_, ok := domain.ParseMintReason(fl.Field().String())
	return ok
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer, descending into nested
// structs and slices of structs.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		case reflect.Struct:
			sanitizeFields(f)
		case reflect.Slice:
			for j := 0; j < f.Len(); j++ {
				if item := f.Index(j); item.Kind() == reflect.Struct {
					sanitizeFields(item)
				}
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
