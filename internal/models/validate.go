package models

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("listingtype", validateListingType)
		validate = v
	})
	return validate
}

func validateListingType(fl validator.FieldLevel) bool {
	t := ListingType(fl.Field().String())
	for _, known := range ValidTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ValidationError lists the fields of a listing that failed validation,
// keyed by their document field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid listing: " + strings.Join(parts, "; ")
}

// Validate checks the listing before it is written anywhere.
// Available rooms may never exceed total rooms.
func (l *Listing) Validate() error {
	err := getValidator().Struct(l)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "ltefield":
		return fmt.Sprintf("must not exceed %s", fieldDocName(fe.Param()))
	case "gtefield":
		return fmt.Sprintf("must not be below %s", fieldDocName(fe.Param()))
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "listingtype":
		return "unknown listing type"
	case "oneof":
		return "must be one of " + fe.Param()
	case "latitude", "longitude":
		return "out of range"
	}
	return "invalid value"
}

func fieldDocName(goName string) string {
	f, ok := reflect.TypeOf(Listing{}).FieldByName(goName)
	if !ok {
		return goName
	}
	return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
}
