package web

// params.go decodes and validates query parameters.
//
// Each endpoint declares a params struct whose fields carry a `query` tag
// naming the parameter and a `validate` tag for go-playground/validator.
// List fields accept both repeated parameters and comma-separated values.

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// errInvalidRequest is wrapped by every parameter error.
var errInvalidRequest = errors.New("validation failed")

type indicatorsParams struct {
	Category string `query:"category" validate:"max=100"`
}

type searchParams struct {
	Q        string `query:"q" validate:"required,max=100"`
	Category string `query:"category" validate:"max=100"`
	Limit    int    `query:"limit" validate:"omitempty,gte=1,lte=100"`
}

// seriesParams selects central indicators and a year window.
// Secondary, when present, overrides the default axis assignment: listed
// indicators go to the secondary axis, the rest to the primary one.
type seriesParams struct {
	Indicators []string `query:"indicators" validate:"required,min=1,max=12,dive,required,max=100"`
	From       int      `query:"from" validate:"omitempty,gte=1900,lte=2100"`
	To         int      `query:"to" validate:"omitempty,gte=1900,lte=2100"`
	Secondary  []string `query:"secondary" validate:"max=12,dive,required"`
	Highlight  []int    `query:"highlight" validate:"max=20,dive,gte=1900,lte=2100"`
}

type sourceParams struct {
	Source string `query:"source" validate:"required,max=100"`
}

type snapshotParams struct {
	Source    string `query:"source" validate:"required,max=100"`
	Indicator string `query:"indicator" validate:"required,max=100"`
	Year      int    `query:"year" validate:"omitempty,gte=1900,lte=2100"`
}

type trendParams struct {
	Source    string   `query:"source" validate:"required,max=100"`
	Indicator string   `query:"indicator" validate:"required,max=100"`
	Regions   []string `query:"regions" validate:"max=40,dive,required,max=50"`
	From      int      `query:"from" validate:"omitempty,gte=1900,lte=2100"`
	To        int      `query:"to" validate:"omitempty,gte=1900,lte=2100"`
	Top       int      `query:"top" validate:"omitempty,gte=1,lte=40"`
}

type validateParams struct {
	Level string `query:"level" validate:"required,oneof=central province"`
}

type auditParams struct {
	Limit int `query:"limit" validate:"omitempty,gte=1,lte=500"`
}

// newValidator returns a validator that reports fields by their query
// parameter name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("query"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// bindQuery decodes r's query string into dst and validates it. Errors wrap
// errInvalidRequest.
func (s *Server) bindQuery(r *http.Request, dst any) error {
	if err := decodeQuery(r.URL.Query(), dst); err != nil {
		return err
	}
	if err := s.validate.Struct(dst); err != nil {
		return formatValidation(err)
	}
	return nil
}

// decodeQuery fills the tagged fields of the struct dst points to.
// Supported kinds are string, int and slices of them.
func decodeQuery(values url.Values, dst any) error {
	rv := reflect.ValueOf(dst).Elem()
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		name := field.Tag.Get("query")
		if name == "" {
			continue
		}
		raw := listValues(values[name])
		if len(raw) == 0 {
			continue
		}

		fv := rv.Field(i)
		switch fv.Kind() {
		case reflect.String:
			fv.SetString(raw[0])
		case reflect.Int:
			n, err := strconv.Atoi(raw[0])
			if err != nil {
				return fmt.Errorf("%w: %s must be an integer, got %q", errInvalidRequest, name, raw[0])
			}
			fv.SetInt(int64(n))
		case reflect.Slice:
			switch fv.Type().Elem().Kind() {
			case reflect.String:
				fv.Set(reflect.ValueOf(raw))
			case reflect.Int:
				ints := make([]int, len(raw))
				for j, s := range raw {
					n, err := strconv.Atoi(s)
					if err != nil {
						return fmt.Errorf("%w: %s must be a list of integers, got %q", errInvalidRequest, name, s)
					}
					ints[j] = n
				}
				fv.Set(reflect.ValueOf(ints))
			default:
				return fmt.Errorf("unsupported query field %s", field.Name)
			}
		default:
			return fmt.Errorf("unsupported query field %s", field.Name)
		}
	}
	return nil
}

// listValues flattens repeated and comma-separated values, trimming
// whitespace and dropping empty entries.
func listValues(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// formatValidation converts validator errors to one errInvalidRequest.
func formatValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, e.Field()+" "+friendlyMessage(e))
	}
	sort.Strings(msgs)
	return fmt.Errorf("%w: %s", errInvalidRequest, strings.Join(msgs, "; "))
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + e.Param() + " entries"
	case "max":
		if e.Kind() == reflect.Slice {
			return "must have at most " + e.Param() + " entries"
		}
		return "must not exceed " + e.Param() + " characters"
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	default:
		return "is invalid"
	}
}
