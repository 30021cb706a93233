package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var currencyRe = regexp.MustCompile(`^[A-Za-z]{3}$`)

func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared validator with the money rules registered:
// positive_decimal (> 0), nonneg_decimal (>= 0) and currency (three letters).
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		// Decimals are validated through their string form.
		v.RegisterCustomTypeFunc(func(f reflect.Value) interface{} {
			if d, ok := f.Interface().(decimal.Decimal); ok {
				return d.String()
			}
			return nil
		}, decimal.Decimal{})
		_ = v.RegisterValidation("positive_decimal", func(fl validator.FieldLevel) bool {
			d, ok := decimalOf(fl.Field())
			return ok && d.IsPositive()
		})
		_ = v.RegisterValidation("nonneg_decimal", func(fl validator.FieldLevel) bool {
			d, ok := decimalOf(fl.Field())
			return ok && !d.IsNegative()
		})
		_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			return currencyRe.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

func decimalOf(v reflect.Value) (decimal.Decimal, bool) {
	switch x := v.Interface().(type) {
	case decimal.Decimal:
		return x, true
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, false
		}
		return *x, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		return d, err == nil
	}
	return decimal.Zero, false
}

// FieldError is one failed rule, keyed by the JSON field name.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Struct validates s and returns a message suitable for a 400 plus the failed
// fields. It returns ("", nil) when s is valid.
func Struct(s interface{}) (string, []FieldError) {
	err := Validator().Struct(s)
	if err == nil {
		return "", nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error(), nil
	}
	fields := make([]FieldError, 0, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		names = append(names, fe.Field())
	}
	msg := fmt.Sprintf("Invalid or missing fields: %s", strings.Join(names, ", "))
	for _, f := range fields {
		if f.Rule == "positive_decimal" {
			msg = "Amount must be a positive number"
			break
		}
	}
	return msg, fields
}
