package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports a declaration that cannot be sent to the remote
// service, such as a length validator with neither bound set.
type ValidationError struct {
	// Item is the item name, when known.
	Item string

	// Field is the field api key or label, when the error is field-scoped.
	Field string

	// Validator names the offending validator, when there is one.
	Validator string

	Message string
}

func (e *ValidationError) Error() string {
	var scope []string
	if e.Item != "" {
		scope = append(scope, "item="+e.Item)
	}
	if e.Field != "" {
		scope = append(scope, "field="+e.Field)
	}
	if e.Validator != "" {
		scope = append(scope, "validator="+e.Validator)
	}
	if len(scope) == 0 {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s (%s)", e.Message, strings.Join(scope, ", "))
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// scoped returns a copy of err with the empty scope fields filled in.
func scoped(err error, item, field string) error {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	cp := *ve
	if cp.Item == "" {
		cp.Item = item
	}
	if cp.Field == "" {
		cp.Field = field
	}
	return &cp
}
