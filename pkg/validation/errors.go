package validation

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/sambigeara/sadb/pkg/types"
)

// Rule names a validation rule a violation broke.
type Rule string

const (
	RuleRequired       Rule = "required"
	RuleRange          Rule = "range"
	RuleHex            Rule = "hex"
	RuleEncryptionPair Rule = "encryption-pair"
	RuleAuthPair       Rule = "authentication-pair"
	RuleIV             Rule = "iv"
	RuleABM            Rule = "abm"
	RuleARSN           Rule = "arsn"
	RuleServiceType    Rule = "service-type"
	RuleLength         Rule = "length"
	RuleSuite          Rule = "cipher-suite"
	RuleFrameType      Rule = "frame-type"
	RuleNotAllowed     Rule = "not-allowed"
)

type Violation struct {
	Field   string `json:"field"`
	Rule    Rule   `json:"rule"`
	Message string `json:"message"`
}

func (v Violation) Error() string {
	return v.Field + ": " + v.Message
}

// Error carries every violation found in one record.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Error())
	}
	return "invalid security association: " + strings.Join(msgs, "; ")
}

// Has reports whether a violation of rule was recorded.
func (e *Error) Has(rule Rule) bool {
	for _, v := range e.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// IsValidation reports whether err is, or wraps, a validation error.
func IsValidation(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

// FrameTypeError rejects ft as the target of a single-record operation.
func FrameTypeError(ft types.FrameType) error {
	return &Error{Violations: []Violation{{
		Field:   "type",
		Rule:    RuleFrameType,
		Message: fmt.Sprintf("%s is not a concrete frame type (use: tc|tm|aos)", ft),
	}}}
}

type collector struct {
	err error
}

func (c *collector) add(field string, rule Rule, msg string) {
	c.err = multierr.Append(c.err, Violation{Field: field, Rule: rule, Message: msg})
}

func (c *collector) result() error {
	if c.err == nil {
		return nil
	}
	errs := multierr.Errors(c.err)
	out := &Error{Violations: make([]Violation, 0, len(errs))}
	for _, e := range errs {
		var v Violation
		if errors.As(e, &v) {
			out.Violations = append(out.Violations, v)
		}
	}
	return out
}
