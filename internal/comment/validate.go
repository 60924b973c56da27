package comment

import (
	"fmt"
	"strings"
)

// ValidationError describes a body that may not be stored.
type ValidationError struct {
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation rules.
const (
	RuleRequired = "required"
	RuleNoLinks  = "no-links"
)

// MaxContentLength bounds written comments.
const MaxContentLength = 10000

// Validate checks a body before it is stored.
//
// The link rule only inspects space-separated tokens that begin with "http"
// or "www", so a link wrapped in punctuation is accepted.
func Validate(b Body) error {
	switch v := b.(type) {
	case Written:
		if strings.TrimSpace(v.Content) == "" {
			return &ValidationError{Rule: RuleRequired, Message: "Comment text is required."}
		}
		if len(v.Content) > MaxContentLength {
			return &ValidationError{Rule: "max-length", Message: fmt.Sprintf("Comments are limited to %d characters.", MaxContentLength)}
		}
		for _, token := range strings.Split(v.Content, " ") {
			if strings.HasPrefix(token, "http") || strings.HasPrefix(token, "www") {
				return &ValidationError{Rule: RuleNoLinks, Message: "Links are not allowed in comments."}
			}
		}
	case Video:
		if strings.TrimSpace(v.MediaRef) == "" {
			return &ValidationError{Rule: RuleRequired, Message: "A video is required."}
		}
	case Spoken:
		if strings.TrimSpace(v.MediaRef) == "" {
			return &ValidationError{Rule: RuleRequired, Message: "A recording is required."}
		}
	case nil:
		return &ValidationError{Rule: RuleRequired, Message: "Comment text is required."}
	default:
		return &ValidationError{Rule: "kind", Message: "Unsupported comment type."}
	}
	return nil
}
