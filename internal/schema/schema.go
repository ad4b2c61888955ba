// Package schema decodes and validates API payloads into entities.
//
// Schemas repair partial payloads: items of an array that fail to decode or
// validate are dropped and reported as issues, the rest are kept. Only a payload
// whose envelope cannot be decoded, or from which nothing survives, is an error.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/smileynet/fedicache/internal/entity"
)

// Schema turns a raw response body into validated entities.
type Schema interface {
	Parse(body []byte) ([]entity.Entity, error)
}

// Issue describes one dropped item.
type Issue struct {
	Index  int    // Position in the payload; 0 for single objects.
	Field  string // Failing field namespace, empty for decode failures.
	Reason string
}

func (i Issue) String() string {
	if i.Field == "" {
		return fmt.Sprintf("item %d: %s", i.Index, i.Reason)
	}
	return fmt.Sprintf("item %d: %s: %s", i.Index, i.Field, i.Reason)
}

// ValidationError reports a payload that could not be turned into entities.
type ValidationError struct {
	Schema string  // Name of the schema that rejected the payload.
	Issues []Issue // Per-item problems, if any.
	Err    error   // Envelope decode error, if any.
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schema %s: %s", e.Schema, e.Err)
	}
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return fmt.Sprintf("schema %s: no valid items: %s", e.Schema, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ErrEmptyBody is wrapped by ValidationError when the body is empty.
var ErrEmptyBody = errors.New("empty body")

var validate = validator.New()

// JSON decodes a JSON object or array of objects into T values.
type JSON[T entity.Entity] struct {
	name string
}

// NewJSON returns a schema for T named name in errors.
func NewJSON[T entity.Entity](name string) *JSON[T] {
	return &JSON[T]{name: name}
}

// Name returns the schema name.
func (s *JSON[T]) Name() string { return s.name }

// Parse implements Schema.
func (s *JSON[T]) Parse(body []byte) ([]entity.Entity, error) {
	items, _, err := s.Decode(body)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Entity, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out, nil
}

// Decode returns the valid items of body in payload order together with the
// issues of the dropped ones.
func (s *JSON[T]) Decode(body []byte) ([]T, []Issue, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil, &ValidationError{Schema: s.name, Err: ErrEmptyBody}
	}

	var raws []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, nil, &ValidationError{Schema: s.name, Err: err}
		}
	} else {
		if !json.Valid(trimmed) {
			return nil, nil, &ValidationError{Schema: s.name, Err: errors.New("invalid JSON")}
		}
		raws = []json.RawMessage{trimmed}
	}

	items := make([]T, 0, len(raws))
	var issues []Issue
	for i, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			issues = append(issues, Issue{Index: i, Reason: err.Error()})
			continue
		}
		if err := validate.Struct(v); err != nil {
			issues = append(issues, fieldIssues(i, err)...)
			continue
		}
		items = append(items, v)
	}

	if len(raws) > 0 && len(items) == 0 {
		return nil, issues, &ValidationError{Schema: s.name, Issues: issues}
	}
	return items, issues, nil
}

func fieldIssues(index int, err error) []Issue {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Issue{{Index: index, Reason: err.Error()}}
	}
	out := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		reason := "failed " + fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		out = append(out, Issue{Index: index, Field: fe.Namespace(), Reason: reason})
	}
	return out
}
