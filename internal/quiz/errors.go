package quiz

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAttemptLimit  = errors.New("max attempts reached")
	ErrAttemptClosed = errors.New("attempt already submitted or timed out")
)

// ValidationError is a field -> messages map, the shape handlers serialize
// for 400 responses.
type ValidationError map[string][]string

func (e ValidationError) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e[k], ", "))
	}
	return strings.Join(parts, "; ")
}

func validationf(field, msg string) ValidationError {
	return ValidationError{field: {msg}}
}
