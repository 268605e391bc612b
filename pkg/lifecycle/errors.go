package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sambigeara/sadb/pkg/gvcid"
	"github.com/sambigeara/sadb/pkg/store"
	"github.com/sambigeara/sadb/pkg/types"
	"github.com/sambigeara/sadb/pkg/validation"
)

// DuplicateError rejects a create whose identity is already taken.
type DuplicateError struct {
	ID types.Identity
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s SA with SPI %d and SCID %d already exists", e.ID.Type, e.ID.SPI, e.ID.SCID)
}

func (e *DuplicateError) Unwrap() error { return store.ErrExists }

// StateError rejects a transition the SA's current state does not allow.
type StateError struct {
	ID    types.Identity
	Op    string
	State types.SAState
	Want  []types.SAState
}

func (e *StateError) Error() string {
	want := make([]string, 0, len(e.Want))
	for _, s := range e.Want {
		want = append(want, s.String())
	}
	return fmt.Sprintf("cannot %s %s: state is %s, want %s", e.Op, e.ID, e.State, strings.Join(want, " or "))
}

// Kind classifies lifecycle errors for adapters.
type Kind string

const (
	KindOK         Kind = "ok"
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindState      Kind = "state"
	KindInternal   Kind = "internal"
)

func KindOf(err error) Kind {
	var (
		dup   *DuplicateError
		cf    *gvcid.ConflictError
		state *StateError
	)
	switch {
	case err == nil:
		return KindOK
	case validation.IsValidation(err):
		return KindValidation
	case errors.As(err, &dup), errors.As(err, &cf), errors.Is(err, store.ErrExists):
		return KindConflict
	case errors.As(err, &state):
		return KindState
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
