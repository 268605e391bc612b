// Package store persists security associations, one Store per frame type.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"github.com/sambigeara/sadb/pkg/types"
)

var (
	ErrNotFound = errors.New("security association not found")
	ErrExists   = errors.New("security association already exists")
)

// Store holds the SAs of a single frame type. Every method is atomic for
// the record it touches and safe for concurrent use.
type Store interface {
	Get(ctx context.Context, scid, spi uint16) (*types.SecurityAssociation, error)
	List(ctx context.Context, f Filter) ([]*types.SecurityAssociation, error)
	Insert(ctx context.Context, sa *types.SecurityAssociation) error
	Update(ctx context.Context, sa *types.SecurityAssociation) error
	Delete(ctx context.Context, scid, spi uint16) error
}

type StateFilter int

const (
	StateAny StateFilter = iota
	StateActive
	StateInactive
)

// Filter narrows a List call. Nil fields match everything.
type Filter struct {
	SPI   *uint16
	SCID  *uint16
	State StateFilter
}

func (f Filter) Match(sa *types.SecurityAssociation) bool {
	if f.SPI != nil && sa.SPI != *f.SPI {
		return false
	}
	if f.SCID != nil && sa.SCID != *f.SCID {
		return false
	}
	switch f.State {
	case StateActive:
		return sa.State == types.SAStateOperational
	case StateInactive:
		return sa.State != types.SAStateOperational
	default:
		return true
	}
}

func sortByIdentity(sas []*types.SecurityAssociation) {
	sort.Slice(sas, func(i, j int) bool {
		if sas[i].SCID != sas[j].SCID {
			return sas[i].SCID < sas[j].SCID
		}
		return sas[i].SPI < sas[j].SPI
	})
}

func notFound(ft types.FrameType, scid, spi uint16) error {
	return fmt.Errorf("%s SPI %d / SCID %d: %w", ft, spi, scid, ErrNotFound)
}

func exists(ft types.FrameType, scid, spi uint16) error {
	return fmt.Errorf("%s SPI %d / SCID %d: %w", ft, spi, scid, ErrExists)
}

type Backend string

const (
	BackendBadger Backend = "badger"
	BackendFile   Backend = "file"
	BackendMemory Backend = "memory"
)

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendBadger, BackendFile, BackendMemory:
		return b, nil
	case "":
		return BackendBadger, nil
	default:
		return "", fmt.Errorf("unknown store backend %q (use: badger|file|memory)", s)
	}
}

// Set bundles the per-frame-type stores of one backend.
type Set struct {
	stores  map[types.FrameType]Store
	closers []func() error
}

// Open opens the stores of backend under dir.
func Open(backend Backend, dir string) (*Set, error) {
	switch backend {
	case BackendBadger:
		return OpenBadger(dir)
	case BackendFile:
		return OpenFile(dir)
	case BackendMemory:
		return NewMemorySet(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func (s *Set) Store(ft types.FrameType) (Store, bool) {
	st, ok := s.stores[ft]
	return st, ok
}

func (s *Set) Close() error {
	var err error
	for _, c := range s.closers {
		err = multierr.Append(err, c())
	}
	return err
}
