package store

import (
	"context"
	"sync"

	"github.com/sambigeara/sadb/pkg/types"
)

var _ Store = (*Memory)(nil)

type memKey struct {
	scid uint16
	spi  uint16
}

// Memory is a map backed Store.
type Memory struct {
	m  map[memKey]*types.SecurityAssociation
	ft types.FrameType
	mu sync.RWMutex
}

func NewMemory(ft types.FrameType) *Memory {
	return &Memory{ft: ft, m: make(map[memKey]*types.SecurityAssociation)}
}

func NewMemorySet() *Set {
	s := &Set{stores: make(map[types.FrameType]Store, len(types.FrameTypes))}
	for _, ft := range types.FrameTypes {
		s.stores[ft] = NewMemory(ft)
	}
	return s
}

func (s *Memory) Get(_ context.Context, scid, spi uint16) (*types.SecurityAssociation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sa, ok := s.m[memKey{scid, spi}]
	if !ok {
		return nil, notFound(s.ft, scid, spi)
	}
	return sa.Clone(), nil
}

func (s *Memory) List(_ context.Context, f Filter) ([]*types.SecurityAssociation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.SecurityAssociation, 0, len(s.m))
	for _, sa := range s.m {
		if f.Match(sa) {
			out = append(out, sa.Clone())
		}
	}
	sortByIdentity(out)
	return out, nil
}

func (s *Memory) Insert(_ context.Context, sa *types.SecurityAssociation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey{sa.SCID, sa.SPI}
	if _, ok := s.m[k]; ok {
		return exists(s.ft, sa.SCID, sa.SPI)
	}
	s.m[k] = sa.Clone()
	return nil
}

func (s *Memory) Update(_ context.Context, sa *types.SecurityAssociation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey{sa.SCID, sa.SPI}
	if _, ok := s.m[k]; !ok {
		return notFound(s.ft, sa.SCID, sa.SPI)
	}
	s.m[k] = sa.Clone()
	return nil
}

func (s *Memory) Delete(_ context.Context, scid, spi uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey{scid, spi}
	if _, ok := s.m[k]; !ok {
		return notFound(s.ft, scid, spi)
	}
	delete(s.m, k)
	return nil
}
