// Package router dispatches requests to the lifecycle manager of their
// frame type and fans ALL queries out across every type.
package router

import (
	"context"
	"fmt"

	"github.com/sambigeara/sadb/pkg/lifecycle"
	"github.com/sambigeara/sadb/pkg/store"
	"github.com/sambigeara/sadb/pkg/types"
	"github.com/sambigeara/sadb/pkg/validation"
)

type Router struct {
	managers map[types.FrameType]*lifecycle.Manager
}

// New builds one manager per frame type over the stores in set.
func New(set *store.Set, opts ...lifecycle.Option) (*Router, error) {
	r := &Router{managers: make(map[types.FrameType]*lifecycle.Manager, len(types.FrameTypes))}
	for _, ft := range types.FrameTypes {
		st, ok := set.Store(ft)
		if !ok {
			return nil, fmt.Errorf("no %s store configured", ft)
		}
		m, err := lifecycle.New(ft, st, opts...)
		if err != nil {
			return nil, err
		}
		r.managers[ft] = m
	}
	return r, nil
}

// Manager returns the manager owning ft. ALL and unknown types are
// rejected: they never name a single record.
func (r *Router) Manager(ft types.FrameType) (*lifecycle.Manager, error) {
	m, ok := r.managers[ft]
	if !ok {
		return nil, validation.FrameTypeError(ft)
	}
	return m, nil
}

// List returns the SAs of ft matching f. ALL concatenates TC, TM then AOS.
func (r *Router) List(ctx context.Context, ft types.FrameType, f store.Filter) ([]*types.SecurityAssociation, error) {
	if ft != types.FrameTypeAll {
		m, err := r.Manager(ft)
		if err != nil {
			return nil, err
		}
		return m.List(ctx, f)
	}

	var out []*types.SecurityAssociation
	for _, t := range types.FrameTypes {
		sas, err := r.managers[t].List(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", t, err)
		}
		out = append(out, sas...)
	}
	return out, nil
}

func (r *Router) Get(ctx context.Context, ft types.FrameType, scid, spi uint16) (*types.SecurityAssociation, error) {
	m, err := r.Manager(ft)
	if err != nil {
		return nil, err
	}
	return m.Get(ctx, scid, spi)
}

func (r *Router) Create(ctx context.Context, ft types.FrameType, p types.Params, opts lifecycle.CreateOptions) (*types.SecurityAssociation, error) {
	m, err := r.Manager(ft)
	if err != nil {
		return nil, err
	}
	return m.Create(ctx, p, opts)
}

func (r *Router) Update(ctx context.Context, ft types.FrameType, scid, spi uint16, p types.Params) (*types.SecurityAssociation, error) {
	m, err := r.Manager(ft)
	if err != nil {
		return nil, err
	}
	return m.Update(ctx, scid, spi, p)
}

func (r *Router) Key(ctx context.Context, ft types.FrameType, scid, spi uint16, p types.Params) (*types.SecurityAssociation, error) {
	m, err := r.Manager(ft)
	if err != nil {
		return nil, err
	}
	return m.Key(ctx, scid, spi, p)
}

func (r *Router) Start(ctx context.Context, ft types.FrameType, scid, spi uint16, force bool) (*lifecycle.StartResult, error) {
	m, err := r.Manager(ft)
	if err != nil {
		return nil, err
	}
	return m.Start(ctx, scid, spi, force)
}

func (r *Router) Stop(ctx context.Context, ft types.FrameType, scid, spi uint16) (*types.SecurityAssociation, error) {
	m, err := r.Manager(ft)
	if err != nil {
		return nil, err
	}
	return m.Stop(ctx, scid, spi)
}

func (r *Router) Expire(ctx context.Context, ft types.FrameType, scid, spi uint16) (*types.SecurityAssociation, error) {
	m, err := r.Manager(ft)
	if err != nil {
		return nil, err
	}
	return m.Expire(ctx, scid, spi)
}

func (r *Router) Delete(ctx context.Context, ft types.FrameType, scid uint16, spis ...uint16) ([]uint16, error) {
	m, err := r.Manager(ft)
	if err != nil {
		return nil, err
	}
	return m.Delete(ctx, scid, spis...)
}
