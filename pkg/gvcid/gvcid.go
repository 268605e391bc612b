// Package gvcid enforces that at most one Operational SA exists per
// global virtual channel.
package gvcid

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sambigeara/sadb/pkg/store"
	"github.com/sambigeara/sadb/pkg/types"
)

// ConflictError reports an Operational SA already holding the GVCID a
// candidate wants.
type ConflictError struct {
	GVCID     types.GVCID
	Candidate uint16
	Holder    uint16
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot start SPI %d: %s is in use by operational SPI %d; stop it first or force the start",
		e.Candidate, e.GVCID, e.Holder)
}

// Resolver looks up and, when forced, stops Operational SAs that collide
// with a candidate. Callers serialise calls per frame type.
type Resolver struct {
	store store.Store
	log   *zap.SugaredLogger
}

func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s, log: zap.S().Named("gvcid")}
}

// Conflicts returns the Operational SAs, other than cand itself, that share
// cand's GVCID.
func (r *Resolver) Conflicts(ctx context.Context, cand *types.SecurityAssociation) ([]*types.SecurityAssociation, error) {
	scid := cand.SCID
	active, err := r.store.List(ctx, store.Filter{SCID: &scid, State: store.StateActive})
	if err != nil {
		return nil, fmt.Errorf("list operational SAs: %w", err)
	}

	want := cand.GVCID()
	var out []*types.SecurityAssociation
	for _, sa := range active {
		if sa.SPI == cand.SPI {
			continue
		}
		if sa.GVCID() == want {
			out = append(out, sa)
		}
	}
	return out, nil
}

// CheckStart clears the way for cand to become Operational. Without force any
// conflict is returned as a *ConflictError. With force every conflicting SA
// is moved back to Keyed and returned.
func (r *Resolver) CheckStart(ctx context.Context, cand *types.SecurityAssociation, force bool) ([]*types.SecurityAssociation, error) {
	conflicts, err := r.Conflicts(ctx, cand)
	if err != nil {
		return nil, err
	}
	if len(conflicts) == 0 {
		return nil, nil
	}
	if !force {
		return nil, &ConflictError{GVCID: cand.GVCID(), Candidate: cand.SPI, Holder: conflicts[0].SPI}
	}

	stopped := make([]*types.SecurityAssociation, 0, len(conflicts))
	for _, sa := range conflicts {
		sa.State = types.SAStateKeyed
		if err := r.store.Update(ctx, sa); err != nil {
			return stopped, fmt.Errorf("stop %s: %w", sa.Identity(), err)
		}
		r.log.Infow("stopped conflicting SA", "spi", sa.SPI, "gvcid", sa.GVCID().String(), "for", cand.SPI)
		stopped = append(stopped, sa)
	}
	return stopped, nil
}
