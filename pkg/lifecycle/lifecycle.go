// Package lifecycle drives security associations through
// Unkeyed, Keyed and Operational, one Manager per frame type.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sambigeara/sadb/pkg/gvcid"
	"github.com/sambigeara/sadb/pkg/store"
	"github.com/sambigeara/sadb/pkg/types"
	"github.com/sambigeara/sadb/pkg/validation"
)

const (
	opCreate = "create"
	opUpdate = "update"
	opKey    = "key"
	opStart  = "start"
	opStop   = "stop"
	opExpire = "expire"
	opDelete = "delete"
)

const maxSPI = 0xffff

var errSPIExhausted = errors.New("no unused SPI left")

// CreateOptions tune Create.
type CreateOptions struct {
	// Overwrite replaces an SA that already holds the identity.
	Overwrite bool
}

// StartResult is the outcome of a successful Start.
type StartResult struct {
	SA *types.SecurityAssociation
	// Stopped lists SAs moved back to Keyed to free the GVCID.
	Stopped []*types.SecurityAssociation
}

// Manager owns every mutation of one frame type's SAs. All mutations are
// serialised, which makes the uniqueness check, SPI assignment and the
// GVCID read-check-write of Start a critical section.
type Manager struct {
	store    store.Store
	engine   *validation.Engine
	resolver *gvcid.Resolver
	tel      *telemetry
	log      *zap.SugaredLogger
	ft       types.FrameType
	mu       sync.Mutex
}

func New(ft types.FrameType, st store.Store, opts ...Option) (*Manager, error) {
	if !ft.Concrete() {
		return nil, fmt.Errorf("lifecycle manager needs a concrete frame type, got %s", ft)
	}

	o := options{defaults: types.DefaultDefaults()}
	for _, opt := range opts {
		opt(&o)
	}

	tel, err := newTelemetry(ft, o)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	return &Manager{
		ft:       ft,
		store:    st,
		engine:   validation.New(o.defaults),
		resolver: gvcid.NewResolver(st),
		tel:      tel,
		log:      zap.S().Named("lifecycle").With("type", ft.String()),
	}, nil
}

func (m *Manager) FrameType() types.FrameType { return m.ft }

func (m *Manager) Get(ctx context.Context, scid, spi uint16) (*types.SecurityAssociation, error) {
	return m.store.Get(ctx, scid, spi)
}

func (m *Manager) List(ctx context.Context, f store.Filter) ([]*types.SecurityAssociation, error) {
	return m.store.List(ctx, f)
}

// Create validates p into a new SA. A missing SPI is assigned the lowest
// unused value for the SCID. The SA starts Keyed when a key reference is
// bound, else Unkeyed.
func (m *Manager) Create(ctx context.Context, p types.Params, opts CreateOptions) (sa *types.SecurityAssociation, err error) {
	ctx, done := m.tel.begin(ctx, opCreate)
	defer func() { done(err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if p.SPI == nil && p.SCID != nil && *p.SCID >= 0 && *p.SCID <= maxSPI {
		spi, err := m.nextSPI(ctx, uint16(*p.SCID)) //nolint:gosec
		if err != nil {
			return nil, err
		}
		p.SPI = types.Int(int(spi))
	}

	rec, err := m.engine.Apply(m.ft, nil, p, validation.OpCreate)
	if err != nil {
		return nil, err
	}
	rec.State = types.SAStateUnkeyed
	if rec.HasKeys() {
		rec.State = types.SAStateKeyed
	}

	_, err = m.store.Get(ctx, rec.SCID, rec.SPI)
	switch {
	case err == nil && !opts.Overwrite:
		return nil, &DuplicateError{ID: rec.Identity()}
	case err == nil:
		if err := m.store.Update(ctx, rec); err != nil {
			return nil, err
		}
		m.log.Infow("SA overwritten", "spi", rec.SPI, "scid", rec.SCID, "state", rec.State.String())
		return rec, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	if err := m.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, store.ErrExists) {
			return nil, &DuplicateError{ID: rec.Identity()}
		}
		return nil, err
	}
	m.log.Infow("SA created", "spi", rec.SPI, "scid", rec.SCID, "state", rec.State.String())
	return rec, nil
}

func (m *Manager) nextSPI(ctx context.Context, scid uint16) (uint16, error) {
	existing, err := m.store.List(ctx, store.Filter{SCID: &scid})
	if err != nil {
		return 0, err
	}
	used := make(map[uint16]struct{}, len(existing))
	for _, sa := range existing {
		used[sa.SPI] = struct{}{}
	}
	for spi := 1; spi <= maxSPI; spi++ {
		if _, ok := used[uint16(spi)]; !ok { //nolint:gosec
			return uint16(spi), nil //nolint:gosec
		}
	}
	return 0, fmt.Errorf("%s SCID %d: %w", m.ft, scid, errSPIExhausted)
}

// Update merges p into the SA. Binding a key reference on an Unkeyed SA
// promotes it to Keyed. Moving an Operational SA to another GVCID must not
// collide with an SA already operating there.
func (m *Manager) Update(ctx context.Context, scid, spi uint16, p types.Params) (sa *types.SecurityAssociation, err error) {
	ctx, done := m.tel.begin(ctx, opUpdate, idAttrs(scid, spi)...)
	defer func() { done(err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	base, err := m.store.Get(ctx, scid, spi)
	if err != nil {
		return nil, err
	}
	rec, err := m.engine.Apply(m.ft, base, p, validation.OpUpdate)
	if err != nil {
		return nil, err
	}
	if rec.State == types.SAStateUnkeyed && p.TouchesKeys() && rec.HasKeys() {
		rec.State = types.SAStateKeyed
	}
	if rec.State == types.SAStateOperational && rec.GVCID() != base.GVCID() {
		if _, err := m.resolver.CheckStart(ctx, rec, false); err != nil {
			return nil, err
		}
	}

	if err := m.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	m.log.Infow("SA updated", "spi", spi, "scid", scid, "state", rec.State.String())
	return rec, nil
}

// Key binds or replaces key references and promotes an Unkeyed SA to Keyed.
func (m *Manager) Key(ctx context.Context, scid, spi uint16, p types.Params) (sa *types.SecurityAssociation, err error) {
	ctx, done := m.tel.begin(ctx, opKey, idAttrs(scid, spi)...)
	defer func() { done(err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	base, err := m.store.Get(ctx, scid, spi)
	if err != nil {
		return nil, err
	}
	rec, err := m.engine.Apply(m.ft, base, p, validation.OpKey)
	if err != nil {
		return nil, err
	}
	if rec.State == types.SAStateUnkeyed {
		rec.State = types.SAStateKeyed
	}

	if err := m.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	m.log.Infow("SA rekeyed", "spi", spi, "scid", scid, "ekid", rec.EKID, "akid", rec.AKID)
	return rec, nil
}

// Start makes a Keyed SA Operational. An SA holding the same GVCID blocks
// the start unless force is set, in which case it is stopped first.
// Starting an Operational SA is a no-op.
func (m *Manager) Start(ctx context.Context, scid, spi uint16, force bool) (res *StartResult, err error) {
	ctx, done := m.tel.begin(ctx, opStart, idAttrs(scid, spi)...)
	defer func() { done(err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.Get(ctx, scid, spi)
	if err != nil {
		return nil, err
	}
	switch rec.State {
	case types.SAStateOperational:
		return &StartResult{SA: rec}, nil
	case types.SAStateKeyed:
	default:
		return nil, &StateError{
			ID:    rec.Identity(),
			Op:    opStart,
			State: rec.State,
			Want:  []types.SAState{types.SAStateKeyed},
		}
	}

	stopped, err := m.resolver.CheckStart(ctx, rec, force)
	if err != nil {
		return nil, err
	}

	rec.State = types.SAStateOperational
	if err := m.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	for _, s := range stopped {
		m.log.Infow("SA stopped to free GVCID", "spi", s.SPI, "scid", s.SCID, "for", spi)
	}
	m.log.Infow("SA started", "spi", spi, "scid", scid, "gvcid", rec.GVCID().String())
	return &StartResult{SA: rec, Stopped: stopped}, nil
}

// Stop returns an Operational SA to Keyed.
func (m *Manager) Stop(ctx context.Context, scid, spi uint16) (sa *types.SecurityAssociation, err error) {
	ctx, done := m.tel.begin(ctx, opStop, idAttrs(scid, spi)...)
	defer func() { done(err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.Get(ctx, scid, spi)
	if err != nil {
		return nil, err
	}
	if rec.State != types.SAStateOperational {
		return nil, &StateError{
			ID:    rec.Identity(),
			Op:    opStop,
			State: rec.State,
			Want:  []types.SAState{types.SAStateOperational},
		}
	}

	rec.State = types.SAStateKeyed
	if err := m.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	m.log.Infow("SA stopped", "spi", spi, "scid", scid)
	return rec, nil
}

// Expire drops the SA to Unkeyed from any state. Key references are kept
// for audit; a later Key re-promotes it.
func (m *Manager) Expire(ctx context.Context, scid, spi uint16) (sa *types.SecurityAssociation, err error) {
	ctx, done := m.tel.begin(ctx, opExpire, idAttrs(scid, spi)...)
	defer func() { done(err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.Get(ctx, scid, spi)
	if err != nil {
		return nil, err
	}

	prev := rec.State
	rec.State = types.SAStateUnkeyed
	if err := m.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	m.log.Infow("SA expired", "spi", spi, "scid", scid, "from", prev.String())
	return rec, nil
}

// Delete removes each SPI under scid independently. It returns the SPIs
// that were removed and the combined error of those that were not.
func (m *Manager) Delete(ctx context.Context, scid uint16, spis ...uint16) ([]uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		deleted []uint16
		errs    error
	)
	for _, spi := range spis {
		if err := m.deleteOne(ctx, scid, spi); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		deleted = append(deleted, spi)
	}
	return deleted, errs
}

func (m *Manager) deleteOne(ctx context.Context, scid, spi uint16) (err error) {
	ctx, done := m.tel.begin(ctx, opDelete, idAttrs(scid, spi)...)
	defer func() { done(err) }()

	if err := m.store.Delete(ctx, scid, spi); err != nil {
		return err
	}
	m.log.Infow("SA deleted", "spi", spi, "scid", scid)
	return nil
}
