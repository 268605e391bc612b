// Package batch applies bulk create or update requests row by row.
package batch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sambigeara/sadb/pkg/lifecycle"
	"github.com/sambigeara/sadb/pkg/router"
	"github.com/sambigeara/sadb/pkg/sacsv"
	"github.com/sambigeara/sadb/pkg/types"
)

type Kind int

const (
	KindCreate Kind = iota
	KindUpdate
)

func (k Kind) String() string {
	if k == KindUpdate {
		return "update"
	}
	return "create"
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "create":
		return KindCreate, nil
	case "update":
		return KindUpdate, nil
	default:
		return 0, fmt.Errorf("unknown batch operation %q (use: create|update)", s)
	}
}

type Options struct {
	// Type applies to rows without a type column. FrameTypeAll requires
	// every row to name its own type.
	Type types.FrameType
	// Force lets create overwrite existing identities.
	Force bool
}

// Result is the outcome of one row.
type Result struct {
	Err  error
	SA   *types.SecurityAssociation
	Line int
	Type types.FrameType
}

type Report struct {
	Results []Result
	Kind    Kind
}

func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Err combines the row failures in input order, or returns nil when every
// row succeeded.
func (r *Report) Err() error {
	var err error
	for _, res := range r.Results {
		if res.Err != nil {
			err = multierr.Append(err, fmt.Errorf("line %d: %w", res.Line, res.Err))
		}
	}
	return err
}

var (
	errNoType     = errors.New("row has no type and the batch type is ALL")
	errNoIdentity = errors.New("update rows need scid and spi")
)

// Apply runs rows sequentially through r. A failing row never stops the
// rows after it.
func Apply(ctx context.Context, r *router.Router, rows []sacsv.Row, kind Kind, opts Options) *Report {
	log := zap.S().Named("batch")
	rep := &Report{Kind: kind, Results: make([]Result, 0, len(rows))}

	for _, row := range rows {
		res := Result{Line: row.Line, Type: row.Type}
		if res.Type == types.FrameTypeUnspecified {
			res.Type = opts.Type
		}

		switch {
		case row.Err != nil:
			res.Err = row.Err
		case res.Type == types.FrameTypeAll || res.Type == types.FrameTypeUnspecified:
			res.Err = errNoType
		case kind == KindCreate:
			res.SA, res.Err = r.Create(ctx, res.Type, row.Params, lifecycle.CreateOptions{Overwrite: opts.Force})
		default:
			res.SA, res.Err = update(ctx, r, res.Type, row.Params)
		}

		if res.Err != nil {
			log.Debugw("batch row failed", "line", res.Line, "op", kind.String(), "err", res.Err)
		}
		rep.Results = append(rep.Results, res)
	}

	log.Infow("batch applied", "op", kind.String(), "rows", len(rows), "failed", rep.Failed())
	return rep
}

func update(ctx context.Context, r *router.Router, ft types.FrameType, p types.Params) (*types.SecurityAssociation, error) {
	if p.SCID == nil || p.SPI == nil {
		return nil, errNoIdentity
	}
	scid, spi := *p.SCID, *p.SPI
	if scid < 0 || scid > 0xffff || spi < 0 || spi > 0xffff {
		return nil, fmt.Errorf("scid %d / spi %d out of range", scid, spi)
	}
	return r.Update(ctx, ft, uint16(scid), uint16(spi), p) //nolint:gosec
}
