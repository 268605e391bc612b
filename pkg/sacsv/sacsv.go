// Package sacsv reads bulk SA requests from CSV and writes SAs back out in
// the same column layout.
package sacsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/sambigeara/sadb/pkg/types"
)

// Header is the export column order. Import accepts any subset in any order.
var Header = []string{
	"type", "spi", "scid", "vcid", "tfvn", "mapid", "sa_state", "service_type", "est", "ast",
	"ekid", "ecs", "ecs_len", "iv", "iv_len", "akid", "acs", "acs_len",
	"shivf_len", "shsnf_len", "shplf_len", "stmacf_len",
	"arsn", "arsn_len", "arsnw", "abm", "abm_len",
}

var ErrNoHeader = errors.New("csv input has no header row")

// Row is one decoded data row. Line is 1-based and counts the header.
type Row struct {
	Err    error
	Params types.Params
	Line   int
	Type   types.FrameType
}

type setter func(r *Row, v string) error

func intCol(dst func(*types.Params) **int) setter {
	return func(r *Row, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%q is not an integer", v)
		}
		*dst(&r.Params) = &n
		return nil
	}
}

func strCol(dst func(*types.Params) **string) setter {
	return func(r *Row, v string) error {
		*dst(&r.Params) = &v
		return nil
	}
}

func boolCol(dst func(*types.Params) **bool) setter {
	return func(r *Row, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%q is not a boolean", v)
		}
		*dst(&r.Params) = &b
		return nil
	}
}

// sa_state is derived, so it is accepted for round trips and ignored.
var columns = map[string]setter{
	"type": func(r *Row, v string) error {
		ft, err := types.ParseFrameType(v)
		if err != nil {
			return err
		}
		r.Type = ft
		return nil
	},
	"spi":          intCol(func(p *types.Params) **int { return &p.SPI }),
	"scid":         intCol(func(p *types.Params) **int { return &p.SCID }),
	"vcid":         intCol(func(p *types.Params) **int { return &p.VCID }),
	"tfvn":         intCol(func(p *types.Params) **int { return &p.TFVN }),
	"mapid":        intCol(func(p *types.Params) **int { return &p.MAPID }),
	"sa_state":     func(*Row, string) error { return nil },
	"service_type": strCol(func(p *types.Params) **string { return &p.ServiceType }),
	"est":          boolCol(func(p *types.Params) **bool { return &p.EST }),
	"ast":          boolCol(func(p *types.Params) **bool { return &p.AST }),
	"ekid":         strCol(func(p *types.Params) **string { return &p.EKID }),
	"ecs":          strCol(func(p *types.Params) **string { return &p.ECS }),
	"ecs_len":      intCol(func(p *types.Params) **int { return &p.ECSLen }),
	"iv":           strCol(func(p *types.Params) **string { return &p.IV }),
	"iv_len":       intCol(func(p *types.Params) **int { return &p.IVLen }),
	"akid":         strCol(func(p *types.Params) **string { return &p.AKID }),
	"acs":          strCol(func(p *types.Params) **string { return &p.ACS }),
	"acs_len":      intCol(func(p *types.Params) **int { return &p.ACSLen }),
	"shivf_len":    intCol(func(p *types.Params) **int { return &p.SHIVFLen }),
	"shsnf_len":    intCol(func(p *types.Params) **int { return &p.SHSNFLen }),
	"shplf_len":    intCol(func(p *types.Params) **int { return &p.SHPLFLen }),
	"stmacf_len":   intCol(func(p *types.Params) **int { return &p.STMACFLen }),
	"arsn":         strCol(func(p *types.Params) **string { return &p.ARSN }),
	"arsn_len":     intCol(func(p *types.Params) **int { return &p.ARSNLen }),
	"arsnw":        intCol(func(p *types.Params) **int { return &p.ARSNW }),
	"abm":          strCol(func(p *types.Params) **string { return &p.ABM }),
	"abm_len":      intCol(func(p *types.Params) **int { return &p.ABMLen }),
}

// Read decodes every data row of r. Header problems and malformed CSV fail
// the whole read; bad cells and rows of the wrong width are attached to their
// row's Err.
func Read(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	sets := make([]setter, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		s, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("unknown column %q", h)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		seen[name] = true
		sets[i] = s
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		line, _ := cr.FieldPos(0)
		row := Row{Line: line}
		if len(rec) != len(header) {
			row.Err = fmt.Errorf("row has %d fields, header has %d", len(rec), len(header))
			rows = append(rows, row)
			continue
		}
		for i, cell := range rec {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if err := sets[i](&row, cell); err != nil {
				row.Err = multierr.Append(row.Err, fmt.Errorf("column %s: %w", strings.TrimSpace(header[i]), err))
			}
		}
		rows = append(rows, row)
	}
}

// Write emits Header followed by one row per SA.
func Write(w io.Writer, sas []*types.SecurityAssociation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, sa := range sas {
		if err := cw.Write(record(sa)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func record(sa *types.SecurityAssociation) []string {
	itoa := strconv.Itoa
	// Lengths of absent values are left blank so the row re-imports cleanly.
	lenOf := func(b types.HexBytes, n int) string {
		if len(b) == 0 {
			return ""
		}
		return itoa(n)
	}

	return []string{
		strings.ToLower(sa.Type.String()),
		itoa(int(sa.SPI)),
		itoa(int(sa.SCID)),
		itoa(int(sa.VCID)),
		itoa(int(sa.TFVN)),
		itoa(int(sa.MAPID)),
		itoa(int(sa.State)),
		itoa(int(sa.ServiceType)),
		strconv.FormatBool(sa.EST()),
		strconv.FormatBool(sa.AST()),
		sa.EKID,
		sa.ECS.String(),
		lenOf(sa.ECS, sa.ECSLen),
		sa.IV.String(),
		itoa(sa.IVLen),
		sa.AKID,
		sa.ACS.String(),
		lenOf(sa.ACS, sa.ACSLen),
		itoa(sa.SHIVFLen),
		itoa(sa.SHSNFLen),
		itoa(sa.SHPLFLen),
		itoa(sa.STMACFLen),
		sa.ARSN.String(),
		itoa(sa.ARSNLen),
		itoa(sa.ARSNW),
		sa.ABM.String(),
		lenOf(sa.ABM, sa.ABMLen),
	}
}
