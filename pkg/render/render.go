// Package render writes SAs as CSV, JSON or a describe table.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sambigeara/sadb/pkg/sacsv"
	"github.com/sambigeara/sadb/pkg/types"
)

type Format string

const (
	FormatCSV      Format = "csv"
	FormatDescribe Format = "describe"
	FormatJSON     Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatDescribe, FormatJSON:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown format %q (use: csv|describe|json)", s)
	}
}

func Write(w io.Writer, f Format, sas []*types.SecurityAssociation) error {
	switch f {
	case FormatCSV:
		return sacsv.Write(w, sas)
	case FormatDescribe:
		Describe(w, sas)
		return nil
	case FormatJSON:
		if sas == nil {
			sas = []*types.SecurityAssociation{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sas)
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}
