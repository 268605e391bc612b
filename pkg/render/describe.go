package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sambigeara/sadb/pkg/types"
)

type section struct {
	title string
	rows  [][]string
}

const (
	rowSection = iota
	rowData
	rowSpacer
)

func describeSection(sa *types.SecurityAssociation) section {
	itoa := strconv.Itoa
	orDash := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}

	sec := section{title: sa.Identity().String()}
	add := func(k, v string) { sec.rows = append(sec.rows, []string{k, v}) }

	add("state", sa.State.String())
	add("service", fmt.Sprintf("%s (est=%t ast=%t)", sa.ServiceType, sa.EST(), sa.AST()))
	add("gvcid", sa.GVCID().String())
	add("ekid", orDash(sa.EKID))
	add("ecs", orDash(sa.ECS.String()))
	add("iv", fmt.Sprintf("%s (%d bytes)", orDash(sa.IV.String()), sa.IVLen))
	add("akid", orDash(sa.AKID))
	add("acs", orDash(sa.ACS.String()))
	add("header", fmt.Sprintf("shivf=%d shsnf=%d shplf=%d", sa.SHIVFLen, sa.SHSNFLen, sa.SHPLFLen))
	add("trailer", "stmacf="+itoa(sa.STMACFLen))
	add("arsn", fmt.Sprintf("%s (%d bytes, window %d)", orDash(sa.ARSN.String()), sa.ARSNLen, sa.ARSNW))
	add("abm", fmt.Sprintf("%s (%d bytes)", orDash(sa.ABM.String()), sa.ABMLen))
	return sec
}

// Describe prints one titled key/value section per SA.
func Describe(w io.Writer, sas []*types.SecurityAssociation) {
	if len(sas) == 0 {
		fmt.Fprintln(w, "no security associations")
		return
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false)

	var rowKinds []int
	for i, sa := range sas {
		sec := describeSection(sa)
		if i > 0 {
			t.Row("", "")
			rowKinds = append(rowKinds, rowSpacer)
		}
		t.Row(sec.title, "")
		rowKinds = append(rowKinds, rowSection)
		for _, r := range sec.rows {
			t.Row(r...)
			rowKinds = append(rowKinds, rowData)
		}
	}

	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")).PaddingRight(2)
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingRight(2)
	dataStyle := lipgloss.NewStyle().PaddingRight(2)

	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row < 0 || row >= len(rowKinds) {
			return dataStyle
		}
		switch {
		case rowKinds[row] == rowSection:
			return sectionStyle
		case rowKinds[row] == rowData && col == 0:
			return keyStyle
		default:
			return dataStyle
		}
	})

	fmt.Fprintln(w, t)
}
