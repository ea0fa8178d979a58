package creator

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

const (
	minIDWidth  = len("CreatorId") + 2
	minFeeWidth = len("Fee") + 2
)

// WriteTable prints creators as a text table sorted by creator id:
//
//	+- CreatorId -+- Fee --+- Name ------- - -
//	| alice       |   500$ | Alice
//	+-------------+--------+------------ - -
func WriteTable(w io.Writer, creators []Creator) error {
	sorted := slices.Clone(creators)
	slices.SortStableFunc(sorted, func(a, b Creator) int {
		return cmp.Compare(a.CreatorID, b.CreatorID)
	})

	idWidth, feeWidth := minIDWidth, minFeeWidth
	for _, c := range sorted {
		idWidth = max(idWidth, len(c.CreatorID))
		feeWidth = max(feeWidth, len(strconv.Itoa(c.Fee)))
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "+-%s-+-%s--+- Name ------- - -\n",
		padRight(" CreatorId ", idWidth, '-'), padRight(" Fee ", feeWidth, '-'))
	for _, c := range sorted {
		fmt.Fprintf(bw, "| %-*s | %*d$ | %s\n", idWidth, c.CreatorID, feeWidth, c.Fee, c.Name)
	}
	fmt.Fprintf(bw, "+-%s-+-%s--+------------ - -\n",
		strings.Repeat("-", idWidth), strings.Repeat("-", feeWidth))
	return bw.Flush()
}

func padRight(s string, width int, fill byte) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(string(fill), width-len(s))
}
