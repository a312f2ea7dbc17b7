// Package report renders scan results as plain text.
package report

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"triscan/internal/model"
)

// WriteResults prints one line per cycle in scan order, "TOKEN|INTERMEDIATE|FIAT: <multiple>",
// with "unavailable" in place of the multiple for cycles that could not be priced.
func WriteResults(w io.Writer, results []model.CycleResult) error {
	bw := bufio.NewWriter(w)
	for _, res := range results {
		value := string(model.CycleUnavailable)
		if res.Available() {
			value = strconv.FormatFloat(res.ProfitMultiple, 'f', -1, 64)
		}
		if _, err := fmt.Fprintf(bw, "%s: %s\n", res.Cycle, value); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteLines prints items one per line followed by a count, as used for pair and asset listings.
func WriteLines(w io.Writer, items []string) error {
	bw := bufio.NewWriter(w)
	for _, item := range items {
		if _, err := fmt.Fprintln(bw, item); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(bw, len(items)); err != nil {
		return err
	}
	return bw.Flush()
}
