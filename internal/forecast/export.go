package forecast

import (
	"fmt"

	"github.com/wisdomcg/wisdom-forecast/internal/period"
)

// ExportRows formats lines into CSV-ready strings, one column per layout
// month plus an annual total.
func ExportRows(lines []Line, layout []period.Descriptor) [][]string {
	header := []string{"Category", "Sub-category", "Method"}
	keys := make([]period.MonthKey, 0, len(layout))
	for _, d := range layout {
		header = append(header, string(d.Key))
		keys = append(keys, d.Key)
	}
	header = append(header, "Total")

	out := make([][]string, 0, len(lines)+1)
	out = append(out, header)
	for _, line := range lines {
		row := []string{string(line.Category), line.SubCategory, line.Method.Describe()}
		var total float64
		for _, key := range keys {
			amount, ok := line.Amounts[key]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, fmt.Sprintf("%.0f", amount))
			total += amount
		}
		row = append(row, fmt.Sprintf("%.0f", total))
		out = append(out, row)
	}
	return out
}
