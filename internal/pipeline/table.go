package pipeline

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"claimexport/internal"
)

// EligibleRow is a checked, well-formed row plus its position among all table
// rows, which is how the live page addresses it.
type EligibleRow struct {
	Index  int
	Record internal.RowRecord
}

func ScanTable(tableHTML, rowSelector string) ([]EligibleRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tableHTML))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rowSelector) == "" {
		rowSelector = "tbody > tr"
	}

	out := []EligibleRow{}
	doc.Find("table").First().Find(rowSelector).Each(func(i int, row *goquery.Selection) {
		if !IsChecked(row) {
			return
		}
		record, ok := ExtractRow(row)
		if !ok {
			return
		}
		out = append(out, EligibleRow{Index: i, Record: record})
	})
	return out, nil
}
