package pipeline

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"claimexport/internal"
	"claimexport/internal/util"
)

const (
	minCells = 8

	cellCheckbox   = 0
	cellMain       = 1
	cellTimestamps = 5
	cellNotes      = 6

	notesSeparator = " | "
)

// fieldRule pulls one field out of a cell's markup. A miss leaves the field
// empty and never affects the other fields.
type fieldRule struct {
	name    string
	cell    int
	pattern *regexp.Regexp
	set     func(*internal.RowRecord, string)
}

func labelPattern(labels string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:` + labels + `)\s*[:：]\s*([^\n]*)`)
}

var fieldRules = []fieldRule{
	{
		name:    "packages",
		cell:    cellMain,
		pattern: labelPattern(`packages?|pkgs?|qty|件数|包裹数`),
		set: func(r *internal.RowRecord, v string) {
			r.Packages = util.ParseCount(v)
		},
	},
	{
		name:    "reference_no",
		cell:    cellMain,
		pattern: labelPattern(`ref(?:erence)?(?:\s*no\.?)?|参考号`),
		set:     func(r *internal.RowRecord, v string) { r.ReferenceNo = v },
	},
	{
		name:    "valid_at",
		cell:    cellTimestamps,
		pattern: labelPattern(`valid(?:\s*until)?|有效期`),
		set:     func(r *internal.RowRecord, v string) { r.ValidAt = v },
	},
	{
		name:    "claimed_at",
		cell:    cellTimestamps,
		pattern: labelPattern(`claimed(?:\s*at)?|claim\s*time|认领时间`),
		set:     func(r *internal.RowRecord, v string) { r.ClaimedAt = v },
	},
	{
		name:    "created_at",
		cell:    cellTimestamps,
		pattern: labelPattern(`created(?:\s*at)?|创建时间`),
		set:     func(r *internal.RowRecord, v string) { r.CreatedAt = v },
	},
	{
		name:    "completed_at",
		cell:    cellTimestamps,
		pattern: labelPattern(`completed(?:\s*at)?|完成时间`),
		set:     func(r *internal.RowRecord, v string) { r.CompletedAt = v },
	},
	{
		name:    "updated_at",
		cell:    cellTimestamps,
		pattern: labelPattern(`updated(?:\s*at)?|更新时间`),
		set:     func(r *internal.RowRecord, v string) { r.UpdatedAt = v },
	},
}

// ExtractRow reads one claims table row. ok is false when the row has too few
// cells or no claim id.
func ExtractRow(row *goquery.Selection) (internal.RowRecord, bool) {
	cells := row.ChildrenFiltered("td")
	if cells.Length() < minCells {
		return internal.RowRecord{}, false
	}

	main := cells.Eq(cellMain)
	bold := main.Find("b, strong")
	record := internal.RowRecord{
		ClaimID:    util.NormalizeSpaces(bold.Eq(0).Text()),
		Warehouse:  util.NormalizeSpaces(bold.Eq(1).Text()),
		TrackingNo: util.NormalizeSpaces(main.Find(".tracking-no").First().Text()),
	}
	if record.ClaimID == "" {
		return internal.RowRecord{}, false
	}

	lines := map[int]string{}
	for _, rule := range fieldRules {
		text, ok := lines[rule.cell]
		if !ok {
			text = cellText(cells.Eq(rule.cell))
			lines[rule.cell] = text
		}
		if m := rule.pattern.FindStringSubmatch(text); len(m) > 1 {
			if v := util.NormalizeSpaces(m[1]); v != "" {
				rule.set(&record, v)
			}
		}
	}

	record.Notes = extractNotes(cells.Eq(cellNotes))
	return record, true
}

// IsChecked reports whether the row's selection checkbox is ticked, either as
// a native input or as a widget wrapper marked is-checked.
func IsChecked(row *goquery.Selection) bool {
	cell := row.ChildrenFiltered("td").Eq(cellCheckbox)
	if cell.Length() == 0 {
		return false
	}
	if cell.Find(`input[type="checkbox"][checked]`).Length() > 0 {
		return true
	}
	return cell.Find(".is-checked").Length() > 0 || cell.HasClass("is-checked")
}

func cellText(cell *goquery.Selection) string {
	html, err := cell.Html()
	if err != nil {
		return util.NormalizeSpaces(cell.Text())
	}
	return strings.Join(util.MarkupLines(html), "\n")
}

func extractNotes(cell *goquery.Selection) string {
	html, err := cell.Html()
	if err != nil {
		return util.NormalizeSpaces(cell.Text())
	}
	lines := util.MarkupLines(html)
	if len(lines) > 0 {
		if m := notesLabel.FindStringSubmatch(lines[0]); len(m) > 1 {
			lines[0] = util.NormalizeSpaces(m[1])
			if lines[0] == "" {
				lines = lines[1:]
			}
		}
	}
	return strings.Join(lines, notesSeparator)
}

var notesLabel = regexp.MustCompile(`(?i)^(?:notes?|remarks?|备注)\s*[:：]\s*(.*)$`)
