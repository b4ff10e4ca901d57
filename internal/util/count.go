package util

import (
	"regexp"
	"strconv"
	"strings"
)

var countPattern = regexp.MustCompile(`\d{1,3}(?:[\s,]\d{3})+|\d+`)

// ParseCount reads the first non-negative integer in input. Thousands
// separators (space or comma) are accepted.
func ParseCount(input string) *int {
	line := strings.ReplaceAll(input, "\u00a0", " ")
	m := countPattern.FindString(line)
	if m == "" {
		return nil
	}
	compact := strings.NewReplacer(" ", "", "\u00a0", "", ",", "").Replace(m)
	n, err := strconv.Atoi(compact)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
