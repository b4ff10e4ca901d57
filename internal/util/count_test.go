package util

import "testing"

func TestParseCount(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  int
	}{
		{name: "plain", input: "12", want: 12},
		{name: "with unit", input: "3 件", want: 3},
		{name: "thousand with space", input: "1 200", want: 1200},
		{name: "thousand with comma", input: "1,200 pcs", want: 1200},
		{name: "nbsp", input: "\u00a07\u00a0", want: 7},
		{name: "zero", input: "0", want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseCount(tc.input)
			if got == nil {
				t.Fatalf("count is nil")
			}
			if *got != tc.want {
				t.Fatalf("got %v want %v", *got, tc.want)
			}
		})
	}
}

func TestParseCountMissing(t *testing.T) {
	if got := ParseCount("n/a"); got != nil {
		t.Fatalf("got %v", *got)
	}
}

func TestMarkupLines(t *testing.T) {
	lines := MarkupLines("Fragile<br>  handle&nbsp;with care <br/><span>call first</span>")
	if len(lines) != 3 {
		t.Fatalf("lines=%q", lines)
	}
	if lines[1] != "handle with care" {
		t.Fatalf("line1=%q", lines[1])
	}
}

func TestJoinLines(t *testing.T) {
	got := JoinLines("a\r\n\n b \nc", " | ")
	if got != "a | b | c" {
		t.Fatalf("got %q", got)
	}
}
