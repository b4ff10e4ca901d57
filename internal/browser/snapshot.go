package browser

import (
	"context"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"claimexport/internal/config"
)

// Snapshot stands in for a live tab when working from saved page HTML.
// It exposes the table but no row ever opens a popup.
type Snapshot struct {
	doc *goquery.Document
	sel config.Selectors
}

func LoadSnapshot(path string, sel config.Selectors) (*Snapshot, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(string(blob), sel)
}

func NewSnapshot(html string, sel config.Selectors) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &Snapshot{doc: doc, sel: sel}, nil
}

func (s *Snapshot) TableHTML(context.Context) (string, bool, error) {
	table := s.doc.Find(s.sel.Table).First()
	if table.Length() == 0 {
		return "", false, nil
	}
	html, err := goquery.OuterHtml(table)
	if err != nil {
		return "", false, err
	}
	return html, true, nil
}

func (s *Snapshot) ClickView(context.Context, int) (bool, error) { return false, nil }

func (s *Snapshot) FrameImages(context.Context) ([]string, bool, error) { return nil, false, nil }

func (s *Snapshot) DialogOpen(context.Context) (bool, error) { return false, nil }

func (s *Snapshot) PressEscape(context.Context) error { return nil }

func (s *Snapshot) ClickClose(context.Context) error { return nil }

func (s *Snapshot) RemoveDialogs(context.Context) error { return nil }
