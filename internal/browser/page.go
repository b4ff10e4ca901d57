package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"claimexport/internal/config"
)

var ErrCloseControlMissing = errors.New("dialog close control not found")

type scripts struct {
	sel config.Selectors

	tableHTML     string
	dialogOpen    string
	frameImages   string
	clickClose    string
	removeDialogs string
}

func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSpace(buf.String())
}

func newScripts(sel config.Selectors) scripts {
	return scripts{
		sel: sel,
		// Checkbox state lives in the DOM property, not the attribute, so it
		// is copied onto a clone before serializing.
		tableHTML: fmt.Sprintf(`(() => {
	const table = document.querySelector(%s);
	if (!table) return "";
	const clone = table.cloneNode(true);
	const live = table.querySelectorAll('input[type="checkbox"]');
	clone.querySelectorAll('input[type="checkbox"]').forEach((cb, i) => {
		if (live[i] && live[i].checked) cb.setAttribute("checked", "checked");
		else cb.removeAttribute("checked");
	});
	return clone.outerHTML;
})()`, quote(sel.Table)),
		dialogOpen: fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).some(el => getComputedStyle(el).display !== "none" && el.getClientRects().length > 0)`, quote(sel.Dialog)),
		frameImages: fmt.Sprintf(`(() => {
	const frame = document.querySelector(%s);
	if (!frame) return {found: false, srcs: []};
	let doc = null;
	try { doc = frame.contentDocument || (frame.contentWindow && frame.contentWindow.document); } catch (e) { doc = null; }
	if (!doc) return {found: false, srcs: []};
	const srcs = Array.from(doc.querySelectorAll(%s)).map(img => img.currentSrc || img.src || img.getAttribute("src") || "");
	return {found: true, srcs};
})()`, quote(sel.Frame), quote(sel.FrameImages)),
		clickClose: fmt.Sprintf(`(() => {
	const btn = document.querySelector(%s);
	if (!btn) return false;
	const opts = {bubbles: true, cancelable: true, view: window};
	btn.dispatchEvent(new MouseEvent("mousedown", opts));
	btn.dispatchEvent(new MouseEvent("mouseup", opts));
	btn.dispatchEvent(new MouseEvent("click", opts));
	return true;
})()`, quote(sel.CloseButton)),
		removeDialogs: fmt.Sprintf(`(() => {
	let n = 0;
	document.querySelectorAll(%s + "," + %s).forEach(el => { el.remove(); n++; });
	return n;
})()`, quote(sel.Dialog), quote(sel.Overlay)),
	}
}

func (sc scripts) clickView(row int) string {
	return fmt.Sprintf(`(() => {
	const table = document.querySelector(%s);
	if (!table) return false;
	const row = table.querySelectorAll(%s)[%d];
	if (!row) return false;
	const btn = row.querySelector(%s);
	if (!btn) return false;
	btn.click();
	return true;
})()`, quote(sc.sel.Table), quote(sc.sel.Row), row, quote(sc.sel.ViewButton))
}

// TableHTML snapshots the claims table. found is false when the table is absent.
func (s *Session) TableHTML(ctx context.Context) (string, bool, error) {
	var html string
	if err := s.eval(ctx, s.scripts.tableHTML, &html); err != nil {
		return "", false, err
	}
	return html, html != "", nil
}

func (s *Session) ClickView(ctx context.Context, row int) (bool, error) {
	var clicked bool
	if err := s.eval(ctx, s.scripts.clickView(row), &clicked); err != nil {
		return false, err
	}
	return clicked, nil
}

type frameSnapshot struct {
	Found bool     `json:"found"`
	Srcs  []string `json:"srcs"`
}

func (s *Session) FrameImages(ctx context.Context) ([]string, bool, error) {
	var snap frameSnapshot
	if err := s.eval(ctx, s.scripts.frameImages, &snap); err != nil {
		return nil, false, err
	}
	return snap.Srcs, snap.Found, nil
}

func (s *Session) DialogOpen(ctx context.Context) (bool, error) {
	var open bool
	if err := s.eval(ctx, s.scripts.dialogOpen, &open); err != nil {
		return false, err
	}
	return open, nil
}

// PressEscape sends a trusted Escape key press through the input domain.
func (s *Session) PressEscape(ctx context.Context) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		down := input.DispatchKeyEvent(input.KeyDown).
			WithKey("Escape").
			WithCode("Escape").
			WithWindowsVirtualKeyCode(27).
			WithNativeVirtualKeyCode(27)
		if err := down.Do(ctx); err != nil {
			return err
		}
		return input.DispatchKeyEvent(input.KeyUp).
			WithKey("Escape").
			WithCode("Escape").
			WithWindowsVirtualKeyCode(27).
			WithNativeVirtualKeyCode(27).
			Do(ctx)
	}))
}

func (s *Session) ClickClose(ctx context.Context) error {
	var clicked bool
	if err := s.eval(ctx, s.scripts.clickClose, &clicked); err != nil {
		return err
	}
	if !clicked {
		return ErrCloseControlMissing
	}
	return nil
}

func (s *Session) RemoveDialogs(ctx context.Context) error {
	var removed int
	return s.eval(ctx, s.scripts.removeDialogs, &removed)
}
