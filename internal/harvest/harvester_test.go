package harvest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"claimexport/internal/proxy"
	"claimexport/internal/transcode"
)

type fakePage struct {
	mu sync.Mutex

	hasView   bool
	clickErr  error
	frame     bool
	srcs      []string
	readyPoll int
	polls     int

	open        bool
	escapeFails bool
	buttonFails bool
	calls       []string
}

func (p *fakePage) record(name string) {
	p.calls = append(p.calls, name)
}

func (p *fakePage) ClickView(context.Context, int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("click_view")
	if p.clickErr != nil {
		p.open = true
		return false, p.clickErr
	}
	if !p.hasView {
		return false, nil
	}
	p.open = true
	return true, nil
}

func (p *fakePage) FrameImages(context.Context) ([]string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	if !p.frame {
		return nil, false, nil
	}
	if p.polls < p.readyPoll {
		return nil, true, nil
	}
	return p.srcs, true, nil
}

func (p *fakePage) DialogOpen(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open, nil
}

func (p *fakePage) PressEscape(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(StepEscape)
	if !p.escapeFails {
		p.open = false
	}
	return nil
}

func (p *fakePage) ClickClose(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(StepCloseButton)
	if p.buttonFails {
		return errors.New("close button not found")
	}
	p.open = false
	return nil
}

func (p *fakePage) RemoveDialogs(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(StepForcedRemove)
	p.open = false
	return nil
}

func (p *fakePage) closeCalls() []string {
	out := []string{}
	for _, c := range p.calls {
		if c != "click_view" {
			out = append(out, c)
		}
	}
	return out
}

type fakeProxy struct {
	images map[string]string
	fail   map[string]string
}

func (f *fakeProxy) Exchange(_ context.Context, req proxy.Request) (proxy.Response, error) {
	if msg, ok := f.fail[req.URL]; ok {
		return proxy.Response{Success: false, Error: msg}, nil
	}
	if uri, ok := f.images[req.URL]; ok {
		return proxy.Response{Success: true, Base64: uri}, nil
	}
	return proxy.Response{}, errors.New("no route")
}

func pngURI(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return transcode.EncodeDataURI("image/png", buf.Bytes())
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.SettleTimeout = 30 * time.Millisecond
	opts.CloseSettle = 10 * time.Millisecond
	opts.PollInterval = time.Millisecond
	return opts
}

func TestHarvestCollectsImages(t *testing.T) {
	page := &fakePage{hasView: true, frame: true, readyPoll: 3, srcs: []string{"https://img/1.png", "", "https://img/2.png"}}
	px := &fakeProxy{images: map[string]string{
		"https://img/1.png": pngURI(t, 800, 600),
		"https://img/2.png": pngURI(t, 40, 30),
	}}
	h := New(page, px, fastOptions(), nil)

	res, err := h.Harvest(context.Background(), 0, "CLM-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.FrameFound {
		t.Fatal("frame not found")
	}
	if len(res.Images) != 2 {
		t.Fatalf("images=%d", len(res.Images))
	}
	for i, img := range res.Images {
		if img.Index != i+1 || img.ClaimID != "CLM-1" || !img.OK() {
			t.Fatalf("image %d: %+v", i, img)
		}
		if !strings.HasPrefix(img.DataURI, "data:image/jpeg;base64,") {
			t.Fatalf("image %d not jpeg", i)
		}
	}
	if res.Images[1].SourceURL != "https://img/2.png" {
		t.Fatalf("order lost: %+v", res.Images[1])
	}
	want := []State{Idle, Triggered, AwaitingRender, Harvesting, Closing, Done}
	if len(res.Trace) != len(want) {
		t.Fatalf("trace=%v", res.Trace)
	}
	for i := range want {
		if res.Trace[i] != want[i] {
			t.Fatalf("trace=%v", res.Trace)
		}
	}
	if page.open {
		t.Fatal("dialog left open")
	}
}

func TestHarvestNoViewControl(t *testing.T) {
	page := &fakePage{}
	h := New(page, &fakeProxy{}, fastOptions(), nil)
	res, err := h.Harvest(context.Background(), 2, "CLM-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Images) != 0 {
		t.Fatalf("images=%d", len(res.Images))
	}
	if len(res.Trace) != 2 || res.Trace[0] != Idle || res.Trace[1] != Done {
		t.Fatalf("trace=%v", res.Trace)
	}
	if len(page.closeCalls()) != 0 {
		t.Fatalf("close attempted: %v", page.calls)
	}
}

func TestHarvestMissingFrame(t *testing.T) {
	page := &fakePage{hasView: true}
	h := New(page, &fakeProxy{}, fastOptions(), nil)
	res, err := h.Harvest(context.Background(), 0, "CLM-3")
	if err != nil {
		t.Fatal(err)
	}
	if res.FrameFound || len(res.Images) != 0 {
		t.Fatalf("res=%+v", res)
	}
	if !res.Close.Closed {
		t.Fatal("popup not closed")
	}
}

func TestHarvestImageFailureIsolated(t *testing.T) {
	page := &fakePage{hasView: true, frame: true, srcs: []string{"https://img/ok.png", "https://img/broken.png", "https://img/garbage.png"}}
	px := &fakeProxy{
		images: map[string]string{
			"https://img/ok.png":      pngURI(t, 10, 10),
			"https://img/garbage.png": transcode.EncodeDataURI("image/png", []byte("not an image")),
		},
		fail: map[string]string{"https://img/broken.png": "Failed to fetch"},
	}
	h := New(page, px, fastOptions(), nil)
	res, err := h.Harvest(context.Background(), 0, "CLM-4")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Images) != 3 {
		t.Fatalf("images=%d", len(res.Images))
	}
	if !res.Images[0].OK() {
		t.Fatalf("sibling affected: %+v", res.Images[0])
	}
	if res.Images[1].DataURI != "" || !strings.Contains(res.Images[1].Err, "Failed to fetch") {
		t.Fatalf("proxy failure not recorded: %+v", res.Images[1])
	}
	if res.Images[2].DataURI != "" || res.Images[2].Err == "" {
		t.Fatalf("decode failure not recorded: %+v", res.Images[2])
	}
}

func TestHarvestCapsImages(t *testing.T) {
	srcs := []string{}
	images := map[string]string{}
	uri := pngURI(t, 4, 4)
	for _, s := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		u := "https://img/" + s + ".png"
		srcs = append(srcs, u)
		images[u] = uri
	}
	page := &fakePage{hasView: true, frame: true, srcs: srcs}
	h := New(page, &fakeProxy{images: images}, fastOptions(), nil)
	res, err := h.Harvest(context.Background(), 0, "CLM-5")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Images) != 5 || res.Images[4].Index != 5 {
		t.Fatalf("images=%d", len(res.Images))
	}
}

func TestCloseChainStopsAfterEscape(t *testing.T) {
	page := &fakePage{open: true}
	h := New(page, &fakeProxy{}, fastOptions(), nil)
	report, err := h.ClosePopup(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !report.Closed || len(report.Steps) != 1 || report.Steps[0] != StepEscape {
		t.Fatalf("report=%+v", report)
	}
	calls := page.closeCalls()
	if len(calls) != 1 || calls[0] != StepEscape {
		t.Fatalf("calls=%v", calls)
	}
}

func TestCloseChainEscalates(t *testing.T) {
	page := &fakePage{open: true, escapeFails: true}
	h := New(page, &fakeProxy{}, fastOptions(), nil)
	report, _ := h.ClosePopup(context.Background())
	if !report.Closed || len(report.Steps) != 2 || report.Steps[1] != StepCloseButton {
		t.Fatalf("report=%+v", report)
	}

	page = &fakePage{open: true, escapeFails: true, buttonFails: true}
	h = New(page, &fakeProxy{}, fastOptions(), nil)
	report, _ = h.ClosePopup(context.Background())
	want := []string{StepEscape, StepCloseButton, StepForcedRemove}
	if !report.Closed || len(report.Steps) != 3 {
		t.Fatalf("report=%+v", report)
	}
	for i := range want {
		if report.Steps[i] != want[i] {
			t.Fatalf("steps=%v", report.Steps)
		}
	}
	if page.open {
		t.Fatal("dialog still open after forced removal")
	}
}

func TestCloseChainSkipsWhenAlreadyClosed(t *testing.T) {
	page := &fakePage{}
	h := New(page, &fakeProxy{}, fastOptions(), nil)
	report, _ := h.ClosePopup(context.Background())
	if !report.Closed || len(report.Steps) != 0 {
		t.Fatalf("report=%+v", report)
	}
}

func TestHarvestFailedClickStillCloses(t *testing.T) {
	page := &fakePage{clickErr: errors.New("element detached")}
	h := New(page, &fakeProxy{}, fastOptions(), nil)
	res, err := h.Harvest(context.Background(), 0, "CLM-6")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Images) != 0 || !res.Close.Closed || page.open {
		t.Fatalf("res=%+v open=%v", res, page.open)
	}
}

func TestHarvestSerializesDialogAccess(t *testing.T) {
	page := &fakePage{hasView: true, frame: true, srcs: []string{"https://img/1.png"}}
	px := &fakeProxy{images: map[string]string{"https://img/1.png": pngURI(t, 4, 4)}}
	h := New(page, px, fastOptions(), nil)

	h.lease <- struct{}{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.Harvest(ctx, 0, "CLM-7"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
	h.release()
	if _, err := h.Harvest(context.Background(), 0, "CLM-7"); err != nil {
		t.Fatal(err)
	}
}

func TestHarvestClosesPopupWhenCancelled(t *testing.T) {
	page := &fakePage{hasView: true, frame: true, readyPoll: 1 << 30, srcs: []string{"https://img/1.png"}}
	opts := fastOptions()
	opts.SettleTimeout = time.Second
	h := New(page, &fakeProxy{}, opts, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := h.Harvest(ctx, 0, "CLM-9")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
	if !res.Close.Closed || page.open {
		t.Fatalf("dialog left open: close=%+v open=%v", res.Close, page.open)
	}
	calls := page.closeCalls()
	if len(calls) == 0 || calls[0] != StepEscape {
		t.Fatalf("calls=%v", calls)
	}
	if len(res.Images) != 0 || res.Trace[len(res.Trace)-1] != Done {
		t.Fatalf("res=%+v", res)
	}
}
