package harvest

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"claimexport/internal"
	"claimexport/internal/proxy"
	"claimexport/internal/transcode"
	"claimexport/internal/util"
)

// Page is the part of the host document the harvester drives. Row indexes
// are zero-based positions among the table's rows in document order.
type Page interface {
	ClickView(ctx context.Context, row int) (bool, error)
	FrameImages(ctx context.Context) (srcs []string, found bool, err error)
	DialogOpen(ctx context.Context) (bool, error)
	PressEscape(ctx context.Context) error
	ClickClose(ctx context.Context) error
	RemoveDialogs(ctx context.Context) error
}

type Options struct {
	SettleTimeout time.Duration
	CloseSettle   time.Duration
	PollInterval  time.Duration
	MaxImages     int
	Box           transcode.Box
}

func DefaultOptions() Options {
	return Options{
		SettleTimeout: 2 * time.Second,
		CloseSettle:   500 * time.Millisecond,
		PollInterval:  100 * time.Millisecond,
		MaxImages:     internal.MaxImagesPerRow,
		Box:           transcode.DefaultBox(),
	}
}

type Result struct {
	Images     []internal.ImageAsset
	FrameFound bool
	Trace      []State
	Close      CloseReport
}

func (r *Result) enter(s State) {
	r.Trace = append(r.Trace, s)
}

type Harvester struct {
	page   Page
	proxy  proxy.Exchanger
	opts   Options
	chain  []CloseStrategy
	lease  chan struct{}
	logger *zap.Logger
}

func New(page Page, ex proxy.Exchanger, opts Options, logger *zap.Logger) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.SettleTimeout = settleOrDefault(opts.SettleTimeout, 2*time.Second)
	opts.CloseSettle = settleOrDefault(opts.CloseSettle, 500*time.Millisecond)
	opts.PollInterval = settleOrDefault(opts.PollInterval, 100*time.Millisecond)
	if opts.MaxImages <= 0 || opts.MaxImages > internal.MaxImagesPerRow {
		opts.MaxImages = internal.MaxImagesPerRow
	}
	return &Harvester{
		page:   page,
		proxy:  ex,
		opts:   opts,
		chain:  DefaultCloseChain(page),
		lease:  make(chan struct{}, 1),
		logger: logger.Named("harvest"),
	}
}

// Harvest opens the row's popup, collects its images and closes it again.
// Missing controls, a missing iframe and per-image failures are absorbed;
// only context cancellation is returned as an error.
func (h *Harvester) Harvest(ctx context.Context, row int, claimID string) (Result, error) {
	if err := h.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer h.release()

	res := Result{}
	res.enter(Idle)
	log := h.logger.With(zap.String("claim_id", claimID), zap.Int("row", row))

	clicked, err := h.page.ClickView(ctx, row)
	if err != nil {
		log.Warn("view control click failed", zap.Error(err))
	}
	if !clicked {
		if err == nil {
			log.Info("row has no view control")
		}
		// a failed click may still have opened the dialog
		if err != nil {
			res.enter(Closing)
			res.Close = h.closeDetached(ctx)
		}
		res.enter(Done)
		return res, ctx.Err()
	}
	res.enter(Triggered)

	res.enter(AwaitingRender)
	srcs, found, err := h.awaitRender(ctx)
	if err != nil && ctx.Err() != nil {
		res.enter(Closing)
		res.Close = h.closeDetached(ctx)
		res.enter(Done)
		return res, ctx.Err()
	}

	res.enter(Harvesting)
	res.FrameFound = found
	if !found {
		log.Warn("attachment frame not found")
	} else {
		res.Images = h.collect(ctx, claimID, srcs)
	}

	res.enter(Closing)
	res.Close = h.closeDetached(ctx)
	if !res.Close.Closed {
		log.Warn("popup may still be open", zap.Strings("steps", res.Close.Steps))
	}
	res.enter(Done)

	log.Debug("harvest complete", zap.Int("images", len(res.Images)), zap.Bool("frame", found))
	return res, ctx.Err()
}

// awaitRender waits until the frame shows at least one image or the settle
// timeout passes, then takes a final reading.
func (h *Harvester) awaitRender(ctx context.Context) ([]string, bool, error) {
	var (
		srcs  []string
		found bool
	)
	ready, err := util.WaitFor(ctx, h.opts.SettleTimeout, h.opts.PollInterval, func(ctx context.Context) (bool, error) {
		s, f, err := h.page.FrameImages(ctx)
		if err != nil {
			return false, err
		}
		srcs, found = s, f
		return f && len(nonEmpty(s)) > 0, nil
	})
	if err != nil {
		return nil, false, err
	}
	if ready {
		return srcs, found, nil
	}

	s, f, err := h.page.FrameImages(ctx)
	if err != nil {
		h.logger.Warn("frame lookup failed", zap.Error(err))
		return srcs, found, nil
	}
	return s, f, nil
}

func (h *Harvester) collect(ctx context.Context, claimID string, srcs []string) []internal.ImageAsset {
	srcs = nonEmpty(srcs)
	if len(srcs) > h.opts.MaxImages {
		h.logger.Info("dropping extra images", zap.String("claim_id", claimID), zap.Int("found", len(srcs)), zap.Int("kept", h.opts.MaxImages))
		srcs = srcs[:h.opts.MaxImages]
	}

	assets := make([]internal.ImageAsset, len(srcs))
	var g errgroup.Group
	for i, src := range srcs {
		g.Go(func() error {
			assets[i] = h.harvestOne(ctx, claimID, i+1, src)
			return nil
		})
	}
	_ = g.Wait()
	return assets
}

func (h *Harvester) harvestOne(ctx context.Context, claimID string, index int, src string) internal.ImageAsset {
	asset := internal.ImageAsset{ClaimID: claimID, Index: index, SourceURL: src}

	dataURI, err := proxy.FetchImage(ctx, h.proxy, src)
	if err != nil {
		asset.Err = err.Error()
		h.logger.Warn("image fetch failed", zap.String("claim_id", claimID), zap.Int("index", index), zap.String("url", src), zap.Error(err))
		return asset
	}

	out, err := transcode.Transcode(dataURI, h.opts.Box)
	if err != nil {
		asset.Err = err.Error()
		h.logger.Warn("image transcode failed", zap.String("claim_id", claimID), zap.Int("index", index), zap.Error(err))
		return asset
	}
	asset.DataURI = out.DataURI
	return asset
}

func (h *Harvester) acquire(ctx context.Context) error {
	select {
	case h.lease <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Harvester) release() {
	<-h.lease
}

func nonEmpty(srcs []string) []string {
	out := make([]string, 0, len(srcs))
	for _, s := range srcs {
		if strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
