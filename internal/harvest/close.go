package harvest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"claimexport/internal/util"
)

const (
	StepEscape       = "escape"
	StepCloseButton  = "close_button"
	StepForcedRemove = "forced_remove"
)

// CloseStrategy is one way of dismissing the dialog. Strategies run in order
// and each one only while the dialog is still open.
type CloseStrategy struct {
	Name  string
	Apply func(ctx context.Context) error
}

func DefaultCloseChain(p Page) []CloseStrategy {
	return []CloseStrategy{
		{Name: StepEscape, Apply: p.PressEscape},
		{Name: StepCloseButton, Apply: p.ClickClose},
		{Name: StepForcedRemove, Apply: p.RemoveDialogs},
	}
}

type CloseReport struct {
	Steps  []string
	Closed bool
}

// ClosePopup dismisses a dialog left open outside of Harvest.
func (h *Harvester) ClosePopup(ctx context.Context) (CloseReport, error) {
	if err := h.acquire(ctx); err != nil {
		return CloseReport{}, err
	}
	defer h.release()
	return h.closePopup(ctx), nil
}

// closePopup walks the close chain. The last strategy is treated as
// authoritative and is not re-checked.
func (h *Harvester) closePopup(ctx context.Context) CloseReport {
	report := CloseReport{}
	if !h.dialogOpen(ctx) {
		report.Closed = true
		return report
	}

	for i, strategy := range h.chain {
		report.Steps = append(report.Steps, strategy.Name)
		if err := strategy.Apply(ctx); err != nil {
			h.logger.Warn("close step failed", zap.String("step", strategy.Name), zap.Error(err))
		}
		if i == len(h.chain)-1 {
			report.Closed = true
			break
		}

		gone, err := util.WaitFor(ctx, h.opts.CloseSettle, h.opts.PollInterval, func(ctx context.Context) (bool, error) {
			return !h.dialogOpen(ctx), nil
		})
		if err != nil {
			h.logger.Warn("close interrupted", zap.String("step", strategy.Name), zap.Error(err))
			return report
		}
		if gone {
			report.Closed = true
			break
		}
	}

	h.logger.Debug("popup closed", zap.Strings("steps", report.Steps))
	return report
}

// closeDetached runs the close chain even after ctx is cancelled. The chain
// gets its own deadline: every settle wait plus one second.
func (h *Harvester) closeDetached(ctx context.Context) CloseReport {
	budget := time.Duration(len(h.chain))*h.opts.CloseSettle + time.Second
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()
	return h.closePopup(cctx)
}

// dialogOpen treats a failed presence check as "still open" so the chain
// escalates.
func (h *Harvester) dialogOpen(ctx context.Context) bool {
	open, err := h.page.DialogOpen(ctx)
	if err != nil {
		h.logger.Debug("dialog presence check failed", zap.Error(err))
		return true
	}
	return open
}

func settleOrDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
