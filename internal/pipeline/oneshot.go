package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"claimexport/internal"
	"claimexport/internal/browser"
	"claimexport/internal/config"
	"claimexport/internal/harvest"
	"claimexport/internal/progress"
)

// ExtractFromFile runs the row pipeline over saved page HTML. No popups can
// open offline, so every record comes back with zero images.
func ExtractFromFile(ctx context.Context, path string, sel config.Selectors, logger *zap.Logger) (internal.ExtractionBatch, error) {
	snap, err := browser.LoadSnapshot(path, sel)
	if err != nil {
		return internal.ExtractionBatch{}, fmt.Errorf("load snapshot: %w", err)
	}
	// The snapshot stands in for the page too; its rows never open a popup,
	// so the proxy is never consulted.
	h := harvest.New(snap, nil, harvest.DefaultOptions(), logger)
	svc := NewProcessingService(snap, h, sel.Row, 0, progress.Nop{}, logger)
	res, err := svc.Run(ctx)
	if err != nil {
		return internal.ExtractionBatch{}, err
	}
	return res.Batch, nil
}
