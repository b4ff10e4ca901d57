package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"claimexport/internal"
	"claimexport/internal/harvest"
	"claimexport/internal/progress"
	"claimexport/internal/util"
)

var (
	ErrTableNotFound = errors.New("claims table not found on page")
	ErrNoRowsChecked = errors.New("no checked rows to export")
)

// TableSource yields the current HTML of the claims table.
type TableSource interface {
	TableHTML(ctx context.Context) (html string, found bool, err error)
}

type Harvester interface {
	Harvest(ctx context.Context, row int, claimID string) (harvest.Result, error)
}

type ProcessingService struct {
	source    TableSource
	harvester Harvester
	rowSel    string
	pacing    time.Duration
	progress  progress.Reporter
	logger    *zap.Logger
}

func NewProcessingService(source TableSource, h Harvester, rowSelector string, pacing time.Duration, rep progress.Reporter, logger *zap.Logger) *ProcessingService {
	if rep == nil {
		rep = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessingService{
		source:    source,
		harvester: h,
		rowSel:    rowSelector,
		pacing:    pacing,
		progress:  rep,
		logger:    logger.Named("pipeline"),
	}
}

type ProcessResult struct {
	Batch    internal.ExtractionBatch
	Eligible int
	Images   int
	Failed   int
}

// Run walks the checked rows one at a time: extract, harvest, accumulate,
// pause. Only a missing table or a cancelled context stops it.
func (s *ProcessingService) Run(ctx context.Context) (ProcessResult, error) {
	html, found, err := s.source.TableHTML(ctx)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("read table: %w", err)
	}
	if !found {
		return ProcessResult{}, ErrTableNotFound
	}

	rows, err := ScanTable(html, s.rowSel)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("parse table: %w", err)
	}

	result := ProcessResult{Batch: internal.NewExtractionBatch(), Eligible: len(rows)}
	s.progress.Start(len(rows))
	s.logger.Info("export started", zap.Int("eligible", len(rows)))

	for i, row := range rows {
		if i > 0 {
			if err := util.Sleep(ctx, s.pacing); err != nil {
				return result, err
			}
		}

		images := []internal.ImageAsset{}
		if s.harvester != nil {
			res, err := s.harvester.Harvest(ctx, row.Index, row.Record.ClaimID)
			if err != nil {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				s.logger.Warn("harvest failed", zap.String("claim_id", row.Record.ClaimID), zap.Error(err))
			}
			images = res.Images
		}

		for _, img := range images {
			if img.OK() {
				result.Images++
			} else {
				result.Failed++
			}
		}
		result.Batch.Add(row.Record, images)
		s.progress.Row(i+1, len(rows), row.Record.ClaimID)
	}

	s.logger.Info("export rows collected", zap.Int("rows", len(result.Batch.Rows)), zap.Int("images", result.Images), zap.Int("image_failures", result.Failed))
	return result, nil
}
