package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"claimexport/internal"
	"claimexport/internal/transcode"
)

const (
	headerRows       = 2
	firstDataRow     = headerRows + 1
	firstImageCol    = 12
	imageRowHeight   = 60
	defaultRowHeight = 15
	imageColWidth    = 18

	imageGroupLabel = "Attachments"
)

var textHeaders = []struct {
	label string
	width float64
}{
	{"Claim ID", 16},
	{"Warehouse", 14},
	{"Tracking No.", 20},
	{"Packages", 10},
	{"Reference No.", 18},
	{"Valid Until", 18},
	{"Claimed At", 18},
	{"Created At", 18},
	{"Completed At", 18},
	{"Updated At", 18},
	{"Notes", 40},
}

// AssemblyError is a picture that could not be placed in the workbook. The
// rest of the workbook is unaffected.
type AssemblyError struct {
	ClaimID string
	Index   int
	Err     error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("embed image %d for claim %s: %v", e.Index, e.ClaimID, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

type Workbook struct {
	File     *excelize.File
	Sheet    string
	Rows     int
	Pictures int
	Warnings []error
}

// BuildWorkbook lays the batch out as one sheet: a two-row header, one data
// row per record in batch order, and up to five thumbnails per row.
func BuildWorkbook(batch internal.ExtractionBatch) (*Workbook, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	wb := &Workbook{File: f, Sheet: sheet}

	if err := writeHeader(f, sheet); err != nil {
		_ = f.Close()
		return nil, err
	}

	for i, row := range batch.Rows {
		r := firstDataRow + i
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.ClaimID)
		set(2, row.Warehouse)
		set(3, row.TrackingNo)
		set(4, derefInt(row.Packages))
		set(5, row.ReferenceNo)
		set(6, row.ValidAt)
		set(7, row.ClaimedAt)
		set(8, row.CreatedAt)
		set(9, row.CompletedAt)
		set(10, row.UpdatedAt)
		set(11, row.Notes)

		// AutoFit sizes a picture from the row height at insert time, so the
		// row is raised first and lowered again if nothing was embedded.
		images := batch.ImagesFor(row.ClaimID)
		tall := hasPayload(images)
		if tall {
			if err := f.SetRowHeight(sheet, r, imageRowHeight); err != nil {
				_ = f.Close()
				return nil, err
			}
		}
		if embedded := wb.placeImages(r, row.ClaimID, images); tall && embedded == 0 {
			if err := f.SetRowHeight(sheet, r, defaultRowHeight); err != nil {
				_ = f.Close()
				return nil, err
			}
		}
		wb.Rows++
	}

	return wb, nil
}

func writeHeader(f *excelize.File, sheet string) error {
	for i, h := range textHeaders {
		col := i + 1
		top, _ := excelize.CoordinatesToCellName(col, 1)
		bottom, _ := excelize.CoordinatesToCellName(col, headerRows)
		if err := f.SetCellValue(sheet, top, h.label); err != nil {
			return err
		}
		if err := f.MergeCell(sheet, top, bottom); err != nil {
			return err
		}
		name, _ := excelize.ColumnNumberToName(col)
		if err := f.SetColWidth(sheet, name, name, h.width); err != nil {
			return err
		}
	}

	groupStart, _ := excelize.CoordinatesToCellName(firstImageCol, 1)
	groupEnd, _ := excelize.CoordinatesToCellName(firstImageCol+internal.MaxImagesPerRow-1, 1)
	if err := f.SetCellValue(sheet, groupStart, imageGroupLabel); err != nil {
		return err
	}
	if err := f.MergeCell(sheet, groupStart, groupEnd); err != nil {
		return err
	}
	for i := 0; i < internal.MaxImagesPerRow; i++ {
		cell, _ := excelize.CoordinatesToCellName(firstImageCol+i, headerRows)
		if err := f.SetCellValue(sheet, cell, fmt.Sprintf("Image %d", i+1)); err != nil {
			return err
		}
	}
	first, _ := excelize.ColumnNumberToName(firstImageCol)
	last, _ := excelize.ColumnNumberToName(firstImageCol + internal.MaxImagesPerRow - 1)
	if err := f.SetColWidth(sheet, first, last, imageColWidth); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
			WrapText:   true,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "#808080", Style: 1},
			{Type: "top", Color: "#808080", Style: 1},
			{Type: "right", Color: "#808080", Style: 1},
			{Type: "bottom", Color: "#808080", Style: 1},
		},
	})
	if err != nil {
		return err
	}
	headerEnd, _ := excelize.CoordinatesToCellName(firstImageCol+internal.MaxImagesPerRow-1, headerRows)
	return f.SetCellStyle(sheet, "A1", headerEnd, style)
}

// placeImages anchors the row's images left to right starting at column L.
// Assets without a payload leave their error text in the cell.
func (wb *Workbook) placeImages(r int, claimID string, images []internal.ImageAsset) int {
	if len(images) > internal.MaxImagesPerRow {
		images = images[:internal.MaxImagesPerRow]
	}

	embedded := 0
	for i, img := range images {
		cell, _ := excelize.CoordinatesToCellName(firstImageCol+i, r)
		if !img.OK() {
			_ = wb.File.SetCellValue(wb.Sheet, cell, img.Err)
			continue
		}

		raw, err := transcode.DecodeDataURI(img.DataURI)
		if err == nil {
			err = wb.File.AddPictureFromBytes(wb.Sheet, cell, &excelize.Picture{
				Extension: ".jpg",
				File:      raw,
				Format: &excelize.GraphicOptions{
					AutoFit:     true,
					Positioning: "oneCell",
					AltText:     fmt.Sprintf("%s image %d", claimID, i+1),
				},
			})
		}
		if err != nil {
			wb.Warnings = append(wb.Warnings, &AssemblyError{ClaimID: claimID, Index: i + 1, Err: err})
			_ = wb.File.SetCellValue(wb.Sheet, cell, err.Error())
			continue
		}
		embedded++
		wb.Pictures++
	}
	return embedded
}

func hasPayload(images []internal.ImageAsset) bool {
	if len(images) > internal.MaxImagesPerRow {
		images = images[:internal.MaxImagesPerRow]
	}
	for _, img := range images {
		if img.OK() {
			return true
		}
	}
	return false
}

func (wb *Workbook) WriteTo(w io.Writer) (int64, error) {
	return wb.File.WriteTo(w)
}

func (wb *Workbook) Close() error {
	return wb.File.Close()
}

func ExportFileName(now time.Time) string {
	return fmt.Sprintf("claims_%s.xlsx", now.Format("2006-01-02"))
}

// SaveWorkbook writes the workbook into dir under its date-stamped name and
// returns the full path.
func SaveWorkbook(wb *Workbook, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, ExportFileName(now))
	if err := wb.File.SaveAs(path); err != nil {
		return "", fmt.Errorf("write workbook: %w", err)
	}
	return path, nil
}

func derefInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}
