package internal

const MaxImagesPerRow = 5

type RowRecord struct {
	ClaimID     string
	Warehouse   string
	TrackingNo  string
	Packages    *int
	ReferenceNo string
	ValidAt     string
	ClaimedAt   string
	CreatedAt   string
	CompletedAt string
	UpdatedAt   string
	Notes       string
}

// ImageAsset is one harvested popup image. DataURI is empty when Err is set.
type ImageAsset struct {
	ClaimID   string
	Index     int
	DataURI   string
	Err       string
	SourceURL string
}

func (a ImageAsset) OK() bool {
	return a.DataURI != "" && a.Err == ""
}

type ExtractionBatch struct {
	Rows   []RowRecord
	Images map[string][]ImageAsset
}

func NewExtractionBatch() ExtractionBatch {
	return ExtractionBatch{Images: map[string][]ImageAsset{}}
}

func (b *ExtractionBatch) Add(row RowRecord, images []ImageAsset) {
	if b.Images == nil {
		b.Images = map[string][]ImageAsset{}
	}
	b.Rows = append(b.Rows, row)
	if len(images) > 0 {
		b.Images[row.ClaimID] = append(b.Images[row.ClaimID], images...)
	}
}

func (b ExtractionBatch) ImagesFor(claimID string) []ImageAsset {
	return b.Images[claimID]
}

func (b ExtractionBatch) ImageCount() int {
	n := 0
	for _, imgs := range b.Images {
		n += len(imgs)
	}
	return n
}
