package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JobStatus is the lifecycle state of a crawl job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further delivery can change the status without
// a manual retry.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Progress stage names, in execution order. Percentages are fixed per stage
// except the PDF page fan-out, which interpolates between 20 and 80.
const (
	StageStarting   = "Starting"
	StageExtracting = "Extracting HTML"
	StageChunking   = "Chunking Text"
	StageEmbedding  = "Generating Embeddings"
	StagePDF        = "Processing PDF"
	StagePersisting = "Persisting"
	StageCompleted  = "Completed"
	StageRequeued   = "Re-queued"
)

// Progress is a user-visible snapshot of where a job is.
type Progress struct {
	Stage      string `bson:"stage" json:"stage"`
	Percentage int    `bson:"percentage" json:"percentage"`
}

// Job is one unit of crawl work owned by a user.
type Job struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	URL           string              `bson:"url" json:"url"`
	Owner         string              `bson:"owner" json:"owner"`
	Status        JobStatus           `bson:"status" json:"status"`
	Progress      Progress            `bson:"progress" json:"progress"`
	Attempts      int                 `bson:"attempts" json:"attempts"`
	ManualRetries int                 `bson:"manualRetries" json:"manualRetries"`
	Error         string              `bson:"error,omitempty" json:"error,omitempty"`
	ResultRef     *primitive.ObjectID `bson:"resultRef,omitempty" json:"resultRef,omitempty"`
	ResultKind    ResultKind          `bson:"resultKind,omitempty" json:"resultKind,omitempty"`
	CreatedAt     time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// ResultKind discriminates the Result union.
type ResultKind string

const (
	ResultKindHTML ResultKind = "html"
	ResultKindPDF  ResultKind = "pdf"
)

// Chunk is one text segment with its embedding; the vector at a given index
// always corresponds to the text at the same index in the producing list.
type Chunk struct {
	Text      string    `bson:"text" json:"text"`
	Embedding []float64 `bson:"embedding" json:"embedding"`
}

// HTMLResult is the output of the HTML pipeline.
type HTMLResult struct {
	HTMLContent   string  `bson:"htmlContent" json:"htmlContent"`
	ExtractedText string  `bson:"extractedText" json:"extractedText"`
	Chunks        []Chunk `bson:"chunks" json:"chunks"`
}

// PDFPage is one processed page of a PDF document.
type PDFPage struct {
	PageNumber int     `bson:"pageNumber" json:"pageNumber"`
	ImagePath  string  `bson:"imagePath" json:"imagePath"`
	OCRText    string  `bson:"ocrText" json:"ocrText"`
	Chunks     []Chunk `bson:"chunks" json:"chunks"`
}

// PDFResult is the output of the PDF pipeline; pages are sorted by page
// number before persistence.
type PDFResult struct {
	Pages []PDFPage `bson:"pages" json:"pages"`
}

// Result is a tagged union: exactly one of HTML or PDF is set, matching Kind.
type Result struct {
	ID   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind ResultKind         `bson:"kind" json:"kind"`
	HTML *HTMLResult        `bson:"html,omitempty" json:"html,omitempty"`
	PDF  *PDFResult         `bson:"pdf,omitempty" json:"pdf,omitempty"`
}
