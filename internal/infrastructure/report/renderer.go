package report

import (
	"bytes"
	"context"
	"time"

	"golang.org/x/text/language"
)

// Paper is a page size in millimetres
type Paper struct {
	WidthMM  float64
	HeightMM float64
}

var (
	PaperA4     = Paper{WidthMM: 210, HeightMM: 297}
	PaperLetter = Paper{WidthMM: 215.9, HeightMM: 279.4}
)

// letterRegions print on US Letter; everything else gets A4
var letterRegions = map[string]bool{"US": true, "CA": true, "MX": true, "PH": true, "CL": true, "CO": true}

// PaperFor returns the customary paper size of the locale's region
func PaperFor(tag language.Tag) Paper {
	region, _ := tag.Region()
	if letterRegions[region.String()] {
		return PaperLetter
	}
	return PaperA4
}

// Margins in millimetres
type Margins struct {
	Top, Right, Bottom, Left float64
}

// DefaultMargins leaves room for the page-number footer
func DefaultMargins() Margins {
	return Margins{Top: 15, Right: 12, Bottom: 15, Left: 12}
}

// RenderRequest is one HTML document to print. A zero Paper prints A4 and
// a zero Timeout uses the renderer's default.
type RenderRequest struct {
	HTML       string
	Title      string
	Paper      Paper
	Landscape  bool
	Margins    Margins
	FooterHTML string // repeated on every page; may use pageNumber/totalPages spans
	Timeout    time.Duration
}

// RenderResult is the printed PDF
type RenderResult struct {
	PDFData        []byte
	PageCount      int
	RenderDuration time.Duration
}

// PDFRenderer prints HTML to PDF
type PDFRenderer interface {
	Render(ctx context.Context, req *RenderRequest) (*RenderResult, error)
	Close() error
}

// Render failure codes, mapped to HTTP errors by the API
const (
	ErrCodeRenderTimeout = "RENDER_TIMEOUT"
	ErrCodeRenderFailed  = "RENDER_FAILED"
	ErrCodeInvalidHTML   = "INVALID_HTML"
	ErrCodeTemplate      = "TEMPLATE_FAILED"
)

// RenderError is a failed report render
type RenderError struct {
	Code    string
	Message string
	Cause   error
}

func NewRenderError(code, message string, cause error) *RenderError {
	return &RenderError{Code: code, Message: message, Cause: cause}
}

func (e *RenderError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *RenderError) Unwrap() error { return e.Cause }

// estimatePageCount counts page objects; "/Type /Pages" tree nodes share the prefix
func estimatePageCount(pdf []byte) int {
	pages := bytes.Count(pdf, []byte("/Type /Page")) - bytes.Count(pdf, []byte("/Type /Pages"))
	return max(pages, 1)
}
