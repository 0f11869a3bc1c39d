package report

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	forecastapp "github.com/erp/cashflow/internal/application/forecast"
	"github.com/erp/cashflow/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const footerTemplate = `<div style="font-size:7pt;width:100%;text-align:center;color:#9aa5b1">` +
	`<span class="pageNumber"></span> / <span class="totalPages"></span></div>`

type bucketRow struct {
	Period     string
	Invoices   string
	Amount     string
	Cumulative string
	BarPercent float64
}

type lineRow struct {
	Number        string
	Customer      string
	DueDate       string
	PredictedDate string
	Amount        string
	Computed      bool
}

type cashflowView struct {
	Locale          string
	Title           string
	StartDate       string
	EndDate         string
	Scenario        string
	Granularity     string
	GeneratedAt     string
	TotalExpected   string
	InvoiceCount    string
	PredictionCount string
	Buckets         []bucketRow
	Lines           []lineRow
}

// CashflowReportGenerator turns a cash-flow projection into a PDF
type CashflowReportGenerator struct {
	renderer PDFRenderer
	format   *Formatter
	tmpl     *template.Template
	logger   *zap.Logger
	now      func() time.Time
}

// NewCashflowReportGenerator parses the embedded template for locale
func NewCashflowReportGenerator(renderer PDFRenderer, locale string, logger *zap.Logger) (*CashflowReportGenerator, error) {
	format, err := NewFormatter(locale)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.ParseFS(templateFS, "templates/cashflow.html")
	if err != nil {
		return nil, fmt.Errorf("parse cashflow template: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CashflowReportGenerator{
		renderer: renderer,
		format:   format,
		tmpl:     tmpl,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// BuildHTML renders the projection as a standalone HTML document
func (g *CashflowReportGenerator) BuildHTML(resp *forecastapp.CashflowForecastResponse) (string, error) {
	view := g.view(resp)
	var buf bytes.Buffer
	if err := g.tmpl.ExecuteTemplate(&buf, "cashflow.html", view); err != nil {
		return "", NewRenderError(ErrCodeTemplate, "render cashflow template", err)
	}
	return buf.String(), nil
}

// Generate renders the projection to PDF bytes
func (g *CashflowReportGenerator) Generate(ctx context.Context, resp *forecastapp.CashflowForecastResponse) ([]byte, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "report", "cashflow_pdf")
	defer span.End()

	html, err := g.BuildHTML(resp)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result, err := g.renderer.Render(ctx, &RenderRequest{
		HTML:       html,
		Title:      reportTitle(resp),
		Paper:      g.format.Paper(),
		Margins:    DefaultMargins(),
		FooterHTML: footerTemplate,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, "report.pages", result.PageCount, "report.bytes", len(result.PDFData))

	g.logger.Info("Cash flow report generated",
		zap.String("start_date", resp.StartDate),
		zap.String("end_date", resp.EndDate),
		zap.Int("pages", result.PageCount))
	return result.PDFData, nil
}

func reportTitle(resp *forecastapp.CashflowForecastResponse) string {
	return fmt.Sprintf("Cash Flow Forecast %s to %s", resp.StartDate, resp.EndDate)
}

func (g *CashflowReportGenerator) view(resp *forecastapp.CashflowForecastResponse) cashflowView {
	f := g.format
	v := cashflowView{
		Locale:          f.Locale(),
		Title:           reportTitle(resp),
		StartDate:       resp.StartDate,
		EndDate:         resp.EndDate,
		Scenario:        f.Title(string(resp.Scenario)),
		Granularity:     f.Title(string(resp.Granularity)),
		GeneratedAt:     g.now().UTC().Format("2006-01-02 15:04 MST"),
		TotalExpected:   f.Amount(resp.Summary.TotalExpected),
		InvoiceCount:    f.Count(resp.Summary.InvoiceCount),
		PredictionCount: f.Count(resp.Summary.PredictionCount),
	}

	peak := decimal.Zero
	for _, b := range resp.Cashflow {
		if b.Amount.GreaterThan(peak) {
			peak = b.Amount
		}
	}
	for _, b := range resp.Cashflow {
		row := bucketRow{
			Period:     b.Period,
			Invoices:   f.Count(b.InvoiceCount),
			Amount:     f.Amount(b.Amount),
			Cumulative: f.Amount(b.Cumulative),
		}
		if peak.IsPositive() {
			row.BarPercent, _ = b.Amount.Div(peak).Mul(decimal.NewFromInt(100)).Round(1).Float64()
		}
		v.Buckets = append(v.Buckets, row)
	}

	for _, l := range resp.Predictions {
		v.Lines = append(v.Lines, lineRow{
			Number:        l.InvoiceNumber,
			Customer:      l.Customer,
			DueDate:       l.DueDate,
			PredictedDate: l.PredictedPaymentDate,
			Amount:        f.Amount(l.Amount),
			Computed:      l.Source == "computed",
		})
	}
	return v
}
