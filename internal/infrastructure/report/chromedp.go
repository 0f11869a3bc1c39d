package report

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	defaultChromeTimeout = 30 * time.Second
	defaultMaxTabs       = 2
	footerMinMarginMM    = 10
)

// execFlags harden a locally launched headless Chrome
var execFlags = []chromedp.ExecAllocatorOption{
	chromedp.Flag("headless", true),
	chromedp.Flag("disable-gpu", true),
	chromedp.Flag("no-first-run", true),
	chromedp.Flag("disable-extensions", true),
	chromedp.Flag("disable-dev-shm-usage", true),
	chromedp.Flag("disable-background-networking", true),
	chromedp.Flag("disable-sync", true),
	chromedp.Flag("font-render-hinting", "none"),
}

// ChromedpConfig configures the headless Chrome renderer
type ChromedpConfig struct {
	DefaultTimeout time.Duration
	RemoteURL      string // DevTools URL of a running Chrome; empty launches one
	NoSandbox      bool   // needed when Chrome runs as root in a container
	MaxTabs        int    // concurrent renders; further requests wait for a tab
	Logger         *zap.Logger
}

// ChromedpRenderer prints HTML to PDF in tabs of one shared browser
type ChromedpRenderer struct {
	config      ChromedpConfig
	logger      *zap.Logger
	tabs        chan struct{}
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChromedpRenderer prepares the allocator. Chrome itself starts on the
// first Render.
func NewChromedpRenderer(config *ChromedpConfig) (*ChromedpRenderer, error) {
	cfg := ChromedpConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultChromeTimeout
	}
	if cfg.MaxTabs <= 0 {
		cfg.MaxTabs = defaultMaxTabs
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := &ChromedpRenderer{
		config: cfg,
		logger: cfg.Logger,
		tabs:   make(chan struct{}, cfg.MaxTabs),
	}
	if cfg.RemoteURL != "" {
		r.allocCtx, r.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		opts := append(append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...), execFlags...)
		if cfg.NoSandbox {
			opts = append(opts, chromedp.NoSandbox)
		}
		r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	return r, nil
}

// Render prints req.HTML. Waiting for a free tab counts against the timeout.
func (r *ChromedpRenderer) Render(ctx context.Context, req *RenderRequest) (*RenderResult, error) {
	if req == nil || strings.TrimSpace(req.HTML) == "" {
		return nil, NewRenderError(ErrCodeInvalidHTML, "HTML content is empty", nil)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	select {
	case r.tabs <- struct{}{}:
		defer func() { <-r.tabs }()
	case <-ctx.Done():
		return nil, classifyRunError(ctx, timeout, ctx.Err())
	}

	tab, closeTab := chromedp.NewContext(r.allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		r.logger.Debug(fmt.Sprintf(format, args...))
	}))
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	var pdf []byte
	err := chromedp.Run(tab,
		chromedp.Navigate("about:blank"),
		loadDocument(buildCompleteHTML(req)),
		printToPDF(buildPrintParams(req), &pdf),
	)
	if err != nil {
		renderErr := classifyRunError(ctx, timeout, err)
		if renderErr.Code == ErrCodeRenderFailed {
			r.logger.Error("Chrome failed to print report", zap.Error(err))
		}
		return nil, renderErr
	}
	if len(pdf) == 0 {
		return nil, NewRenderError(ErrCodeRenderFailed, "generated PDF is empty", nil)
	}

	result := &RenderResult{PDFData: pdf, PageCount: estimatePageCount(pdf), RenderDuration: time.Since(started)}
	r.logger.Debug("PDF rendered",
		zap.Int("bytes", len(pdf)),
		zap.Int("pages", result.PageCount),
		zap.Duration("duration", result.RenderDuration))
	return result, nil
}

func loadDocument(doc string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		return page.SetDocumentContent(tree.Frame.ID, doc).Do(ctx)
	})
}

func printToPDF(p printParams, out *[]byte) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPaperWidth(p.paperWidth).
			WithPaperHeight(p.paperHeight).
			WithMarginTop(p.marginTop).
			WithMarginRight(p.marginRight).
			WithMarginBottom(p.marginBottom).
			WithMarginLeft(p.marginLeft).
			WithLandscape(p.landscape).
			WithDisplayHeaderFooter(p.displayFooter).
			WithHeaderTemplate("<span></span>").
			WithFooterTemplate(p.footerTemplate).
			Do(ctx)
		*out = data
		return err
	})
}

// classifyRunError separates deadline and cancellation from Chrome failures
func classifyRunError(ctx context.Context, timeout time.Duration, err error) *RenderError {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return NewRenderError(ErrCodeRenderTimeout, fmt.Sprintf("PDF rendering timed out after %v", timeout), err)
	case errors.Is(ctx.Err(), context.Canceled):
		return NewRenderError(ErrCodeRenderTimeout, "PDF rendering was cancelled", err)
	}
	return NewRenderError(ErrCodeRenderFailed, "chromedp execution failed", err)
}

// printParams are the PrintToPDF arguments, in inches
type printParams struct {
	paperWidth, paperHeight                          float64
	marginTop, marginRight, marginBottom, marginLeft float64
	landscape, displayFooter                         bool
	footerTemplate                                   string
}

func buildPrintParams(req *RenderRequest) printParams {
	paper := req.Paper
	if paper.WidthMM <= 0 || paper.HeightMM <= 0 {
		paper = PaperA4
	}
	m := req.Margins
	if req.FooterHTML != "" {
		m.Bottom = max(m.Bottom, footerMinMarginMM)
	}
	return printParams{
		paperWidth:     mmToInches(paper.WidthMM),
		paperHeight:    mmToInches(paper.HeightMM),
		marginTop:      mmToInches(m.Top),
		marginRight:    mmToInches(m.Right),
		marginBottom:   mmToInches(m.Bottom),
		marginLeft:     mmToInches(m.Left),
		landscape:      req.Landscape,
		displayFooter:  req.FooterHTML != "",
		footerTemplate: req.FooterHTML,
	}
}

// buildCompleteHTML wraps a fragment in a document; full documents pass through
func buildCompleteHTML(req *RenderRequest) string {
	lower := strings.ToLower(req.HTML)
	if strings.Contains(lower, "<!doctype") || strings.Contains(lower, "<html") {
		return req.HTML
	}
	title := ""
	if req.Title != "" {
		title = "<title>" + html.EscapeString(req.Title) + "</title>"
	}
	return `<!DOCTYPE html><html><head><meta charset="UTF-8">` + title + "</head><body>" + req.HTML + "</body></html>"
}

// Close shuts the browser down
func (r *ChromedpRenderer) Close() error {
	if r.allocCancel != nil {
		r.allocCancel()
	}
	return nil
}

func mmToInches(mm float64) float64 { return mm / 25.4 }

var _ PDFRenderer = (*ChromedpRenderer)(nil)
