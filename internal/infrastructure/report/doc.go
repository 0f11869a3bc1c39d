// Package report renders cash-flow projections as PDF documents.
//
// HTML is produced from an embedded html/template and printed to PDF by a
// headless Chrome instance driven through the DevTools protocol. The paper
// size follows the report locale (Letter for US-style regions, A4 elsewhere):
//
//	renderer, err := NewChromedpRenderer(&ChromedpConfig{DefaultTimeout: 30 * time.Second, MaxTabs: 2})
//	if err != nil {
//	    return err
//	}
//	defer renderer.Close()
//
//	gen, err := NewCashflowReportGenerator(renderer, "de-DE", logger)
//	pdf, err := gen.Generate(ctx, projection)
package report
