// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package report renders a finished diagnostic as a downloadable PDF.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/models"
)

const (
	fontFamily = "Helvetica"
	pageMargin = 12.0
)

type column struct {
	header string
	width  float64
	value  func(models.Observation) string
}

var columns = []column{
	{"Probe", 24, func(o models.Observation) string { return o.ProbeID }},
	{"Provider", 24, func(o models.Observation) string { return o.Provider }},
	{"Country", 18, func(o models.Observation) string { return o.Country }},
	{"ASN", 18, func(o models.Observation) string { return o.ASN }},
	{"Network", 40, func(o models.Observation) string { return firstNonEmpty(o.ASName, o.Network) }},
	{"Median", 18, func(o models.Observation) string { return formatMs(o.MedianMs) }},
	{"Loss", 14, func(o models.Observation) string { return fmt.Sprintf("%.0f%%", o.LossPct) }},
	{"Status", 30, statusText},
}

// WritePDF renders the report to w: a header block with the run parameters
// and summary, the ranked observation table, and provider-error footnotes.
func WritePDF(w io.Writer, r *models.DiagnosticReport) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.AddPage()

	writeHeader(pdf, r)
	writeSummary(pdf, r)
	writeTable(pdf, r)
	writeFootnotes(pdf, r)

	return pdf.Output(w)
}

func writeHeader(pdf *fpdf.Fpdf, r *models.DiagnosticReport) {
	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 9, fmt.Sprintf("Network diagnostic: %s", r.Domain), "", 1, "L", false, 0, "")

	pdf.SetFont(fontFamily, "", 9)
	pdf.SetTextColor(90, 90, 90)
	meta := fmt.Sprintf("%s measurement  |  scope: %s  |  probe limit: %d  |  %s  |  %.1fs",
		r.Type, r.Scope, r.Limit, r.CreatedAt.UTC().Format(time.RFC3339), r.DurationSec)
	pdf.CellFormat(0, 5, meta, "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(3)
}

func writeSummary(pdf *fpdf.Fpdf, r *models.DiagnosticReport) {
	s := r.Summary
	pdf.SetFont(fontFamily, "B", 11)
	pdf.CellFormat(0, 7, "Summary", "", 1, "L", false, 0, "")

	pdf.SetFont(fontFamily, "", 9)
	lines := []string{
		fmt.Sprintf("Probes: %d total, %d completed, %d failed, %d deduplicated",
			s.ProbesTotal, s.Completed, s.Failed, s.Deduplicated),
		fmt.Sprintf("Coverage: %d distinct ASNs across %d countries", s.DistinctASNs, s.DistinctCountries),
	}
	if s.Completed > 0 && s.MedianLatencyMs > 0 {
		lines = append(lines, fmt.Sprintf("Latency: min %s, median %s, p95 %s; average loss %.1f%%",
			formatMs(s.MinLatencyMs), formatMs(s.MedianLatencyMs), formatMs(s.P95LatencyMs), s.AvgLossPct))
	}
	if len(s.ConsensusAddrs) > 0 {
		lines = append(lines, "Resolved (consensus): "+strings.Join(s.ConsensusAddrs, ", "))
	}
	if len(s.DisputedAddrs) > 0 {
		lines = append(lines, "Resolved (disputed): "+strings.Join(s.DisputedAddrs, ", "))
	}
	if r.Partial {
		lines = append(lines, "Note: one or more providers returned partial data before the poll deadline.")
	}
	for _, line := range lines {
		pdf.CellFormat(0, 5, line, "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)
}

func writeTable(pdf *fpdf.Fpdf, r *models.DiagnosticReport) {
	pdf.SetFont(fontFamily, "B", 8)
	pdf.SetFillColor(235, 235, 235)
	for _, col := range columns {
		pdf.CellFormat(col.width, 6, col.header, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(fontFamily, "", 8)
	for _, obs := range r.Observations {
		for _, col := range columns {
			pdf.CellFormat(col.width, 6, col.value(obs), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(r.Observations) == 0 {
		pdf.CellFormat(0, 6, "No probe observations were collected.", "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)
}

func writeFootnotes(pdf *fpdf.Fpdf, r *models.DiagnosticReport) {
	if len(r.ProviderErrors) == 0 {
		return
	}
	pdf.SetFont(fontFamily, "B", 9)
	pdf.CellFormat(0, 6, "Provider issues", "", 1, "L", false, 0, "")
	pdf.SetFont(fontFamily, "I", 8)
	for _, pe := range r.ProviderErrors {
		pdf.CellFormat(0, 5, fmt.Sprintf("%s: %s", pe.Provider, pe.Message), "", 1, "L", false, 0, "")
	}
}

func statusText(o models.Observation) string {
	if o.Completed {
		if o.Duplicates > 0 {
			return fmt.Sprintf("ok (+%d dup)", o.Duplicates)
		}
		return "ok"
	}
	if o.Error != nil {
		return *o.Error
	}
	return "failed"
}

func formatMs(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f ms", v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
