// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/aggregate"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/config"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/models"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/report"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/store"
)

type ReportHandler struct {
	Config *config.Config
	Store  *store.ReportStore
}

func NewReportHandler(cfg *config.Config, reportStore *store.ReportStore) *ReportHandler {
	return &ReportHandler{Config: cfg, Store: reportStore}
}

func (h *ReportHandler) lookup(c *gin.Context) (*models.DiagnosticReport, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report ID"})
		return nil, false
	}

	r, err := h.Store.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found. It may have expired; reports are kept in memory only."})
		return nil, false
	}
	return r, true
}

func (h *ReportHandler) ViewReport(c *gin.Context) {
	r, ok := h.lookup(c)
	if !ok {
		return
	}

	c.HTML(http.StatusOK, "report.html", gin.H{
		"AppVersion": h.Config.AppVersion,
		"ActivePage": "report",
		"Report":     r,
		"Verdict":    aggregate.Describe(r),
	})
}

func (h *ReportHandler) APIReport(c *gin.Context) {
	r, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, r.ToDict())
}

func (h *ReportHandler) PDFReport(c *gin.Context) {
	r, ok := h.lookup(c)
	if !ok {
		return
	}

	filename := fmt.Sprintf("diagnostic_%s_%s.pdf", r.ASCIIDomain, r.CreatedAt.UTC().Format("20060102_150405"))
	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Status(http.StatusOK)

	if err := report.WritePDF(c.Writer, r); err != nil {
		// Headers are already out; log-and-drop is all that is left.
		c.Error(err)
	}
}
