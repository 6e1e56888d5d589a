// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/config"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/diagnose"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/models"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/probes"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/store"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/validate"
)

const indexTemplate = "index.html"

type DiagnoseHandler struct {
	Config *config.Config
	Runner *diagnose.Runner
	Store  *store.ReportStore
}

func NewDiagnoseHandler(cfg *config.Config, runner *diagnose.Runner, reportStore *store.ReportStore) *DiagnoseHandler {
	return &DiagnoseHandler{Config: cfg, Runner: runner, Store: reportStore}
}

func (h *DiagnoseHandler) Diagnose(c *gin.Context) {
	domain := strings.TrimSpace(c.PostForm("domain"))
	scopeKey := strings.TrimSpace(c.PostForm("scope"))
	limitRaw := strings.TrimSpace(c.PostForm("limit"))
	measureType := models.MeasurementType(strings.TrimSpace(c.PostForm("type")))

	if domain == "" {
		h.renderFormError(c, domain, scopeKey, "Please enter a domain name.")
		return
	}
	if !validate.ValidateDomain(domain) {
		h.renderFormError(c, domain, scopeKey, "Invalid domain name. Enter a domain like example.com.br.")
		return
	}

	scope, ok := probes.LookupScope(scopeKey)
	if !ok {
		h.renderFormError(c, domain, scopeKey, "Unknown scope selection.")
		return
	}

	limit := h.Config.DefaultProbeLimit
	if limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed < 1 {
			h.renderFormError(c, domain, scopeKey, "Probe limit must be a positive number.")
			return
		}
		limit = parsed
	}
	if limit > h.Config.MaxProbeLimit {
		limit = h.Config.MaxProbeLimit
	}

	switch measureType {
	case models.MeasurePing, models.MeasureDNS:
	case "":
		measureType = models.MeasurePing
	default:
		h.renderFormError(c, domain, scopeKey, "Unknown measurement type.")
		return
	}

	asciiDomain, err := validate.DomainToASCII(domain)
	if err != nil {
		asciiDomain = domain
	}

	spec := models.MeasurementSpec{
		Domain:      domain,
		ASCIIDomain: asciiDomain,
		Type:        measureType,
		Scope:       scope.Key,
		Limit:       limit,
	}

	result, err := h.Runner.Run(c.Request.Context(), spec)
	if err != nil {
		msg := "All measurement providers are currently unavailable. Please try again in a few minutes."
		if wantsJSON(c) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":           msg,
				"provider_errors": result.ProviderErrors,
			})
			return
		}
		h.renderFormError(c, domain, scopeKey, msg)
		return
	}

	h.Store.Save(result)

	if wantsJSON(c) {
		c.JSON(http.StatusOK, result.ToDict())
		return
	}
	c.Redirect(http.StatusSeeOther, "/report/"+result.ID)
}

func (h *DiagnoseHandler) renderFormError(c *gin.Context, domain, scopeKey, msg string) {
	c.HTML(http.StatusOK, indexTemplate, gin.H{
		"AppVersion":    h.Config.AppVersion,
		"ActivePage":    "home",
		"Scopes":        probes.Scopes(),
		"DefaultLimit":  h.Config.DefaultProbeLimit,
		"MaxLimit":      h.Config.MaxProbeLimit,
		"FlashMessages": []FlashMessage{{Category: "danger", Message: msg}},
		"FormDomain":    domain,
		"FormScope":     scopeKey,
	})
}

func wantsJSON(c *gin.Context) bool {
	return c.GetHeader("Accept") == "application/json"
}
