package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/config"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/probes"
)

type HomeHandler struct {
	Config *config.Config
}

func NewHomeHandler(cfg *config.Config) *HomeHandler {
	return &HomeHandler{Config: cfg}
}

func (h *HomeHandler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"AppVersion":      h.Config.AppVersion,
		"ActivePage":      "home",
		"Scopes":          probes.Scopes(),
		"DefaultLimit":    h.Config.DefaultProbeLimit,
		"MaxLimit":        h.Config.MaxProbeLimit,
		"MaintenanceNote": h.Config.MaintenanceNote,
		"FlashMessages":   popFlash(c),
		"FormDomain":      "",
		"FormScope":       "",
	})
}
