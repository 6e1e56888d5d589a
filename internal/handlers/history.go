package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/config"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/store"
)

const historyPageSize = 50

type HistoryHandler struct {
	Config *config.Config
	Store  *store.ReportStore
}

func NewHistoryHandler(cfg *config.Config, reportStore *store.ReportStore) *HistoryHandler {
	return &HistoryHandler{Config: cfg, Store: reportStore}
}

func (h *HistoryHandler) History(c *gin.Context) {
	reports := h.Store.List(historyPageSize)

	c.HTML(http.StatusOK, "history.html", gin.H{
		"AppVersion": h.Config.AppVersion,
		"ActivePage": "history",
		"Reports":    reports,
		"Total":      h.Store.Len(),
	})
}
