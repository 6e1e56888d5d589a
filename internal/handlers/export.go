package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/models"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/store"
)

type ExportHandler struct {
	Store *store.ReportStore
}

func NewExportHandler(reportStore *store.ReportStore) *ExportHandler {
	return &ExportHandler{Store: reportStore}
}

// ExportJSON streams every stored report as NDJSON, newest first.
func (h *ExportHandler) ExportJSON(c *gin.Context) {
	timestamp := time.Now().UTC().Format("20060102_150405")
	filename := fmt.Sprintf("diagnostico_export_%s.ndjson", timestamp)

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Status(http.StatusOK)

	_ = h.Store.Each(c.Request.Context(), func(r *models.DiagnosticReport) error {
		line, err := json.Marshal(r.ToDict())
		if err != nil {
			return err
		}
		if _, err := c.Writer.Write(line); err != nil {
			return err
		}
		_, err = c.Writer.Write([]byte("\n"))
		return err
	})
	c.Writer.Flush()
}
