package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"co2-bank-monitor/internal/model"
	"co2-bank-monitor/internal/plot"
)

// GetPlot renders the content history of the last plot window as a PNG.
func (h *Handler) GetPlot(c *gin.Context) {
	ctx := c.Request.Context()
	now := h.clock.Now()
	from := now.Add(-time.Duration(h.plotDays) * 24 * time.Hour)

	readings, err := h.readings.Since(ctx, from)
	if err != nil {
		h.logger.Error("failed to load readings for plot", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load readings"})
		return
	}
	alerts, err := h.ledger.Records(ctx, model.AlertLowContent)
	if err != nil {
		h.logger.Warn("failed to load alert history for plot", "error", err)
		alerts = nil
	}

	var buf bytes.Buffer
	err = plot.Render(&buf, readings, alerts, plot.Options{
		From:      from,
		To:        now,
		Location:  h.loc,
		Threshold: h.threshold,
	})
	if err != nil {
		h.logger.Error("failed to render plot", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to render plot"})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
