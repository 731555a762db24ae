package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type statusResponse struct {
	LeftBankContents  *string `json:"leftBankContents"`
	RightBankContents *string `json:"rightBankContents"`
	MessageTimeLeft   *string `json:"messageTimeLeft"`
	MessageTimeRight  *string `json:"messageTimeRight"`
}

// GetStatus returns the raw vendor fields of the latest snapshot. Every field is
// null until the first successful poll.
func (h *Handler) GetStatus(c *gin.Context) {
	var resp statusResponse
	if snap := h.latest(); snap != nil {
		resp = statusResponse{
			LeftBankContents:  &snap.Left.Content,
			RightBankContents: &snap.Right.Content,
			MessageTimeLeft:   &snap.Left.MessageTime,
			MessageTimeRight:  &snap.Right.MessageTime,
		}
	}
	c.JSON(http.StatusOK, resp)
}
