package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Every endpoint answers with this envelope; the dashboard keys off
// `success` and renders `data` directly. Failures carry an empty data array
// so the client never has to branch on a missing field.
type apiResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func Ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, apiResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func Error(c *gin.Context, status int, message string) {
	c.JSON(status, apiResponse{
		Success: false,
		Data:    []any{},
		Error:   message,
	})
}
