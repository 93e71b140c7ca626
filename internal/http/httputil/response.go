package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/sponsor-relay/internal/common"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	// Code is the machine readable failure code, Recommendation the step a
	// client should restart from.
	Code           string `json:"code,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// Fail writes e with an optional payload and recommendation and aborts the
// handler chain.
func Fail(c *gin.Context, e *common.HttpError, data interface{}, recommendation string) {
	c.AbortWithStatusJSON(e.StatusCode, Response{
		Success:        false,
		Data:           data,
		Error:          e.Message,
		Code:           e.Code,
		Recommendation: recommendation,
	})
}

func BadRequest(c *gin.Context, err string) {
	Fail(c, common.HTTPErrorBadRequest(err), nil, "")
}
