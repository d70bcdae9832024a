package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/defense-scheduler/internal/middleware"
	"github.com/noah-isme/defense-scheduler/pkg/middleware/requestid"
)

// requestMeta tags optimization responses with the run mode, the requesting
// user and the request id.
func requestMeta(c *gin.Context, mode string) map[string]interface{} {
	meta := map[string]interface{}{"mode": mode}
	if claims, ok := middleware.CurrentUser(c); ok {
		meta["requested_by"] = claims.UserID
	}
	if id := requestid.Value(c); id != "" {
		meta["request_id"] = id
	}
	return meta
}
