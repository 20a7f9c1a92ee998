package transport

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-entry-credits/webhooks"
)

func (s *Server) receiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes))
	if err != nil {
		writeError(c, badRequest("transport: request body could not be read", err))
		return
	}

	result, _ := s.processor.Process(c.Request.Context(), webhooks.InboundRequest{
		Headers: flattenHeaders(c.Request.Header),
		Body:    body,
		Metadata: map[string]any{
			"remote_addr": c.ClientIP(),
			"path":        c.Request.URL.Path,
		},
	})
	c.JSON(result.StatusCode, result.Body)
}

func flattenHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		out[key] = values[0]
	}
	return out
}
