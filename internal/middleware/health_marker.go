package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Redis keys for request counters and the error log.
// Exported for use by health handlers (reset, collectHealth).
const (
	KeyReqTotal  = "health:global:req_total"
	KeyReqErrors = "health:global:req_errors"
	KeyResTime   = "health:global:res_time_total"
	KeyResCount  = "health:global:res_count"
	KeyStartTime = "health:global:start_time"
	KeyLastReq   = "health:global:last_request"
	KeyErrorLog  = "health:global:error_log"
)

// HealthMarker records request counters in Redis. Health and reset
// endpoints are not counted.
func HealthMarker(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/" || path == "/reset" || strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/favicon") {
			return c.Next()
		}

		start := time.Now()
		lastReq, _ := json.Marshal(map[string]interface{}{
			"time":     start,
			"ip":       c.IP(),
			"path":     c.OriginalURL(),
			"method":   c.Method(),
			"trace_id": GetTraceID(c),
		})
		ctx := context.Background()
		pipe := rdb.Pipeline()
		pipe.Set(ctx, KeyLastReq, lastReq, 0)
		pipe.Incr(ctx, KeyReqTotal)
		_, _ = pipe.Exec(ctx)

		err := c.Next()

		pipe = rdb.Pipeline()
		pipe.Incr(ctx, KeyResCount)
		pipe.IncrByFloat(ctx, KeyResTime, float64(time.Since(start).Milliseconds()))
		if responseStatus(c, err) >= fiber.StatusInternalServerError {
			pipe.Incr(ctx, KeyReqErrors)
		}
		_, _ = pipe.Exec(ctx)
		return err
	}
}
