package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"budget-tracker/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// errorLogSize caps the Redis error log shown by /health/errors.
const errorLogSize = 100

// ErrorHandler is the global error handler. Returns the standard error format.
// Unexpected errors are logged and pushed onto the Redis error log; rdb may be nil.
func ErrorHandler(rdb *redis.Client) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("method", c.Method()).Str("path", c.Path()).Msg("Unhandled error")
			if rdb != nil {
				pushErrorLog(rdb, c, err)
			}
		}
		return response.Error(c, message, code, nil)
	}
}

func pushErrorLog(rdb *redis.Client, c *fiber.Ctx, err error) {
	entry, _ := json.Marshal(map[string]interface{}{
		"time":     time.Now(),
		"method":   c.Method(),
		"path":     c.OriginalURL(),
		"message":  err.Error(),
		"trace_id": GetTraceID(c),
	})
	ctx := context.Background()
	pipe := rdb.TxPipeline()
	pipe.LPush(ctx, KeyErrorLog, entry)
	pipe.LTrim(ctx, KeyErrorLog, 0, errorLogSize-1)
	if _, perr := pipe.Exec(ctx); perr != nil {
		log.Warn().Err(perr).Msg("could not record error log entry")
	}
}
