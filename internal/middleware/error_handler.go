package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"boneboard-backend/internal/pkg/apperr"
	"boneboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const errorLogSize = 50

// ErrorHandler is the global error handler. Engine errors are mapped by kind;
// 5xx responses are logged and pushed to the Redis error log read by
// /health/errors. rdb may be nil.
func ErrorHandler(rdb *redis.Client) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			if fe.Code >= fiber.StatusInternalServerError {
				recordError(c, rdb, err)
			}
			return response.Error(c, fe.Message, fe.Code, nil)
		}

		kind := apperr.KindOf(err)
		if kind.HTTPStatus() >= fiber.StatusInternalServerError {
			recordError(c, rdb, err)
		}
		return response.FromError(c, err)
	}
}

func recordError(c *fiber.Ctx, rdb *redis.Client, err error) {
	log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("method", c.Method()).
		Str("path", c.Path()).Msg("request failed")
	if rdb == nil {
		return
	}
	entry, _ := json.Marshal(map[string]interface{}{
		"time":     time.Now().UTC(),
		"method":   c.Method(),
		"path":     c.OriginalURL(),
		"message":  err.Error(),
		"trace_id": GetTraceID(c),
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pipe := rdb.TxPipeline()
	pipe.LPush(ctx, KeyErrorLog, entry)
	pipe.LTrim(ctx, KeyErrorLog, 0, errorLogSize-1)
	pipe.Incr(ctx, KeyReqErrors)
	if _, perr := pipe.Exec(ctx); perr != nil {
		log.Warn().Err(perr).Msg("health: error log write failed")
	}
}
