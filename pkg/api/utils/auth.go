package utils

import (
	"github.com/valyala/fasthttp"

	"meowstore/pkg/db"
	"meowstore/pkg/logger"
)

// AuthKeyHeader carries the caller's access key.
const AuthKeyHeader = "x-auth-key"

// ExtractAuthKey returns the access key sent with the request, or nil. A
// malformed key is treated as absent.
func ExtractAuthKey(ctx *fasthttp.RequestCtx) *db.Key {
	raw := ctx.Request.Header.Peek(AuthKeyHeader)
	if len(raw) == 0 {
		return nil
	}
	key, err := db.ParseKey(string(raw))
	if err != nil {
		logger.Debug("auth_key_malformed", "path", GetPath(ctx), "error", err)
		return nil
	}
	return &key
}
