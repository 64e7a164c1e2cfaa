package auth

import (
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"meowstore/pkg/api/router"
	"meowstore/pkg/api/utils"
	"meowstore/pkg/logger"
)

// RequestIDHeader carries the per-request id on responses.
const RequestIDHeader = "X-Request-Id"

// GateConfig configures the request gate.
type GateConfig struct {
	AllowedOrigins []string
	IPWhitelist    []string
	RPS            float64
	Burst          int
}

// Gate applies CORS, the IP whitelist and per-key rate limits before any
// route runs. Key permissions are checked by the store.
type Gate struct {
	cfg      GateConfig
	limiters *limiterPool
}

// NewGate builds a gate from cfg.
func NewGate(cfg GateConfig) *Gate {
	return &Gate{cfg: cfg, limiters: newLimiterPool(cfg.RPS, cfg.Burst)}
}

// Close stops background limiter cleanup.
func (g *Gate) Close() {
	g.limiters.Shutdown()
}

// Middleware wraps next with the gate.
func (g *Gate) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		reqID := requestID(ctx)
		ctx.Response.Header.Set(RequestIDHeader, reqID)
		logger.LogRequestFast(ctx)

		// cors headers and handle options shortcut
		origin := utils.GetHeader(ctx, "Origin")
		if origin != "" && originAllowed(origin, g.cfg.AllowedOrigins) {
			ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
			ctx.Response.Header.Set("Vary", "Origin")
			ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			ctx.Response.Header.Set("Access-Control-Max-Age", "600")
			ctx.Response.Header.Set("Access-Control-Allow-Headers", "Content-Type,X-Auth-Key")
			ctx.Response.Header.Set("Access-Control-Expose-Headers", RequestIDHeader)
		}
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		// ip whitelist check (always before all other checks except cors/options)
		if len(g.cfg.IPWhitelist) > 0 {
			ip := utils.ClientIP(ctx)
			if !ipWhitelisted(ip, g.cfg.IPWhitelist) {
				router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
				logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", utils.GetPath(ctx), "request_id", reqID)
				return
			}
		}

		if publicAllowedPath(ctx) {
			next(ctx)
			return
		}

		// rate limiting per key, or per client address without one
		limitKey := utils.GetHeader(ctx, utils.AuthKeyHeader)
		if limitKey == "" {
			limitKey = "ip:" + utils.ClientIP(ctx)
		}
		if !g.limiters.Allow(limitKey) {
			router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
			logger.Warn("rate_limited", "path", utils.GetPath(ctx), "request_id", reqID)
			return
		}

		next(ctx)
	}
}

func requestID(ctx *fasthttp.RequestCtx) string {
	if id := utils.GetHeader(ctx, RequestIDHeader); id != "" && len(id) <= 64 {
		return id
	}
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

func publicAllowedPath(ctx *fasthttp.RequestCtx) bool {
	if string(ctx.Method()) != fasthttp.MethodGet {
		return false
	}
	switch utils.GetPath(ctx) {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}
