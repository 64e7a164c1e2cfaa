package app

import (
	"context"
	"net"
	"time"

	"github.com/valyala/fasthttp"

	"meowstore/pkg/api"
	"meowstore/pkg/api/auth"
)

// readyzHandlerFast handles the /readyz endpoint (fasthttp).
func (a *App) readyzHandlerFast(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("application/json")
	if a.store == nil || !a.store.Ready() {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		_, _ = ctx.WriteString("{\"status\":\"not ready\"}")
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	_, _ = ctx.WriteString("{\"status\":\"ok\",\"version\":\"" + ver + "\"}")
}

// healthzHandlerFast handles the /healthz endpoint (fasthttp).
func (a *App) healthzHandlerFast(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	_, _ = ctx.WriteString("{\"status\":\"ok\"}")
}

// handler builds the full request pipeline: gate, then router.
func (a *App) handler(ctx context.Context) fasthttp.RequestHandler {
	a.gate = auth.NewGate(auth.GateConfig{
		AllowedOrigins: append([]string{}, a.cfg.Server.CORS.AllowedOrigins...),
		IPWhitelist:    append([]string{}, a.cfg.Server.IPWhitelist...),
		RPS:            a.cfg.Server.RateLimit.RPS,
		Burst:          a.cfg.Server.RateLimit.Burst,
	})

	r := api.NewRouter(ctx, a.store)
	r.GET("/healthz", a.healthzHandlerFast)
	r.GET("/readyz", a.readyzHandlerFast)
	return a.gate.Middleware(r.Handler)
}

func (a *App) newServer(ctx context.Context) *fasthttp.Server {
	const (
		readBufferSize       = 64 * 1024        // 64 KiB read buffer per connection
		idleTimeout          = 30 * time.Second // max keep-alive idle duration per connection
		maxKeepaliveDuration = 2 * time.Minute  // max duration for keep-alive connection
	)
	return &fasthttp.Server{
		Handler:              a.handler(ctx),
		Name:                 "meowstore",
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   int(a.cfg.Server.MaxBodySize.Int64()),
		ReadTimeout:          a.cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:         a.cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}
}

// startHTTP builds and starts the fasthttp server, returning a channel that delivers errors.
func (a *App) startHTTP(ctx context.Context) <-chan error {
	a.srvFast = a.newServer(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.srvFast.ListenAndServe(a.cfg.Addr())
	}()
	return errCh
}

// serve runs the server on ln; used by tests.
func (a *App) serve(ctx context.Context, ln net.Listener) <-chan error {
	a.srvFast = a.newServer(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.srvFast.Serve(ln)
	}()
	return errCh
}
