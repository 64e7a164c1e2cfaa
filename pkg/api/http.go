package api

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"meowstore/pkg/api/router"
	"meowstore/pkg/db"
	pathrouter "meowstore/pkg/router"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meowstore_http_requests_total",
			Help: "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meowstore_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(httpRequests)
	prometheus.MustRegister(httpDuration)
}

// instrument records request count and latency under route.
func instrument(route string, h fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		h(ctx)
		httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		httpRequests.WithLabelValues(route, strconv.Itoa(ctx.Response.StatusCode())).Inc()
	}
}

// MetricsHandler serves the default prometheus registry.
func MetricsHandler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
}

// RegisterRoutes wires the record routes onto r.
func RegisterRoutes(ctx context.Context, r *pathrouter.Router, store *db.Store) {
	h := &handlers{base: context.WithoutCancel(ctx), store: store}

	// users
	r.GET("/users/get_by_name/{name}/{format}", instrument("users_get_by_name", h.getUser))
	r.GET("/users/search/{query}/{format}", instrument("users_search", h.searchUsers))
	r.POST("/users/write/{in}/{out}", instrument("users_write", h.writeUser))
	r.GET("/users/remove_by_name/{name}/{format}", instrument("users_remove_by_name", h.removeUser))
	r.DELETE("/users/remove_by_name/{name}/{format}", instrument("users_remove_by_name", h.removeUser))

	// projects
	r.GET("/projects/get_by_id/{id}/{format}", instrument("projects_get_by_id", h.getProject))
	r.GET("/projects/search/{query}/{format}", instrument("projects_search", h.searchProjects))
	r.POST("/projects/write/{in}/{out}", instrument("projects_write", h.writeProject))
	r.GET("/projects/remove_by_id/{id}/{format}", instrument("projects_remove_by_id", h.removeProject))
	r.DELETE("/projects/remove_by_id/{id}/{format}", instrument("projects_remove_by_id", h.removeProject))

	r.GET("/metrics", MetricsHandler())
}

// NewRouter returns a router with the record routes and JSON fallbacks for
// unknown paths and methods.
func NewRouter(ctx context.Context, store *db.Store) *pathrouter.Router {
	r := pathrouter.New()
	RegisterRoutes(ctx, r, store)
	r.NotFound(notFound)
	r.MethodNotAllowed(func(ctx *fasthttp.RequestCtx) {
		router.WriteJSONError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
