package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func serve(r *Router, method, path string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	r.Handler(ctx)
	return ctx
}

func TestParamsAreBound(t *testing.T) {
	r := New()
	var name, format string
	r.GET("/users/get_by_name/{name}/{format}", func(ctx *fasthttp.RequestCtx) {
		name, _ = ctx.UserValue("name").(string)
		format, _ = ctx.UserValue("format").(string)
	})

	ctx := serve(r, "GET", "/users/get_by_name/griffpatch/json")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "griffpatch", name)
	assert.Equal(t, "json", format)
}

func TestRootRoute(t *testing.T) {
	r := New()
	hit := false
	r.GET("/", func(*fasthttp.RequestCtx) { hit = true })
	serve(r, "GET", "/")
	assert.True(t, hit)
}

func TestNotFound(t *testing.T) {
	r := New()
	r.GET("/healthz", func(*fasthttp.RequestCtx) {})

	ctx := serve(r, "GET", "/users/get_by_name/x")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())

	r.NotFound(func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusTeapot) })
	ctx = serve(r, "GET", "/nope")
	assert.Equal(t, fasthttp.StatusTeapot, ctx.Response.StatusCode())
}

func TestEmptyParamDoesNotMatch(t *testing.T) {
	r := New()
	r.GET("/users/search/{query}/{format}", func(*fasthttp.RequestCtx) {})
	ctx := serve(r, "GET", "/users/search//json")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestMethodNotAllowed(t *testing.T) {
	r := New()
	r.POST("/users/write/{in}/{out}", func(*fasthttp.RequestCtx) {})
	r.PUT("/users/write/{in}/{out}", func(*fasthttp.RequestCtx) {})

	ctx := serve(r, "GET", "/users/write/bin/bin")
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
	assert.Equal(t, "POST, PUT", string(ctx.Response.Header.Peek("Allow")))
}
