package main

import (
	"testing"
	"time"

	xhttp "github.com/nimasrn/balance-bot/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func TestNewHTTPServer_TagsResponsesWithRequestID(t *testing.T) {
	s := newHTTPServer(time.Second)
	s.GET("/api/v1/ping", func(ctx *xhttp.RequestCtx) {
		ctx.SetStatusCode(xhttp.StatusOK)
	})
	h := s.Handler()

	t.Run("generated", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.SetRequestURI("/api/v1/ping")
		ctx.Request.Header.SetMethod("GET")
		h(ctx)

		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		assert.NotEmpty(t, string(ctx.Response.Header.Peek(xhttp.HeaderRequestID)))
	})

	t.Run("propagated", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.SetRequestURI("/api/v1/ping")
		ctx.Request.Header.SetMethod("GET")
		ctx.Request.Header.Set(xhttp.HeaderRequestID, "req-42")
		h(ctx)

		assert.Equal(t, "req-42", string(ctx.Response.Header.Peek(xhttp.HeaderRequestID)))
	})

	t.Run("unknown route still tagged", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.SetRequestURI("/nope")
		ctx.Request.Header.SetMethod("GET")
		h(ctx)

		assert.Equal(t, xhttp.StatusNotFound, ctx.Response.StatusCode())
		assert.NotEmpty(t, string(ctx.Response.Header.Peek(xhttp.HeaderRequestID)))
	})
}
