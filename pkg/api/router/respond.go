package router

import (
	"encoding/json"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"

	"meowstore/pkg/api/envelope"
)

// WriteJSON writes a JSON response.
func WriteJSON(ctx *fasthttp.RequestCtx, data interface{}) error {
	ctx.Response.Header.Set("Content-Type", "application/json")
	return json.NewEncoder(ctx).Encode(data)
}

// WriteJSONError writes a JSON error response.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetStatusCode(status)
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(map[string]string{"error": message})
}

// WriteOK writes v in the success envelope of format f.
func WriteOK(ctx *fasthttp.RequestCtx, f envelope.Format, v any) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	b, err := envelope.AppendOK(buf.B[:0], f, v)
	if err != nil {
		return err
	}
	buf.B = b
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType(f.ContentType())
	ctx.SetBody(buf.B)
	return nil
}

// WriteFault writes an error envelope of format f with the given status.
func WriteFault(ctx *fasthttp.RequestCtx, f envelope.Format, status int, fault envelope.Fault) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = envelope.AppendFault(buf.B[:0], f, fault)
	ctx.SetStatusCode(status)
	ctx.SetContentType(f.ContentType())
	ctx.SetBody(buf.B)
}
