package api

import (
	"errors"

	"github.com/valyala/fasthttp"

	"meowstore/pkg/api/envelope"
	"meowstore/pkg/db"
)

// fault maps a store or decode error to a status code and an error
// envelope. Internal causes never reach the wire.
func fault(err error) (int, envelope.Fault) {
	var (
		ae *db.AuthError
		be *db.BadInputError
		de *envelope.DecodeError
	)
	switch {
	case errors.As(err, &ae):
		status := fasthttp.StatusUnauthorized
		if ae.Reason == db.AuthNotAllowed {
			status = fasthttp.StatusForbidden
		}
		return status, envelope.Fault{Kind: "auth", Reason: ae.Reason.String()}
	case errors.As(err, &be):
		return fasthttp.StatusBadRequest, envelope.Fault{Kind: "bad_input", Reason: be.Field}
	case errors.As(err, &de):
		return fasthttp.StatusBadRequest, envelope.Fault{Kind: "decode", Reason: de.Err.Error()}
	case errors.Is(err, db.ErrNotFound):
		return fasthttp.StatusNotFound, envelope.Fault{Kind: "not_found"}
	case errors.Is(err, db.ErrClosed):
		return fasthttp.StatusServiceUnavailable, envelope.Fault{Kind: "unavailable"}
	default:
		return fasthttp.StatusInternalServerError, envelope.Fault{Kind: "internal"}
	}
}
