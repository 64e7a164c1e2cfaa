package api

import (
	"context"

	"github.com/valyala/fasthttp"

	"meowstore/pkg/api/envelope"
	"meowstore/pkg/api/router"
	"meowstore/pkg/api/utils"
	"meowstore/pkg/db"
	"meowstore/pkg/ident"
	"meowstore/pkg/logger"
	"meowstore/pkg/models"
)

// handlers serves the record routes from one store. base carries the
// values of the serving context into mirror calls but not its cancellation,
// so requests drained during shutdown still finish their writes.
type handlers struct {
	base  context.Context
	store *db.Store
}

func notFound(ctx *fasthttp.RequestCtx) {
	router.WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
}

func format(ctx *fasthttp.RequestCtx, param string) (envelope.Format, bool) {
	return envelope.Parse(utils.PathParam(ctx, param))
}

func respond(ctx *fasthttp.RequestCtx, f envelope.Format, v any, err error) {
	if err != nil {
		status, flt := fault(err)
		if status >= fasthttp.StatusInternalServerError {
			logger.Error("request_failed", "path", utils.GetPath(ctx), "status", status)
		}
		router.WriteFault(ctx, f, status, flt)
		return
	}
	if err := router.WriteOK(ctx, f, v); err != nil {
		logger.Error("response_encode_failed", "path", utils.GetPath(ctx), "error", err)
		router.WriteFault(ctx, f, fasthttp.StatusInternalServerError, envelope.Fault{Kind: "internal"})
	}
}

func nameParam(ctx *fasthttp.RequestCtx) (ident.ID, bool) {
	id, err := ident.Encode(utils.PathParam(ctx, "name"))
	return id, err == nil
}

func idParam(ctx *fasthttp.RequestCtx) (uint64, bool) {
	return utils.ParseUint(utils.PathParam(ctx, "id"))
}

func (h *handlers) getUser(ctx *fasthttp.RequestCtx) {
	f, ok := format(ctx, "format")
	name, okName := nameParam(ctx)
	if !ok || !okName {
		notFound(ctx)
		return
	}
	u, err := h.store.GetUser(utils.ExtractAuthKey(ctx), name)
	respond(ctx, f, u, err)
}

func (h *handlers) searchUsers(ctx *fasthttp.RequestCtx) {
	f, ok := format(ctx, "format")
	if !ok {
		notFound(ctx)
		return
	}
	users, err := h.store.SearchUsers(h.base, utils.ExtractAuthKey(ctx), utils.PathParam(ctx, "query"))
	respond(ctx, f, users, err)
}

func (h *handlers) writeUser(ctx *fasthttp.RequestCtx) {
	in, okIn := format(ctx, "in")
	out, okOut := format(ctx, "out")
	if !okIn || !okOut {
		notFound(ctx)
		return
	}
	var u models.User
	if err := envelope.DecodeEntity(in, ctx.PostBody(), &u); err != nil {
		respond(ctx, out, nil, err)
		return
	}
	res, err := h.store.AddUser(h.base, utils.ExtractAuthKey(ctx), &u)
	respond(ctx, out, res.Existed(), err)
}

func (h *handlers) removeUser(ctx *fasthttp.RequestCtx) {
	f, ok := format(ctx, "format")
	name, okName := nameParam(ctx)
	if !ok || !okName {
		notFound(ctx)
		return
	}
	res, err := h.store.RemoveUser(utils.ExtractAuthKey(ctx), name)
	respond(ctx, f, res.Existed(), err)
}

func (h *handlers) getProject(ctx *fasthttp.RequestCtx) {
	f, ok := format(ctx, "format")
	id, okID := idParam(ctx)
	if !ok || !okID {
		notFound(ctx)
		return
	}
	p, err := h.store.GetProject(utils.ExtractAuthKey(ctx), id)
	respond(ctx, f, p, err)
}

func (h *handlers) searchProjects(ctx *fasthttp.RequestCtx) {
	f, ok := format(ctx, "format")
	if !ok {
		notFound(ctx)
		return
	}
	projects, err := h.store.SearchProjects(h.base, utils.ExtractAuthKey(ctx), utils.PathParam(ctx, "query"))
	respond(ctx, f, projects, err)
}

func (h *handlers) writeProject(ctx *fasthttp.RequestCtx) {
	in, okIn := format(ctx, "in")
	out, okOut := format(ctx, "out")
	if !okIn || !okOut {
		notFound(ctx)
		return
	}
	var p models.Project
	if err := envelope.DecodeEntity(in, ctx.PostBody(), &p); err != nil {
		respond(ctx, out, nil, err)
		return
	}
	res, err := h.store.AddProject(h.base, utils.ExtractAuthKey(ctx), &p)
	respond(ctx, out, res.Existed(), err)
}

func (h *handlers) removeProject(ctx *fasthttp.RequestCtx) {
	f, ok := format(ctx, "format")
	id, okID := idParam(ctx)
	if !ok || !okID {
		notFound(ctx)
		return
	}
	res, err := h.store.RemoveProject(utils.ExtractAuthKey(ctx), id)
	respond(ctx, f, res.Existed(), err)
}
