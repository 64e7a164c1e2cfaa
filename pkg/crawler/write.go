package crawler

import (
	"errors"
	"fmt"

	"github.com/valyala/fasthttp"

	"meowstore/pkg/api/envelope"
	"meowstore/pkg/api/utils"
)

// errStore marks failures reaching the store, which end the crawl.
var errStore = errors.New("crawler: store unreachable")

type entity interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}

// write posts v to the store's write route for collection and returns
// whether the record already existed. Rejections come back as
// *envelope.Fault.
func (c *Crawler) write(collection string, v entity) (bool, error) {
	body, err := envelope.EncodeEntity(envelope.Bin, v)
	if err != nil {
		return false, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.DBURL + "/" + collection + "/write/bin/bin")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(envelope.Bin.ContentType())
	if c.cfg.DBAuthKey != "" {
		req.Header.Set(utils.AuthKeyHeader, c.cfg.DBAuthKey)
	}
	req.SetBodyRaw(body)

	if err := c.db.DoTimeout(req, resp, c.cfg.RequestTimeout.Duration()); err != nil {
		return false, fmt.Errorf("%w: %v", errStore, err)
	}
	var existed bool
	if err := envelope.DecodeResponse(envelope.Bin, resp.Body(), &existed); err != nil {
		return false, err
	}
	return existed, nil
}
