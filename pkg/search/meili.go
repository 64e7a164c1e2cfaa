package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"

	"meowstore/pkg/logger"
)

const (
	defaultTimeout = 5 * time.Second
	defaultMaxHits = 20
)

// Meili talks to a Meilisearch server over its REST API.
type Meili struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	maxHits  int
	client   *fasthttp.Client
}

// NewMeili returns a client for the server at opts.Endpoint.
func NewMeili(opts Options) *Meili {
	m := &Meili{
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		apiKey:   opts.APIKey,
		timeout:  opts.Timeout,
		maxHits:  opts.MaxHits,
		client: &fasthttp.Client{
			Name:                "meowstore",
			MaxIdleConnDuration: time.Minute,
			Dial:                opts.Dial,
		},
	}
	if m.timeout <= 0 {
		m.timeout = defaultTimeout
	}
	if m.maxHits <= 0 {
		m.maxHits = defaultMaxHits
	}
	return m
}

type taskInfo struct {
	TaskUID int64  `json:"taskUid"`
	Status  string `json:"status"`
}

type searchRequest struct {
	Q                    string   `json:"q"`
	Limit                int      `json:"limit"`
	AttributesToRetrieve []string `json:"attributesToRetrieve"`
}

type searchResponse struct {
	Hits []struct {
		ID uint64 `json:"id"`
	} `json:"hits"`
}

// apiError is the error body Meilisearch returns.
type apiError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("meilisearch: status %d: %s (%s)", e.Status, e.Message, e.Code)
}

// AddDocuments enqueues an upsert task. It does not wait for indexing.
func (m *Meili) AddDocuments(ctx context.Context, index string, docs any) error {
	path := "/indexes/" + url.PathEscape(index) + "/documents?primaryKey=id"
	var task taskInfo
	if err := m.do(ctx, path, docs, &task); err != nil {
		return err
	}
	logger.Debug("search_task_enqueued", "index", index, "task_uid", task.TaskUID, "status", task.Status)
	return nil
}

// Search runs query against index and returns the hit ids in rank order.
func (m *Meili) Search(ctx context.Context, index, query string) ([]uint64, error) {
	path := "/indexes/" + url.PathEscape(index) + "/search"
	req := searchRequest{Q: query, Limit: m.maxHits, AttributesToRetrieve: []string{"id"}}
	var res searchResponse
	if err := m.do(ctx, path, req, &res); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func (m *Meili) do(ctx context.Context, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := m.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	if err := json.NewEncoder(bb).Encode(body); err != nil {
		return fmt.Errorf("meilisearch: encode body: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(m.endpoint + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}
	req.SetBody(bb.B)

	if err := m.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("meilisearch: %s: %w", path, err)
	}
	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		e := &apiError{Status: status}
		_ = json.Unmarshal(resp.Body(), e)
		return e
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("meilisearch: decode response: %w", err)
	}
	return nil
}
