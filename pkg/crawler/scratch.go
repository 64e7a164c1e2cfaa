package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"meowstore/pkg/ident"
	"meowstore/pkg/models"
)

// errNoSuchUser is returned when the platform answers 404.
var errNoSuchUser = errors.New("crawler: no such user")

type apiUser struct {
	ID          uint64 `json:"id"`
	Username    string `json:"username"`
	ScratchTeam bool   `json:"scratchteam"`
	Profile     struct {
		Status string `json:"status"`
		Bio    string `json:"bio"`
	} `json:"profile"`
}

type apiProject struct {
	ID              uint64 `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Instructions    string `json:"instructions"`
	Public          bool   `json:"public"`
	CommentsAllowed bool   `json:"comments_allowed"`
	IsPublished     bool   `json:"is_published"`
	Author          struct {
		ID          uint64 `json:"id"`
		Username    string `json:"username"`
		ScratchTeam bool   `json:"scratchteam"`
	} `json:"author"`
	History struct {
		Created  string `json:"created"`
		Modified string `json:"modified"`
		Shared   string `json:"shared"`
	} `json:"history"`
	Stats struct {
		Views     uint64 `json:"views"`
		Loves     uint64 `json:"loves"`
		Favorites uint64 `json:"favorites"`
		Remixes   uint64 `json:"remixes"`
	} `json:"stats"`
}

// project converts a listing entry. Entries whose author name does not fit
// the key alphabet are rejected.
func (p *apiProject) project() (*models.Project, error) {
	author, err := ident.Encode(p.Author.Username)
	if err != nil {
		return nil, fmt.Errorf("author %q: %w", p.Author.Username, err)
	}
	return &models.Project{
		ID:                p.ID,
		Public:            p.Public,
		CommentsAllowed:   p.CommentsAllowed,
		IsPublished:       p.IsPublished,
		AuthorID:          p.Author.ID,
		AuthorName:        author,
		AuthorScratchTeam: p.Author.ScratchTeam,
		Created:           unixTime(p.History.Created),
		Modified:          unixTime(p.History.Modified),
		Shared:            unixTime(p.History.Shared),
		Title:             p.Title,
		Description:       p.Description,
		Instructions:      p.Instructions,
	}, nil
}

// unixTime parses an RFC 3339 timestamp; unparsable values map to zero.
func unixTime(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.Unix()
}

// projectStats sums listing counters, saturating at the stored width.
type projectStats struct {
	loves, favorites, views, remixes uint64
}

func (s *projectStats) add(p *apiProject) {
	s.loves += p.Stats.Loves
	s.favorites += p.Stats.Favorites
	s.views += p.Stats.Views
	s.remixes += p.Stats.Remixes
}

func clamp32(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

func (c *Crawler) getUser(ctx context.Context, name string) (*apiUser, error) {
	var u apiUser
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(name), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Crawler) getProjects(ctx context.Context, name string, offset int) ([]apiProject, error) {
	var ps []apiProject
	err := c.getJSON(ctx, "/users/"+url.PathEscape(name)+"/projects"+page(c.cfg.PageSize, offset), &ps)
	return ps, err
}

func (c *Crawler) getFollowers(ctx context.Context, name string, offset int) ([]apiUser, error) {
	var us []apiUser
	err := c.getJSON(ctx, "/users/"+url.PathEscape(name)+"/followers"+page(c.cfg.PageSize, offset), &us)
	return us, err
}

func page(limit, offset int) string {
	return "?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
}

func (c *Crawler) getJSON(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.APIBase + path)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	if err := c.api.DoTimeout(req, resp, c.cfg.RequestTimeout.Duration()); err != nil {
		return fmt.Errorf("api %s: %w", path, err)
	}
	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound:
		return errNoSuchUser
	case status != fasthttp.StatusOK:
		return fmt.Errorf("api %s: status %d", path, status)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("api %s: decode: %w", path, err)
	}
	return nil
}
