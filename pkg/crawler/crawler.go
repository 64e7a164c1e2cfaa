// Package crawler walks the platform's public API breadth-first and feeds
// every user and project it sees into a running store over HTTP.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"meowstore/pkg/api/envelope"
	"meowstore/pkg/config"
	"meowstore/pkg/ident"
	"meowstore/pkg/logger"
	"meowstore/pkg/models"
)

const progressEvery = 10 * time.Second

// Options overrides transport details, mainly for tests.
type Options struct {
	// APIDial and DBDial replace TCP dialing for the platform API and the
	// store respectively.
	APIDial fasthttp.DialFunc
	DBDial  fasthttp.DialFunc
}

// Stats summarizes a crawl.
type Stats struct {
	Users    int
	Projects int
	Skipped  int
}

// Crawler holds the walk state. It is not safe for concurrent Run calls.
type Crawler struct {
	cfg     config.CrawlerConfig
	api     *fasthttp.Client
	db      *fasthttp.Client
	limiter *rate.Limiter
	visited *xsync.MapOf[string, struct{}]
	queue   []string
	stats   Stats
}

// New returns a crawler for a validated cfg.
func New(cfg *config.CrawlerConfig, opts Options) *Crawler {
	return &Crawler{
		cfg:     *cfg,
		api:     &fasthttp.Client{Name: "meowstore-crawler", Dial: opts.APIDial},
		db:      &fasthttp.Client{Name: "meowstore-crawler", Dial: opts.DBDial},
		limiter: rate.NewLimiter(rate.Every(cfg.RequestInterval.Duration()), 1),
		visited: xsync.NewMapOf[string, struct{}](),
	}
}

// Visited reports how many distinct users were dequeued so far.
func (c *Crawler) Visited() int { return c.visited.Size() }

// Run walks from the configured initial user until the frontier is empty,
// the user limit is hit, ctx ends, or the store rejects a write for a
// reason other than bad input.
func (c *Crawler) Run(ctx context.Context) (Stats, error) {
	c.queue = append(c.queue[:0], c.cfg.InitialUser)

	progressCtx, stop := context.WithCancel(ctx)
	defer stop()
	go c.reportProgress(progressCtx)

	for len(c.queue) > 0 {
		if c.cfg.MaxUsers > 0 && c.stats.Users >= c.cfg.MaxUsers {
			logger.Info("crawl_user_limit_reached", "max_users", c.cfg.MaxUsers)
			break
		}
		name := c.queue[0]
		c.queue = c.queue[1:]
		if _, seen := c.visited.LoadOrStore(strings.ToLower(name), struct{}{}); seen {
			continue
		}

		if err := c.visit(ctx, name); err != nil {
			if ctx.Err() != nil {
				return c.stats, ctx.Err()
			}
			var fault *envelope.Fault
			if errors.As(err, &fault) && fault.Kind == "bad_input" {
				logger.Warn("crawl_user_rejected", "user", name, "reason", fault.Reason)
				c.stats.Skipped++
				continue
			}
			var derr *envelope.DecodeError
			if errors.As(err, &fault) || errors.As(err, &derr) || errors.Is(err, errStore) {
				return c.stats, err
			}
			logger.Warn("crawl_user_skipped", "user", name, "error", err)
			c.stats.Skipped++
		}
	}
	logger.Info("crawl_finished", "users", c.stats.Users, "projects", c.stats.Projects, "skipped", c.stats.Skipped)
	return c.stats, nil
}

func (c *Crawler) reportProgress(ctx context.Context) {
	t := time.NewTicker(progressEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			logger.Info("crawl_progress", "visited", c.Visited())
		}
	}
}

// visit stores one user with its projects and, when the store had not seen
// the user before, queues its followers.
func (c *Crawler) visit(ctx context.Context, name string) error {
	au, err := c.getUser(ctx, name)
	if err != nil {
		return err
	}
	key, err := ident.Encode(au.Username)
	if err != nil {
		return fmt.Errorf("user name %q: %w", au.Username, err)
	}

	var sum projectStats
	for offset := 0; offset <= c.cfg.MaxProjectOffset; offset += c.cfg.PageSize {
		ps, err := c.getProjects(ctx, au.Username, offset)
		if err != nil {
			return err
		}
		for i := range ps {
			sum.add(&ps[i])
			if err := c.storeProject(ctx, &ps[i]); err != nil {
				return err
			}
		}
		if len(ps) < c.cfg.PageSize {
			break
		}
	}

	u := &models.User{
		Name:        key,
		ID:          au.ID,
		ScratchTeam: au.ScratchTeam,
		Status:      au.Profile.Status,
		Bio:         au.Profile.Bio,
		Loves:       clamp32(sum.loves),
		Favorites:   clamp32(sum.favorites),
		Views:       clamp32(sum.views),
		Remixes:     clamp32(sum.remixes),
	}
	existed, err := c.write("users", u)
	if err != nil {
		return err
	}
	c.stats.Users++
	logger.Debug("crawl_user_stored", "user", au.Username, "existed", existed)
	if existed {
		return nil
	}

	for offset := 0; offset <= c.cfg.MaxProjectOffset; offset += c.cfg.PageSize {
		fs, err := c.getFollowers(ctx, au.Username, offset)
		if err != nil {
			logger.Warn("crawl_followers_failed", "user", au.Username, "error", err)
			return nil
		}
		for _, f := range fs {
			if _, seen := c.visited.Load(strings.ToLower(f.Username)); !seen {
				c.queue = append(c.queue, f.Username)
			}
		}
		if len(fs) < c.cfg.PageSize {
			break
		}
	}
	return nil
}

func (c *Crawler) storeProject(ctx context.Context, ap *apiProject) error {
	p, err := ap.project()
	if err != nil {
		logger.Debug("crawl_project_skipped", "project", ap.ID, "error", err)
		return nil
	}
	if _, err := c.write("projects", p); err != nil {
		var fault *envelope.Fault
		if errors.As(err, &fault) && fault.Kind == "bad_input" {
			logger.Debug("crawl_project_rejected", "project", ap.ID, "reason", fault.Reason)
			return nil
		}
		return err
	}
	c.stats.Projects++
	return ctx.Err()
}
