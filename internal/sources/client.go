// Package sources reads descriptive data (name, species, breed, images) from
// the direct, shop and adoption subsystems over HTTP. Each origin sits behind
// its own circuit breaker so one failing subsystem never slows the others.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"petregistry/internal/registry/models"
	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
	"petregistry/pkg/platform/circuit"
	"petregistry/pkg/requestcontext"
)

const maxResponseBytes = 1 << 20

var originPaths = map[domain.OriginSource]string{
	domain.OriginDirect:   "/direct/pets/",
	domain.OriginShop:     "/shop/items/",
	domain.OriginAdoption: "/adoption/pets/",
}

// recordResponse is the shape every origin subsystem returns.
type recordResponse struct {
	Name       string   `json:"name"`
	SpeciesRef string   `json:"species_ref"`
	BreedRef   string   `json:"breed_ref"`
	ImageRefs  []string `json:"image_refs"`
}

type Client struct {
	baseURL  string
	http     *http.Client
	breakers map[domain.OriginSource]*circuit.Breaker
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBreaker tunes the per-origin breakers.
func WithBreaker(failureThreshold int, cooldown time.Duration) Option {
	return func(c *Client) {
		for origin := range originPaths {
			c.breakers[origin] = circuit.New("source-"+string(origin),
				circuit.WithFailureThreshold(failureThreshold),
				circuit.WithCooldown(cooldown),
			)
		}
	}
}

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		breakers: make(map[domain.OriginSource]*circuit.Breaker, len(originPaths)),
		logger:   slog.Default(),
	}
	for origin := range originPaths {
		c.breakers[origin] = circuit.New("source-" + string(origin))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchDescriptive reads the descriptive fields of one origin record.
func (c *Client) FetchDescriptive(ctx context.Context, origin domain.OriginSource, originID string) (*models.Descriptive, error) {
	path, ok := originPaths[origin]
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown origin: "+string(origin))
	}
	if strings.TrimSpace(originID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "origin id is required")
	}
	breaker := c.breakers[origin]
	if !breaker.ShouldAttempt() {
		c.countError(origin, ErrorCircuitOpen)
		return nil, toDomain(newSourceError(ErrorCircuitOpen, string(origin), "circuit open", nil))
	}

	start := time.Now()
	desc, serr := c.fetch(ctx, origin, path+url.PathEscape(originID))
	if c.metrics != nil {
		c.metrics.ObserveFetch(string(origin), start)
	}
	if serr != nil {
		c.countError(origin, serr.Category)
		if serr.Retryable {
			if _, change := breaker.RecordFailure(); change.Opened {
				c.logger.WarnContext(ctx, "source circuit opened", "origin", origin, "error", serr)
				c.setBreaker(origin, true)
			}
		} else {
			// The subsystem answered; only transport failures count against it.
			c.recordSuccess(ctx, origin, breaker)
		}
		return nil, toDomain(serr)
	}
	c.recordSuccess(ctx, origin, breaker)
	return desc, nil
}

// FetchAll looks up every attached origin ref concurrently. The first
// failure cancels the remaining lookups.
func (c *Client) FetchAll(ctx context.Context, refs models.OriginRefs) (map[domain.OriginSource]*models.Descriptive, error) {
	g, gctx := errgroup.WithContext(ctx)
	var (
		mu  sync.Mutex
		out = make(map[domain.OriginSource]*models.Descriptive, refs.Count())
	)
	for _, origin := range []domain.OriginSource{domain.OriginDirect, domain.OriginShop, domain.OriginAdoption} {
		id := refs.For(origin)
		if id == "" {
			continue
		}
		g.Go(func() error {
			desc, err := c.FetchDescriptive(gctx, origin, id)
			if err != nil {
				return err
			}
			mu.Lock()
			out[origin] = desc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, origin domain.OriginSource, path string) (*models.Descriptive, *SourceError) {
	name := string(origin)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, newSourceError(ErrorInternal, name, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if rid := requestcontext.RequestID(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, newSourceError(ErrorTimeout, name, "request timed out", err)
		}
		return nil, newSourceError(ErrorOutage, name, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, newSourceError(ErrorNotFound, name, "record not found", nil)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, newSourceError(ErrorAuthentication, name, "access denied: "+resp.Status, nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, newSourceError(ErrorRateLimited, name, "rate limited", nil)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, newSourceError(ErrorOutage, name, "upstream error: "+resp.Status, nil)
	default:
		return nil, newSourceError(ErrorInternal, name, "unexpected status: "+resp.Status, nil)
	}

	var body recordResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, newSourceError(ErrorBadData, name, "decode record", err)
	}
	return &models.Descriptive{
		Name:       body.Name,
		SpeciesRef: body.SpeciesRef,
		BreedRef:   body.BreedRef,
		ImageRefs:  body.ImageRefs,
	}, nil
}

func (c *Client) recordSuccess(ctx context.Context, origin domain.OriginSource, breaker *circuit.Breaker) {
	if _, change := breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "source circuit closed", "origin", origin)
		c.setBreaker(origin, false)
	}
}

func (c *Client) countError(origin domain.OriginSource, category ErrorCategory) {
	if c.metrics != nil {
		c.metrics.IncError(string(origin), category)
	}
}

func (c *Client) setBreaker(origin domain.OriginSource, open bool) {
	if c.metrics != nil {
		c.metrics.SetBreakerOpen(string(origin), open)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
