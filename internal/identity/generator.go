// Package identity mints human-legible pet and reservation codes.
//
// Codes are drawn at random and checked against the owning store's unique
// index. A collision triggers a fresh draw; after the configured number of
// retries the generator switches to a timestamp-based fallback form that is
// practically collision-free. Conflict surfaces only when even that collides.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	dErrors "petregistry/pkg/domain-errors"
)

const (
	letters          = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	defaultRetries   = 5
	fallbackDigitLen = 3
)

// CodeChecker reports which of the candidate codes already exist.
type CodeChecker interface {
	ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error)
}

// Format describes the shape of a code: Prefix, then Letters random
// uppercase letters, then Digits random digits.
type Format struct {
	Prefix  string
	Letters int
	Digits  int
}

var (
	// PetCodeFormat yields codes like DOG12345.
	PetCodeFormat = Format{Letters: 3, Digits: 5}
	// ReservationCodeFormat yields codes like RAB12345.
	ReservationCodeFormat = Format{Prefix: "R", Letters: 2, Digits: 5}
)

// Generator mints unique codes of one Format.
type Generator struct {
	format     Format
	checker    CodeChecker
	maxRetries int
	rngMu      sync.Mutex // rand.Rand is not safe for concurrent use
	rng        *rand.Rand
	now        func() time.Time
	logger     *slog.Logger
	metrics    *Metrics
}

type Option func(*Generator)

func WithMaxRetries(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxRetries = n
		}
	}
}

// WithRand injects the random source; tests use a seeded PCG.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

func New(format Format, checker CodeChecker, opts ...Option) *Generator {
	g := &Generator{
		format:     format,
		checker:    checker,
		maxRetries: defaultRetries,
		rng:        rand.New(rand.NewChaCha8(seed())),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns one code not present in the store.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	codes, err := g.GenerateBatch(ctx, 1)
	if err != nil {
		return "", err
	}
	return codes[0], nil
}

// GenerateBatch returns n distinct codes not present in the store. All
// candidates are checked in one query per round and only the colliding
// subset is redrawn.
func (g *Generator) GenerateBatch(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "count must be positive")
	}
	start := time.Now()
	defer func() {
		if g.metrics != nil {
			g.metrics.ObserveGenerate(start)
		}
	}()

	out := make([]string, n)
	taken := make(map[string]bool, n)
	pending := make([]int, n)
	for i := range pending {
		pending[i] = i
	}

	for attempt := 0; attempt <= g.maxRetries && len(pending) > 0; attempt++ {
		draw := g.draw
		if attempt == g.maxRetries {
			draw = g.fallback
			if g.metrics != nil {
				g.metrics.IncFallback(len(pending))
			}
			g.logger.WarnContext(ctx, "code generation falling back to timestamp form",
				"prefix", g.format.Prefix,
				"remaining", len(pending),
			)
		}

		candidates := make([]string, 0, len(pending))
		g.rngMu.Lock()
		for _, idx := range pending {
			code := draw()
			for taken[code] {
				code = draw()
			}
			taken[code] = true
			out[idx] = code
			candidates = append(candidates, code)
		}
		g.rngMu.Unlock()

		existing, err := g.checker.ExistingCodes(ctx, candidates)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check code uniqueness")
		}

		var next []int
		for _, idx := range pending {
			if existing[out[idx]] {
				next = append(next, idx)
			}
		}
		if g.metrics != nil && len(next) > 0 {
			g.metrics.IncCollisions(len(next))
		}
		pending = next
	}

	if len(pending) > 0 {
		return nil, dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("could not generate %d unique codes after %d retries", len(pending), g.maxRetries))
	}
	return out, nil
}

func (g *Generator) draw() string {
	var b strings.Builder
	b.WriteString(g.format.Prefix)
	g.writeLetters(&b)
	for range g.format.Digits {
		b.WriteByte(byte('0' + g.rng.IntN(10)))
	}
	return b.String()
}

// fallback keeps the letter prefix and replaces the digits with a base36
// millisecond timestamp plus a short random suffix.
func (g *Generator) fallback() string {
	var b strings.Builder
	b.WriteString(g.format.Prefix)
	g.writeLetters(&b)
	b.WriteString(strings.ToUpper(strconv.FormatInt(g.now().UnixMilli(), 36)))
	for range fallbackDigitLen {
		b.WriteByte(byte('0' + g.rng.IntN(10)))
	}
	return b.String()
}

func (g *Generator) writeLetters(b *strings.Builder) {
	for range g.format.Letters {
		b.WriteByte(letters[g.rng.IntN(len(letters))])
	}
}

func seed() [32]byte {
	var s [32]byte
	for i := 0; i < len(s); i += 8 {
		v := rand.Uint64()
		for j := range 8 {
			s[i+j] = byte(v >> (8 * j))
		}
	}
	return s
}
