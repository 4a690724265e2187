// Package identity mints public ticket numbers.
//
// A ticket number has the form PREFIX-{ANON|ID}-YYYYMM-NNNN. The four random
// digits give only 10,000 values per month and anonymity class, so numbers
// are not unique by construction; the store enforces uniqueness and callers
// retry through Mint.
package identity

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// DefaultPrefix is the organisation tag leading every ticket number.
const DefaultPrefix = "ETALA"

// ErrCollision signals that a minted number is already taken.
var ErrCollision = errors.New("ticket number already in use")

// ExhaustedError is returned by Mint when every attempt collided.
type ExhaustedError struct {
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("ticket number space exhausted after %d attempts", e.Attempts)
}

// Generator produces candidate ticket numbers.
type Generator struct {
	prefix string
	now    func() time.Time
	intn   func(n int) int
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock overrides the time source used for the YYYYMM segment.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRandom overrides the random source for the numeric suffix.
func WithRandom(intn func(n int) int) Option {
	return func(g *Generator) { g.intn = intn }
}

// NewGenerator builds a generator; an empty prefix falls back to DefaultPrefix.
func NewGenerator(prefix string, opts ...Option) *Generator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	g := &Generator{prefix: prefix, now: time.Now, intn: rand.Intn}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a candidate ticket number.
func (g *Generator) Generate(isAnonymous bool) string {
	class := "ID"
	if isAnonymous {
		class = "ANON"
	}
	return fmt.Sprintf("%s-%s-%s-%04d", g.prefix, class, g.now().UTC().Format("200601"), g.intn(10000))
}

// Mint generates numbers and hands each to insert until one is accepted.
// insert must return an error wrapping ErrCollision when the number is taken;
// any other error aborts immediately.
func Mint(ctx context.Context, g *Generator, isAnonymous bool, maxAttempts int, insert func(ctx context.Context, ticketNumber string) error) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := g.Generate(isAnonymous)
		err := insert(ctx, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, ErrCollision) {
			return "", err
		}
	}
	return "", &ExhaustedError{Attempts: maxAttempts}
}
