// Package logger builds the service logger and carries request-scoped copies of
// it through context.Context.
//
// Every entry from a request handled by the API has request_id set and, once the
// caller is authenticated, subject too:
//
//	{"level":"info","service":"auth-api","request_id":"…","subject":"…","message":"login succeeded"}
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options controls how the logger is built.
type Options struct {
	// Level is the minimum level: trace, debug, info, warn, error. Defaults to info.
	Level string
	// Pretty switches to zerolog's console writer for local development.
	Pretty bool
	// Output defaults to os.Stdout.
	Output io.Writer
	// Service is attached to every entry as the "service" field when set.
	Service string
}

var once sync.Once

// New builds a logger from opts.
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(parseLevel(opts.Level)).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	return ctx.Logger()
}

// Init applies the process-wide zerolog settings once and returns New(opts).
func Init(opts Options) zerolog.Logger {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		zerolog.SetGlobalLevel(parseLevel(opts.Level))
	})
	return New(opts)
}

type ctxKey struct{}

// WithRequest stores base, tagged with requestID, as the request logger of ctx.
func WithRequest(ctx context.Context, base zerolog.Logger, requestID string) context.Context {
	l := base.With().Str("request_id", requestID).Logger()
	return context.WithValue(ctx, ctxKey{}, l)
}

// WithSubject tags the request logger of ctx with the authenticated principal.
// It is a no-op when ctx carries no request logger.
func WithSubject(ctx context.Context, subject string) context.Context {
	l, ok := ctx.Value(ctxKey{}).(zerolog.Logger)
	if !ok {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, l.With().Str("subject", subject).Logger())
}

// From returns the request logger of ctx, or fallback outside a request.
func From(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return fallback
}

func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
