package fhirschema

import (
	"github.com/gofhir/fhirschema/pkg/config"
	"github.com/gofhir/fhirschema/pkg/logger"
)

// Option configures loading and querying.
type Option func(*Options)

// Options holds all configuration for the loader and the index.
type Options struct {
	// Schema is the constants table used to read bundles.
	Schema *config.Schema

	// Search limits
	SearchLimit    int
	MaxSearchLimit int

	// Metrics receives query timings when set.
	Metrics *Metrics

	// Logger receives load and reload messages. Defaults to logger.Default().
	Logger *logger.Logger
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	s := config.DefaultSchema()
	return &Options{
		Schema:         s,
		SearchLimit:    s.DefaultSearchLimit,
		MaxSearchLimit: s.MaxSearchLimit,
	}
}

// Apply builds Options from the defaults and opts.
func Apply(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	if o.MaxSearchLimit < o.SearchLimit {
		o.MaxSearchLimit = o.SearchLimit
	}
	return o
}

// WithSchema replaces the schema constants table.
func WithSchema(s *config.Schema) Option {
	return func(o *Options) {
		if s != nil {
			o.Schema = s
		}
	}
}

// WithInfrastructureNames replaces the infrastructure element denylist.
func WithInfrastructureNames(names ...string) Option {
	return func(o *Options) {
		o.Schema = o.Schema.WithInfrastructureNames(names...)
	}
}

// WithEntryFilter sets the FHIRPath expression that selects bundle entries.
func WithEntryFilter(expr string) Option {
	return func(o *Options) {
		if expr != "" {
			o.Schema = o.Schema.WithEntryFilter(expr)
		}
	}
}

// WithSearchLimit sets the limit used when a caller passes no limit.
func WithSearchLimit(limit int) Option {
	return func(o *Options) {
		if limit > 0 {
			o.SearchLimit = limit
		}
	}
}

// WithMaxSearchLimit caps the limit any search may request.
func WithMaxSearchLimit(limit int) Option {
	return func(o *Options) {
		if limit > 0 {
			o.MaxSearchLimit = limit
		}
	}
}

// WithMetrics records query metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}
