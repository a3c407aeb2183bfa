// Package probe runs the R2R exercise sequence and writes a human-readable transcript.
//
// The run is linear: connect, health, list documents, provision the sample,
// ingest it, wait, search, RAG. Every step catches its own failure; only a
// connection failure ends the run early and only a provisioning failure is
// returned as an error.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/r2rprobe/internal/logger"
	"github.com/kailas-cloud/r2rprobe/internal/sample"
	"github.com/kailas-cloud/r2rprobe/pkg/r2r"
)

// Gateway is the set of R2R calls the probe depends on.
type Gateway interface {
	Health(ctx context.Context) (r2r.HealthStatus, error)
	ListDocuments(ctx context.Context, limit int) (r2r.DocumentList, error)
	IngestDocument(ctx context.Context, path string, metadata map[string]any) (r2r.IngestResult, error)
	Search(ctx context.Context, query string, limit int) (r2r.SearchResult, error)
	RAG(ctx context.Context, query string, useHybridSearch bool) (r2r.RAGResult, error)
}

// Connector opens a Gateway bound to baseURL.
type Connector func(ctx context.Context, baseURL string) (Gateway, error)

// StepRecorder receives the duration and result of every step.
type StepRecorder interface {
	ObserveStep(step string, d time.Duration, err error)
}

// Step names used for logging and metrics.
const (
	StepConnect   = "connect"
	StepHealth    = "health"
	StepList      = "list_documents"
	StepProvision = "provision"
	StepIngest    = "ingest"
	StepWait      = "wait"
	StepSearch    = "search"
	StepRAG       = "rag"
)

// Fixed parameters of the exercise.
const (
	DefaultSearchLimit    = 5
	DefaultListLimit      = 100
	DefaultProcessingWait = 5 * time.Second

	listPreview   = 5
	searchPreview = 3
	sourcePreview = 2
	excerptRunes  = 200
)

// Default queries.
var (
	DefaultSearchQueries = []string{
		"document processing capabilities",
		"R2R features",
	}
	DefaultRAGQueries = []string{
		"What are the key features mentioned in the document?",
		"How does R2R compare to custom implementations?",
	}
)

// IngestMetadata returns the metadata attached to the ingested sample.
func IngestMetadata() map[string]any {
	return map[string]any{
		"source":    "r2r_test",
		"test_type": "poc",
	}
}

// Config drives one run.
type Config struct {
	BaseURL        string
	SamplePath     string
	ListLimit      int
	ProcessingWait time.Duration
	SearchLimit    int
	SearchQueries  []string
	RAGQueries     []string
}

// DefaultConfig returns the exercise defaults bound to baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		SamplePath:     sample.DefaultPath,
		ListLimit:      DefaultListLimit,
		ProcessingWait: DefaultProcessingWait,
		SearchLimit:    DefaultSearchLimit,
		SearchQueries:  append([]string(nil), DefaultSearchQueries...),
		RAGQueries:     append([]string(nil), DefaultRAGQueries...),
	}
}

// Summary holds the outcome of every step of a run.
type Summary struct {
	Connection    Outcome[string]
	Health        Outcome[r2r.HealthStatus]
	Documents     Outcome[r2r.DocumentList]
	SampleCreated bool
	Ingest        Outcome[r2r.IngestResult]
	Waited        bool
	Searches      []Outcome[r2r.SearchResult]
	Completions   []Outcome[r2r.RAGResult]
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder sets the step recorder.
func WithRecorder(rec StepRecorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithSleeper replaces the post-ingestion pause, mainly for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = sleep }
}

// WithProvisioner replaces the sample provisioner.
func WithProvisioner(ensure func(path string) (bool, error)) Option {
	return func(r *Runner) { r.ensure = ensure }
}

// Runner executes the probe sequence.
type Runner struct {
	connect  Connector
	cfg      Config
	out      *printer
	recorder StepRecorder
	sleep    func(ctx context.Context, d time.Duration) error
	ensure   func(path string) (bool, error)
	now      func() time.Time
}

// New creates a Runner writing its transcript to out.
func New(connect Connector, cfg Config, out io.Writer, opts ...Option) (*Runner, error) {
	if connect == nil {
		return nil, errors.New("probe: connector is required")
	}
	if out == nil {
		out = io.Discard
	}
	if cfg.SamplePath == "" {
		cfg.SamplePath = sample.DefaultPath
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}
	if cfg.ProcessingWait < 0 {
		return nil, fmt.Errorf("probe: negative processing wait %s", cfg.ProcessingWait)
	}

	r := &Runner{
		connect: connect,
		cfg:     cfg,
		out:     &printer{w: out},
		sleep:   sleepContext,
		ensure:  sample.Ensure,
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Run executes the sequence. A connection failure returns early with a nil error;
// a provisioning failure is returned wrapped with sample.ErrFilesystem.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var s Summary
	ctx = logger.WithFields(ctx, zap.String("base_url", r.cfg.BaseURL))

	r.out.banner()

	gw, conn := r.stepConnect(ctx)
	s.Connection = conn
	if !conn.OK() {
		return s, nil
	}

	s.Health = r.stepHealth(ctx, gw)
	s.Documents = r.stepListDocuments(ctx, gw)

	created, err := r.stepProvision(ctx)
	if err != nil {
		return s, err
	}
	s.SampleCreated = created

	s.Ingest = r.stepIngest(ctx, gw)
	if s.Ingest.OK() && s.Ingest.Value.DocumentID != "" {
		s.Waited = r.stepWait(ctx)
	}

	for _, q := range r.cfg.SearchQueries {
		s.Searches = append(s.Searches, r.stepSearch(ctx, gw, q))
	}
	for _, q := range r.cfg.RAGQueries {
		s.Completions = append(s.Completions, r.stepRAG(ctx, gw, q))
	}

	r.out.footer()
	return s, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
