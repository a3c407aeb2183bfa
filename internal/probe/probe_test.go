package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/r2rprobe/internal/logger"
	"github.com/kailas-cloud/r2rprobe/internal/sample"
	"github.com/kailas-cloud/r2rprobe/pkg/r2r"
)

// --- Fakes ---

type fakeGateway struct {
	events []string

	healthErr error
	list      r2r.DocumentList
	listErr   error
	ingest    r2r.IngestResult
	ingestErr error
	search    r2r.SearchResult
	searchErr error
	rag       r2r.RAGResult
	ragErr    error

	listLimits     []int
	ingestPath     string
	ingestMetadata map[string]any
	searchLimits   []int
	ragHybrid      []bool
}

func (g *fakeGateway) Health(_ context.Context) (r2r.HealthStatus, error) {
	g.events = append(g.events, "health")
	if g.healthErr != nil {
		return r2r.HealthStatus{}, g.healthErr
	}
	return r2r.HealthStatus{Message: "ok"}, nil
}

func (g *fakeGateway) ListDocuments(_ context.Context, limit int) (r2r.DocumentList, error) {
	g.events = append(g.events, "list")
	g.listLimits = append(g.listLimits, limit)
	return g.list, g.listErr
}

func (g *fakeGateway) IngestDocument(_ context.Context, path string, md map[string]any) (r2r.IngestResult, error) {
	g.events = append(g.events, "ingest")
	g.ingestPath = path
	g.ingestMetadata = md
	return g.ingest, g.ingestErr
}

func (g *fakeGateway) Search(_ context.Context, _ string, limit int) (r2r.SearchResult, error) {
	g.events = append(g.events, "search")
	g.searchLimits = append(g.searchLimits, limit)
	return g.search, g.searchErr
}

func (g *fakeGateway) RAG(_ context.Context, _ string, hybrid bool) (r2r.RAGResult, error) {
	g.events = append(g.events, "rag")
	g.ragHybrid = append(g.ragHybrid, hybrid)
	return g.rag, g.ragErr
}

type stepCall struct {
	step string
	err  bool
}

type fakeRecorder struct {
	calls []stepCall
}

func (r *fakeRecorder) ObserveStep(step string, _ time.Duration, err error) {
	r.calls = append(r.calls, stepCall{step: step, err: err != nil})
}

type harness struct {
	gw     *fakeGateway
	out    bytes.Buffer
	slept  []time.Duration
	runner *Runner
	cfg    Config
}

func newHarness(t *testing.T, gw *fakeGateway, connErr error, opts ...Option) *harness {
	t.Helper()
	h := &harness{gw: gw}
	h.cfg = DefaultConfig("http://r2r.test:7272")
	h.cfg.SamplePath = filepath.Join(t.TempDir(), sample.DefaultPath)

	connect := func(_ context.Context, _ string) (Gateway, error) {
		if connErr != nil {
			return nil, connErr
		}
		return gw, nil
	}
	sleeper := func(_ context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		gw.events = append(gw.events, "sleep")
		return nil
	}

	all := append([]Option{WithSleeper(sleeper)}, opts...)
	r, err := New(connect, h.cfg, &h.out, all...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.runner = r
	return h
}

func (h *harness) run(t *testing.T) Summary {
	t.Helper()
	s, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return s
}

// --- Tests ---

func TestRun_ConnectionFailureStopsEverything(t *testing.T) {
	gw := &fakeGateway{}
	ensured := false
	h := newHarness(t, gw, errors.New("dial tcp: connection refused"),
		WithProvisioner(func(string) (bool, error) { ensured = true; return true, nil }),
	)

	s := h.run(t)

	if s.Connection.OK() || s.Connection.Kind != FailureConnection {
		t.Errorf("connection outcome = %+v", s.Connection)
	}
	if len(gw.events) != 0 {
		t.Errorf("no gateway call expected, got %v", gw.events)
	}
	if ensured {
		t.Error("sample must not be provisioned after a connection failure")
	}
	out := h.out.String()
	if !strings.Contains(out, "Connection failed") {
		t.Errorf("missing connection failure message:\n%s", out)
	}
	for _, unwanted := range []string{"Listing Documents", "Document Ingestion", "Testing Search", "RAG Completion"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("transcript should not contain %q:\n%s", unwanted, out)
		}
	}
	if s.Health.Ran() || s.Documents.Ran() || s.Ingest.Ran() || len(s.Searches) != 0 || len(s.Completions) != 0 {
		t.Errorf("no step should have run: %+v", s)
	}
}

func TestRun_HealthFailureIsSoft(t *testing.T) {
	gw := &fakeGateway{healthErr: errors.New("health: 503")}
	h := newHarness(t, gw, nil)

	s := h.run(t)

	if s.Health.OK() || s.Health.Kind != FailureService {
		t.Errorf("health outcome = %+v", s.Health)
	}
	want := []string{"health", "list", "ingest", "search", "search", "rag", "rag"}
	if diff := cmp.Diff(want, gw.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(h.out.String(), "Health check failed") {
		t.Error("health warning missing from transcript")
	}
}

func TestRun_FullSequence(t *testing.T) {
	score := 0.87
	gw := &fakeGateway{
		ingest: r2r.IngestResult{DocumentID: "doc-123", Raw: []byte(`{"results": {"document_id": "doc-123"}}`)},
		search: r2r.SearchResult{Results: []r2r.ChunkResult{
			{Score: &score, Text: "R2R ingests documents", Metadata: map[string]any{"title": "sample"}},
		}},
		rag: r2r.RAGResult{
			Completion: "Hybrid search and graphs.",
			Sources: []r2r.ChunkResult{
				{Metadata: map[string]any{"title": "sample_document.txt"}},
				{Metadata: map[string]any{}},
				{Metadata: map[string]any{"title": "third"}},
			},
		},
	}
	rec := &fakeRecorder{}
	h := newHarness(t, gw, nil, WithRecorder(rec))

	s := h.run(t)

	want := []string{"health", "list", "ingest", "sleep", "search", "search", "rag", "rag"}
	if diff := cmp.Diff(want, gw.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]time.Duration{5 * time.Second}, h.slept); diff != "" {
		t.Errorf("sleep mismatch (-want +got):\n%s", diff)
	}
	if !s.Waited || !s.SampleCreated {
		t.Errorf("waited=%v created=%v", s.Waited, s.SampleCreated)
	}
	if diff := cmp.Diff(IngestMetadata(), gw.ingestMetadata); diff != "" {
		t.Errorf("ingest metadata mismatch (-want +got):\n%s", diff)
	}
	if gw.ingestPath != h.cfg.SamplePath {
		t.Errorf("ingest path = %q, want %q", gw.ingestPath, h.cfg.SamplePath)
	}
	if diff := cmp.Diff([]int{DefaultListLimit}, gw.listLimits); diff != "" {
		t.Errorf("list limits mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{5, 5}, gw.searchLimits); diff != "" {
		t.Errorf("search limits mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{true, true}, gw.ragHybrid); diff != "" {
		t.Errorf("rag hybrid mismatch (-want +got):\n%s", diff)
	}

	out := h.out.String()
	for _, wantLine := range []string{
		"📋 Document ID: doc-123",
		`📋 Result: {"results":{"document_id":"doc-123"}}`,
		"Waiting for document processing",
		"📊 Found 1 results",
		"   Score: 0.87",
		"   Text: R2R ingests documents...",
		`   Metadata: {"title":"sample"}`,
		"📝 Response: Hybrid search and graphs.",
		"📚 Sources used: 3",
		"   Source 1: sample_document.txt",
		"   Source 2: Unknown",
		"Testing completed!",
	} {
		if !strings.Contains(out, wantLine) {
			t.Errorf("transcript missing %q:\n%s", wantLine, out)
		}
	}
	if strings.Contains(out, "Source 3:") {
		t.Error("only the first two sources should be listed")
	}
	if strings.Index(out, "Document ID: doc-123") > strings.Index(out, "Waiting for document processing") {
		t.Error("document id should be reported before the wait")
	}
	if strings.Index(out, "Waiting for document processing") > strings.Index(out, "Testing Search") {
		t.Error("wait should happen before the first search")
	}

	steps := make([]string, 0, len(rec.calls))
	for _, c := range rec.calls {
		steps = append(steps, c.step)
	}
	wantSteps := []string{
		StepConnect, StepHealth, StepList, StepProvision, StepIngest, StepWait,
		StepSearch, StepSearch, StepRAG, StepRAG,
	}
	if diff := cmp.Diff(wantSteps, steps); diff != "" {
		t.Errorf("recorded steps mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_EmptyChunkTextHasNoPlaceholder(t *testing.T) {
	gw := &fakeGateway{
		search: r2r.SearchResult{Results: []r2r.ChunkResult{{Text: ""}}},
	}
	h := newHarness(t, gw, nil)

	h.run(t)

	out := h.out.String()
	if !strings.Contains(out, "   Text: ...\n") {
		t.Errorf("empty chunk text should print only the ellipsis:\n%s", out)
	}
	if strings.Contains(out, "Text: N/A") {
		t.Errorf("empty chunk text must not be replaced with N/A:\n%s", out)
	}
}

func TestRun_CustomListLimit(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, gw, nil)
	h.cfg.ListLimit = 20
	r, err := New(h.runner.connect, h.cfg, &h.out, WithSleeper(h.runner.sleep))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]int{20}, gw.listLimits); diff != "" {
		t.Errorf("list limits mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_ExistingSampleIsKept(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, gw, nil)
	if err := os.WriteFile(h.cfg.SamplePath, []byte("X"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := h.run(t)

	b, err := os.ReadFile(h.cfg.SamplePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "X" {
		t.Errorf("content = %q, want X", b)
	}
	if s.SampleCreated {
		t.Error("existing sample must not be reported as created")
	}
	if strings.Contains(h.out.String(), "Creating sample document") {
		t.Error("no creation message expected for an existing file")
	}
}

func TestRun_ZeroSearchResults(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, gw, nil)

	h.run(t)

	out := h.out.String()
	if !strings.Contains(out, "Found 0 results") {
		t.Errorf("missing zero-result line:\n%s", out)
	}
	if strings.Contains(out, "Result 1:") {
		t.Error("no result block expected")
	}
}

func TestRun_RAGWithoutSources(t *testing.T) {
	gw := &fakeGateway{rag: r2r.RAGResult{Completion: "no context"}}
	h := newHarness(t, gw, nil)

	h.run(t)

	out := h.out.String()
	if strings.Contains(out, "Sources used") {
		t.Errorf("sources line must be omitted:\n%s", out)
	}
	if !strings.Contains(out, "📝 Response: no context") {
		t.Error("response missing")
	}
}

func TestRun_IngestionFailureSkipsWaitOnly(t *testing.T) {
	gw := &fakeGateway{ingestErr: fmt.Errorf("create document: %w", r2r.ErrIngestion)}
	h := newHarness(t, gw, nil)

	s := h.run(t)

	if s.Ingest.OK() || s.Ingest.Kind != FailureIngestion {
		t.Errorf("ingest outcome = %+v", s.Ingest)
	}
	if s.Waited || len(h.slept) != 0 {
		t.Error("no wait expected after a failed ingestion")
	}
	if len(s.Searches) != 2 || len(s.Completions) != 2 {
		t.Errorf("searches=%d completions=%d", len(s.Searches), len(s.Completions))
	}
	if !strings.Contains(h.out.String(), "Ingestion failed") {
		t.Error("ingestion failure message missing")
	}
}

func TestRun_EmptyDocumentIDSkipsWait(t *testing.T) {
	gw := &fakeGateway{ingest: r2r.IngestResult{Message: "queued"}}
	h := newHarness(t, gw, nil)

	s := h.run(t)

	if !s.Ingest.OK() {
		t.Fatalf("ingest should succeed: %v", s.Ingest.Err)
	}
	if s.Waited {
		t.Error("no wait expected without a document id")
	}
	if !strings.Contains(h.out.String(), "📋 Document ID: N/A") {
		t.Error("missing N/A document id")
	}
}

func TestRun_MissingFileSkipsIngestion(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, gw, nil,
		WithProvisioner(func(string) (bool, error) { return false, nil }),
	)

	s := h.run(t)

	if s.Ingest.Kind != FailureFileNotFound {
		t.Errorf("ingest kind = %q, want %q", s.Ingest.Kind, FailureFileNotFound)
	}
	for _, e := range gw.events {
		if e == "ingest" {
			t.Error("ingest must not be called for a missing file")
		}
	}
	if len(s.Searches) != 2 || len(s.Completions) != 2 {
		t.Error("search and rag must still run")
	}
	if !strings.Contains(h.out.String(), "File not found") {
		t.Error("missing file message")
	}
}

func TestRun_ProvisionFailureIsFatal(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, gw, nil,
		WithProvisioner(func(string) (bool, error) {
			return false, sample.ErrFilesystem
		}),
	)

	_, err := h.runner.Run(context.Background())
	if !errors.Is(err, sample.ErrFilesystem) {
		t.Fatalf("expected ErrFilesystem, got %v", err)
	}
	if diff := cmp.Diff([]string{"health", "list"}, gw.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_StepFailuresAreIndependent(t *testing.T) {
	gw := &fakeGateway{
		listErr:   errors.New("list: 401"),
		searchErr: errors.New("search: boom"),
		ragErr:    errors.New("rag: boom"),
	}
	h := newHarness(t, gw, nil)

	s := h.run(t)

	if s.Documents.OK() {
		t.Error("documents should fail")
	}
	for i, o := range s.Searches {
		if o.OK() || o.Kind != FailureSearch {
			t.Errorf("search %d outcome = %+v", i, o)
		}
	}
	for i, o := range s.Completions {
		if o.OK() || o.Kind != FailureCompletion {
			t.Errorf("rag %d outcome = %+v", i, o)
		}
	}
	if !s.Ingest.OK() {
		t.Errorf("ingest should be unaffected: %v", s.Ingest.Err)
	}
	out := h.out.String()
	if strings.Count(out, "Search failed") != 2 || strings.Count(out, "RAG completion failed") != 2 {
		t.Errorf("expected per-call failure lines:\n%s", out)
	}
	if !strings.Contains(out, "Testing completed!") {
		t.Error("run should complete")
	}
}

func TestRun_DocumentPreview(t *testing.T) {
	docs := make([]r2r.DocumentSummary, 7)
	for i := range docs {
		docs[i] = r2r.DocumentSummary{ID: string(rune('a' + i))}
	}
	docs[0].DocumentType = "txt"
	docs[0].CreatedAt = "2025-06-01T00:00:00Z"
	docs[0].Metadata = map[string]any{"title": "First"}
	gw := &fakeGateway{list: r2r.DocumentList{Documents: docs}}
	h := newHarness(t, gw, nil)

	h.run(t)

	out := h.out.String()
	if !strings.Contains(out, "✅ Found 7 documents") {
		t.Errorf("missing count:\n%s", out)
	}
	if !strings.Contains(out, "📄 Document 5:") || strings.Contains(out, "📄 Document 6:") {
		t.Error("exactly five documents should be listed")
	}
	for _, want := range []string{"   Title: First", "   Type: txt", "   Created: 2025-06-01T00:00:00Z", "   Title: N/A", "   Type: N/A"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestRun_LogsThroughContextLogger(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, gw, nil)

	ctx := logger.ContextWithLogger(context.Background(), zaptest.NewLogger(t))
	if _, err := h.runner.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRun_StepLogsCarryRunFields(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, gw, nil)

	core, logs := observer.New(zapcore.InfoLevel)
	ctx := logger.ContextWithLogger(context.Background(), zap.New(core))
	if _, err := h.runner.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var queries []string
	for _, e := range logs.FilterMessage("step completed").All() {
		fields := e.ContextMap()
		if fields["base_url"] != h.cfg.BaseURL {
			t.Errorf("step %v: base_url = %v", fields["step"], fields["base_url"])
		}
		if q, ok := fields["query"].(string); ok {
			queries = append(queries, q)
		}
	}
	want := append(append([]string(nil), DefaultSearchQueries...), DefaultRAGQueries...)
	if diff := cmp.Diff(want, queries); diff != "" {
		t.Errorf("logged queries mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, DefaultConfig("http://x"), nil); err == nil {
		t.Error("expected error for nil connector")
	}

	cfg := DefaultConfig("http://x")
	cfg.ProcessingWait = -time.Second
	connect := func(context.Context, string) (Gateway, error) { return nil, nil }
	if _, err := New(connect, cfg, nil); err == nil {
		t.Error("expected error for negative wait")
	}
}

func TestNew_FillsDefaults(t *testing.T) {
	connect := func(context.Context, string) (Gateway, error) { return nil, nil }
	r, err := New(connect, Config{BaseURL: "http://x"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.cfg.SamplePath != sample.DefaultPath {
		t.Errorf("sample path = %q", r.cfg.SamplePath)
	}
	if r.cfg.SearchLimit != DefaultSearchLimit {
		t.Errorf("search limit = %d", r.cfg.SearchLimit)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("zero sleep: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
