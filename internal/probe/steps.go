package probe

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/r2rprobe/internal/logger"
	"github.com/kailas-cloud/r2rprobe/pkg/r2r"
)

// record reports a finished step to the recorder and the run logger.
func (r *Runner) record(ctx context.Context, step string, start time.Time, err error, fields ...zap.Field) {
	dur := r.now().Sub(start)
	if r.recorder != nil {
		r.recorder.ObserveStep(step, dur, err)
	}

	log := logger.FromContext(ctx).With(zap.String("step", step), zap.Duration("duration", dur))
	if err != nil {
		log.Warn("step failed", append(fields, zap.Error(err))...)
		return
	}
	log.Info("step completed", fields...)
}

func (r *Runner) stepConnect(ctx context.Context) (Gateway, Outcome[string]) {
	r.out.line("🔍 Testing R2R Connection...")
	start := r.now()

	gw, err := r.connect(ctx, r.cfg.BaseURL)
	r.record(ctx, StepConnect, start, err)
	if err != nil {
		r.out.line("❌ Connection failed: %v", err)
		return nil, failed[string](FailureConnection, err)
	}
	return gw, succeeded(r.cfg.BaseURL)
}

func (r *Runner) stepHealth(ctx context.Context, gw Gateway) Outcome[r2r.HealthStatus] {
	start := r.now()
	status, err := gw.Health(ctx)
	r.record(ctx, StepHealth, start, err)
	if err != nil {
		r.out.line("⚠️  Health check failed: %v", err)
		return failed[r2r.HealthStatus](classify(err, FailureService), err)
	}
	r.out.line("✅ R2R Health Status: %s", status)
	return succeeded(status)
}

func (r *Runner) stepListDocuments(ctx context.Context, gw Gateway) Outcome[r2r.DocumentList] {
	r.out.section("📚 Listing Documents...")
	start := r.now()

	list, err := gw.ListDocuments(ctx, r.cfg.ListLimit)
	r.record(ctx, StepList, start, err, zap.Int("count", len(list.Documents)))
	if err != nil {
		r.out.line("❌ Document listing failed: %v", err)
		return failed[r2r.DocumentList](classify(err, FailureService), err)
	}

	r.out.line("✅ Found %d documents", len(list.Documents))
	for i, d := range head(list.Documents, listPreview) {
		r.out.section("📄 Document %d:", i+1)
		r.out.line("   ID: %s", orNA(d.ID))
		r.out.line("   Title: %s", orNA(d.DisplayTitle()))
		r.out.line("   Type: %s", orNA(d.DocumentType))
		r.out.line("   Created: %s", orNA(d.CreatedAt))
	}
	return succeeded(list)
}

func (r *Runner) stepProvision(ctx context.Context) (bool, error) {
	path := r.cfg.SamplePath
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	r.out.section("📝 Creating sample document: %s", path)
	start := r.now()
	created, err := r.ensure(path)
	r.record(ctx, StepProvision, start, err, zap.String("path", path), zap.Bool("created", created))
	if err != nil {
		r.out.line("❌ Sample document creation failed: %v", err)
		return false, fmt.Errorf("provision sample: %w", err)
	}
	r.out.line("✅ Sample document created")
	return created, nil
}

func (r *Runner) stepIngest(ctx context.Context, gw Gateway) Outcome[r2r.IngestResult] {
	path := r.cfg.SamplePath
	r.out.section("📄 Testing Document Ingestion: %s", path)

	if _, err := os.Stat(path); err != nil {
		r.out.line("❌ File not found: %s", path)
		r.record(ctx, StepIngest, r.now(), err, zap.String("path", path))
		return failed[r2r.IngestResult](FailureFileNotFound, err)
	}

	r.out.line("⏳ Starting ingestion...")
	start := r.now()
	res, err := gw.IngestDocument(ctx, path, IngestMetadata())
	elapsed := r.now().Sub(start)
	r.record(ctx, StepIngest, start, err, zap.String("path", path), zap.String("document_id", res.DocumentID))
	if err != nil {
		r.out.line("❌ Ingestion failed: %v", err)
		return failed[r2r.IngestResult](classify(err, FailureIngestion), err)
	}

	r.out.line("✅ Document ingested successfully!")
	r.out.line("📊 Processing time: %.2f seconds", elapsed.Seconds())
	r.out.line("📋 Document ID: %s", orNA(res.DocumentID))
	r.out.line("📋 Result: %s", rawJSON(res.Raw))
	return succeeded(res)
}

// stepWait is a blind pause giving the service time to process the upload.
func (r *Runner) stepWait(ctx context.Context) bool {
	r.out.section("⏳ Waiting for document processing...")
	start := r.now()
	err := r.sleep(ctx, r.cfg.ProcessingWait)
	r.record(ctx, StepWait, start, err, zap.Duration("wait", r.cfg.ProcessingWait))
	return err == nil
}

func (r *Runner) stepSearch(ctx context.Context, gw Gateway, query string) Outcome[r2r.SearchResult] {
	r.out.section("🔍 Testing Search: '%s'", query)
	ctx = logger.WithFields(ctx, zap.String("query", query))
	start := r.now()

	res, err := gw.Search(ctx, query, r.cfg.SearchLimit)
	r.record(ctx, StepSearch, start, err, zap.Int("results", len(res.Results)))
	if err != nil {
		r.out.line("❌ Search failed: %v", err)
		return failed[r2r.SearchResult](classify(err, FailureSearch), err)
	}

	r.out.line("✅ Search completed!")
	r.out.line("📊 Found %d results", len(res.Results))
	for i, hit := range head(res.Results, searchPreview) {
		r.out.section("📄 Result %d:", i+1)
		r.out.line("   Score: %s", formatScore(hit.Score))
		r.out.line("   Text: %s...", excerpt(hit.Text, excerptRunes))
		r.out.line("   Metadata: %s", formatMetadata(hit.Metadata))
	}
	return succeeded(res)
}

func (r *Runner) stepRAG(ctx context.Context, gw Gateway, query string) Outcome[r2r.RAGResult] {
	r.out.section("🤖 Testing RAG Completion: '%s'", query)
	ctx = logger.WithFields(ctx, zap.String("query", query))
	start := r.now()

	res, err := gw.RAG(ctx, query, true)
	r.record(ctx, StepRAG, start, err, zap.Int("sources", len(res.Sources)))
	if err != nil {
		r.out.line("❌ RAG completion failed: %v", err)
		return failed[r2r.RAGResult](classify(err, FailureCompletion), err)
	}

	r.out.line("✅ RAG completion successful!")
	r.out.line("📝 Response: %s", orNA(res.Completion))
	if len(res.Sources) > 0 {
		r.out.line("📚 Sources used: %d", len(res.Sources))
		for i, src := range head(res.Sources, sourcePreview) {
			title, _ := src.Metadata["title"].(string)
			if title == "" {
				title = "Unknown"
			}
			r.out.line("   Source %d: %s", i+1, title)
		}
	}
	return succeeded(res)
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
