package r2r

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/oapi-codegen/runtime"
)

// DocumentService manages documents.
type DocumentService struct {
	c *Client
}

// List returns a page of documents visible to the caller. Failures wrap ErrService.
func (s *DocumentService) List(ctx context.Context, opts ListOptions) (list DocumentList, err error) {
	start := time.Now()
	defer func() { s.c.obs.observe("documents.list", start, err) }()

	query, err := listQuery(opts)
	if err != nil {
		return DocumentList{}, fmt.Errorf("list documents: %w: %w", ErrService, err)
	}

	var env envelope[[]DocumentSummary]
	if err = s.c.doJSON(ctx, http.MethodGet, "/v3/documents", query, nil, &env); err != nil {
		return DocumentList{}, fmt.Errorf("list documents: %w: %w", ErrService, err)
	}
	return DocumentList{Documents: env.Results, TotalEntries: env.TotalEntries}, nil
}

// listQuery styles pagination parameters the way generated OpenAPI clients do.
func listQuery(opts ListOptions) (url.Values, error) {
	values := url.Values{}
	params := []struct {
		name  string
		value int
		set   bool
	}{
		{"offset", opts.Offset, opts.Offset > 0},
		{"limit", opts.Limit, opts.Limit > 0},
	}
	for _, p := range params {
		if !p.set {
			continue
		}
		frag, err := runtime.StyleParamWithLocation("form", true, p.name, runtime.ParamLocationQuery, p.value)
		if err != nil {
			return nil, fmt.Errorf("style %s: %w", p.name, err)
		}
		parsed, err := url.ParseQuery(frag)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p.name, err)
		}
		for k, vs := range parsed {
			for _, v := range vs {
				values.Add(k, v)
			}
		}
	}
	return values, nil
}

// Create uploads a local file and starts ingestion. The call returns once the
// service has accepted the file; processing continues server-side.
// Failures wrap ErrIngestion.
func (s *DocumentService) Create(
	ctx context.Context, req CreateDocumentRequest,
) (res IngestResult, err error) {
	start := time.Now()
	defer func() { s.c.obs.observe("documents.create", start, err) }()

	body, contentType, err := multipartBody(req)
	if err != nil {
		return IngestResult{}, fmt.Errorf("create document: %w: %w", ErrIngestion, err)
	}

	var raw json.RawMessage
	if err = s.c.do(ctx, http.MethodPost, "/v3/documents", nil, body, contentType, &raw); err != nil {
		return IngestResult{}, fmt.Errorf("create document: %w: %w", ErrIngestion, err)
	}

	var env envelope[ingestWire]
	if err = json.Unmarshal(raw, &env); err != nil {
		return IngestResult{}, fmt.Errorf("create document: %w: decode: %w", ErrIngestion, err)
	}
	return IngestResult{
		DocumentID: env.Results.DocumentID,
		TaskID:     env.Results.TaskID,
		Message:    env.Results.Message,
		Raw:        raw,
	}, nil
}

// multipartBody builds the form with a "file" part and a JSON "metadata" field.
func multipartBody(req CreateDocumentRequest) (io.Reader, string, error) {
	f, err := os.Open(filepath.Clean(req.FilePath))
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", req.FilePath, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(req.FilePath))
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy file: %w", err)
	}

	if len(req.Metadata) > 0 {
		meta, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, "", fmt.Errorf("marshal metadata: %w", err)
		}
		if err := w.WriteField("metadata", string(meta)); err != nil {
			return nil, "", fmt.Errorf("write metadata: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
