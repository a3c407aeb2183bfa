// Package sample provisions the local text document the probe ingests.
package sample

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultPath is where the sample document is written when no path is configured.
const DefaultPath = "sample_document.txt"

// ErrFilesystem wraps failures to inspect or write the sample document.
var ErrFilesystem = errors.New("sample: filesystem error")

// Content is the fixed sample payload. It must not change between releases:
// search and RAG answers are compared across runs.
const Content = `
Sample Document for R2R Testing

This is a test document to evaluate R2R's document ingestion capabilities.
It contains information about:

1. Document Processing: How R2R handles various file formats
2. Unstructured.io Integration: Parsing capabilities for complex documents
3. Vector Search: Semantic search functionality
4. RAG Capabilities: Retrieval-Augmented Generation features

Key Features to Test:
- PDF parsing with tables and images
- Multi-modal content extraction
- Hybrid search (semantic + keyword)
- Real-time ingestion workflows
- Knowledge graph construction

This document will help us understand how R2R compares to our current
custom implementation using RabbitMQ, custom parsers, and PostgreSQL.
            `

// Ensure writes Content to path unless something already exists there.
// An existing file is never inspected or overwritten. Returns true if the file was created.
func Ensure(path string) (bool, error) {
	path = filepath.Clean(path)

	_, err := os.Stat(path)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("%w: stat %s: %w", ErrFilesystem, path, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("%w: create dir %s: %w", ErrFilesystem, dir, err)
		}
	}

	// O_EXCL: a file that appeared since Stat is left alone.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: create %s: %w", ErrFilesystem, path, err)
	}
	if _, err := f.WriteString(Content); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("%w: write %s: %w", ErrFilesystem, path, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("%w: close %s: %w", ErrFilesystem, path, err)
	}
	return true, nil
}
