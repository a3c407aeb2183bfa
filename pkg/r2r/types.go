package r2r

import (
	"encoding/json"
)

// HealthStatus is the payload of GET /v3/health.
type HealthStatus struct {
	Message string
	Raw     json.RawMessage
}

// String renders the status the way the service reported it.
func (h HealthStatus) String() string {
	if h.Message != "" {
		return h.Message
	}
	return string(h.Raw)
}

// DocumentSummary is one entry of a document listing.
type DocumentSummary struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	DocumentType    string         `json:"document_type"`
	IngestionStatus string         `json:"ingestion_status"`
	SizeInBytes     int64          `json:"size_in_bytes"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
	Metadata        map[string]any `json:"metadata"`
}

// DisplayTitle returns metadata.title, falling back to the top-level title.
func (d DocumentSummary) DisplayTitle() string {
	if t, ok := d.Metadata["title"].(string); ok && t != "" {
		return t
	}
	return d.Title
}

// DocumentList is a page of documents.
type DocumentList struct {
	Documents    []DocumentSummary
	TotalEntries int
}

// ListOptions controls document pagination. Zero Limit uses the service default.
type ListOptions struct {
	Offset int
	Limit  int
}

// CreateDocumentRequest uploads a local file for ingestion.
type CreateDocumentRequest struct {
	FilePath string
	Metadata map[string]any
}

// IngestResult is the acknowledgement returned by document creation.
// Ingestion continues asynchronously on the service after this returns.
type IngestResult struct {
	DocumentID string
	TaskID     string
	Message    string
	Raw        json.RawMessage
}

// SearchRequest is a chunk search query.
type SearchRequest struct {
	Query           string
	Limit           int
	UseHybridSearch bool
}

// ChunkResult is a single retrieved chunk.
// Score is nil when the service did not report one.
type ChunkResult struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Score      *float64       `json:"score"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata"`
}

// SearchResult is the ordered (by descending score) list of retrieved chunks.
type SearchResult struct {
	Results []ChunkResult
}

// RAGRequest is a retrieval-augmented completion query.
// Limit caps retrieved chunks; zero uses the service default.
type RAGRequest struct {
	Query           string
	UseHybridSearch bool
	Limit           int
}

// RAGResult carries the generated answer and the chunks it was conditioned on.
type RAGResult struct {
	Completion string
	Sources    []ChunkResult
}

// --- wire types ---

type envelope[T any] struct {
	Results      T   `json:"results"`
	TotalEntries int `json:"total_entries"`
}

type healthWire struct {
	Message string `json:"message"`
}

type ingestWire struct {
	DocumentID string `json:"document_id"`
	TaskID     string `json:"task_id"`
	Message    string `json:"message"`
}

type searchSettingsWire struct {
	Limit           int  `json:"limit,omitempty"`
	UseHybridSearch bool `json:"use_hybrid_search"`
}

type searchRequestWire struct {
	Query          string             `json:"query"`
	SearchSettings searchSettingsWire `json:"search_settings"`
}

type searchWire struct {
	ChunkSearchResults []ChunkResult `json:"chunk_search_results"`
}

// UnmarshalJSON accepts both the aggregate form and a bare list of chunks.
func (s *searchWire) UnmarshalJSON(data []byte) error {
	var list []ChunkResult
	if err := json.Unmarshal(data, &list); err == nil {
		s.ChunkSearchResults = list
		return nil
	}
	type plain searchWire
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = searchWire(p)
	return nil
}

type ragWire struct {
	Completion      json.RawMessage `json:"completion"`
	GeneratedAnswer string          `json:"generated_answer"`
	SearchResults   searchWire      `json:"search_results"`
}

// answer extracts the generated text. Older services return an OpenAI-style
// chat completion object instead of a string.
func (r ragWire) answer() string {
	if r.GeneratedAnswer != "" {
		return r.GeneratedAnswer
	}
	if len(r.Completion) == 0 || string(r.Completion) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(r.Completion, &s) == nil {
		return s
	}
	var chat struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if json.Unmarshal(r.Completion, &chat) == nil && len(chat.Choices) > 0 {
		return chat.Choices[0].Message.Content
	}
	return string(r.Completion)
}
