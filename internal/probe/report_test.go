package probe

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kailas-cloud/r2rprobe/internal/sample"
	"github.com/kailas-cloud/r2rprobe/pkg/r2r"
)

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("ж", 250)
	got := excerpt(long, excerptRunes)
	if utf8.RuneCountInString(got) != excerptRunes {
		t.Errorf("rune count = %d, want %d", utf8.RuneCountInString(got), excerptRunes)
	}
	if !utf8.ValidString(got) {
		t.Error("excerpt must not split a rune")
	}
	if got := excerpt("short", excerptRunes); got != "short" {
		t.Errorf("short text changed: %q", got)
	}
	if got := excerpt("", excerptRunes); got != "" {
		t.Errorf("empty text = %q, want empty", got)
	}
}

func TestFormatScore(t *testing.T) {
	if got := formatScore(nil); got != notAvailable {
		t.Errorf("nil score = %q", got)
	}
	s := 0.5
	if got := formatScore(&s); got != "0.5" {
		t.Errorf("score = %q", got)
	}
}

func TestFormatMetadata(t *testing.T) {
	if got := formatMetadata(nil); got != "{}" {
		t.Errorf("nil metadata = %q", got)
	}
	got := formatMetadata(map[string]any{"b": 2, "a": "x"})
	if got != `{"a":"x","b":2}` {
		t.Errorf("metadata = %q", got)
	}
}

func TestRawJSON(t *testing.T) {
	if got := rawJSON(nil); got != "{}" {
		t.Errorf("nil raw = %q", got)
	}
	if got := rawJSON([]byte(" {\n \"a\": 1 }")); got != `{"a":1}` {
		t.Errorf("compact = %q", got)
	}
	if got := rawJSON([]byte("not json")); got != "not json" {
		t.Errorf("invalid json = %q", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err      error
		fallback FailureKind
		want     FailureKind
	}{
		{fmt.Errorf("x: %w", r2r.ErrConnection), FailureService, FailureConnection},
		{fmt.Errorf("x: %w", r2r.ErrService), FailureSearch, FailureService},
		{fmt.Errorf("x: %w", r2r.ErrIngestion), FailureService, FailureIngestion},
		{fmt.Errorf("x: %w", r2r.ErrSearch), FailureService, FailureSearch},
		{fmt.Errorf("x: %w", r2r.ErrCompletion), FailureService, FailureCompletion},
		{fmt.Errorf("x: %w", sample.ErrFilesystem), FailureService, FailureFilesystem},
		{fmt.Errorf("x: %w", os.ErrNotExist), FailureIngestion, FailureFileNotFound},
		{errors.New("plain"), FailureSearch, FailureSearch},
	}
	for _, tt := range tests {
		if got := classify(tt.err, tt.fallback); got != tt.want {
			t.Errorf("classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
