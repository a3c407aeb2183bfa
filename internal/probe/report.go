package probe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	notAvailable = "N/A"
	separator    = "=================================================="
)

// printer writes the transcript. Write errors are ignored: the transcript is best-effort.
type printer struct {
	w io.Writer
}

func (p *printer) line(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format+"\n", args...)
}

// section starts a block separated from the previous one by a blank line.
func (p *printer) section(format string, args ...any) {
	_, _ = io.WriteString(p.w, "\n")
	p.line(format, args...)
}

func (p *printer) banner() {
	p.line("🚀 R2R Proof-of-Concept Testing")
	p.line(separator)
}

func (p *printer) footer() {
	p.section("🎉 Testing completed!")
	p.line(separator)
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

// excerpt returns at most n runes of s. Empty text stays empty.
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func formatScore(score *float64) string {
	if score == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*score, 'g', -1, 64)
}

func formatMetadata(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("%v", m)
	}
	return string(b)
}

func rawJSON(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}
