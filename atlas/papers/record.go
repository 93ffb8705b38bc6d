// Package papers defines the row model shared by the raw, embedding and
// projection caches, plus the JSON-lines file codec they persist through.
package papers

import (
	"strings"
)

// Paper is one record of the source dataset, progressively enriched: raw
// downloads carry the metadata columns, embedding partitions add the
// vector, projection results add the 2D coordinates.
type Paper struct {
	ArxivID        string    `json:"arxiv_id"`
	Title          string    `json:"title"`
	Authors        []string  `json:"authors,omitempty"`
	SubmissionDate string    `json:"submission_date,omitempty"`
	PrimarySubject string    `json:"primary_subject,omitempty"`
	Abstract       string    `json:"abstract,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
	X              float64   `json:"x,omitempty"`
	Y              float64   `json:"y,omitempty"`
}

// EmbedText produces the text fed to the embedding collaborator: title and
// abstract joined, truncated to budget characters.
func (p Paper) EmbedText(budget int) string {
	text := strings.TrimSpace(p.Title + " " + p.Abstract)
	if budget > 0 && len(text) > budget {
		text = text[:budget]
	}
	return text
}

// Dedupe removes papers sharing an arxiv id, keeping the first occurrence.
// A partition overlap (the same paper appearing in two subject partitions)
// must not produce duplicate rows in a combined result.
func Dedupe(rows []Paper) []Paper {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0:0]
	for _, p := range rows {
		if _, ok := seen[p.ArxivID]; ok {
			continue
		}
		seen[p.ArxivID] = struct{}{}
		out = append(out, p)
	}
	return out
}
