// Package partition defines the key and path model for one
// (subject, year, month) granule of the source dataset.
//
// All path derivations are pure functions of their inputs: no I/O, no
// randomness, so existence checks stay cheap and deterministic.
package partition

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Ext is the on-disk extension for cached partition files.
const Ext = ".jsonl"

// Key identifies one granule of the source dataset. Subjects are opaque
// short codes (e.g. "cs.AI"); years and months are zero-padded decimal
// strings, not integers, to preserve leading zeros and allow string-based
// path construction.
type Key struct {
	Subject string
	Year    string
	Month   string
}

// YearMonth is a (year, month) pair without a subject.
type YearMonth struct {
	Year  string
	Month string
}

func New(subject, year, month string) Key {
	return Key{Subject: subject, Year: year, Month: month}
}

func (k Key) String() string {
	return k.Subject + "/" + k.Year + "/" + k.Month
}

// Validate checks the shape of the key: a non-empty subject, a 4-digit
// year and a month in "01".."12".
func (k Key) Validate() error {
	if k.Subject == "" {
		return fmt.Errorf("partition key has empty subject")
	}
	if !isDigits(k.Year) || len(k.Year) != 4 {
		return fmt.Errorf("partition key year %q is not a 4-digit string", k.Year)
	}
	if !isDigits(k.Month) || len(k.Month) != 2 || k.Month < "01" || k.Month > "12" {
		return fmt.Errorf("partition key month %q is not in 01..12", k.Month)
	}
	return nil
}

// SafeSubject substitutes the structural separator so the subject code can
// be used as a single path segment. Display names are sourced from the
// subject code map, not reconstructed from paths.
func (k Key) SafeSubject() string {
	return strings.ReplaceAll(k.Subject, ".", "_")
}

// SubjectFromSafe reverses SafeSubject for listing purposes.
func SubjectFromSafe(safe string) string {
	return strings.ReplaceAll(safe, "_", ".")
}

// LocalPath is the per-partition path for raw downloads:
// dataDir/year/month/<safe-subject>.jsonl
func (k Key) LocalPath(dataDir string) string {
	return filepath.Join(dataDir, k.Year, k.Month, k.SafeSubject()+Ext)
}

// EmbeddingPath is the per-partition path for cached embedding output.
// Embedding vectors are not portable across models, so the path is
// additionally segmented per model id.
func (k Key) EmbeddingPath(embedDir, modelID string) string {
	return filepath.Join(embedDir, modelID, k.Year, k.Month, k.SafeSubject()+Ext)
}

// RemotePath is the partition file path inside the dataset repository.
func (k Key) RemotePath() string {
	return "data/" + k.Subject + "/" + k.Year + "/" + k.Month + "/00000000" + Ext
}

// MonthFile is the per-month aggregate path for combined raw downloads:
// dataDir/arxiv_<year>_<month>.jsonl
func MonthFile(dataDir, year, month string) string {
	return filepath.Join(dataDir, fmt.Sprintf("arxiv_%s_%s%s", year, month, Ext))
}

// CurrentYearMonth returns now's year and month as zero-padded strings.
func CurrentYearMonth(now time.Time) (string, string) {
	return fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month()))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
