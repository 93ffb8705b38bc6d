package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

const subjectCodesFile = "subject_codes.json"

// SubjectLister is the catalog surface needed to compute the code map.
type SubjectLister interface {
	ListSubjects(ctx context.Context) []string
}

// SubjectCodes returns the subject code map, computing it from the remote
// catalog once and persisting it indefinitely. The map is near-immutable
// reference data: it is recomputed only if the persisted file is absent.
func (m *Manager) SubjectCodes(ctx context.Context, lister SubjectLister) (map[string]string, error) {
	path := filepath.Join(m.cacheDir, subjectCodesFile)

	if data, err := os.ReadFile(path); err == nil {
		var codes map[string]string
		if err := json.Unmarshal(data, &codes); err == nil {
			return codes, nil
		}
		slog.Warn("Subject code file unreadable, recomputing", "path", path, "error", err)
	}

	subjects := lister.ListSubjects(ctx)
	if len(subjects) == 0 {
		// Nothing to persist; leave the file absent so the next call retries.
		return map[string]string{}, nil
	}

	codes := make(map[string]string, len(subjects))
	for _, code := range subjects {
		codes[code] = code
	}

	if err := os.MkdirAll(m.cacheDir, 0o755); err != nil {
		return codes, fmt.Errorf("mkdir %s: %w", m.cacheDir, err)
	}
	data, err := json.MarshalIndent(codes, "", "  ")
	if err != nil {
		return codes, fmt.Errorf("encode subject codes: %w", err)
	}
	tmp, err := os.CreateTemp(m.cacheDir, "tmp-subjects-*.json")
	if err != nil {
		return codes, fmt.Errorf("create temp subject codes: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return codes, fmt.Errorf("write subject codes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return codes, fmt.Errorf("close subject codes: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return codes, fmt.Errorf("persist subject codes: %w", err)
	}

	slog.Info("Computed subject code map", "subjects", len(codes))
	return codes, nil
}
