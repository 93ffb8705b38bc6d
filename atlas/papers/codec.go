package papers

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// scanner buffer: abstracts plus embedding vectors can make long lines
const maxLineBytes = 16 * 1024 * 1024

// ReadFile decodes a JSON-lines partition file. Every line must parse; a
// truncated or corrupt file returns an error so callers can apply their
// degrade policy.
func ReadFile(path string) ([]Paper, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var rows []Paper
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var p Paper
		if err := json.Unmarshal(b, &p); err != nil {
			return nil, fmt.Errorf("decode %s line %d: %w", path, line, err)
		}
		rows = append(rows, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return rows, nil
}

// CountFile returns the number of valid rows in a partition file. Unlike
// ReadFile it does not materialize the rows, but it still validates every
// line so corruption is detected rather than miscounted.
func CountFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	count := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var p Paper
		if err := json.Unmarshal(b, &p); err != nil {
			return 0, fmt.Errorf("decode %s line %d: %w", path, count+1, err)
		}
		count++
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("scan %s: %w", path, err)
	}
	return count, nil
}

// WriteFile encodes rows as JSON lines, writing to a temporary file in the
// destination directory and renaming into place so concurrent readers
// never observe a partially written file.
func WriteFile(path string, rows []Paper) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "tmp-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("create temp partition: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, p := range rows {
		b, err := json.Marshal(p)
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
			return fmt.Errorf("encode row %s: %w", p.ArxivID, err)
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
			return fmt.Errorf("write temp partition: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("flush temp partition: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp partition: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename temp partition: %w", err)
	}
	return nil
}
