package fsstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ReadJSON decodes a JSON document into out. A missing or empty file is
// reported as exists=false so callers can fall back to zero-value state
// without an error branch.
func ReadJSON(path string, out any) (bool, error) {
	src, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(src)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", src, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, src, err)
	}
	return true, nil
}

// WriteJSONAtomic snapshots v as indented JSON. State files are meant to
// be inspectable with a pager, hence the indentation.
func WriteJSONAtomic(path string, v any, opts FileOptions) error {
	dst, err := cleanPath(path)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncodeFailed, dst, err)
	}
	return writeAtomic(dst, append(data, '\n'), opts)
}

// ReadLines returns the non-blank lines of a newline-delimited file, in
// order. Missing file is exists=false, matching ReadJSON.
func ReadLines(path string) ([]string, bool, error) {
	src, err := cleanPath(path)
	if err != nil {
		return nil, false, err
	}
	f, err := os.Open(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read lines %s: %w", src, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if line := sc.Text(); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, false, fmt.Errorf("scan %s: %w", src, err)
	}
	return lines, true, nil
}
