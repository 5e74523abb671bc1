package fsstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// JSONLWriter appends one JSON document per line to a log file. When the
// current segment would exceed RotateMaxBytes the writer renames it with a
// UTC timestamp suffix and starts a fresh one; rotated segments are never
// rewritten.
type JSONLWriter struct {
	path string
	opts JSONLOptions

	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	size   int64
	closed bool

	now func() time.Time
}

func NewJSONLWriter(path string, opts JSONLOptions) (*JSONLWriter, error) {
	dst, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	w := &JSONLWriter{
		path: dst,
		opts: opts.withDefaults(),
		now:  time.Now,
	}
	if err := w.openSegment(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *JSONLWriter) AppendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncodeFailed, w.path, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(append(data, '\n'))
}

// AppendLine writes a raw pre-encoded line. Embedded newlines would break
// the one-document-per-line contract and are rejected.
func (w *JSONLWriter) AppendLine(line string) error {
	if strings.ContainsRune(line, '\n') {
		return fmt.Errorf("%w: line contains newline", ErrInvalidPath)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(append([]byte(strings.TrimSuffix(line, "\r")), '\n'))
}

func (w *JSONLWriter) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.buf != nil {
		_ = w.buf.Flush()
	}
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.buf = nil
	w.size = 0
	return err
}

func (w *JSONLWriter) write(data []byte) error {
	if w.closed {
		return fmt.Errorf("jsonl writer %s is closed", w.path)
	}
	if err := w.maybeRotate(int64(len(data))); err != nil {
		return err
	}
	n, err := w.buf.Write(data)
	if err != nil {
		return err
	}
	w.size += int64(n)
	if w.opts.FlushEachWrite {
		return w.buf.Flush()
	}
	return nil
}

func (w *JSONLWriter) maybeRotate(incoming int64) error {
	if w.size+incoming <= w.opts.RotateMaxBytes {
		return nil
	}
	if w.buf != nil {
		_ = w.buf.Flush()
	}
	if w.file != nil {
		_ = w.file.Close()
	}
	w.file = nil
	w.buf = nil
	w.size = 0
	if err := w.archiveSegment(); err != nil {
		return err
	}
	return w.openSegment()
}

// archiveSegment renames the current file to <path>.<timestamp>, adding a
// numeric suffix when two rotations land on the same second.
func (w *JSONLWriter) archiveSegment() error {
	base := w.path + "." + w.now().UTC().Format("20060102T150405Z")
	for i := 0; ; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s.%d", base, i)
		}
		if _, err := os.Stat(candidate); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		err := os.Rename(w.path, candidate)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
}

func (w *JSONLWriter) openSegment() error {
	if err := EnsureDir(filepath.Dir(w.path), w.opts.DirPerm); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, w.opts.FilePerm)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, 64*1024)
	w.size = info.Size()
	return nil
}
