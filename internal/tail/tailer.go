package tail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/atomic"

	"github.com/iamansin/Stoxxo-Script/internal/domain"
)

// LineParser converts one raw log line into an order. It returns false when
// the line is rejected.
type LineParser interface {
	ParseLine(line string) (*domain.Order, bool)
}

// BatchQueue accepts parsed order batches. Enqueue must be non-blocking and
// safe to call from the watcher goroutine.
type BatchQueue interface {
	Enqueue(batch domain.Batch) bool
}

// Tailer recursively watches a directory tree for appends and rotations of
// the target filename and streams each newly appended complete line through
// the parser into the queue.
//
// All file state (handle, offset, partial-line buffer) is touched only from
// the single Run goroutine, so it needs no locking; the queue is the
// thread-safe handoff to the rest of the pipeline.
type Tailer struct {
	root   string
	target string
	hours  *HoursValidator
	parser LineParser
	queue  BatchQueue
	logger *slog.Logger

	file    *os.File
	path    string
	offset  *atomic.Int64
	pending []byte
	now     func() time.Time
}

// New creates a Tailer. The watch root must exist; a missing root is fatal
// at startup.
func New(root, target string, hours *HoursValidator, parser LineParser, queue BatchQueue, logger *slog.Logger) (*Tailer, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("tail: watch root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tail: watch root %s is not a directory", root)
	}
	return &Tailer{
		root:   root,
		target: target,
		hours:  hours,
		parser: parser,
		queue:  queue,
		logger: logger.With(slog.String("component", "tailer")),
		offset: atomic.NewInt64(0),
		now:    time.Now,
	}, nil
}

// Run watches the directory tree until the context is cancelled. It returns
// the watcher setup error, if any; runtime file errors are logged and the
// offending event dropped.
func (t *Tailer) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tail: create watcher: %w", err)
	}
	defer watcher.Close()
	defer t.closeFile()

	if err := t.watchTree(watcher, t.root); err != nil {
		return err
	}

	t.logger.Info("tailer started",
		slog.String("root", t.root),
		slog.String("target", t.target),
	)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("tailer stopped")
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			t.handleEvent(watcher, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}

// watchTree registers dir and every subdirectory with the watcher. fsnotify
// watches are not recursive, so new daily directories are added as their
// Create events arrive.
func (t *Tailer) watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("tail: walk %s: %w", path, err)
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("tail: watch %s: %w", path, err)
			}
		}
		return nil
	})
}

func (t *Tailer) handleEvent(watcher *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			// A new daily directory: watch it and anything already inside.
			if err := t.watchTree(watcher, ev.Name); err != nil {
				t.logger.Error("failed to watch new directory",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		if filepath.Base(ev.Name) == t.target {
			t.rotate(ev.Name)
		}
		return
	}

	if ev.Has(fsnotify.Write) && filepath.Base(ev.Name) == t.target {
		t.consume(ev.Name)
	}
}

// rotate switches to a freshly created target file. The previous handle is
// closed and the new one starts at its end of file, so any initial burst in
// the rotated file is skipped, matching first-sight semantics.
func (t *Tailer) rotate(path string) {
	t.logger.Info("new target file detected", slog.String("path", path))
	t.closeFile()
	t.open(path)
}

// open opens path read-only and records its current end as the read offset.
// Pre-existing content is never emitted.
func (t *Tailer) open(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		t.logger.Error("failed to open target file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return false
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		t.logger.Error("failed to seek target file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		f.Close()
		return false
	}
	t.file = f
	t.path = path
	t.offset.Store(end)
	t.pending = nil
	t.logger.Info("opened target file",
		slog.String("path", path),
		slog.Int64("offset", end),
	)
	return true
}

// consume reads everything appended since the last recorded offset and
// forwards the complete lines. A trailing partial line is buffered until its
// newline arrives.
func (t *Tailer) consume(path string) {
	if t.file == nil || t.path != path {
		// First sight of this file: record its end, emit nothing.
		t.closeFile()
		t.open(path)
		return
	}

	if _, err := t.file.Seek(t.offset.Load(), io.SeekStart); err != nil {
		t.logger.Error("seek failed", slog.String("error", err.Error()))
		return
	}
	data, err := io.ReadAll(t.file)
	if err != nil {
		t.logger.Error("read failed", slog.String("error", err.Error()))
		return
	}
	t.offset.Add(int64(len(data)))
	if len(data) == 0 {
		return
	}

	buf := append(t.pending, data...)
	var lines []string
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(buf[:i], "\r"))
		buf = buf[i+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}
	t.pending = buf

	t.forward(lines)
}

// forward gates one notification's worth of lines on trading hours, parses
// them, and enqueues the resulting batch. The gate applies per notification:
// one rejection discards every line in it.
func (t *Tailer) forward(lines []string) {
	if len(lines) == 0 {
		return
	}

	if ok, reason := t.hours.Allowed(t.now()); !ok {
		t.logger.Warn("trading not allowed, dropping lines",
			slog.String("reason", reason),
			slog.Int("lines", len(lines)),
		)
		return
	}

	batch := make(domain.Batch, 0, len(lines))
	for _, line := range lines {
		if order, ok := t.parser.ParseLine(line); ok {
			batch = append(batch, order)
		}
	}
	if len(batch) == 0 {
		return
	}

	if t.queue.Enqueue(batch) {
		t.logger.Info("queued orders", slog.Int("orders", len(batch)))
	}
}

func (t *Tailer) closeFile() {
	if t.file != nil {
		if err := t.file.Close(); err != nil {
			t.logger.Error("error closing file handle", slog.String("error", err.Error()))
		}
		t.file = nil
		t.path = ""
		t.offset.Store(0)
		t.pending = nil
	}
}
