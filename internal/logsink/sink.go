// Package logsink persists one structured record per dispatched order into
// daily CSV files, one per provider, alongside a combined CSV and a JSON
// line log for ad-hoc inspection.
package logsink

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iamansin/Stoxxo-Script/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05.000"

// header is the fixed column set of every CSV file the sink writes. The
// Recieve_Timestamp spelling is kept for compatibility with existing
// downstream consumers of these files.
var header = []string{
	"Log_time",
	"Stoxxo_Timestamp",
	"Stoxxo_Latency",
	"Recieve_Timestamp",
	"Sent_Timestamp",
	"Application_Latency",
	"Pipeline_Latency",
	"Strategy",
	"Stoxxo_Order",
	"order_summary",
	"Mapped_order",
	"order_status",
	"error_message",
}

type fileKey struct {
	day  string
	name string
}

type csvFile struct {
	f *os.File
	w *csv.Writer
}

// Sink routes order records to per-day directories under a base path. Files
// and directories are created lazily on first write; daily rollover follows
// from each order's parse date.
type Sink struct {
	base   string
	logger *slog.Logger

	mu    sync.Mutex
	day   string
	csvs  map[fileKey]*csvFile
	jsons map[string]*os.File
}

// New creates a sink rooted at base. The base directory is created up front
// so a bad output path fails at startup rather than on the first order.
func New(base string, logger *slog.Logger) (*Sink, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("logsink: create output dir: %w", err)
	}
	return &Sink{
		base:   base,
		logger: logger.With(slog.String("component", "logsink")),
		csvs:   make(map[fileKey]*csvFile),
		jsons:  make(map[string]*os.File),
	}, nil
}

// Record writes one row for the order into the provider's daily CSV, the
// combined daily CSV, and the daily JSON line log. Write failures are logged
// and swallowed; the dispatch path never blocks on the sink.
func (s *Sink) Record(provider string, o *domain.Order) {
	day := o.ParseTime.Format("2006-01-02")
	row := s.row(o)

	s.mu.Lock()
	defer s.mu.Unlock()

	if day != s.day {
		s.evict(day)
		s.day = day
	}
	for _, name := range []string{provider, "orders"} {
		if err := s.writeCSV(day, name, row); err != nil {
			s.logger.Error("failed to write order record",
				slog.String("file", name),
				slog.String("order_id", o.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.writeJSON(day, provider, o); err != nil {
		s.logger.Error("failed to write order log line",
			slog.String("order_id", o.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Sink) row(o *domain.Order) []string {
	sent := ""
	if o.SentTime != nil {
		sent = o.SentTime.Format(timeLayout)
	}
	e2e := ""
	if ms, ok := o.EndToEndLatencyMs(); ok {
		e2e = fmt.Sprintf("%dms", ms)
	}
	pipeline := ""
	if ms, ok := o.PipelineLatencyMs(); ok {
		pipeline = fmt.Sprintf("%dms", ms)
	}
	summary, _ := json.Marshal(o.Summary())

	return []string{
		time.Now().Format(timeLayout),
		o.ActualTime.Format(timeLayout),
		fmt.Sprintf("%dms", o.ProcessingGapMs),
		o.ParseTime.Format(timeLayout),
		sent,
		e2e,
		pipeline,
		o.StrategyTag,
		o.StoxxoOrder,
		string(summary),
		o.MappedOrder.EncodeNumbered(),
		string(o.Status),
		o.ErrorMessage,
	}
}

// evict flushes and closes every handle for days other than day, so a
// long-running process does not hold descriptors for files it will never
// write again. Caller holds s.mu.
func (s *Sink) evict(day string) {
	for key, cf := range s.csvs {
		if key.day == day {
			continue
		}
		cf.w.Flush()
		if err := cf.f.Close(); err != nil {
			s.logger.Warn("failed to close rolled-over file",
				slog.String("day", key.day),
				slog.String("file", key.name),
				slog.String("error", err.Error()),
			)
		}
		delete(s.csvs, key)
	}
	for d, f := range s.jsons {
		if d == day {
			continue
		}
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close rolled-over file",
				slog.String("day", d),
				slog.String("error", err.Error()),
			)
		}
		delete(s.jsons, d)
	}
}

func (s *Sink) writeCSV(day, name string, row []string) error {
	key := fileKey{day: day, name: name}
	cf, ok := s.csvs[key]
	if !ok {
		dir := filepath.Join(s.base, day)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		path := filepath.Join(dir, name+".csv")
		info, statErr := os.Stat(path)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		cf = &csvFile{f: f, w: csv.NewWriter(f)}
		if statErr != nil || info.Size() == 0 {
			if err := cf.w.Write(header); err != nil {
				f.Close()
				return err
			}
		}
		s.csvs[key] = cf
	}
	if err := cf.w.Write(row); err != nil {
		return err
	}
	cf.w.Flush()
	return cf.w.Error()
}

func (s *Sink) writeJSON(day, provider string, o *domain.Order) error {
	f, ok := s.jsons[day]
	if !ok {
		dir := filepath.Join(s.base, day)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		var err error
		f, err = os.OpenFile(filepath.Join(dir, "orders.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		s.jsons[day] = f
	}

	rec := o.Summary()
	rec["provider"] = provider
	rec["status"] = string(o.Status)
	if o.ErrorMessage != "" {
		rec["error"] = o.ErrorMessage
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// Close flushes and closes every open file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for key, cf := range s.csvs {
		cf.w.Flush()
		if err := cf.w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := cf.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.csvs, key)
	}
	for day, f := range s.jsons {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.jsons, day)
	}
	return firstErr
}
