package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/p-n-ai/pai-quiz/internal/platform/metrics"
	"github.com/p-n-ai/pai-quiz/internal/quiz"
)

const quizExt = ".txt"

var tracer = otel.Tracer("github.com/p-n-ai/pai-quiz/internal/content")

// Report summarizes one synchronization run.
type Report struct {
	Added     int `json:"added"`
	Modified  int `json:"modified"`
	Restored  int `json:"restored"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Changed reports whether the run wrote any topic or history record.
func (r Report) Changed() bool {
	return r.Added+r.Modified+r.Restored+r.Deleted > 0
}

// Synchronizer reconciles the quiz file tree with the Repository.
type Synchronizer struct {
	rootDir string
	repo    Repository
	history *History
	metrics *metrics.Metrics
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithMetrics records sync outcomes in m.
func WithMetrics(m *metrics.Metrics) SyncOption {
	return func(s *Synchronizer) {
		s.metrics = m
	}
}

// WithHistory overrides the history writer (e.g. to inject a clock).
func WithHistory(h *History) SyncOption {
	return func(s *Synchronizer) {
		s.history = h
	}
}

// NewSynchronizer creates a Synchronizer for the quiz files under rootDir.
func NewSynchronizer(rootDir string, repo Repository, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		rootDir: rootDir,
		repo:    repo,
		history: NewHistory(repo),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RootDir returns the folder being synchronized.
func (s *Synchronizer) RootDir() string {
	return s.rootDir
}

type syncAction int

const (
	syncUnchanged syncAction = iota
	syncAdded
	syncModified
	syncRestored
)

// SyncTopics makes topics and history reflect the files currently on disk.
// A failing file is logged and counted; it never stops the run. Running it
// twice over an unchanged tree writes nothing the second time.
func (s *Synchronizer) SyncTopics(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "content.SyncTopics")
	defer span.End()
	start := time.Now()

	var report Report

	if _, err := os.Stat(s.rootDir); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(s.rootDir, 0o755); err != nil {
			return report, fmt.Errorf("creating quiz root: %w", err)
		}
		slog.Info("quiz root created", "path", s.rootDir)
		return report, nil
	}

	files, err := s.listFiles()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	seen := make(map[string]struct{}, len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		fileName := filepath.ToSlash(rel)
		key := PathKey(fileName)
		if _, dup := seen[key]; dup {
			report.Failed++
			s.metrics.SyncAction("failed")
			slog.Warn("skipping quiz file colliding with an earlier one", "file", fileName, "key", key)
			continue
		}
		seen[key] = struct{}{}

		action, err := s.syncFile(ctx, rel)
		if err != nil {
			report.Failed++
			s.metrics.SyncAction("failed")
			slog.Error("failed to sync quiz file", "file", fileName, "error", err)
			continue
		}
		switch action {
		case syncAdded:
			report.Added++
			s.metrics.SyncAction("added")
		case syncModified:
			report.Modified++
			s.metrics.SyncAction("modified")
		case syncRestored:
			report.Restored++
			s.metrics.SyncAction("restored")
		default:
			report.Unchanged++
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	topics, err := s.repo.ListTopics(ctx, false)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("listing topics: %w", err)
	}
	for _, t := range topics {
		if _, ok := seen[t.Key()]; ok {
			continue
		}
		if err := s.markDeleted(ctx, t); err != nil {
			report.Failed++
			s.metrics.SyncAction("failed")
			slog.Error("failed to mark topic deleted", "topic_id", t.ID, "file", t.FileName, "error", err)
			continue
		}
		report.Deleted++
		s.metrics.SyncAction("deleted")
	}

	s.metrics.SyncDuration(time.Since(start))
	span.SetAttributes(
		attribute.Int("sync.added", report.Added),
		attribute.Int("sync.modified", report.Modified),
		attribute.Int("sync.restored", report.Restored),
		attribute.Int("sync.deleted", report.Deleted),
		attribute.Int("sync.failed", report.Failed),
	)
	if report.Changed() || report.Failed > 0 {
		slog.Info("quiz files synchronized",
			"added", report.Added,
			"modified", report.Modified,
			"restored", report.Restored,
			"deleted", report.Deleted,
			"failed", report.Failed,
		)
	}
	return report, nil
}

// listFiles returns quiz file paths relative to the root, in walk order.
func (s *Synchronizer) listFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.rootDir {
				return err
			}
			slog.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), quizExt) {
			return nil
		}
		rel, err := filepath.Rel(s.rootDir, path)
		if err != nil {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking quiz root: %w", err)
	}
	return files, nil
}

func (s *Synchronizer) syncFile(ctx context.Context, rel string) (syncAction, error) {
	data, err := os.ReadFile(filepath.Join(s.rootDir, rel))
	if err != nil {
		return syncUnchanged, fmt.Errorf("reading file: %w", err)
	}
	content := string(data)
	def := quiz.Parse(content)

	fileName := filepath.ToSlash(rel)
	title := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	key := PathKey(fileName)

	topic, err := s.repo.FindTopicByKey(ctx, key)
	if errors.Is(err, ErrTopicNotFound) {
		topic = &Topic{Title: title, FileName: fileName, Type: def.Mode}
		if err := s.repo.CreateTopic(ctx, topic); err != nil {
			return syncUnchanged, err
		}
		if err := s.history.LogAdded(ctx, fileName, content); err != nil {
			return syncUnchanged, err
		}
		slog.Info("quiz topic added", "topic_id", topic.ID, "file", fileName, "type", def.Mode.String())
		return syncAdded, nil
	}
	if err != nil {
		return syncUnchanged, err
	}

	if topic.IsDeleted {
		topic.IsDeleted = false
		refreshTopic(topic, title, fileName, def.Mode)
		if err := s.repo.UpdateTopic(ctx, topic); err != nil {
			return syncUnchanged, err
		}
		if err := s.history.LogAdded(ctx, fileName, content); err != nil {
			return syncUnchanged, err
		}
		slog.Info("quiz topic restored", "topic_id", topic.ID, "file", fileName)
		return syncRestored, nil
	}

	last, ok, err := s.repo.LatestContent(ctx, key)
	if err != nil {
		return syncUnchanged, err
	}
	if !ok || last != content {
		refreshTopic(topic, title, fileName, def.Mode)
		if err := s.repo.UpdateTopic(ctx, topic); err != nil {
			return syncUnchanged, err
		}
		if err := s.history.LogModified(ctx, fileName, content); err != nil {
			return syncUnchanged, err
		}
		slog.Info("quiz topic modified", "topic_id", topic.ID, "file", fileName)
		return syncModified, nil
	}

	if refreshTopic(topic, title, fileName, def.Mode) {
		if err := s.repo.UpdateTopic(ctx, topic); err != nil {
			return syncUnchanged, err
		}
	}
	return syncUnchanged, nil
}

func (s *Synchronizer) markDeleted(ctx context.Context, t Topic) error {
	var lastKnown *string
	last, ok, err := s.repo.LatestContent(ctx, t.Key())
	if err != nil {
		return err
	}
	if ok {
		lastKnown = &last
	}

	t.IsDeleted = true
	if err := s.repo.UpdateTopic(ctx, &t); err != nil {
		return err
	}
	if err := s.history.LogFileDeleted(ctx, t.FileName, lastKnown); err != nil {
		return err
	}
	slog.Info("quiz topic deleted", "topic_id", t.ID, "file", t.FileName)
	return nil
}

// refreshTopic copies file-derived fields and reports whether any changed.
func refreshTopic(t *Topic, title, fileName string, mode quiz.Mode) bool {
	changed := t.Title != title || t.FileName != fileName || t.Type != mode
	t.Title = title
	t.FileName = fileName
	t.Type = mode
	return changed
}
