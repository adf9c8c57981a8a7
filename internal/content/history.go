package content

import (
	"context"
	"fmt"
	"time"
)

// History appends audit entries for quiz file changes.
type History struct {
	repo Repository
	now  func() time.Time
}

// NewHistory creates a History writing to repo.
func NewHistory(repo Repository) *History {
	return &History{repo: repo, now: time.Now}
}

// LogAdded records a new or restored file with its full content.
func (h *History) LogAdded(ctx context.Context, fileName, content string) error {
	return h.append(ctx, HistoryEntry{FileName: fileName, Action: ActionAdded, Content: &content})
}

// LogModified records a content change.
func (h *History) LogModified(ctx context.Context, fileName, content string) error {
	return h.append(ctx, HistoryEntry{FileName: fileName, Action: ActionModified, Content: &content})
}

// LogFileDeleted records that a file vanished from disk.
func (h *History) LogFileDeleted(ctx context.Context, fileName string, lastKnown *string) error {
	return h.append(ctx, HistoryEntry{FileName: fileName, Action: ActionFileDeleted, Content: lastKnown})
}

// LogDeletedFromDB records an administrative removal of a topic record.
func (h *History) LogDeletedFromDB(ctx context.Context, fileName string, lastKnown *string) error {
	return h.append(ctx, HistoryEntry{FileName: fileName, Action: ActionDeletedFromDB, Content: lastKnown})
}

// LogFolderDeleted records one entry per file removed together with folderPath.
func (h *History) LogFolderDeleted(ctx context.Context, folderPath string, fileNames []string) error {
	for _, name := range fileNames {
		if err := h.append(ctx, HistoryEntry{FileName: name, FolderPath: folderPath, Action: ActionFolderDeleted}); err != nil {
			return err
		}
	}
	return nil
}

func (h *History) append(ctx context.Context, e HistoryEntry) error {
	e.Timestamp = h.now().UTC()
	if e.Content != nil {
		e.ContentHash = ContentHash(*e.Content)
	}
	if err := h.repo.AppendHistory(ctx, &e); err != nil {
		return fmt.Errorf("log %s for %s: %w", e.Action, e.FileName, err)
	}
	return nil
}
