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
)

// Admin performs operator actions on topics that go beyond synchronization.
// It is a library API for operator tooling; the server exposes only the
// forced sync. Removals delete the source file as well, or the next sync
// would bring the topic back.
type Admin struct {
	rootDir string
	repo    Repository
	history *History
}

// NewAdmin creates an Admin for the quiz tree at rootDir.
func NewAdmin(rootDir string, repo Repository, history *History) *Admin {
	if history == nil {
		history = NewHistory(repo)
	}
	return &Admin{rootDir: rootDir, repo: repo, history: history}
}

// SetEnabled toggles whether a topic is offered to users.
func (a *Admin) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	t, err := a.repo.GetTopic(ctx, id)
	if err != nil {
		return err
	}
	if t.IsEnabled == enabled {
		return nil
	}
	t.IsEnabled = enabled
	return a.repo.UpdateTopic(ctx, t)
}

// DeleteTopic removes a topic record and its file, logging DeletedFromDB
// with the last known content.
func (a *Admin) DeleteTopic(ctx context.Context, id int64) error {
	t, err := a.repo.GetTopic(ctx, id)
	if err != nil {
		return err
	}

	var lastKnown *string
	if last, ok, err := a.repo.LatestContent(ctx, t.Key()); err != nil {
		return err
	} else if ok {
		lastKnown = &last
	}

	if err := a.removeFile(t.FileName); err != nil {
		return err
	}
	if err := a.repo.DeleteTopic(ctx, id); err != nil {
		return err
	}
	if err := a.history.LogDeletedFromDB(ctx, t.FileName, lastKnown); err != nil {
		return err
	}
	slog.Info("quiz topic deleted by admin", "topic_id", id, "file", t.FileName)
	return nil
}

// DeleteFolder removes a category folder with every topic below it and
// returns the file names that were removed.
func (a *Admin) DeleteFolder(ctx context.Context, folder string) ([]string, error) {
	folder = strings.Trim(strings.ReplaceAll(folder, `\`, "/"), "/")
	rel := filepath.FromSlash(folder)
	if folder == "" || !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("invalid folder %q", folder)
	}

	all, err := a.repo.ListTopics(ctx, true)
	if err != nil {
		return nil, err
	}
	topics := topicsUnder(all, PathKey(folder))

	for _, dir := range folderDirs(folder, topics) {
		if err := os.RemoveAll(filepath.Join(a.rootDir, filepath.FromSlash(dir))); err != nil {
			return nil, fmt.Errorf("removing folder: %w", err)
		}
	}

	names := make([]string, 0, len(topics))
	for _, t := range topics {
		if err := a.repo.DeleteTopic(ctx, t.ID); err != nil && !errors.Is(err, ErrTopicNotFound) {
			return names, err
		}
		names = append(names, t.FileName)
	}
	if err := a.history.LogFolderDeleted(ctx, folder, names); err != nil {
		return names, err
	}
	slog.Info("quiz folder deleted by admin", "folder", folder, "topics", len(names))
	return names, nil
}

// folderDirs returns the on-disk spellings of folder. Topics match by key,
// so their file names may differ from the request in case or normalization.
func folderDirs(folder string, topics []Topic) []string {
	depth := strings.Count(folder, "/") + 1
	dirs := []string{folder}
	seen := map[string]bool{folder: true}
	for _, t := range topics {
		parts := strings.Split(t.FileName, "/")
		if len(parts) <= depth {
			continue
		}
		dir := strings.Join(parts[:depth], "/")
		if seen[dir] || !filepath.IsLocal(filepath.FromSlash(dir)) {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	return dirs
}

func (a *Admin) removeFile(fileName string) error {
	rel := filepath.FromSlash(fileName)
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("invalid file name %q", fileName)
	}
	if err := os.Remove(filepath.Join(a.rootDir, rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}
