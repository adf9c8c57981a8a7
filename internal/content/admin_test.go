package content_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-quiz/internal/content"
)

func syncedTree(t *testing.T) (string, *content.MemoryStore) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "math/a.txt", testQuiz)
	writeFile(t, root, "math/algebra/b.txt", openQuiz)
	writeFile(t, root, "history/c.txt", testQuiz)

	store := content.NewMemoryStore()
	if _, err := content.NewSynchronizer(root, store).SyncTopics(context.Background()); err != nil {
		t.Fatal(err)
	}
	return root, store
}

func TestAdmin_SetEnabled(t *testing.T) {
	root, store := syncedTree(t)
	admin := content.NewAdmin(root, store, nil)

	topic, _ := store.FindTopicByKey(context.Background(), content.PathKey("math/a.txt"))
	if err := admin.SetEnabled(context.Background(), topic.ID, true); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	got, _ := store.GetTopic(context.Background(), topic.ID)
	if !got.IsEnabled {
		t.Error("IsEnabled = false, want true")
	}

	if err := admin.SetEnabled(context.Background(), 999, true); !errors.Is(err, content.ErrTopicNotFound) {
		t.Errorf("SetEnabled(999) error = %v, want ErrTopicNotFound", err)
	}
}

func TestAdmin_DeleteTopic(t *testing.T) {
	root, store := syncedTree(t)
	admin := content.NewAdmin(root, store, nil)

	topic, _ := store.FindTopicByKey(context.Background(), content.PathKey("history/c.txt"))
	if err := admin.DeleteTopic(context.Background(), topic.ID); err != nil {
		t.Fatalf("DeleteTopic() error = %v", err)
	}

	if _, err := store.GetTopic(context.Background(), topic.ID); !errors.Is(err, content.ErrTopicNotFound) {
		t.Errorf("GetTopic() error = %v, want ErrTopicNotFound", err)
	}
	if _, err := os.Stat(filepath.Join(root, "history", "c.txt")); !os.IsNotExist(err) {
		t.Error("quiz file should be removed")
	}

	entries := historyOf(t, store, "history/c.txt")
	if entries[0].Action != content.ActionDeletedFromDB {
		t.Fatalf("newest action = %v, want deleted_from_db", entries[0].Action)
	}
	if entries[0].Content == nil || *entries[0].Content != testQuiz {
		t.Error("DeletedFromDB entry should carry last known content")
	}

	// The topic must not come back on the next sync.
	report, err := content.NewSynchronizer(root, store).SyncTopics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Added != 0 {
		t.Errorf("Added = %d after admin delete, want 0", report.Added)
	}
}

func TestAdmin_DeleteFolder(t *testing.T) {
	root, store := syncedTree(t)
	admin := content.NewAdmin(root, store, nil)

	names, err := admin.DeleteFolder(context.Background(), `math\`)
	if err != nil {
		t.Fatalf("DeleteFolder() error = %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("deleted = %v, want 2 files", names)
	}
	if _, err := os.Stat(filepath.Join(root, "math")); !os.IsNotExist(err) {
		t.Error("folder should be removed from disk")
	}

	for _, name := range names {
		entries := historyOf(t, store, name)
		e := entries[0]
		if e.Action != content.ActionFolderDeleted || e.FolderPath != "math" || e.Content != nil {
			t.Errorf("%s newest entry = %+v, want folder_deleted for math without content", name, e)
		}
	}

	remaining, _ := store.ListTopics(context.Background(), true)
	if len(remaining) != 1 || remaining[0].FileName != "history/c.txt" {
		t.Errorf("remaining topics = %+v, want only history/c.txt", remaining)
	}
}

func TestAdmin_DeleteFolder_CaseMismatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Math/a.txt", testQuiz)
	writeFile(t, root, "Math/algebra/b.txt", openQuiz)

	store := content.NewMemoryStore()
	sync := content.NewSynchronizer(root, store)
	if _, err := sync.SyncTopics(context.Background()); err != nil {
		t.Fatal(err)
	}

	admin := content.NewAdmin(root, store, nil)
	names, err := admin.DeleteFolder(context.Background(), "math")
	if err != nil {
		t.Fatalf("DeleteFolder() error = %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("deleted = %v, want 2 files", names)
	}
	if _, err := os.Stat(filepath.Join(root, "Math")); !os.IsNotExist(err) {
		t.Error("folder should be removed from disk despite differing case")
	}

	report, err := sync.SyncTopics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Added != 0 || report.Restored != 0 {
		t.Errorf("report = %+v after folder delete, want nothing resurrected", report)
	}
}

func TestAdmin_DeleteFolder_Invalid(t *testing.T) {
	root, store := syncedTree(t)
	admin := content.NewAdmin(root, store, nil)

	for _, folder := range []string{"", "/", "../outside"} {
		if _, err := admin.DeleteFolder(context.Background(), folder); err == nil {
			t.Errorf("DeleteFolder(%q) should fail", folder)
		}
	}
}
