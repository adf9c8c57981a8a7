// Package content keeps persisted quiz topics in step with the quiz file tree
// and records every content-affecting change in an append-only history.
package content

import (
	"encoding/hex"
	"errors"
	"path"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/pai-quiz/internal/quiz"
)

// ErrTopicNotFound is returned when no topic matches a lookup.
var ErrTopicNotFound = errors.New("topic not found")

// Topic is a persisted quiz definition keyed by its relative file path.
type Topic struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	FileName  string    `json:"file_name"` // relative path, forward slashes
	Type      quiz.Mode `json:"type"`
	IsEnabled bool      `json:"is_enabled"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the stable lookup key of the topic's file.
func (t Topic) Key() string {
	return PathKey(t.FileName)
}

// Category returns the folder part of the file name, or "" for top-level files.
func (t Topic) Category() string {
	dir := path.Dir(t.FileName)
	if dir == "." {
		return ""
	}
	return dir
}

// HistoryAction identifies what happened to a quiz file. Values are persisted.
type HistoryAction int

const (
	ActionAdded HistoryAction = iota
	ActionModified
	ActionFileDeleted
	ActionDeletedFromDB
	ActionFolderDeleted
)

func (a HistoryAction) String() string {
	switch a {
	case ActionAdded:
		return "added"
	case ActionModified:
		return "modified"
	case ActionFileDeleted:
		return "file_deleted"
	case ActionDeletedFromDB:
		return "deleted_from_db"
	case ActionFolderDeleted:
		return "folder_deleted"
	default:
		return "unknown"
	}
}

// HistoryEntry is an immutable audit record. Content is nil when the action
// carries no file text.
type HistoryEntry struct {
	ID          int64         `json:"id"`
	FileName    string        `json:"file_name"`
	FolderPath  string        `json:"folder_path,omitempty"`
	Action      HistoryAction `json:"action"`
	Content     *string       `json:"content,omitempty"`
	ContentHash string        `json:"content_hash,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// PathKey canonicalizes a relative quiz path: one separator, NFC form and
// Unicode case folding, so that "Math\Alg.TXT" and "math/alg.txt" collide.
func PathKey(rel string) string {
	p := strings.ReplaceAll(rel, `\`, "/")
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	return cases.Fold().String(norm.NFC.String(p))
}

// ContentHash returns the hex BLAKE2b-256 digest of content.
func ContentHash(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
