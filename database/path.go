package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Top-level roots of the record tree.
const (
	TasksRoot     = "tasks"
	UserTasksRoot = "userTasks"
	UsersRoot     = "users"
	EventsRoot    = "events"
)

var ErrInvalidPath = errors.New("invalid path")

// SplitPath validates a slash separated path and returns its segments.
// The empty string (or "/") is the root and yields no segments.
func SplitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}
	segments := strings.Split(path, "/")
	for _, s := range segments {
		if s == "" || strings.ContainsAny(s, ".#$[]") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segments, nil
}

// JoinPath joins segments into a store path.
func JoinPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// TaskPath is the canonical location of a task.
func TaskPath(ownerID, taskID string) string {
	return JoinPath(TasksRoot, ownerID, taskID)
}

// OwnedTasksPath is the subtree holding every task a user owns.
func OwnedTasksPath(ownerID string) string {
	return JoinPath(TasksRoot, ownerID)
}

// CollaborationPath is the mirror entry granting collaboratorID access to a task.
func CollaborationPath(collaboratorID, ownerID, taskID string) string {
	return JoinPath(UserTasksRoot, collaboratorID, ownerID, taskID)
}

// CollaborationsPath is the collaboration index of a single user.
func CollaborationsPath(collaboratorID string) string {
	return JoinPath(UserTasksRoot, collaboratorID)
}

func UserPath(uid string) string {
	return JoinPath(UsersRoot, uid)
}

func EventPath(eventID string) string {
	return JoinPath(EventsRoot, eventID)
}

// NewKey returns a time-ordered push key.
func NewKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// isAncestorOrSelf reports whether a is b or one of b's ancestors.
func isAncestorOrSelf(a, b []string) bool {
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// related reports whether a change at one path is visible from the other.
func related(a, b []string) bool {
	return isAncestorOrSelf(a, b) || isAncestorOrSelf(b, a)
}
