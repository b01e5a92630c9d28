package aggregator

import (
	"sort"
	"strings"

	"github.com/CrowderSoup/taskdash/database"
)

// Entry is one task as seen by a viewer, tagged with where it lives.
type Entry struct {
	Key          string `json:"key" yaml:"key"`
	Owner        string `json:"_owner" yaml:"_owner"`
	TaskID       string `json:"_taskId" yaml:"_taskId"`
	OwnerDisplay string `json:"_ownerDisplay" yaml:"_ownerDisplay"`

	database.TaskRecord `yaml:",inline"`
}

// Table maps {ownerId}_{taskId} to the entry for that task.
type Table map[string]Entry

// Key returns the table key for a task. Ids never contain "_", so keys are
// unambiguous.
func Key(ownerID, taskID string) string {
	return ownerID + "_" + taskID
}

// Clone returns a copy of t. Entries share their subtask and collaborator
// maps with t; callers treat entries as read-only.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// OwnedBy returns the entries whose owner is ownerID.
func (t Table) OwnedBy(ownerID string) Table {
	out := Table{}
	prefix := ownerID + "_"
	for k, v := range t {
		if strings.HasPrefix(k, prefix) && v.Owner == ownerID {
			out[k] = v
		}
	}
	return out
}

// Entries lists the table newest first, ties broken by key.
func (t Table) Entries() []Entry {
	entries := make([]Entry, 0, len(t))
	for _, e := range t {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt != entries[j].CreatedAt {
			return entries[i].CreatedAt > entries[j].CreatedAt
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}
