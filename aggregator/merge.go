package aggregator

import (
	"errors"
	"fmt"

	"github.com/CrowderSoup/taskdash/database"
)

// Ref names a task the viewer was granted access to.
type Ref struct {
	Owner  string
	TaskID string
}

func newEntry(owner, taskID, display string, task database.TaskRecord) Entry {
	task.ID = taskID
	return Entry{
		Key:          Key(owner, taskID),
		Owner:        owner,
		TaskID:       taskID,
		OwnerDisplay: display,
		TaskRecord:   task,
	}
}

// OwnedEntries builds the owned partition from the full value of
// tasks/{uid}. An absent value yields an empty table. Children that fail to
// decode are skipped and reported in the returned error.
func OwnedEntries(uid, display string, snap database.Snapshot) (Table, error) {
	table := Table{}
	var errs []error
	for _, taskID := range snap.ChildKeys() {
		var task database.TaskRecord
		if err := snap.Child(taskID).Decode(&task); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", taskID, err))
			continue
		}
		e := newEntry(uid, taskID, display, task)
		table[e.Key] = e
	}
	return table, errors.Join(errs...)
}

// CollaborationRefs lists the (owner, task) pairs in the value of
// userTasks/{uid}. Entries pointing back at uid are dropped: the viewer's
// own tasks come only from the ownership subscription.
func CollaborationRefs(uid string, snap database.Snapshot) []Ref {
	var refs []Ref
	for _, owner := range snap.ChildKeys() {
		if owner == uid {
			continue
		}
		tasks := snap.Child(owner)
		for _, taskID := range tasks.ChildKeys() {
			if granted, _ := tasks.Child(taskID).Value.(bool); !granted {
				continue
			}
			refs = append(refs, Ref{Owner: owner, TaskID: taskID})
		}
	}
	return refs
}

// Merge combines the owned and shared partitions into one table. The two
// key spaces are disjoint; should they ever overlap, the owned entry wins.
func Merge(owned, shared Table) Table {
	out := make(Table, len(owned)+len(shared))
	for k, v := range shared {
		out[k] = v
	}
	for k, v := range owned {
		out[k] = v
	}
	return out
}
