package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrowderSoup/taskdash/database"
)

func ownedSnapshot(value any) database.Snapshot {
	return database.Snapshot{Path: "tasks/u1", Key: "u1", Value: value}
}

func TestOwnedEntriesTagsEveryTask(t *testing.T) {
	snap := ownedSnapshot(map[string]any{
		"t1": map[string]any{"title": "Write report", "createdAt": float64(10)},
		"t2": map[string]any{"title": "Call bank", "completed": true, "createdAt": float64(20)},
	})

	table, err := OwnedEntries("u1", "Uma", snap)
	require.NoError(t, err)
	require.Len(t, table, 2)

	e := table["u1_t1"]
	assert.Equal(t, "u1", e.Owner)
	assert.Equal(t, "t1", e.TaskID)
	assert.Equal(t, "t1", e.ID)
	assert.Equal(t, "Uma", e.OwnerDisplay)
	assert.Equal(t, "Write report", e.Title)
	assert.True(t, table["u1_t2"].Completed)
}

func TestOwnedEntriesAbsentValueIsEmpty(t *testing.T) {
	table, err := OwnedEntries("u1", "Uma", ownedSnapshot(nil))
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestOwnedEntriesSkipsUndecodableTask(t *testing.T) {
	snap := ownedSnapshot(map[string]any{
		"good": map[string]any{"title": "ok"},
		"bad":  "not a task",
	})
	table, err := OwnedEntries("u1", "Uma", snap)
	assert.Error(t, err)
	assert.Len(t, table, 1)
	assert.Contains(t, table, "u1_good")
}

func TestOwnedEntriesIdempotent(t *testing.T) {
	snap := ownedSnapshot(map[string]any{
		"t1": map[string]any{"title": "Write report", "subtasks": map[string]any{
			"s1": map[string]any{"title": "outline", "completed": false},
		}},
	})
	first, err := OwnedEntries("u1", "Uma", snap)
	require.NoError(t, err)
	second, err := OwnedEntries("u1", "Uma", snap)
	require.NoError(t, err)

	assert.Equal(t, Merge(first, nil), Merge(second, nil))
}

func TestCollaborationRefs(t *testing.T) {
	snap := database.Snapshot{Value: map[string]any{
		"owner1": map[string]any{"t1": true, "t2": true},
		"owner2": map[string]any{"t3": true, "t4": false},
		"me":     map[string]any{"t5": true},
	}}

	refs := CollaborationRefs("me", snap)
	assert.ElementsMatch(t, []Ref{
		{Owner: "owner1", TaskID: "t1"},
		{Owner: "owner1", TaskID: "t2"},
		{Owner: "owner2", TaskID: "t3"},
	}, refs)
}

func TestCollaborationRefsAbsent(t *testing.T) {
	assert.Empty(t, CollaborationRefs("me", database.Snapshot{}))
}

func TestMergeKeepsBothPartitions(t *testing.T) {
	owned := Table{"me_t1": {Key: "me_t1", Owner: "me", TaskID: "t1"}}
	shared := Table{"o_t2": {Key: "o_t2", Owner: "o", TaskID: "t2"}}

	merged := Merge(owned, shared)
	assert.Len(t, merged, 2)
	assert.Equal(t, "me", merged["me_t1"].Owner)
	assert.Equal(t, "o", merged["o_t2"].Owner)

	// inputs are untouched
	assert.Len(t, owned, 1)
	assert.Len(t, shared, 1)
}

func TestMergeOwnedWinsOnCollision(t *testing.T) {
	owned := Table{"me_t1": {Key: "me_t1", Owner: "me", OwnerDisplay: "owned"}}
	shared := Table{"me_t1": {Key: "me_t1", Owner: "me", OwnerDisplay: "shared"}}

	assert.Equal(t, "owned", Merge(owned, shared)["me_t1"].OwnerDisplay)
}

func TestEntriesNewestFirst(t *testing.T) {
	table := Table{
		"a_1": {Key: "a_1", TaskRecord: database.TaskRecord{CreatedAt: 1}},
		"a_2": {Key: "a_2", TaskRecord: database.TaskRecord{CreatedAt: 3}},
		"b_1": {Key: "b_1", TaskRecord: database.TaskRecord{CreatedAt: 3}},
	}
	var keys []string
	for _, e := range table.Entries() {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"a_2", "b_1", "a_1"}, keys)
}

func TestOwnedBy(t *testing.T) {
	table := Table{
		"me_t1": {Key: "me_t1", Owner: "me"},
		"o_t2":  {Key: "o_t2", Owner: "o"},
	}
	assert.Len(t, table.OwnedBy("me"), 1)
	assert.Len(t, table.OwnedBy("o"), 1)
	assert.Empty(t, table.OwnedBy("nobody"))
}
