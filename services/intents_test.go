package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intent(t *testing.T, kind string, in Intent) WebSocketMessage {
	t.Helper()
	msg, err := NewMessage(kind, in)
	require.NoError(t, err)
	return msg
}

func TestDispatchIntents(t *testing.T) {
	f := newTaskFixture(t, "O", "C")
	ctx := context.Background()
	task, err := f.tasks.Create(ctx, "O", NewTask{Title: "Plan trip"})
	require.NoError(t, err)

	res := f.tasks.Dispatch(ctx, "O", intent(t, "addSubtask", Intent{Owner: "O", TaskID: task.ID, Title: "book hotel"}))
	require.True(t, res.OK, res.Error)
	require.NotEmpty(t, res.ID)
	sub := res.ID

	res = f.tasks.Dispatch(ctx, "O", intent(t, "addCollaborator", Intent{Owner: "O", TaskID: task.ID, Collaborator: "C"}))
	require.True(t, res.OK, res.Error)

	res = f.tasks.Dispatch(ctx, "C", intent(t, "toggleSubtask", Intent{Owner: "O", TaskID: task.ID, SubtaskID: sub, Completed: true}))
	require.True(t, res.OK, res.Error)

	res = f.tasks.Dispatch(ctx, "C", intent(t, "toggleTask", Intent{Owner: "O", TaskID: task.ID, Completed: true}))
	require.True(t, res.OK, res.Error)

	res = f.tasks.Dispatch(ctx, "C", intent(t, "deleteTask", Intent{Owner: "O", TaskID: task.ID}))
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, ErrForbidden.Error())

	got, err := f.tasks.Get(ctx, "O", "O", task.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.True(t, got.Subtasks[sub].Completed)

	res = f.tasks.Dispatch(ctx, "O", intent(t, "removeCollaborator", Intent{Owner: "O", TaskID: task.ID, Collaborator: "C"}))
	require.True(t, res.OK, res.Error)
	res = f.tasks.Dispatch(ctx, "O", intent(t, "deleteSubtask", Intent{Owner: "O", TaskID: task.ID, SubtaskID: sub}))
	require.True(t, res.OK, res.Error)
	res = f.tasks.Dispatch(ctx, "O", intent(t, "deleteTask", Intent{Owner: "O", TaskID: task.ID}))
	require.True(t, res.OK, res.Error)

	_, err = f.tasks.Get(ctx, "O", "O", task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDispatchRejectsUnknownAndMalformed(t *testing.T) {
	f := newTaskFixture(t, "O")
	ctx := context.Background()

	res := f.tasks.Dispatch(ctx, "O", WebSocketMessage{Type: "launchRockets"})
	assert.False(t, res.OK)
	assert.Equal(t, "launchRockets", res.Intent)

	res = f.tasks.Dispatch(ctx, "O", WebSocketMessage{Type: "toggleTask", Data: json.RawMessage(`"nope"`)})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "malformed")
}

func TestHandleMessageEchoesID(t *testing.T) {
	f := newTaskFixture(t, "O")
	client := &Client{Hub: NewHub(nil), UID: "O"}

	reply := f.tasks.HandleMessage(context.Background(), client, WebSocketMessage{Type: "toggleTask", ID: "req-7"})
	require.NotNil(t, reply)
	assert.Equal(t, "result", reply.Type)
	assert.Equal(t, "req-7", reply.ID)

	var res IntentResult
	require.NoError(t, json.Unmarshal(reply.Data, &res))
	assert.False(t, res.OK)
	assert.Equal(t, "toggleTask", res.Intent)
}
