package services

import (
	"context"
	"encoding/json"
	"fmt"
)

// Intent is the payload of a task mutation sent over the websocket.
type Intent struct {
	Owner        string `json:"owner"`
	TaskID       string `json:"taskId"`
	SubtaskID    string `json:"subtaskId,omitempty"`
	Completed    bool   `json:"completed,omitempty"`
	Title        string `json:"title,omitempty"`
	Collaborator string `json:"collaborator,omitempty"`
}

// IntentResult answers one intent. Changes themselves arrive through the
// next table render, not here.
type IntentResult struct {
	Intent string `json:"intent"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	ID     string `json:"id,omitempty"`
}

// Dispatch applies a websocket intent on behalf of actor.
func (s *TaskService) Dispatch(ctx context.Context, actor string, msg WebSocketMessage) IntentResult {
	result := IntentResult{Intent: msg.Type}
	var in Intent
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			result.Error = fmt.Sprintf("%v: malformed payload", ErrInvalidInput)
			return result
		}
	}

	var err error
	switch msg.Type {
	case "toggleTask":
		err = s.ToggleCompleted(ctx, actor, in.Owner, in.TaskID, in.Completed)
	case "toggleSubtask":
		err = s.ToggleSubtask(ctx, actor, in.Owner, in.TaskID, in.SubtaskID, in.Completed)
	case "addSubtask":
		result.ID, err = s.AddSubtask(ctx, actor, in.Owner, in.TaskID, in.Title)
	case "deleteSubtask":
		err = s.DeleteSubtask(ctx, actor, in.Owner, in.TaskID, in.SubtaskID)
	case "addCollaborator":
		err = s.AddCollaborator(ctx, actor, in.Owner, in.TaskID, in.Collaborator)
	case "removeCollaborator":
		err = s.RemoveCollaborator(ctx, actor, in.Owner, in.TaskID, in.Collaborator)
	case "deleteTask":
		err = s.Delete(ctx, actor, in.Owner, in.TaskID)
	default:
		err = fmt.Errorf("%w: unknown intent %q", ErrInvalidInput, msg.Type)
	}

	if err != nil {
		s.logger.Printf("Intent %s from %s failed: %v", msg.Type, actor, err)
		result.Error = err.Error()
		return result
	}
	result.OK = true
	return result
}

// HandleMessage adapts Dispatch to a websocket client handler.
func (s *TaskService) HandleMessage(ctx context.Context, c *Client, msg WebSocketMessage) *WebSocketMessage {
	reply, err := NewMessage("result", s.Dispatch(ctx, c.UID, msg))
	if err != nil {
		return nil
	}
	reply.ID = msg.ID
	return &reply
}
