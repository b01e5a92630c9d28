package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/CrowderSoup/taskdash/database"
)

// TaskService performs task mutations against tasks/{ownerId}/{taskId}. The
// store is the source of truth: nothing here keeps local state, and the
// next subscription delivery is what confirms a change.
//
// The owner is the only writer of task fields, subtask membership, deletion
// and collaborators. Collaborators may toggle task and subtask completion.
type TaskService struct {
	store  database.Store
	users  *UserService
	logger *log.Logger
	now    func() time.Time
}

func NewTaskService(store database.Store, users *UserService, logger *log.Logger) *TaskService {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &TaskService{store: store, users: users, logger: logger, now: time.Now}
}

type NewTask struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	TargetDate  string              `json:"targetDate"`
	Recurrence  database.Recurrence `json:"recurrence"`
}

// TaskPatch is a partial update. Nil fields are left alone; an empty
// TargetDate clears the date.
type TaskPatch struct {
	Title       *string              `json:"title,omitempty"`
	Description *string              `json:"description,omitempty"`
	Completed   *bool                `json:"completed,omitempty"`
	TargetDate  *string              `json:"targetDate,omitempty"`
	Recurrence  *database.Recurrence `json:"recurrence,omitempty"`
}

// validKey rejects ids that are not a single path segment. "_" is reserved
// as the separator of aggregated table keys.
func validKey(name, key string) error {
	if key == "" || strings.ContainsAny(key, "/.#$[]_") {
		return fmt.Errorf("%w: bad %s %q", ErrInvalidInput, name, key)
	}
	return nil
}

// load reads the task and checks that actor may see it.
func (s *TaskService) load(ctx context.Context, actor, owner, taskID string) (database.TaskRecord, error) {
	if actor == "" {
		return database.TaskRecord{}, ErrUnauthenticated
	}
	if err := validKey("owner", owner); err != nil {
		return database.TaskRecord{}, err
	}
	if err := validKey("task id", taskID); err != nil {
		return database.TaskRecord{}, err
	}

	snap, err := s.store.Read(ctx, database.TaskPath(owner, taskID))
	if err != nil {
		s.logger.Printf("Read of task %s/%s failed: %v", owner, taskID, err)
		return database.TaskRecord{}, fmt.Errorf("failed to read task: %w", err)
	}
	if !snap.Exists() {
		return database.TaskRecord{}, ErrNotFound
	}
	var task database.TaskRecord
	if err := snap.Decode(&task); err != nil {
		return database.TaskRecord{}, err
	}
	task.ID = taskID

	if actor != owner && !task.Collaborators[actor] {
		return database.TaskRecord{}, ErrForbidden
	}
	return task, nil
}

func (s *TaskService) loadOwned(ctx context.Context, actor, owner, taskID string) (database.TaskRecord, error) {
	task, err := s.load(ctx, actor, owner, taskID)
	if err != nil {
		return task, err
	}
	if actor != owner {
		return task, ErrForbidden
	}
	return task, nil
}

func (s *TaskService) merge(ctx context.Context, path string, fields map[string]any) error {
	if err := s.store.Merge(ctx, path, fields); err != nil {
		s.logger.Printf("Merge at %s failed: %v", path, err)
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	return nil
}

// mergeTask updates fields below an existing task. A task deleted since it
// was loaded is reported as ErrNotFound rather than recreated.
func (s *TaskService) mergeTask(ctx context.Context, owner, taskID string, fields map[string]any) error {
	path := database.TaskPath(owner, taskID)
	err := s.store.MergeExisting(ctx, path, fields)
	if errors.Is(err, database.ErrNoValue) {
		return ErrNotFound
	}
	if err != nil {
		s.logger.Printf("Merge at %s failed: %v", path, err)
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	return nil
}

// nextDue derives the next due date from targetDate, or from today when the
// task has none.
func (s *TaskService) nextDue(r database.Recurrence, targetDate *string) *string {
	from := s.now().UTC()
	if targetDate != nil && *targetDate != "" {
		if t, err := ParseDate(*targetDate); err == nil {
			from = t
		}
	}
	next, ok := NextDue(r, from)
	if !ok {
		return nil
	}
	return &next
}

func normalizeRecurrence(r database.Recurrence) (database.Recurrence, error) {
	if r.Type == "" {
		r.Type = database.RecurrenceNone
	}
	if r.Interval == 0 {
		r.Interval = 1
	}
	return r, validRecurrence(r)
}

func normalizeDate(date string) (*string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return nil, nil
	}
	t, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	d := t.Format(dateLayout)
	return &d, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Create adds a task owned by actor.
func (s *TaskService) Create(ctx context.Context, actor string, in NewTask) (database.TaskRecord, error) {
	if actor == "" {
		return database.TaskRecord{}, ErrUnauthenticated
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return database.TaskRecord{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	rec, err := normalizeRecurrence(in.Recurrence)
	if err != nil {
		return database.TaskRecord{}, err
	}
	target, err := normalizeDate(in.TargetDate)
	if err != nil {
		return database.TaskRecord{}, err
	}

	task := database.TaskRecord{
		ID:          database.NewKey(),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		TargetDate:  target,
		Recurrence:  rec,
		NextDue:     s.nextDue(rec, target),
		CreatedAt:   s.now().UnixMilli(),
	}
	if err := s.store.Write(ctx, database.TaskPath(actor, task.ID), task); err != nil {
		s.logger.Printf("Create task for %s failed: %v", actor, err)
		return database.TaskRecord{}, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

func (s *TaskService) Get(ctx context.Context, actor, owner, taskID string) (database.TaskRecord, error) {
	return s.load(ctx, actor, owner, taskID)
}

// ToggleCompleted sets the task's own completed flag.
func (s *TaskService) ToggleCompleted(ctx context.Context, actor, owner, taskID string, completed bool) error {
	if _, err := s.load(ctx, actor, owner, taskID); err != nil {
		return err
	}
	return s.mergeTask(ctx, owner, taskID, map[string]any{"completed": completed})
}

func (s *TaskService) UpdateDetails(ctx context.Context, actor, owner, taskID, title, description string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if _, err := s.loadOwned(ctx, actor, owner, taskID); err != nil {
		return err
	}
	return s.mergeTask(ctx, owner, taskID, map[string]any{
		"title":       title,
		"description": strings.TrimSpace(description),
	})
}

// SetTargetDate changes or clears the target date and recomputes nextDue.
func (s *TaskService) SetTargetDate(ctx context.Context, actor, owner, taskID, date string) error {
	target, err := normalizeDate(date)
	if err != nil {
		return err
	}
	task, err := s.loadOwned(ctx, actor, owner, taskID)
	if err != nil {
		return err
	}
	return s.mergeTask(ctx, owner, taskID, map[string]any{
		"targetDate": nullable(target),
		"nextDue":    nullable(s.nextDue(task.Recurrence, target)),
	})
}

// SetRecurrence changes the recurrence rule and recomputes nextDue.
func (s *TaskService) SetRecurrence(ctx context.Context, actor, owner, taskID string, r database.Recurrence) error {
	rec, err := normalizeRecurrence(r)
	if err != nil {
		return err
	}
	task, err := s.loadOwned(ctx, actor, owner, taskID)
	if err != nil {
		return err
	}
	return s.mergeTask(ctx, owner, taskID, map[string]any{
		"recurrence": rec,
		"nextDue":    nullable(s.nextDue(rec, task.TargetDate)),
	})
}

// Apply runs each set field of patch as its own operation.
func (s *TaskService) Apply(ctx context.Context, actor, owner, taskID string, p TaskPatch) error {
	if p.Title != nil || p.Description != nil {
		task, err := s.loadOwned(ctx, actor, owner, taskID)
		if err != nil {
			return err
		}
		title, desc := task.Title, task.Description
		if p.Title != nil {
			title = *p.Title
		}
		if p.Description != nil {
			desc = *p.Description
		}
		if err := s.UpdateDetails(ctx, actor, owner, taskID, title, desc); err != nil {
			return err
		}
	}
	if p.TargetDate != nil {
		if err := s.SetTargetDate(ctx, actor, owner, taskID, *p.TargetDate); err != nil {
			return err
		}
	}
	if p.Recurrence != nil {
		if err := s.SetRecurrence(ctx, actor, owner, taskID, *p.Recurrence); err != nil {
			return err
		}
	}
	if p.Completed != nil {
		if err := s.ToggleCompleted(ctx, actor, owner, taskID, *p.Completed); err != nil {
			return err
		}
	}
	return nil
}

// AddSubtask appends a subtask and returns its id.
func (s *TaskService) AddSubtask(ctx context.Context, actor, owner, taskID, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: subtask title is required", ErrInvalidInput)
	}
	if _, err := s.loadOwned(ctx, actor, owner, taskID); err != nil {
		return "", err
	}
	id := database.NewKey()
	sub := database.Subtask{ID: id, Title: title, CreatedAt: s.now().UnixMilli()}
	if err := s.mergeTask(ctx, owner, taskID, map[string]any{database.JoinPath("subtasks", id): sub}); err != nil {
		return "", err
	}
	return id, nil
}

// ToggleSubtask sets only subtasks/{subID}/completed.
func (s *TaskService) ToggleSubtask(ctx context.Context, actor, owner, taskID, subID string, completed bool) error {
	if err := validKey("subtask id", subID); err != nil {
		return err
	}
	task, err := s.load(ctx, actor, owner, taskID)
	if err != nil {
		return err
	}
	if _, ok := task.Subtasks[subID]; !ok {
		return ErrNotFound
	}
	return s.mergeTask(ctx, owner, taskID, map[string]any{
		database.JoinPath("subtasks", subID, "completed"): completed,
	})
}

func (s *TaskService) DeleteSubtask(ctx context.Context, actor, owner, taskID, subID string) error {
	if err := validKey("subtask id", subID); err != nil {
		return err
	}
	if _, err := s.loadOwned(ctx, actor, owner, taskID); err != nil {
		return err
	}
	path := database.JoinPath(database.TaskPath(owner, taskID), "subtasks", subID)
	if err := s.store.Delete(ctx, path); err != nil {
		s.logger.Printf("Delete subtask %s failed: %v", path, err)
		return fmt.Errorf("failed to delete subtask: %w", err)
	}
	return nil
}

// AddCollaborator grants collaborator access. The task's collaborators map
// and the collaborator's userTasks mirror are written in one update.
func (s *TaskService) AddCollaborator(ctx context.Context, actor, owner, taskID, collaborator string) error {
	if err := validKey("collaborator", collaborator); err != nil {
		return err
	}
	if collaborator == owner {
		return fmt.Errorf("%w: owner cannot collaborate on own task", ErrInvalidInput)
	}
	if _, err := s.loadOwned(ctx, actor, owner, taskID); err != nil {
		return err
	}
	u, err := s.users.Get(ctx, collaborator)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("collaborator %s: %w", collaborator, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if !u.Active() {
		return fmt.Errorf("%w: collaborator account is inactive", ErrInvalidInput)
	}

	grant := database.JoinPath(database.TaskPath(owner, taskID), "collaborators", collaborator)
	mirror := database.CollaborationPath(collaborator, owner, taskID)
	if err := s.merge(ctx, "", map[string]any{grant: true, mirror: true}); err != nil {
		return err
	}

	// a delete that landed between load and merge leaves a task with only
	// a collaborators map; undo the grant
	snap, err := s.store.Read(ctx, database.TaskPath(owner, taskID))
	if err == nil {
		var task database.TaskRecord
		if err := snap.Decode(&task); err == nil && task.Title == "" {
			if err := s.merge(ctx, "", map[string]any{grant: nil, mirror: nil}); err != nil {
				return err
			}
			return ErrNotFound
		}
	}
	s.logger.Printf("Collaborator %s added to %s/%s", collaborator, owner, taskID)
	return nil
}

// RemoveCollaborator revokes access, removing both index entries together.
func (s *TaskService) RemoveCollaborator(ctx context.Context, actor, owner, taskID, collaborator string) error {
	if err := validKey("collaborator", collaborator); err != nil {
		return err
	}
	if _, err := s.loadOwned(ctx, actor, owner, taskID); err != nil {
		return err
	}
	return s.merge(ctx, "", map[string]any{
		database.JoinPath(database.TaskPath(owner, taskID), "collaborators", collaborator): nil,
		database.CollaborationPath(collaborator, owner, taskID):                            nil,
	})
}

// Delete removes the task and then the mirror entries of its collaborators.
// Mirrors that fail to delete are pruned by the collaborator's next
// reconciliation.
func (s *TaskService) Delete(ctx context.Context, actor, owner, taskID string) error {
	task, err := s.loadOwned(ctx, actor, owner, taskID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, database.TaskPath(owner, taskID)); err != nil {
		s.logger.Printf("Delete task %s/%s failed: %v", owner, taskID, err)
		return fmt.Errorf("failed to delete task: %w", err)
	}
	for collaborator := range task.Collaborators {
		if err := s.store.Delete(ctx, database.CollaborationPath(collaborator, owner, taskID)); err != nil {
			s.logger.Printf("Mirror cleanup for %s on %s/%s failed: %v", collaborator, owner, taskID, err)
		}
	}
	return nil
}
