package database

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Seed is a fixture document for populating a store.
type Seed struct {
	Users  map[string]UserRecord            `yaml:"users"`
	Tasks  map[string]map[string]TaskRecord `yaml:"tasks"`
	Events map[string]Event                 `yaml:"events"`
}

// LoadSeed parses a YAML fixture.
func LoadSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		if err == io.EOF {
			return &seed, nil
		}
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	return &seed, nil
}

// Apply writes the fixture into store. Every task collaborator also gets its
// userTasks mirror entry.
func (s *Seed) Apply(ctx context.Context, store Store) error {
	for uid, u := range s.Users {
		u.ID = ""
		if u.Role == "" {
			u.Role = RoleMember
		}
		if err := store.Write(ctx, UserPath(uid), u); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", uid, err)
		}
	}
	for owner, tasks := range s.Tasks {
		for id, t := range tasks {
			t.ID = id
			if t.Recurrence.Type == "" {
				t.Recurrence = Recurrence{Type: RecurrenceNone, Interval: 1}
			}
			if err := store.Write(ctx, TaskPath(owner, id), t); err != nil {
				return fmt.Errorf("failed to seed task %s/%s: %w", owner, id, err)
			}
			for collaborator, ok := range t.Collaborators {
				if !ok {
					continue
				}
				if err := store.Write(ctx, CollaborationPath(collaborator, owner, id), true); err != nil {
					return fmt.Errorf("failed to seed collaboration %s: %w", collaborator, err)
				}
			}
		}
	}
	for id, e := range s.Events {
		e.ID = ""
		if err := store.Write(ctx, EventPath(id), e); err != nil {
			return fmt.Errorf("failed to seed event %s: %w", id, err)
		}
	}
	return nil
}
