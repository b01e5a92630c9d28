package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/CrowderSoup/taskdash/database"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// searchThreshold is the minimum fuzzy ratio for a name or email token to match.
const searchThreshold = 75

const defaultRecentLimit = 10

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserService manages the users/{uid} directory and roles.
type UserService struct {
	store  database.Store
	logger *log.Logger
	now    func() time.Time
}

func NewUserService(store database.Store, logger *log.Logger) *UserService {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &UserService{store: store, logger: logger, now: time.Now}
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Role       string
	ActiveOnly bool
}

type ProfileUpdate struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photoURL"`
}

func (s *UserService) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// HandleLogin creates or refreshes the directory record for a signed-in
// identity. New accounts start as active members.
func (s *UserService) HandleLogin(ctx context.Context, id Identity) (database.UserRecord, error) {
	if id.UID == "" {
		return database.UserRecord{}, fmt.Errorf("%w: identity without uid", ErrInvalidInput)
	}

	existing, err := s.Get(ctx, id.UID)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return database.UserRecord{}, err
	}

	now := s.timestamp()
	u := database.UserRecord{
		Name:      id.Name,
		Email:     id.Email,
		PhotoURL:  id.PhotoURL,
		Role:      database.RoleMember,
		LastLogin: now,
	}
	if u.Name == "" {
		u.Name = "No Name"
	}
	if u.Email == "" {
		u.Email = "No Email"
	}

	if found {
		if u.PhotoURL == "" {
			u.PhotoURL = existing.PhotoURL
		}
		if existing.Role != "" {
			u.Role = existing.Role
		}
		active := existing.Active()
		u.IsAccountActive = &active
		fields := map[string]any{
			"name":            u.Name,
			"email":           u.Email,
			"photoURL":        u.PhotoURL,
			"role":            u.Role,
			"isAccountActive": active,
			"lastLogin":       now,
			"updatedAt":       now,
		}
		if err := s.store.Merge(ctx, database.UserPath(id.UID), fields); err != nil {
			return database.UserRecord{}, fmt.Errorf("failed to update user: %w", err)
		}
		s.logger.Printf("User login updated: %s", id.UID)
		u.CreatedAt = existing.CreatedAt
		u.UpdatedAt = now
	} else {
		active := true
		u.IsAccountActive = &active
		u.CreatedAt = now
		if err := s.store.Write(ctx, database.UserPath(id.UID), u); err != nil {
			return database.UserRecord{}, fmt.Errorf("failed to create user: %w", err)
		}
		s.logger.Printf("New user created with role %s: %s", u.Role, id.UID)
	}

	u.ID = id.UID
	return u, nil
}

// HandleLogout stamps lastLogout on the directory record.
func (s *UserService) HandleLogout(ctx context.Context, uid string) error {
	if _, err := s.Get(ctx, uid); err != nil {
		return err
	}
	if err := s.store.Merge(ctx, database.UserPath(uid), map[string]any{"lastLogout": s.timestamp()}); err != nil {
		return fmt.Errorf("failed to record logout: %w", err)
	}
	s.logger.Printf("User logged out: %s", uid)
	return nil
}

func (s *UserService) Get(ctx context.Context, uid string) (database.UserRecord, error) {
	if uid == "" {
		return database.UserRecord{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	snap, err := s.store.Read(ctx, database.UserPath(uid))
	if err != nil {
		return database.UserRecord{}, fmt.Errorf("failed to read user: %w", err)
	}
	if !snap.Exists() {
		return database.UserRecord{}, ErrNotFound
	}
	var u database.UserRecord
	if err := snap.Decode(&u); err != nil {
		return database.UserRecord{}, err
	}
	u.ID = uid
	return u, nil
}

// List returns users newest account first, ties broken by id.
func (s *UserService) List(ctx context.Context, filter ListFilter) ([]database.UserRecord, error) {
	snap, err := s.store.Read(ctx, database.UsersRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	users := []database.UserRecord{}
	for _, uid := range snap.ChildKeys() {
		var u database.UserRecord
		if err := snap.Child(uid).Decode(&u); err != nil {
			s.logger.Printf("Skipping unreadable user %s: %v", uid, err)
			continue
		}
		u.ID = uid
		if filter.Role != "" && roleOf(u) != filter.Role {
			continue
		}
		if filter.ActiveOnly && !u.Active() {
			continue
		}
		users = append(users, u)
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].CreatedAt != users[j].CreatedAt {
			return users[i].CreatedAt > users[j].CreatedAt
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// Recent returns the limit most recently created accounts.
func (s *UserService) Recent(ctx context.Context, limit int) ([]database.UserRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	users, err := s.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// Search matches users by name or email. Substring matches always count;
// otherwise any name or email token must be a close fuzzy match.
func (s *UserService) Search(ctx context.Context, query string) ([]database.UserRecord, error) {
	users, err := s.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return users, nil
	}

	matches := []database.UserRecord{}
	for _, u := range users {
		if matchesUser(u, term) {
			matches = append(matches, u)
		}
	}
	return matches, nil
}

func matchesUser(u database.UserRecord, term string) bool {
	name := strings.ToLower(u.Name)
	email := strings.ToLower(u.Email)
	if strings.Contains(name, term) || strings.Contains(email, term) {
		return true
	}
	tokens := strings.FieldsFunc(name+" "+email, func(r rune) bool {
		return r == ' ' || r == '@' || r == '.'
	})
	for _, tok := range tokens {
		if fuzzy.Ratio(term, tok) >= searchThreshold {
			return true
		}
	}
	return false
}

func (s *UserService) UpdateRole(ctx context.Context, uid, role string) error {
	if !validRole(role) {
		return fmt.Errorf("%w: role must be one of %s", ErrInvalidInput, strings.Join(database.Roles, ", "))
	}
	if _, err := s.Get(ctx, uid); err != nil {
		return err
	}
	now := s.timestamp()
	err := s.store.Merge(ctx, database.UserPath(uid), map[string]any{
		"role":          role,
		"roleUpdatedAt": now,
		"updatedAt":     now,
	})
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	s.logger.Printf("User %s role updated to %s", uid, role)
	return nil
}

// SetActive activates or deactivates an account.
func (s *UserService) SetActive(ctx context.Context, uid string, active bool) error {
	if _, err := s.Get(ctx, uid); err != nil {
		return err
	}
	now := s.timestamp()
	fields := map[string]any{"isAccountActive": active, "updatedAt": now}
	if active {
		fields["activatedAt"] = now
	} else {
		fields["deactivatedAt"] = now
	}
	if err := s.store.Merge(ctx, database.UserPath(uid), fields); err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}
	return nil
}

// Delete removes a directory record. Tasks the user owns are left in place.
func (s *UserService) Delete(ctx context.Context, uid string) error {
	if _, err := s.Get(ctx, uid); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, database.UserPath(uid)); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.logger.Printf("User deleted: %s", uid)
	return nil
}

func (s *UserService) UpdateProfile(ctx context.Context, uid string, p ProfileUpdate) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !emailPattern.MatchString(p.Email) {
		return fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if _, err := s.Get(ctx, uid); err != nil {
		return err
	}
	fields := map[string]any{
		"name":      strings.TrimSpace(p.Name),
		"email":     p.Email,
		"updatedAt": s.timestamp(),
	}
	if p.PhotoURL != "" {
		fields["photoURL"] = p.PhotoURL
	}
	if err := s.store.Merge(ctx, database.UserPath(uid), fields); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// HasRole reports whether uid holds one of roles.
func (s *UserService) HasRole(ctx context.Context, uid string, roles ...string) (bool, error) {
	u, err := s.Get(ctx, uid)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r := roleOf(u)
	for _, want := range roles {
		if r == want {
			return true, nil
		}
	}
	return false, nil
}

// RoleStatistics counts users per role.
func (s *UserService) RoleStatistics(ctx context.Context) (map[string]int, error) {
	users, err := s.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int, len(database.Roles))
	for _, r := range database.Roles {
		stats[r] = 0
	}
	for _, u := range users {
		if r := roleOf(u); validRole(r) {
			stats[r]++
		}
	}
	return stats, nil
}

func roleOf(u database.UserRecord) string {
	if u.Role == "" {
		return database.RoleMember
	}
	return u.Role
}

func validRole(role string) bool {
	for _, r := range database.Roles {
		if r == role {
			return true
		}
	}
	return false
}
