package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrowderSoup/taskdash/database"
)

func newUserService(t *testing.T) (*UserService, *database.TreeStore) {
	t.Helper()
	store := newTestStore(t)
	users := NewUserService(store, nil)
	users.now = func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) }
	return users, store
}

func TestHandleLoginCreatesActiveMember(t *testing.T) {
	users, _ := newUserService(t)
	ctx := context.Background()

	u, err := users.HandleLogin(ctx, Identity{UID: "u1", Name: "Ada Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, database.RoleMember, u.Role)
	assert.True(t, u.Active())
	assert.Equal(t, "2026-02-01T12:00:00Z", u.CreatedAt)

	stored, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", stored.Name)
	assert.Equal(t, "u1", stored.ID)
}

func TestHandleLoginKeepsRoleAndStatus(t *testing.T) {
	users, _ := newUserService(t)
	ctx := context.Background()

	_, err := users.HandleLogin(ctx, Identity{UID: "u1", Name: "Ada", Email: "ada@example.com", PhotoURL: "https://img/ada.png"})
	require.NoError(t, err)
	require.NoError(t, users.UpdateRole(ctx, "u1", database.RoleAdministrator))
	require.NoError(t, users.SetActive(ctx, "u1", false))

	u, err := users.HandleLogin(ctx, Identity{UID: "u1", Name: "Ada L.", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, database.RoleAdministrator, u.Role)
	assert.False(t, u.Active())
	assert.Equal(t, "https://img/ada.png", u.PhotoURL)
	assert.Equal(t, "Ada L.", u.Name)
}

func TestHandleLoginRequiresUID(t *testing.T) {
	users, _ := newUserService(t)
	_, err := users.HandleLogin(context.Background(), Identity{Email: "x@example.com"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetMissingUser(t *testing.T) {
	users, _ := newUserService(t)
	_, err := users.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

// seedUsers signs up three users one day apart, u1 first.
func seedUsers(t *testing.T, users *UserService) {
	t.Helper()
	ctx := context.Background()
	clock := users.now
	defer func() { users.now = clock }()
	for i, id := range []Identity{
		{UID: "u1", Name: "Grace Hopper", Email: "grace@navy.mil"},
		{UID: "u2", Name: "Alan Turing", Email: "alan@bletchley.uk"},
		{UID: "u3", Name: "Barbara Liskov", Email: "liskov@mit.edu"},
	} {
		at := clock().AddDate(0, 0, i)
		users.now = func() time.Time { return at }
		_, err := users.HandleLogin(ctx, id)
		require.NoError(t, err)
	}
}

func TestListSortedAndFiltered(t *testing.T) {
	users, _ := newUserService(t)
	ctx := context.Background()
	seedUsers(t, users)
	require.NoError(t, users.UpdateRole(ctx, "u3", database.RoleStaff))
	require.NoError(t, users.SetActive(ctx, "u2", false))

	all, err := users.List(ctx, ListFilter{})
	require.NoError(t, err)
	var names []string
	for _, u := range all {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{"Barbara Liskov", "Alan Turing", "Grace Hopper"}, names)

	staff, err := users.List(ctx, ListFilter{Role: database.RoleStaff})
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, "u3", staff[0].ID)

	active, err := users.List(ctx, ListFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestSearch(t *testing.T) {
	users, _ := newUserService(t)
	ctx := context.Background()
	seedUsers(t, users)

	byName, err := users.Search(ctx, "hopper")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "u1", byName[0].ID)

	byEmail, err := users.Search(ctx, "bletchley")
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, "u2", byEmail[0].ID)

	typo, err := users.Search(ctx, "liskob")
	require.NoError(t, err)
	require.Len(t, typo, 1)
	assert.Equal(t, "u3", typo[0].ID)

	none, err := users.Search(ctx, "zzzzzz")
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := users.Search(ctx, "  ")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateRoleValidation(t *testing.T) {
	users, _ := newUserService(t)
	ctx := context.Background()
	seedUsers(t, users)

	assert.ErrorIs(t, users.UpdateRole(ctx, "u1", "overlord"), ErrInvalidInput)
	assert.ErrorIs(t, users.UpdateRole(ctx, "ghost", database.RoleStaff), ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	users, _ := newUserService(t)
	ctx := context.Background()
	seedUsers(t, users)

	assert.ErrorIs(t, users.UpdateProfile(ctx, "u1", ProfileUpdate{Name: "", Email: "g@example.com"}), ErrInvalidInput)
	assert.ErrorIs(t, users.UpdateProfile(ctx, "u1", ProfileUpdate{Name: "Grace", Email: "not-an-email"}), ErrInvalidInput)

	require.NoError(t, users.UpdateProfile(ctx, "u1", ProfileUpdate{Name: " Amazing Grace ", Email: "grace@example.com"}))
	u, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Amazing Grace", u.Name)
	assert.Equal(t, "grace@example.com", u.Email)
}

func TestHasRoleAndStatistics(t *testing.T) {
	users, _ := newUserService(t)
	ctx := context.Background()
	seedUsers(t, users)
	require.NoError(t, users.UpdateRole(ctx, "u1", database.RoleAdministrator))

	ok, err := users.HasRole(ctx, "u1", database.RoleAdministrator, database.RoleStaff)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = users.HasRole(ctx, "u2", database.RoleAdministrator)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = users.HasRole(ctx, "ghost", database.RoleMember)
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := users.RoleStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		database.RoleAdministrator: 1,
		database.RoleStaff:         0,
		database.RoleModerator:     0,
		database.RoleMember:        2,
	}, stats)
}

func TestRecentUsers(t *testing.T) {
	users, _ := newUserService(t)
	ctx := context.Background()
	seedUsers(t, users)

	recent, err := users.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "u3", recent[0].ID)
	assert.Equal(t, "u2", recent[1].ID)

	all, err := users.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHandleLogoutStampsRecord(t *testing.T) {
	users, _ := newUserService(t)
	ctx := context.Background()
	seedUsers(t, users)

	require.NoError(t, users.HandleLogout(ctx, "u2"))
	u, err := users.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01T12:00:00Z", u.LastLogout)
	assert.Equal(t, "Alan Turing", u.Name)

	assert.ErrorIs(t, users.HandleLogout(ctx, "ghost"), ErrNotFound)
	assert.ErrorIs(t, users.HandleLogout(ctx, ""), ErrInvalidInput)
}

func TestDeleteUser(t *testing.T) {
	users, _ := newUserService(t)
	ctx := context.Background()
	seedUsers(t, users)

	require.NoError(t, users.Delete(ctx, "u1"))
	_, err := users.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, users.Delete(ctx, "u1"), ErrNotFound)

	rest, err := users.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}
