package services

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/CrowderSoup/taskdash/database"
)

// Profile is the cached view of a user used for display.
type Profile struct {
	Raw     *database.UserRecord
	Display string
}

// Directory resolves user ids to display profiles. Each id is looked up at
// most once for the lifetime of the Directory and never refreshed.
type Directory struct {
	store  database.Store
	logger *log.Logger

	mu      sync.Mutex
	entries map[string]*directoryEntry
}

type directoryEntry struct {
	ready   chan struct{}
	profile Profile
}

func NewDirectory(store database.Store, logger *log.Logger) *Directory {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Directory{
		store:   store,
		logger:  logger,
		entries: make(map[string]*directoryEntry),
	}
}

// Resolve returns the profile for uid. Concurrent callers for the same uid
// share a single store read.
func (d *Directory) Resolve(ctx context.Context, uid string) Profile {
	if uid == "" {
		return Profile{}
	}

	d.mu.Lock()
	entry, ok := d.entries[uid]
	if !ok {
		entry = &directoryEntry{ready: make(chan struct{})}
		d.entries[uid] = entry
	}
	d.mu.Unlock()

	if ok {
		select {
		case <-entry.ready:
			return entry.profile
		case <-ctx.Done():
			return Profile{Display: uid}
		}
	}

	entry.profile = d.lookup(ctx, uid)
	close(entry.ready)
	return entry.profile
}

func (d *Directory) lookup(ctx context.Context, uid string) Profile {
	snap, err := d.store.Read(ctx, database.UserPath(uid))
	if err != nil {
		d.logger.Printf("Directory lookup for %s failed: %v", uid, err)
		return Profile{Display: uid}
	}
	if !snap.Exists() {
		return Profile{Display: uid}
	}
	var u database.UserRecord
	if err := snap.Decode(&u); err != nil {
		d.logger.Printf("Directory record for %s unreadable: %v", uid, err)
		return Profile{Display: uid}
	}
	u.ID = uid
	return Profile{Raw: &u, Display: displayName(u, uid)}
}

func displayName(u database.UserRecord, uid string) string {
	if u.Name != "" {
		return u.Name
	}
	if u.Email != "" {
		return u.Email
	}
	return uid
}
