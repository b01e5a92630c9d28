package aggregator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/CrowderSoup/taskdash/database"
	"github.com/CrowderSoup/taskdash/services"
)

var (
	ErrAlreadyStarted = errors.New("aggregator already started")
	ErrStopped        = errors.New("aggregator stopped")
)

// RenderFunc receives every table the aggregator produces. It runs on the
// aggregator's loop goroutine and must not block for long.
type RenderFunc func(Table)

type Options struct {
	UID   string
	Store database.Store
	// Directory resolves owner display names. A fresh one is created when nil.
	Directory *services.Directory
	Render    RenderFunc
	Logger    *log.Logger
}

// Aggregator keeps one viewer's merged table of owned and shared tasks. It
// is built per signed-in session and torn down with Stop.
//
// All table state is owned by a single loop goroutine. Subscription
// callbacks and collaboration batches only post events to it.
type Aggregator struct {
	uid    string
	store  database.Store
	dir    *services.Directory
	render RenderFunc
	logger *log.Logger

	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	ready  chan struct{}
	unsubs []database.Unsubscribe
	batch  sync.WaitGroup

	// loop state
	display    string
	owned      Table
	shared     Table
	haveOwned  bool
	haveShared bool
	batchSeq   int

	mu       sync.Mutex
	started  bool
	stopped  bool
	rendered Table
}

type eventKind int

const (
	ownedDelivery eventKind = iota
	collabDelivery
	batchResolved
)

type event struct {
	kind  eventKind
	snap  database.Snapshot
	table Table
	seq   int
}

func New(opts Options) (*Aggregator, error) {
	if opts.UID == "" {
		return nil, fmt.Errorf("%w: aggregator needs a user id", services.ErrUnauthenticated)
	}
	if opts.Store == nil {
		return nil, errors.New("aggregator needs a store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	dir := opts.Directory
	if dir == nil {
		dir = services.NewDirectory(opts.Store, logger)
	}
	return &Aggregator{
		uid:      opts.UID,
		store:    opts.Store,
		dir:      dir,
		render:   opts.Render,
		logger:   logger,
		events:   make(chan event),
		done:     make(chan struct{}),
		ready:    make(chan struct{}),
		owned:    Table{},
		shared:   Table{},
		rendered: Table{},
	}, nil
}

// Start subscribes to the viewer's owned tasks and collaboration index. The
// aggregator runs until Stop is called or ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return ErrStopped
	}
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	a.display = a.dir.Resolve(a.ctx, a.uid).Display
	go a.run()

	unsubOwned, err := a.store.Subscribe(database.OwnedTasksPath(a.uid), func(s database.Snapshot) {
		a.post(event{kind: ownedDelivery, snap: s})
	})
	if err != nil {
		a.Stop()
		return fmt.Errorf("failed to subscribe to owned tasks: %w", err)
	}
	unsubShared, err := a.store.Subscribe(database.CollaborationsPath(a.uid), func(s database.Snapshot) {
		a.post(event{kind: collabDelivery, snap: s})
	})
	if err != nil {
		unsubOwned()
		a.Stop()
		return fmt.Errorf("failed to subscribe to collaborations: %w", err)
	}

	// Stop may have run while we were resolving or subscribing; it only
	// releases handles it can see.
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		unsubOwned()
		unsubShared()
		return ErrStopped
	}
	a.unsubs = append(a.unsubs, unsubOwned, unsubShared)
	a.mu.Unlock()
	return nil
}

// Stop releases both subscriptions and waits for the loop and any
// in-flight collaboration batch to finish. It is safe to call repeatedly.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	started := a.started
	unsubs := a.unsubs
	a.unsubs = nil
	a.mu.Unlock()

	if !started {
		return
	}
	a.cancel()
	for _, unsub := range unsubs {
		unsub()
	}
	<-a.done
	a.batch.Wait()
}

// Ready is closed once both the owned tasks and the first collaboration
// batch have been applied.
func (a *Aggregator) Ready() <-chan struct{} {
	return a.ready
}

// Snapshot returns the most recently rendered table.
func (a *Aggregator) Snapshot() Table {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rendered.Clone()
}

func (a *Aggregator) post(ev event) {
	select {
	case a.events <- ev:
	case <-a.ctx.Done():
	}
}

func (a *Aggregator) run() {
	defer close(a.done)
	for {
		select {
		case <-a.ctx.Done():
			return
		case ev := <-a.events:
			switch ev.kind {
			case ownedDelivery:
				a.applyOwned(ev.snap)
			case collabDelivery:
				a.startBatch(ev.snap)
			case batchResolved:
				a.applyBatch(ev.seq, ev.table)
			}
		}
	}
}

func (a *Aggregator) applyOwned(snap database.Snapshot) {
	owned, err := OwnedEntries(a.uid, a.display, snap)
	if err != nil {
		a.logger.Printf("Owned tasks for %s partly unreadable: %v", a.uid, err)
	}
	a.owned = owned
	a.haveOwned = true
	a.publish()
}

// startBatch resolves a collaboration delivery off the loop. The previous
// shared partition is handed to the batch so entries whose read fails keep
// their last known value.
func (a *Aggregator) startBatch(snap database.Snapshot) {
	a.batchSeq++
	seq := a.batchSeq
	refs := CollaborationRefs(a.uid, snap)
	previous := a.shared.Clone()

	a.batch.Add(1)
	go func() {
		defer a.batch.Done()
		table := a.resolve(a.ctx, refs, previous)
		a.post(event{kind: batchResolved, seq: seq, table: table})
	}()
}

// applyBatch replaces the shared partition. Batches are applied in the
// order they complete, so an older batch finishing last briefly wins until
// the next delivery resolves.
func (a *Aggregator) applyBatch(seq int, table Table) {
	if seq != a.batchSeq {
		a.logger.Printf("Applying collaboration batch %d after newer delivery %d for %s", seq, a.batchSeq, a.uid)
	}
	a.shared = table
	a.haveShared = true
	a.publish()
}

// resolve reads every referenced task concurrently and prunes mirrors whose
// task no longer exists.
func (a *Aggregator) resolve(ctx context.Context, refs []Ref, previous Table) Table {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		table = Table{}
	)
	for _, ref := range refs {
		wg.Add(1)
		go func(ref Ref) {
			defer wg.Done()
			entry, ok := a.resolveRef(ctx, ref, previous)
			if !ok {
				return
			}
			mu.Lock()
			table[entry.Key] = entry
			mu.Unlock()
		}(ref)
	}
	wg.Wait()
	return table
}

func (a *Aggregator) resolveRef(ctx context.Context, ref Ref, previous Table) (Entry, bool) {
	key := Key(ref.Owner, ref.TaskID)
	snap, err := a.store.Read(ctx, database.TaskPath(ref.Owner, ref.TaskID))
	if err != nil {
		a.logger.Printf("Read of shared task %s failed: %v", key, err)
		e, ok := previous[key]
		return e, ok
	}
	if !snap.Exists() {
		mirror := database.CollaborationPath(a.uid, ref.Owner, ref.TaskID)
		if err := a.store.Delete(ctx, mirror); err != nil {
			a.logger.Printf("Failed to prune dangling %s: %v", mirror, err)
		} else {
			a.logger.Printf("Pruned dangling %s", mirror)
		}
		return Entry{}, false
	}
	var task database.TaskRecord
	if err := snap.Decode(&task); err != nil {
		a.logger.Printf("Shared task %s unreadable: %v", key, err)
		return Entry{}, false
	}
	display := a.dir.Resolve(ctx, ref.Owner).Display
	return newEntry(ref.Owner, ref.TaskID, display, task), true
}

func (a *Aggregator) publish() {
	table := Merge(a.owned, a.shared)

	a.mu.Lock()
	a.rendered = table
	a.mu.Unlock()

	if a.haveOwned && a.haveShared {
		select {
		case <-a.ready:
		default:
			close(a.ready)
		}
	}
	if a.render != nil {
		a.render(table.Clone())
	}
}
