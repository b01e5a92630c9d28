package database

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
)

// Backend persists the tree one top-level root at a time.
type Backend interface {
	Load(ctx context.Context) (map[string]any, error)
	// Save stores the full value of a root. A nil value removes the root.
	Save(ctx context.Context, root string, value any) error
	Close() error
}

// TreeStore is an in-memory realtime Store. With a Backend every mutation is
// written through before subscribers are notified.
type TreeStore struct {
	mu       sync.Mutex
	root     any
	backend  Backend
	watchers map[int]*watcher
	nextID   int
	closed   bool
	logger   *log.Logger
}

// NewTreeStore returns an empty store that keeps everything in memory.
func NewTreeStore(logger *log.Logger) *TreeStore {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &TreeStore{
		watchers: make(map[int]*watcher),
		logger:   logger,
	}
}

// OpenTreeStore loads the tree from backend and writes every change back to it.
func OpenTreeStore(ctx context.Context, backend Backend, logger *log.Logger) (*TreeStore, error) {
	s := NewTreeStore(logger)
	data, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree: %w", err)
	}
	if len(data) > 0 {
		root, err := normalize(data)
		if err != nil {
			return nil, err
		}
		s.root = root
	}
	s.backend = backend
	s.logger.Printf("Record store loaded %d roots", len(data))
	return s, nil
}

func (s *TreeStore) Read(ctx context.Context, path string) (Snapshot, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrStoreClosed
	}
	return newSnapshot(segs, deepCopy(getNode(s.root, segs))), nil
}

func (s *TreeStore) Write(ctx context.Context, path string, value any) error {
	segs, err := SplitPath(path)
	if err != nil {
		return err
	}
	v, err := normalize(value)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		if _, ok := v.(map[string]any); v != nil && !ok {
			return fmt.Errorf("%w: root must be an object", ErrInvalidPath)
		}
	}
	return s.mutate(ctx, [][]string{segs}, func(root any) (any, error) {
		return setNode(root, segs, v), nil
	})
}

func (s *TreeStore) Merge(ctx context.Context, path string, fields map[string]any) error {
	return s.merge(ctx, path, fields, false)
}

func (s *TreeStore) MergeExisting(ctx context.Context, path string, fields map[string]any) error {
	return s.merge(ctx, path, fields, true)
}

func (s *TreeStore) merge(ctx context.Context, path string, fields map[string]any, mustExist bool) error {
	segs, err := SplitPath(path)
	if err != nil {
		return err
	}
	touched := make([][]string, 0, len(fields))
	for key := range fields {
		rel, err := SplitPath(key)
		if err != nil {
			return err
		}
		touched = append(touched, append(append([]string{}, segs...), rel...))
	}
	return s.mutate(ctx, touched, func(root any) (any, error) {
		if mustExist && getNode(root, segs) == nil {
			return root, fmt.Errorf("%w: %s", ErrNoValue, path)
		}
		return mergeNode(root, segs, fields)
	})
}

func (s *TreeStore) Delete(ctx context.Context, path string) error {
	return s.Write(ctx, path, nil)
}

// mutate applies fn to the tree, persists every touched root and notifies
// subscribers. A failed save restores the previous roots.
func (s *TreeStore) mutate(ctx context.Context, touched [][]string, fn func(root any) (any, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	roots := s.touchedRoots(touched)
	previous := make(map[string]any, len(roots))
	for _, r := range roots {
		previous[r] = deepCopy(getNode(s.root, []string{r}))
	}

	next, err := fn(s.root)
	if err != nil {
		return err
	}
	s.root = next

	if s.backend != nil {
		for _, r := range roots {
			if err := s.backend.Save(ctx, r, getNode(s.root, []string{r})); err != nil {
				for pr, pv := range previous {
					s.root = setNode(s.root, []string{pr}, pv)
				}
				return fmt.Errorf("failed to persist %s: %w", r, err)
			}
		}
	}

	s.notify(touched)
	return nil
}

func (s *TreeStore) touchedRoots(touched [][]string) []string {
	set := map[string]bool{}
	for _, segs := range touched {
		if len(segs) == 0 {
			if m, ok := s.root.(map[string]any); ok {
				for k := range m {
					set[k] = true
				}
			}
			for _, r := range []string{TasksRoot, UserTasksRoot, UsersRoot, EventsRoot} {
				set[r] = true
			}
			continue
		}
		set[segs[0]] = true
	}
	roots := make([]string, 0, len(set))
	for r := range set {
		roots = append(roots, r)
	}
	sort.Strings(roots)
	return roots
}

func (s *TreeStore) notify(touched [][]string) {
	for _, w := range s.watchers {
		for _, segs := range touched {
			if related(w.segs, segs) {
				w.offer(newSnapshot(w.segs, deepCopy(getNode(s.root, w.segs))))
				break
			}
		}
	}
}

func (s *TreeStore) Subscribe(path string, fn func(Snapshot)) (Unsubscribe, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	id := s.nextID
	s.nextID++
	w := newWatcher(segs, fn)
	s.watchers[id] = w
	w.offer(newSnapshot(segs, deepCopy(getNode(s.root, segs))))
	go w.run()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
		w.stop()
	}, nil
}

func (s *TreeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, w := range s.watchers {
		w.stop()
		delete(s.watchers, id)
	}
	if s.backend != nil {
		return s.backend.Close()
	}
	return nil
}

// watcher delivers snapshots to one subscriber, in order, on its own
// goroutine. A subscriber that falls behind only sees the latest value.
type watcher struct {
	segs []string
	fn   func(Snapshot)

	mu      sync.Mutex
	pending *Snapshot
	signal  chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newWatcher(segs []string, fn func(Snapshot)) *watcher {
	return &watcher{
		segs:   segs,
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (w *watcher) offer(s Snapshot) {
	w.mu.Lock()
	w.pending = &s
	w.mu.Unlock()
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case <-w.signal:
			w.mu.Lock()
			s := w.pending
			w.pending = nil
			w.mu.Unlock()
			if s == nil {
				continue
			}
			select {
			case <-w.done:
				return
			default:
			}
			w.fn(*s)
		}
	}
}

func (w *watcher) stop() {
	w.once.Do(func() { close(w.done) })
}
