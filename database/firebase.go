package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"reflect"
	"sync"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"
)

// NewFirebaseApp initializes the Firebase Admin SDK from a service account.
func NewFirebaseApp(ctx context.Context, credentialsJSON, databaseURL string) (*firebase.App, error) {
	if credentialsJSON == "" {
		return nil, errors.New("firebase credentials not set")
	}
	cfg := &firebase.Config{DatabaseURL: databaseURL}
	app, err := firebase.NewApp(ctx, cfg, option.WithCredentialsJSON([]byte(credentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase: %w", err)
	}
	return app, nil
}

// FirebaseStore is a Store backed by Firebase Realtime Database. The Admin
// SDK has no listener API, so subscriptions poll their path.
type FirebaseStore struct {
	client   *db.Client
	interval time.Duration
	logger   *log.Logger

	pollers pollers
}

// pollers tracks the cancel funcs of live subscriptions.
type pollers struct {
	mu      sync.Mutex
	next    int
	cancels map[int]context.CancelFunc
	closed  bool
}

// add registers cancel and returns the release func for its handle. It
// reports false once the set is closed.
func (p *pollers) add(cancel context.CancelFunc) (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false
	}
	if p.cancels == nil {
		p.cancels = make(map[int]context.CancelFunc)
	}
	id := p.next
	p.next++
	p.cancels[id] = cancel
	return func() {
		p.mu.Lock()
		delete(p.cancels, id)
		p.mu.Unlock()
		cancel()
	}, true
}

func (p *pollers) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancels)
}

func (p *pollers) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, cancel := range p.cancels {
		cancel()
		delete(p.cancels, id)
	}
}

func NewFirebaseStore(ctx context.Context, app *firebase.App, interval time.Duration, logger *log.Logger) (*FirebaseStore, error) {
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open realtime database: %w", err)
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &FirebaseStore{client: client, interval: interval, logger: logger}, nil
}

func (s *FirebaseStore) ref(path string) (*db.Ref, []string, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, nil, err
	}
	return s.client.NewRef("/" + JoinPath(segs...)), segs, nil
}

func (s *FirebaseStore) Read(ctx context.Context, path string) (Snapshot, error) {
	ref, segs, err := s.ref(path)
	if err != nil {
		return Snapshot{}, err
	}
	var value any
	if err := ref.Get(ctx, &value); err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	value, err = normalize(value)
	if err != nil {
		return Snapshot{}, err
	}
	return newSnapshot(segs, value), nil
}

func (s *FirebaseStore) Write(ctx context.Context, path string, value any) error {
	ref, _, err := s.ref(path)
	if err != nil {
		return err
	}
	if value == nil {
		return s.Delete(ctx, path)
	}
	if err := ref.Set(ctx, value); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (s *FirebaseStore) Merge(ctx context.Context, path string, fields map[string]any) error {
	ref, _, err := s.ref(path)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	for key := range fields {
		if _, err := SplitPath(key); err != nil {
			return err
		}
	}
	if err := ref.Update(ctx, fields); err != nil {
		return fmt.Errorf("failed to merge %s: %w", path, err)
	}
	return nil
}

// MergeExisting runs the merge as a transaction so a concurrent delete of
// path is never undone.
func (s *FirebaseStore) MergeExisting(ctx context.Context, path string, fields map[string]any) error {
	ref, _, err := s.ref(path)
	if err != nil {
		return err
	}
	err = ref.Transaction(ctx, func(tn db.TransactionNode) (interface{}, error) {
		var current any
		if err := tn.Unmarshal(&current); err != nil {
			return nil, err
		}
		node, err := normalize(current)
		if err != nil {
			return nil, err
		}
		if node == nil {
			return nil, ErrNoValue
		}
		return mergeNode(node, nil, fields)
	})
	if err != nil {
		return fmt.Errorf("failed to merge %s: %w", path, err)
	}
	return nil
}

func (s *FirebaseStore) Delete(ctx context.Context, path string) error {
	ref, _, err := s.ref(path)
	if err != nil {
		return err
	}
	if err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

func (s *FirebaseStore) Subscribe(path string, fn func(Snapshot)) (Unsubscribe, error) {
	if _, _, err := s.ref(path); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	release, ok := s.pollers.add(cancel)
	if !ok {
		cancel()
		return nil, ErrStoreClosed
	}

	go s.poll(ctx, path, fn)
	return Unsubscribe(release), nil
}

func (s *FirebaseStore) poll(ctx context.Context, path string, fn func(Snapshot)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var last any
	first := true
	for {
		snap, err := s.Read(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Printf("Poll of %s failed: %v", path, err)
		} else if first || !reflect.DeepEqual(last, snap.Value) {
			first = false
			last = deepCopy(snap.Value)
			fn(snap)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *FirebaseStore) Close() error {
	s.pollers.closeAll()
	return nil
}
