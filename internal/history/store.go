// Package history provides the append-only question/solution record
// store backed by a Firestore collection. Records are immutable once
// written and carry server-assigned timestamps so ordering stays
// authoritative across sessions and client clock skew.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ErrStoreUnavailable indicates an operation was attempted against a
// store that never initialized (no credentials at startup). Callers
// surface it per-operation; it is not fatal to the process.
var ErrStoreUnavailable = errors.New("history store unavailable")

// ErrEmptyField indicates an append with an empty question or solution.
// Nothing is written.
var ErrEmptyField = errors.New("question or solution is empty")

// Record is one persisted question/solution pair. Records have no
// update or delete path; duplicate questions produce separate records.
type Record struct {
	Question  string    `firestore:"question"`
	Solution  string    `firestore:"solution"`
	Timestamp time.Time `firestore:"timestamp"`
}

// TimestampString returns the timestamp normalized to sortable RFC 3339
// UTC text. Display code only ever sees timestamps through this form.
func (r Record) TimestampString() string {
	return r.Timestamp.UTC().Format(time.RFC3339)
}

// TimestampKey returns the date portion (first 10 characters) of the
// normalized timestamp, used to key collapsed history entries.
func (r Record) TimestampKey() string {
	s := r.TimestampString()
	if len(s) > 10 {
		s = s[:10]
	}
	return s
}

// backend is the raw storage surface behind the cache. Tests substitute
// a fake; production uses Firestore.
type backend interface {
	add(ctx context.Context, question, solution string) error
	list(ctx context.Context) ([]Record, error)
	close() error
}

// Store is the history store: one Firestore-backed collection plus a
// process-wide read cache with a fixed freshness window. The cache is
// shared across sessions with last-writer-wins invalidation; the only
// locking needed is the cache mutex, since the underlying store gives
// atomic single-document writes.
type Store struct {
	backend backend
	ttl     time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	cached    []Record
	fetchedAt time.Time

	nowFunc func() time.Time
}

// NewStore creates a Firestore-backed history store writing to the
// given collection. The credential option comes from
// config.ResolveCredentials.
func NewStore(ctx context.Context, projectID string, creds option.ClientOption, collection string, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if collection == "" {
		collection = "q_and_a"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	client, err := firestore.NewClient(ctx, projectID, creds)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}

	logger.Info("history store initialized", "project", projectID, "collection", collection)

	return &Store{
		backend: &firestoreBackend{client: client, collection: collection},
		ttl:     ttl,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// NewDisabledStore creates a store with no backing client. Every
// operation reports ErrStoreUnavailable; the rest of the app keeps
// working without history.
func NewDisabledStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		ttl:     5 * time.Minute,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Available reports whether the store initialized with a real backend.
func (s *Store) Available() bool {
	return s.backend != nil
}

// Append writes one immutable record. The timestamp is assigned by the
// server, never the client. Both fields must be non-empty; violations
// return distinct errors so the UI can show the right warning.
func (s *Store) Append(ctx context.Context, question, solution string) error {
	if !s.Available() {
		return ErrStoreUnavailable
	}
	if question == "" || solution == "" {
		return ErrEmptyField
	}

	if err := s.backend.add(ctx, question, solution); err != nil {
		return fmt.Errorf("append record: %w", err)
	}

	s.logger.Debug("record appended", "question_len", len(question), "solution_len", len(solution))
	return nil
}

// ListAll returns every record ordered newest-first. Results are cached
// for the freshness window; call Invalidate after a successful Append
// so the new record shows up without waiting for expiry.
func (s *Store) ListAll(ctx context.Context) ([]Record, error) {
	if !s.Available() {
		return nil, ErrStoreUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// fetchedAt, not the slice, marks freshness: an empty history is
	// cached the same as a populated one.
	if !s.fetchedAt.IsZero() && s.nowFunc().Sub(s.fetchedAt) < s.ttl {
		return s.cached, nil
	}

	records, err := s.backend.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	s.cached = records
	s.fetchedAt = s.nowFunc()
	s.logger.Debug("history fetched", "count", len(records))
	return records, nil
}

// Invalidate drops the read cache for all sessions. The next ListAll
// goes back to the backend.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	s.fetchedAt = time.Time{}
}

// Close releases the backing client.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.close()
}

// firestoreBackend is the production backend over one collection.
type firestoreBackend struct {
	client     *firestore.Client
	collection string
}

func (b *firestoreBackend) add(ctx context.Context, question, solution string) error {
	_, err := b.client.Collection(b.collection).NewDoc().Create(ctx, map[string]any{
		"question":  question,
		"solution":  solution,
		"timestamp": firestore.ServerTimestamp,
	})
	return err
}

func (b *firestoreBackend) list(ctx context.Context) ([]Record, error) {
	iter := b.client.Collection(b.collection).
		OrderBy("timestamp", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var records []Record
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}

		var rec Record
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", doc.Ref.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (b *firestoreBackend) close() error {
	return b.client.Close()
}
