package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"MarketPull/internal/domain/models"
	domrepo "MarketPull/internal/domain/repository"
	"MarketPull/pkg/logger"
)

// StateVersion is the schema version written by every state backend.
const StateVersion = 1

type stateDocument struct {
	Version int                     `json:"version"`
	Queries []*models.TrackedQuery  `json:"queries"`
	Targets []*models.AuctionTarget `json:"targets"`
}

// FileStore keeps the whole state in one JSON document, rewritten
// atomically after every mutation.
type FileStore struct {
	mu      sync.Mutex
	path    string
	queries map[string]*models.TrackedQuery
	targets map[string]*models.AuctionTarget
	log     *logger.Logger
}

// NewFileStore loads path if it exists.
func NewFileStore(path string, log *logger.Logger) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		queries: make(map[string]*models.TrackedQuery),
		targets: make(map[string]*models.AuctionTarget),
		log:     log,
	}
	if err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) read() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state %s: %w", s.path, err)
	}
	if len(b) == 0 {
		return nil
	}
	var doc stateDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("decode state %s: %w", s.path, err)
	}
	if doc.Version > StateVersion {
		return fmt.Errorf("state %s has version %d, newest supported is %d", s.path, doc.Version, StateVersion)
	}
	for _, q := range doc.Queries {
		if q != nil && q.ThreadID != "" {
			s.queries[q.ThreadID] = q
		}
	}
	for _, t := range doc.Targets {
		if t != nil && t.ListingID != "" {
			s.targets[t.ListingID] = t
		}
	}
	s.log.Info("state file loaded",
		logger.String("path", s.path),
		logger.Int("queries", len(s.queries)),
		logger.Int("targets", len(s.targets)),
	)
	return nil
}

// flush must be called with s.mu held.
func (s *FileStore) flush() error {
	doc := stateDocument{
		Version: StateVersion,
		Queries: make([]*models.TrackedQuery, 0, len(s.queries)),
		Targets: make([]*models.AuctionTarget, 0, len(s.targets)),
	}
	for _, q := range s.queries {
		doc.Queries = append(doc.Queries, q)
	}
	for _, t := range s.targets {
		doc.Targets = append(doc.Targets, t)
	}
	sort.Slice(doc.Queries, func(i, j int) bool { return doc.Queries[i].ThreadID < doc.Queries[j].ThreadID })
	sort.Slice(doc.Targets, func(i, j int) bool { return doc.Targets[i].ListingID < doc.Targets[j].ListingID })

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

func (s *FileStore) LoadQueries(context.Context) ([]*models.TrackedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.TrackedQuery, 0, len(s.queries))
	for _, q := range s.queries {
		out = append(out, q.Clone())
	}
	return out, nil
}

func (s *FileStore) SaveQuery(_ context.Context, q *models.TrackedQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.queries[q.ThreadID]
	s.queries[q.ThreadID] = q.Clone()
	if err := s.flush(); err != nil {
		if had {
			s.queries[q.ThreadID] = prev
		} else {
			delete(s.queries, q.ThreadID)
		}
		return err
	}
	return nil
}

func (s *FileStore) DeleteQuery(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.queries[threadID]
	if !ok {
		return nil
	}
	delete(s.queries, threadID)
	if err := s.flush(); err != nil {
		s.queries[threadID] = prev
		return err
	}
	return nil
}

func (s *FileStore) LoadTargets(context.Context) ([]*models.AuctionTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.AuctionTarget, 0, len(s.targets))
	for _, t := range s.targets {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (s *FileStore) SaveTarget(_ context.Context, t *models.AuctionTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.targets[t.ListingID]
	c := *t
	s.targets[t.ListingID] = &c
	if err := s.flush(); err != nil {
		if had {
			s.targets[t.ListingID] = prev
		} else {
			delete(s.targets, t.ListingID)
		}
		return err
	}
	return nil
}

func (s *FileStore) DeleteTarget(_ context.Context, listingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.targets[listingID]
	if !ok {
		return nil
	}
	delete(s.targets, listingID)
	if err := s.flush(); err != nil {
		s.targets[listingID] = prev
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

var _ domrepo.StateStore = (*FileStore)(nil)
