package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Buzzline/internal/domain"
)

// LocalStore keeps rooms, projects and usage in process memory.
// It backs development mode and tests.
type LocalStore struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]*domain.Room
	projects map[string]*domain.Project
	plans    map[domain.UserID]domain.PlanName
	usage    []usageEntry
}

type usageEntry struct {
	user domain.UserID
	rec  domain.UsageRecord
}

func NewLocalStore() *LocalStore {
	return &LocalStore{
		rooms:    make(map[domain.RoomID]*domain.Room),
		projects: make(map[string]*domain.Project),
		plans:    make(map[domain.UserID]domain.PlanName),
	}
}

func (s *LocalStore) Create(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return fmt.Errorf("localstore: room %s already exists", room.ID)
	}
	s.rooms[room.ID] = room.Clone()
	return nil
}

func (s *LocalStore) Get(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *LocalStore) Update(_ context.Context, id domain.RoomID, fn func(*domain.Room) error) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := room.Clone()
	if err := fn(cp); err != nil {
		return nil, err
	}
	s.rooms[id] = cp
	return cp.Clone(), nil
}

// PutProject registers a project and the plan of its owner.
func (s *LocalStore) PutProject(p *domain.Project, plan domain.PlanName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.projects[p.APIKey] = &cp
	if plan != "" {
		s.plans[p.UserID] = plan
	}
}

func (s *LocalStore) ByAPIKey(_ context.Context, apiKey string) (*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[apiKey]
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	cp := *p
	return &cp, nil
}

func (s *LocalStore) PlanOf(_ context.Context, user domain.UserID) (domain.PlanName, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if plan, ok := s.plans[user]; ok {
		return plan, nil
	}
	return domain.PlanFree, nil
}

func (s *LocalStore) MinutesUsedSince(_ context.Context, user domain.UserID, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var seconds int64
	for _, e := range s.usage {
		if e.user == user && !e.rec.CreatedAt.Before(since) {
			seconds += e.rec.DurationSeconds
		}
	}
	return int((seconds + 59) / 60), nil
}

func (s *LocalStore) RecordUsage(_ context.Context, rec domain.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var owner domain.UserID
	for _, p := range s.projects {
		if p.ID == rec.ProjectID {
			owner = p.UserID
			break
		}
	}
	s.usage = append(s.usage, usageEntry{user: owner, rec: rec})
	return nil
}
