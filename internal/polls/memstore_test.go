package polls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/pkg/apperr"
)

// memStore is an in-memory Store; the mutex plays the role of the row locks.
type memStore struct {
	mu    sync.Mutex
	polls map[uuid.UUID]*models.Poll
	seq   int
}

func newMemStore() *memStore {
	return &memStore{polls: make(map[uuid.UUID]*models.Poll)}
}

func (s *memStore) Create(_ context.Context, p *models.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	p.ID = uuid.New()
	// distinct, increasing creation times keep List ordering deterministic
	p.CreatedAt = time.Date(2024, 1, 1, 0, 0, s.seq, 0, time.UTC)
	s.polls[p.ID] = p.Clone()
	return nil
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[id]
	if !ok {
		return nil, apperr.NotFoundf("poll not found")
	}
	return p.Clone(), nil
}

func (s *memStore) List(_ context.Context, f Filter) ([]models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := []models.Poll{}
	for _, p := range s.polls {
		if f.InstructorID != "" && p.InstructorID != f.InstructorID {
			continue
		}
		if f.LectureCode != "" && p.LectureCode != f.LectureCode {
			continue
		}
		list = append(list, *p.Clone())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (s *memStore) Current(_ context.Context, code string) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur *models.Poll
	for _, p := range s.polls {
		if p.LectureCode != code || !p.IsActive {
			continue
		}
		if cur == nil || p.ActivatedAt.After(*cur.ActivatedAt) {
			cur = p
		}
	}
	if cur == nil {
		return nil, nil
	}
	return cur.Clone(), nil
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.polls[id]
	delete(s.polls, id)
	return ok, nil
}

func (s *memStore) Transition(_ context.Context, id uuid.UUID, fn func(p *models.Poll, lecture []models.Poll) error) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.polls[id]
	if !ok {
		return nil, apperr.NotFoundf("poll not found")
	}
	p := stored.Clone()
	var lecture []models.Poll
	if p.LectureCode != "" {
		for _, other := range s.polls {
			if other.ID != id && other.LectureCode == p.LectureCode {
				lecture = append(lecture, *other.Clone())
			}
		}
	}
	if err := fn(p, lecture); err != nil {
		return nil, err
	}
	s.polls[id] = p.Clone()
	return p, nil
}
