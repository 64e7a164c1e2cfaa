package db

import (
	"context"
	"encoding/binary"

	"meowstore/pkg/models"
)

func projectKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}

// AddProject stores p unless a project with the same id exists. Text fields
// over their length capacity are rejected before anything is written.
func (s *Store) AddProject(ctx context.Context, key *Key, p *models.Project) (out Outcome, err error) {
	defer func() { s.metrics.observe(OpAddProject, err) }()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if err := s.ensureAllowed(OpAddProject, PermWrite, key); err != nil {
		return 0, err
	}
	rec, err := p.MarshalBinary()
	if err != nil {
		return 0, badInput(err)
	}
	return s.addRecord(ctx, OpAddProject, &s.projects, projectKey(p.ID), rec, func(heapID uint64) any {
		return p.Doc(heapID)
	})
}

// GetProject returns the project with the given platform id.
func (s *Store) GetProject(key *Key, id uint64) (p *models.Project, err error) {
	defer func() { s.metrics.observe(OpGetProject, err) }()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.ensureAllowed(OpGetProject, PermRead, key); err != nil {
		return nil, err
	}
	rec, err := s.getRecord(OpGetProject, &s.projects, projectKey(id))
	if err != nil {
		return nil, err
	}
	p = new(models.Project)
	if err := p.UnmarshalBinary(rec); err != nil {
		s.report(OpGetProject, SubsystemCodec, err)
		return nil, ErrInternal
	}
	return p, nil
}

// SearchProjects returns projects whose text fields match query.
func (s *Store) SearchProjects(ctx context.Context, key *Key, query string) (projects []models.Project, err error) {
	defer func() { s.metrics.observe(OpSearchProjects, err) }()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.ensureAllowed(OpSearchProjects, PermRead, key); err != nil {
		return nil, err
	}
	recs, err := s.searchRecords(ctx, OpSearchProjects, &s.projects, query)
	if err != nil {
		return nil, err
	}
	projects = make([]models.Project, len(recs))
	for i, rec := range recs {
		if err := projects[i].UnmarshalBinary(rec); err != nil {
			s.report(OpSearchProjects, SubsystemCodec, err)
			return nil, ErrInternal
		}
	}
	return projects, nil
}

// RemoveProject deletes the project with the given id.
func (s *Store) RemoveProject(key *Key, id uint64) (out Outcome, err error) {
	defer func() { s.metrics.observe(OpRemoveProject, err) }()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if err := s.ensureAllowed(OpRemoveProject, PermRemove, key); err != nil {
		return 0, err
	}
	return s.removeRecord(OpRemoveProject, &s.projects, projectKey(id))
}
