package db

import (
	"context"

	"meowstore/pkg/ident"
	"meowstore/pkg/models"
)

// AddUser stores u unless a user with the same name exists. An existing
// user is left untouched and AlreadyInState is returned.
func (s *Store) AddUser(ctx context.Context, key *Key, u *models.User) (out Outcome, err error) {
	defer func() { s.metrics.observe(OpAddUser, err) }()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if err := s.ensureAllowed(OpAddUser, PermWrite, key); err != nil {
		return 0, err
	}
	rec, err := u.MarshalBinary()
	if err != nil {
		return 0, badInput(err)
	}
	return s.addRecord(ctx, OpAddUser, &s.users, u.Name[:], rec, func(heapID uint64) any {
		return u.Doc(heapID)
	})
}

// GetUser returns the user stored under name.
func (s *Store) GetUser(key *Key, name ident.ID) (u *models.User, err error) {
	defer func() { s.metrics.observe(OpGetUser, err) }()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.ensureAllowed(OpGetUser, PermRead, key); err != nil {
		return nil, err
	}
	rec, err := s.getRecord(OpGetUser, &s.users, name[:])
	if err != nil {
		return nil, err
	}
	u = new(models.User)
	if err := u.UnmarshalBinary(rec); err != nil {
		s.report(OpGetUser, SubsystemCodec, err)
		return nil, ErrInternal
	}
	return u, nil
}

// SearchUsers returns users whose status or bio match query, best first.
func (s *Store) SearchUsers(ctx context.Context, key *Key, query string) (users []models.User, err error) {
	defer func() { s.metrics.observe(OpSearchUsers, err) }()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.ensureAllowed(OpSearchUsers, PermRead, key); err != nil {
		return nil, err
	}
	recs, err := s.searchRecords(ctx, OpSearchUsers, &s.users, query)
	if err != nil {
		return nil, err
	}
	users = make([]models.User, len(recs))
	for i, rec := range recs {
		if err := users[i].UnmarshalBinary(rec); err != nil {
			s.report(OpSearchUsers, SubsystemCodec, err)
			return nil, ErrInternal
		}
	}
	return users, nil
}

// RemoveUser deletes the user stored under name. The mirror document is
// left in place.
func (s *Store) RemoveUser(key *Key, name ident.ID) (out Outcome, err error) {
	defer func() { s.metrics.observe(OpRemoveUser, err) }()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if err := s.ensureAllowed(OpRemoveUser, PermRemove, key); err != nil {
		return 0, err
	}
	return s.removeRecord(OpRemoveUser, &s.users, name[:])
}
