package db

import (
	"context"
	"errors"

	"meowstore/pkg/models"
	"meowstore/pkg/store/engine"
)

// addRecord inserts rec under key unless key is already indexed. The caller
// holds the exclusive lock and has already checked auth and encoded rec.
func (s *Store) addRecord(ctx context.Context, op Op, c *collection, key, rec []byte, doc func(heapID uint64) any) (Outcome, error) {
	look, err := c.index.Search(key)
	if err != nil {
		s.report(op, SubsystemIndex, err)
		return 0, ErrInternal
	}
	if look.Found {
		return AlreadyInState, nil
	}

	id, err := c.heap.Insert(rec)
	if err != nil {
		s.report(op, SubsystemHeap, err)
		return 0, ErrInternal
	}
	// a failure from here on leaves the heap record orphaned
	if err := c.index.InsertAt(look.Cursor, id); err != nil {
		s.report(op, SubsystemIndex, err)
		return 0, ErrInternal
	}
	if err := s.mirror.AddDocuments(ctx, c.searchIndex, []any{doc(id)}); err != nil {
		s.report(op, SubsystemMirror, err)
		return 0, ErrInternal
	}
	return Mutated, nil
}

// getRecord resolves key through the index and returns the heap record.
func (s *Store) getRecord(op Op, c *collection, key []byte) ([]byte, error) {
	id, err := c.index.Get(key)
	if err != nil {
		if engine.IsNotFound(err) {
			return nil, ErrNotFound
		}
		s.report(op, SubsystemIndex, err)
		return nil, ErrInternal
	}
	rec, err := c.heap.Get(id)
	if err != nil {
		if engine.IsNotFound(err) {
			return nil, ErrNotFound
		}
		s.report(op, SubsystemHeap, err)
		return nil, ErrInternal
	}
	return rec, nil
}

// searchRecords queries the mirror and loads each hit from the heap. Hits
// whose heap record is gone are skipped, since removals are not mirrored.
func (s *Store) searchRecords(ctx context.Context, op Op, c *collection, query string) ([][]byte, error) {
	ids, err := s.mirror.Search(ctx, c.searchIndex, query)
	if err != nil {
		s.report(op, SubsystemMirror, err)
		return nil, ErrInternal
	}
	recs := make([][]byte, 0, len(ids))
	for _, id := range ids {
		rec, err := c.heap.Get(id)
		if err != nil {
			if engine.IsNotFound(err) {
				continue
			}
			s.report(op, SubsystemHeap, err)
			return nil, ErrInternal
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// removeRecord deletes the heap record and index entry for key. The caller
// holds the exclusive lock.
func (s *Store) removeRecord(op Op, c *collection, key []byte) (Outcome, error) {
	look, err := c.index.Search(key)
	if err != nil {
		s.report(op, SubsystemIndex, err)
		return 0, ErrInternal
	}
	if !look.Found {
		return AlreadyInState, nil
	}
	if err := c.heap.Remove(look.Value); err != nil {
		s.report(op, SubsystemHeap, err)
		return 0, ErrInternal
	}
	if err := c.index.RemoveAt(look.Cursor); err != nil {
		s.report(op, SubsystemIndex, err)
		return 0, ErrInternal
	}
	return Mutated, nil
}

func badInput(err error) error {
	var (
		tl *models.FieldTooLongError
		ne *models.NameError
	)
	if errors.As(err, &tl) {
		return &BadInputError{Field: tl.Field, Err: err}
	}
	if errors.As(err, &ne) {
		return &BadInputError{Field: ne.Field, Err: err}
	}
	return &BadInputError{Field: "record", Err: err}
}
