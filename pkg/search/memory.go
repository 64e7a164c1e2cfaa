package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Memory is an in-process mirror with naive term matching. A document
// matches when every query term occurs in one of its text fields.
type Memory struct {
	mu      sync.RWMutex
	indexes map[string]map[uint64]string
}

func NewMemory() *Memory {
	return &Memory{indexes: make(map[string]map[uint64]string)}
}

func (m *Memory) AddDocuments(ctx context.Context, index string, docs any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("memory mirror: encode docs: %w", err)
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("memory mirror: docs must be an array of objects: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexes[index]
	if idx == nil {
		idx = make(map[uint64]string)
		m.indexes[index] = idx
	}
	for _, item := range items {
		id, ok := item["id"].(float64)
		if !ok {
			return fmt.Errorf("memory mirror: document without numeric id")
		}
		var text []string
		for k, v := range item {
			if s, ok := v.(string); ok && k != "id" {
				text = append(text, strings.ToLower(s))
			}
		}
		idx[uint64(id)] = strings.Join(text, "\n")
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, index, query string) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	m.mu.RLock()
	defer m.mu.RUnlock()
	type hit struct {
		id    uint64
		score int
	}
	var hits []hit
	for id, text := range m.indexes[index] {
		score := 0
		for _, t := range terms {
			n := strings.Count(text, t)
			if n == 0 {
				score = -1
				break
			}
			score += n
		}
		if score >= 0 {
			hits = append(hits, hit{id: id, score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	ids := make([]uint64, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids, nil
}

// Len returns the number of documents in index.
func (m *Memory) Len(index string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.indexes[index])
}
