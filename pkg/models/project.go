package models

import (
	"math"

	"meowstore/pkg/ident"
)

// ProjectFixedSize is the width of the fixed part of an encoded project.
const ProjectFixedSize = 8 + 1 + 8 + ident.Size + 3*8

// MaxProjectText is the capacity of a project text field's length prefix.
const MaxProjectText = math.MaxUint16

// Project flag bits.
const (
	FlagPublic            byte = 1 << 0
	FlagCommentsAllowed   byte = 1 << 1
	FlagIsPublished       byte = 1 << 2
	FlagAuthorScratchTeam byte = 1 << 3
)

// Project is a shared platform project.
type Project struct {
	ID                uint64   `json:"id"`
	Public            bool     `json:"public"`
	CommentsAllowed   bool     `json:"comments_allowed"`
	IsPublished       bool     `json:"is_published"`
	AuthorID          uint64   `json:"author_id"`
	AuthorName        ident.ID `json:"author_name"`
	AuthorScratchTeam bool     `json:"author_scratch_team"`
	Created           int64    `json:"created"`
	Modified          int64    `json:"modified"`
	Shared            int64    `json:"shared"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Instructions      string   `json:"instructions"`
}

// ProjectDoc is the searchable projection of a project. ID is the heap id.
type ProjectDoc struct {
	ID           uint64 `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Instructions string `json:"instructions"`
}

// Flags packs the boolean attributes into one byte.
func (p *Project) Flags() byte {
	var f byte
	if p.Public {
		f |= FlagPublic
	}
	if p.CommentsAllowed {
		f |= FlagCommentsAllowed
	}
	if p.IsPublished {
		f |= FlagIsPublished
	}
	if p.AuthorScratchTeam {
		f |= FlagAuthorScratchTeam
	}
	return f
}

func (p *Project) setFlags(f byte) {
	p.Public = f&FlagPublic != 0
	p.CommentsAllowed = f&FlagCommentsAllowed != 0
	p.IsPublished = f&FlagIsPublished != 0
	p.AuthorScratchTeam = f&FlagAuthorScratchTeam != 0
}

// Check rejects text fields longer than MaxProjectText bytes and an author
// name that is set but not a valid packed name.
func (p *Project) Check() error {
	for _, f := range []struct {
		name string
		v    string
	}{
		{"title", p.Title},
		{"description", p.Description},
		{"instructions", p.Instructions},
	} {
		if len(f.v) > MaxProjectText {
			return &FieldTooLongError{Field: f.name, Len: len(f.v), Max: MaxProjectText}
		}
	}
	return checkOptionalName("author_name", p.AuthorName)
}

// MarshalBinary encodes the fixed part followed by the three text fields.
func (p *Project) MarshalBinary() ([]byte, error) {
	if err := p.Check(); err != nil {
		return nil, err
	}
	w := writer{b: make([]byte, 0, ProjectFixedSize+6+len(p.Title)+len(p.Description)+len(p.Instructions))}
	w.u64(p.ID)
	w.u8(p.Flags())
	w.u64(p.AuthorID)
	w.id(p.AuthorName)
	w.i64(p.Created)
	w.i64(p.Modified)
	w.i64(p.Shared)
	w.str16(p.Title)
	w.str16(p.Description)
	w.str16(p.Instructions)
	return w.b, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (p *Project) UnmarshalBinary(b []byte) error {
	r := reader{b: b}
	var v Project
	v.ID = r.u64()
	v.setFlags(r.u8())
	v.AuthorID = r.u64()
	v.AuthorName = r.id("author_name", true)
	v.Created = r.i64()
	v.Modified = r.i64()
	v.Shared = r.i64()
	v.Title = r.str16()
	v.Description = r.str16()
	v.Instructions = r.str16()
	if err := r.done(); err != nil {
		return err
	}
	*p = v
	return nil
}

// Doc returns the search projection stored under heap id.
func (p *Project) Doc(heapID uint64) ProjectDoc {
	return ProjectDoc{ID: heapID, Title: p.Title, Description: p.Description, Instructions: p.Instructions}
}
