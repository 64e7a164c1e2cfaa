package models

import (
	"math"

	"meowstore/pkg/ident"
)

// UserFixedSize is the width of the fixed part of an encoded user.
const UserFixedSize = ident.Size + 8 + 1 + 4*4

// User is a platform account with its aggregated project statistics.
type User struct {
	Name        ident.ID `json:"name"`
	ID          uint64   `json:"id"`
	ScratchTeam bool     `json:"scratch_team"`
	Status      string   `json:"status"`
	Bio         string   `json:"bio"`
	Loves       uint32   `json:"loves"`
	Favorites   uint32   `json:"favorites"`
	Views       uint32   `json:"views"`
	Remixes     uint32   `json:"remixes"`
}

// UserDoc is the searchable projection of a user. ID is the heap id.
type UserDoc struct {
	ID     uint64 `json:"id"`
	Status string `json:"status"`
	Bio    string `json:"bio"`
}

// Check validates the name and the variable fields against their length
// prefixes.
func (u *User) Check() error {
	if err := checkName("name", u.Name); err != nil {
		return err
	}
	if uint64(len(u.Status)) > math.MaxUint32 {
		return &FieldTooLongError{Field: "status", Len: len(u.Status), Max: math.MaxUint32}
	}
	if uint64(len(u.Bio)) > math.MaxUint32 {
		return &FieldTooLongError{Field: "bio", Len: len(u.Bio), Max: math.MaxUint32}
	}
	return nil
}

// MarshalBinary encodes the fixed part followed by status and bio.
func (u *User) MarshalBinary() ([]byte, error) {
	if err := u.Check(); err != nil {
		return nil, err
	}
	w := writer{b: make([]byte, 0, UserFixedSize+8+len(u.Status)+len(u.Bio))}
	w.id(u.Name)
	w.u64(u.ID)
	w.bool(u.ScratchTeam)
	w.u32(u.Loves)
	w.u32(u.Favorites)
	w.u32(u.Views)
	w.u32(u.Remixes)
	w.str32(u.Status)
	w.str32(u.Bio)
	return w.b, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (u *User) UnmarshalBinary(b []byte) error {
	r := reader{b: b}
	var v User
	v.Name = r.id("name", false)
	v.ID = r.u64()
	v.ScratchTeam = r.bool()
	v.Loves = r.u32()
	v.Favorites = r.u32()
	v.Views = r.u32()
	v.Remixes = r.u32()
	v.Status = r.str32()
	v.Bio = r.str32()
	if err := r.done(); err != nil {
		return err
	}
	*u = v
	return nil
}

// Doc returns the search projection stored under heap id.
func (u *User) Doc(heapID uint64) UserDoc {
	return UserDoc{ID: heapID, Status: u.Status, Bio: u.Bio}
}
