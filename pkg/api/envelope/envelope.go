// Package envelope encodes request and response bodies in the two wire
// formats selected by the route: bin (TLV records) and json.
//
// A bin response is a single O record holding the payload or a single E
// record holding a K (kind) and an R (reason) record. Entities travel as
// U (user) or P (project) records; a boolean travels as a one byte B record.
// A json response is {"ok": payload} or {"err": {"kind": ..., "reason": ...}}.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/learn-decentralized-systems/toytlv"

	"meowstore/pkg/models"
)

// Format selects a wire encoding.
type Format uint8

const (
	Bin Format = iota + 1
	JSON
)

// Parse maps a path segment to a Format.
func Parse(s string) (Format, bool) {
	switch s {
	case "bin":
		return Bin, true
	case "json":
		return JSON, true
	}
	return 0, false
}

func (f Format) String() string {
	switch f {
	case Bin:
		return "bin"
	case JSON:
		return "json"
	}
	return "unknown"
}

// ContentType is the response content type for f.
func (f Format) ContentType() string {
	if f == JSON {
		return "application/json"
	}
	return "application/octet-stream"
}

const (
	litOK      = 'O'
	litErr     = 'E'
	litKind    = 'K'
	litReason  = 'R'
	litUser    = 'U'
	litProject = 'P'
	litBool    = 'B'
)

// Fault is the error half of a response.
type Fault struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

func (f *Fault) Error() string {
	if f.Reason == "" {
		return f.Kind
	}
	return f.Kind + ": " + f.Reason
}

// DecodeError reports a body that could not be decoded.
type DecodeError struct {
	Format Format
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var (
	errTrailing  = errors.New("trailing bytes after record")
	errMalformed = errors.New("malformed record")
)

type entity interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}

func entityLit(v any) (byte, error) {
	switch v.(type) {
	case *models.User:
		return litUser, nil
	case *models.Project:
		return litProject, nil
	}
	return 0, fmt.Errorf("envelope: unsupported entity %T", v)
}

// EncodeEntity encodes a request body carrying v.
func EncodeEntity(f Format, v entity) ([]byte, error) {
	if f == JSON {
		return json.Marshal(v)
	}
	lit, err := entityLit(v)
	if err != nil {
		return nil, err
	}
	b, err := v.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return toytlv.Record(lit, b), nil
}

// DecodeEntity decodes a request body into v. Every failure is a
// *DecodeError.
func DecodeEntity(f Format, body []byte, v entity) error {
	if f == JSON {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return &DecodeError{Format: f, Err: err}
		}
		if dec.More() {
			return &DecodeError{Format: f, Err: errTrailing}
		}
		return nil
	}
	lit, err := entityLit(v)
	if err != nil {
		return &DecodeError{Format: f, Err: err}
	}
	rec, rest, err := toytlv.TakeWary(lit, body)
	if err != nil {
		return &DecodeError{Format: f, Err: err}
	}
	if rec == nil {
		return &DecodeError{Format: f, Err: errMalformed}
	}
	if len(rest) > 0 {
		return &DecodeError{Format: f, Err: errTrailing}
	}
	if err := v.UnmarshalBinary(rec); err != nil {
		return &DecodeError{Format: f, Err: err}
	}
	return nil
}

// AppendOK appends the success envelope for v to dst.
func AppendOK(dst []byte, f Format, v any) ([]byte, error) {
	if f == JSON {
		b, err := json.Marshal(struct {
			OK any `json:"ok"`
		}{v})
		if err != nil {
			return dst, err
		}
		return append(dst, b...), nil
	}
	payload, err := binPayload(v)
	if err != nil {
		return dst, err
	}
	return toytlv.Append(dst, litOK, payload...), nil
}

// AppendFault appends the error envelope for fault to dst.
func AppendFault(dst []byte, f Format, fault Fault) []byte {
	if f == JSON {
		b, _ := json.Marshal(struct {
			Err Fault `json:"err"`
		}{fault})
		return append(dst, b...)
	}
	return toytlv.Append(dst, litErr,
		toytlv.Record(litKind, []byte(fault.Kind)),
		toytlv.Record(litReason, []byte(fault.Reason)),
	)
}

func binPayload(v any) ([][]byte, error) {
	switch x := v.(type) {
	case bool:
		b := byte(0)
		if x {
			b = 1
		}
		return [][]byte{toytlv.Record(litBool, []byte{b})}, nil
	case *models.User:
		return records(litUser, x)
	case *models.Project:
		return records(litProject, x)
	case []models.User:
		out := make([][]byte, 0, len(x))
		for i := range x {
			r, err := records(litUser, &x[i])
			if err != nil {
				return nil, err
			}
			out = append(out, r...)
		}
		return out, nil
	case []models.Project:
		out := make([][]byte, 0, len(x))
		for i := range x {
			r, err := records(litProject, &x[i])
			if err != nil {
				return nil, err
			}
			out = append(out, r...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("envelope: unsupported payload %T", v)
}

func records(lit byte, v entity) ([][]byte, error) {
	b, err := v.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return [][]byte{toytlv.Record(lit, b)}, nil
}

// DecodeResponse decodes a response envelope into out, which must be a
// *bool, *models.User, *models.Project, *[]models.User or *[]models.Project.
// An error envelope is returned as a *Fault.
func DecodeResponse(f Format, body []byte, out any) error {
	if f == JSON {
		var env struct {
			OK  json.RawMessage `json:"ok"`
			Err *Fault          `json:"err"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return &DecodeError{Format: f, Err: err}
		}
		if env.Err != nil {
			return env.Err
		}
		if err := json.Unmarshal(env.OK, out); err != nil {
			return &DecodeError{Format: f, Err: err}
		}
		return nil
	}

	lit, payload, rest, err := toytlv.TakeAnyWary(body)
	if err != nil {
		return &DecodeError{Format: f, Err: err}
	}
	if payload == nil {
		return &DecodeError{Format: f, Err: errMalformed}
	}
	if len(rest) > 0 {
		return &DecodeError{Format: f, Err: errTrailing}
	}
	switch lit {
	case litOK:
	case litErr:
		kind, tail := toytlv.Take(litKind, payload)
		reason, _ := toytlv.Take(litReason, tail)
		if kind == nil {
			return &DecodeError{Format: f, Err: errMalformed}
		}
		return &Fault{Kind: string(kind), Reason: string(reason)}
	default:
		return &DecodeError{Format: f, Err: fmt.Errorf("unexpected record %q", lit)}
	}
	if err := decodePayload(payload, out); err != nil {
		return &DecodeError{Format: f, Err: err}
	}
	return nil
}

func decodePayload(payload []byte, out any) error {
	switch x := out.(type) {
	case *bool:
		b, rest, err := toytlv.TakeWary(litBool, payload)
		if err != nil {
			return err
		}
		if len(b) != 1 || len(rest) != 0 {
			return errMalformed
		}
		*x = b[0] != 0
		return nil
	case *models.User:
		return single(litUser, payload, x)
	case *models.Project:
		return single(litProject, payload, x)
	case *[]models.User:
		*x = (*x)[:0]
		for len(payload) > 0 {
			var u models.User
			rest, err := next(litUser, payload, &u)
			if err != nil {
				return err
			}
			*x = append(*x, u)
			payload = rest
		}
		return nil
	case *[]models.Project:
		*x = (*x)[:0]
		for len(payload) > 0 {
			var p models.Project
			rest, err := next(litProject, payload, &p)
			if err != nil {
				return err
			}
			*x = append(*x, p)
			payload = rest
		}
		return nil
	}
	return fmt.Errorf("envelope: unsupported target %T", out)
}

func single(lit byte, payload []byte, v entity) error {
	rest, err := next(lit, payload, v)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return errTrailing
	}
	return nil
}

func next(lit byte, payload []byte, v entity) ([]byte, error) {
	rec, rest, err := toytlv.TakeWary(lit, payload)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errMalformed
	}
	return rest, v.UnmarshalBinary(rec)
}
