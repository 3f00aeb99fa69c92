package backend

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
)

// Direction controls whether a field travels to or from the remote service
type Direction int

const (
	// Both fields are sent in push payloads and read from pulls
	Both Direction = iota
	// PullOnly fields are assigned by the server and never sent
	PullOnly
	// LocalOnly fields never leave the device
	LocalOnly
)

// Field binds one local column to a struct field and its remote JSON key.
// A field table is built per record, so the pointer always targets that record.
type Field struct {
	Column    string
	Remote    string
	Nested    string // object key that may carry the reference instead of Remote
	Direction Direction
	ptr       any
}

// String declares a text column
func String(column, remote string, p *string) Field {
	return Field{Column: column, Remote: remote, ptr: p}
}

// Float declares a real column
func Float(column, remote string, p *float64) Field {
	return Field{Column: column, Remote: remote, ptr: p}
}

// Int declares an integer column
func Int(column, remote string, p *int64) Field {
	return Field{Column: column, Remote: remote, ptr: p}
}

// Bool declares a 0/1 integer column
func Bool(column, remote string, p *bool) Field {
	return Field{Column: column, Remote: remote, ptr: p}
}

// Ref declares a reference column. Pulls accept either the plain id under
// remote or an object under nested whose _id (or id) is the reference.
func Ref(column, remote, nested string, p *string) Field {
	return Field{Column: column, Remote: remote, Nested: nested, ptr: p}
}

func opField(p *SyncOp) Field {
	return Field{Column: "sync_op", Direction: LocalOnly, ptr: p}
}

// PullOnly marks the field as server-assigned
func (f Field) PullOnly() Field {
	f.Direction = PullOnly
	return f
}

// LocalOnly marks the field as never exchanged with the remote
func (f Field) LocalOnly() Field {
	f.Direction = LocalOnly
	return f
}

// Sent reports whether the field belongs in push payloads
func (f Field) Sent() bool {
	return f.Direction == Both && f.Remote != ""
}

// Received reports whether the field is read from pulled records
func (f Field) Received() bool {
	return f.Direction != LocalOnly && (f.Remote != "" || f.Nested != "")
}

// Value returns the current value as a database/sql argument.
// Empty references and an empty sync op are stored as NULL.
func (f Field) Value() any {
	switch p := f.ptr.(type) {
	case *string:
		if f.Nested != "" && *p == "" {
			return nil
		}
		return *p
	case *float64:
		return *p
	case *int64:
		return *p
	case *bool:
		if *p {
			return int64(1)
		}
		return int64(0)
	case *SyncOp:
		if *p == OpNone {
			return nil
		}
		return string(*p)
	}
	panic(fmt.Sprintf("field %s: unsupported type %T", f.Column, f.ptr))
}

// Payload returns the value as sent to the remote service
func (f Field) Payload() any {
	switch p := f.ptr.(type) {
	case *bool:
		return *p
	case *string:
		if f.Nested != "" && *p == "" {
			return nil
		}
		return *p
	}
	return f.Value()
}

// ScanDest returns a destination for rows.Scan that maps NULL to the zero value
func (f Field) ScanDest() any {
	switch p := f.ptr.(type) {
	case *string:
		return nullable[string]{p}
	case *float64:
		return nullable[float64]{p}
	case *int64:
		return nullable[int64]{p}
	case *bool:
		return nullable[bool]{p}
	case *SyncOp:
		return opScanner{p}
	}
	panic(fmt.Sprintf("field %s: unsupported type %T", f.Column, f.ptr))
}

// In reports whether a pulled JSON object carries the field
func (f Field) In(obj map[string]json.RawMessage) bool {
	if f.Nested != "" {
		if _, ok := obj[f.Nested]; ok {
			return true
		}
	}
	if f.Remote == "" {
		return false
	}
	_, ok := obj[f.Remote]
	return ok
}

// Decode assigns the field from a pulled JSON object
func (f Field) Decode(obj map[string]json.RawMessage) error {
	if f.Nested != "" {
		if raw, ok := obj[f.Nested]; ok && !isNull(raw) {
			id, err := decodeRef(raw)
			if err != nil {
				return fmt.Errorf("field %s: %w", f.Nested, err)
			}
			if id != "" {
				*f.ptr.(*string) = id
				return nil
			}
		}
	}
	raw, ok := obj[f.Remote]
	if !ok || f.Remote == "" {
		return nil
	}
	if err := decodeScalar(raw, f.ptr); err != nil {
		return fmt.Errorf("field %s: %w", f.Remote, err)
	}
	return nil
}

type nullable[T any] struct {
	dst *T
}

func (n nullable[T]) Scan(src any) error {
	var v sql.Null[T]
	if err := v.Scan(src); err != nil {
		return err
	}
	if v.Valid {
		*n.dst = v.V
	} else {
		var zero T
		*n.dst = zero
	}
	return nil
}

type opScanner struct {
	dst *SyncOp
}

func (o opScanner) Scan(src any) error {
	var v sql.NullString
	if err := v.Scan(src); err != nil {
		return err
	}
	*o.dst = SyncOp(v.String)
	if !o.dst.Valid() {
		return fmt.Errorf("unknown sync_op %q", v.String)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeRef(raw json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, nil
	}
	var obj struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	if obj.MongoID != "" {
		return obj.MongoID, nil
	}
	return obj.ID, nil
}

// decodeScalar accepts the loose encodings the remote service produces:
// numbers may arrive quoted and booleans may arrive as 0/1.
func decodeScalar(raw json.RawMessage, ptr any) error {
	if isNull(raw) {
		return nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}

	switch p := ptr.(type) {
	case *string:
		switch t := v.(type) {
		case string:
			*p = t
		case json.Number:
			*p = t.String()
		case bool:
			*p = strconv.FormatBool(t)
		default:
			return fmt.Errorf("cannot decode %s into string", raw)
		}
	case *float64:
		n, err := toFloat(v)
		if err != nil {
			return err
		}
		*p = n
	case *int64:
		n, err := toFloat(v)
		if err != nil {
			return err
		}
		*p = int64(n)
	case *bool:
		switch t := v.(type) {
		case bool:
			*p = t
		case json.Number:
			*p = t.String() != "0"
		case string:
			*p = t == "true" || t == "1"
		default:
			return fmt.Errorf("cannot decode %s into bool", raw)
		}
	default:
		return fmt.Errorf("unsupported destination %T", ptr)
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case json.Number:
		return t.Float64()
	case string:
		if t == "" {
			return 0, nil
		}
		return strconv.ParseFloat(t, 64)
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot decode %v into number", v)
}
