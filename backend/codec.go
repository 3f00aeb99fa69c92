package backend

import (
	"encoding/json"
	"fmt"
)

// AllFields returns the metadata fields followed by the business fields of e
func AllFields(e Entity) []Field {
	return append(MetaFields(e.Meta()), e.Fields()...)
}

// PayloadExtender is implemented by entities whose create payload carries
// more than their own field table
type PayloadExtender interface {
	ExtendPayload(body map[string]any)
}

// ChildDecoder is implemented by entities that embed child records in the
// remote representation
type ChildDecoder interface {
	DecodeChildren(obj map[string]json.RawMessage) error
}

// Payload builds the request body for e from its field table
func Payload(e Entity) map[string]any {
	body := make(map[string]any)
	for _, f := range e.Fields() {
		if f.Sent() {
			body[f.Remote] = f.Payload()
		}
	}
	if ext, ok := e.(PayloadExtender); ok {
		ext.ExtendPayload(body)
	}
	return body
}

// DecodeRemote fills e from a pulled or returned remote object.
// Pulled records are never dirty, so the local sync state is reset.
func DecodeRemote(obj map[string]json.RawMessage, e Entity) error {
	m := e.Meta()
	m.missing = nil
	for _, f := range AllFields(e) {
		if !f.Received() {
			continue
		}
		if !f.In(obj) {
			if m.missing == nil {
				m.missing = make(map[string]bool)
			}
			m.missing[f.Column] = true
			continue
		}
		if err := f.Decode(obj); err != nil {
			return fmt.Errorf("failed to decode %s: %w", e.Kind(), err)
		}
	}
	if raw, ok := obj["id"]; ok && m.ID == "" {
		_ = json.Unmarshal(raw, &m.ID)
	}
	if m.ID == "" {
		return fmt.Errorf("failed to decode %s: missing _id", e.Kind())
	}

	m.ClientID = m.ID
	m.CreatedAt = NormalizeTimestamp(m.CreatedAt)
	m.UpdatedAt = NormalizeTimestamp(m.UpdatedAt)
	m.PendingSync = false
	m.SyncOp = OpNone
	m.SyncError = ""
	if d, ok := e.(Defaulter); ok {
		d.ApplyDefaults()
	}
	if cd, ok := e.(ChildDecoder); ok {
		if err := cd.DecodeChildren(obj); err != nil {
			return fmt.Errorf("failed to decode %s children: %w", e.Kind(), err)
		}
	}
	return nil
}

// decodeChildren decodes an embedded array of child records. Children
// without a server id get a local one.
func decodeChildren[T any, P interface {
	*T
	Entity
}](raw json.RawMessage, parentID string, setParent func(P, string)) ([]T, error) {
	if isNull(raw) {
		return nil, nil
	}
	var objs []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(objs))
	for _, obj := range objs {
		var child T
		p := P(&child)
		for _, f := range AllFields(p) {
			if !f.Received() {
				continue
			}
			if err := f.Decode(obj); err != nil {
				return nil, err
			}
		}
		m := p.Meta()
		if m.ID == "" {
			m.ID = NewChildID(p.Kind())
		}
		m.ClientID = m.ID
		m.CreatedAt = NormalizeTimestamp(m.CreatedAt)
		m.UpdatedAt = NormalizeTimestamp(m.UpdatedAt)
		if d, ok := any(p).(Defaulter); ok {
			d.ApplyDefaults()
		}
		setParent(p, parentID)
		out = append(out, child)
	}
	return out, nil
}

// DecodeObject unmarshals raw into an object map for DecodeRemote
func DecodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("expected object, got %s", raw)
	}
	return obj, nil
}
