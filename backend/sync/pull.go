package sync

import (
	"context"
	"fmt"

	"fieldsync/backend"
	"fieldsync/backend/dao"
)

// upserter is the slice of a DAO a puller merges into
type upserter[P backend.Entity] interface {
	Kind() backend.Kind
	UpsertMany(ctx context.Context, recs []P) (int, error)
}

// puller fetches every remote record of one kind and merges it locally
type puller[T any, P interface {
	*T
	backend.Entity
}] struct {
	sm  *SyncManager
	dst upserter[P]
}

// pull returns how many records were written and how many were left alone
// (older than the local copy, or locally pending)
func (p puller[T, P]) pull(ctx context.Context) (int, int, error) {
	kind := p.dst.Kind()
	raws, err := p.sm.remote.List(ctx, kind)
	if err != nil {
		return 0, 0, err
	}

	recs := make([]P, 0, len(raws))
	for _, raw := range raws {
		obj, err := backend.DecodeObject(raw)
		if err != nil {
			p.sm.log.Warn("skipping malformed remote record", "kind", kind, "error", err)
			continue
		}
		var rec T
		ptr := P(&rec)
		if err := backend.DecodeRemote(obj, ptr); err != nil {
			p.sm.log.Warn("skipping undecodable remote record", "kind", kind, "error", err)
			continue
		}
		recs = append(recs, ptr)
	}

	applied, err := p.dst.UpsertMany(ctx, recs)
	if err != nil {
		return applied, 0, fmt.Errorf("failed to store pulled %s: %w", kind, err)
	}
	if err := p.sm.store.Metadata.Set(ctx, dao.LastPullKey(kind), backend.Now()); err != nil {
		return applied, 0, err
	}

	p.sm.log.Debug("pulled", "kind", kind, "received", len(raws), "applied", applied)
	return applied, len(recs) - applied, nil
}
