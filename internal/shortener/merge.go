package shortener

import (
	"context"
)

type MergeStore interface {
	MergeDeviceToOwner(ctx context.Context, deviceID string, ownerID int64) (int64, error)
}

// Merger folds the links of an anonymous device into the account that just
// signed in or registered.
type Merger struct {
	store MergeStore
}

func NewMerger(store MergeStore) *Merger {
	return &Merger{store: store}
}

// MergeOnAuth is a no-op without a device. Repeating it is harmless: links
// that already have an owner are never touched again.
func (m *Merger) MergeOnAuth(ctx context.Context, deviceID string, ownerID int64) (int64, error) {
	if deviceID == "" {
		return 0, nil
	}
	return m.store.MergeDeviceToOwner(ctx, deviceID, ownerID)
}
