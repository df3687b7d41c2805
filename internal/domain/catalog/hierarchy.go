package catalog

import "context"

// StatusUpdate is a pending active-flag change produced by a cascade
// computation. The caller applies the updates; the cascade itself never
// touches storage.
type StatusUpdate struct {
	ProductID int64
	Active    bool
}

// CascadeDeactivate computes the status updates required to deactivate the
// given product. Deactivating a configurable parent cascades to all of its
// variants; deactivating a plain variant affects only itself.
func CascadeDeactivate(ctx context.Context, store ProductStore, p *Product) ([]StatusUpdate, error) {
	updates := []StatusUpdate{{ProductID: p.ID, Active: false}}
	if !p.Configurable {
		return updates, nil
	}

	children, err := store.Children(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if c.Active {
			updates = append(updates, StatusUpdate{ProductID: c.ID, Active: false})
		}
	}
	return updates, nil
}

// CascadeRestore computes the status updates required to restore the given
// product. Restoring a configurable parent restores its variants as well, so
// the family comes back as a unit.
func CascadeRestore(ctx context.Context, store ProductStore, p *Product) ([]StatusUpdate, error) {
	updates := []StatusUpdate{{ProductID: p.ID, Active: true}}
	if !p.Configurable {
		return updates, nil
	}

	children, err := store.Children(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if !c.Active {
			updates = append(updates, StatusUpdate{ProductID: c.ID, Active: true})
		}
	}
	return updates, nil
}
