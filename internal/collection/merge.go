package collection

import "github.com/google/uuid"

type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeRemoved ChangeKind = "removed"
)

// Change records one locally-applied merge effect. Item is a detached copy;
// mutating it affects neither collection. Changes that only need to be pushed
// back to the remote side are not reported; the caller re-uploads the whole
// merged collection, so a separate forward diff has no consumer.
type Change struct {
	Kind ChangeKind
	Item Item
}

// Merge reconciles the remote copy into the receiver. It is deterministic
// for identical inputs, has no error outcomes, and resolves conflicts
// per-item by last-writer-wins on the Updated timestamp. The local revision
// timestamp acts as the last-common-ancestor marker: an item absent from one
// side was deleted there if and only if its timestamp does not dominate that
// marker.
//
// If the merge produced nothing to push back, the remote revision is adopted
// verbatim (fast-forward). Otherwise a new revision is minted with both
// parents in MergedFrom.
func (c *Collection) Merge(remote *Collection) []Change {
	var changes []Change
	forward := false
	ancestor := c.Revision.Timestamp

	// Items the remote side does not have: either deleted remotely since the
	// last sync, or added locally and not yet pushed.
	for _, id := range c.sortedIDs() {
		if _, ok := remote.items[id]; ok {
			continue
		}
		it := c.items[id]
		if it.Updated <= ancestor {
			delete(c.items, id)
			changes = append(changes, Change{Kind: ChangeRemoved, Item: it})
		} else {
			forward = true
		}
	}

	for _, id := range remote.sortedIDs() {
		theirs := remote.items[id]
		ours, exists := c.items[id]
		if !exists {
			if theirs.Updated > ancestor {
				c.items[id] = cloneItem(theirs)
				changes = append(changes, Change{Kind: ChangeAdded, Item: cloneItem(theirs)})
			} else {
				// Deleted locally before this merge; do not resurrect. The
				// deletion still has to be pushed forward.
				forward = true
			}
			continue
		}
		switch {
		case theirs.Updated > ours.Updated:
			c.items[id] = cloneItem(theirs)
			changes = append(changes, Change{Kind: ChangeUpdated, Item: cloneItem(theirs)})
		case theirs.Updated < ours.Updated:
			forward = true
		}
	}

	if forward {
		c.Revision = Revision{
			ID:         uuid.NewString(),
			Timestamp:  now(),
			MergedFrom: []string{c.Revision.ID, remote.Revision.ID},
		}
	} else {
		c.Revision = Revision{
			ID:         remote.Revision.ID,
			Timestamp:  remote.Revision.Timestamp,
			MergedFrom: append([]string(nil), remote.Revision.MergedFrom...),
		}
		if len(c.Revision.MergedFrom) == 0 {
			c.Revision.MergedFrom = nil
		}
	}
	return changes
}
