// Package collection implements the versioned item store that forms a
// container's payload, and the timestamp-based merge that reconciles copies
// edited independently on different devices.
package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidCollectionData = errors.New("collection: invalid collection data")

// now is stubbed in tests that need controlled timestamps.
var now = func() int64 { return time.Now().UnixMilli() }

// Revision marks a synchronization point. Timestamp is the last moment local
// and remote state were known to agree; the merge uses it to tell remote
// deletions from local additions. MergedFrom records the two parent revision
// ids when a true three-way merge happened.
type Revision struct {
	ID         string   `json:"id"`
	Timestamp  int64    `json:"timestamp"`
	MergedFrom []string `json:"mergedFrom,omitempty"`
}

// Item is one secret record. Updated is stamped on every mutation and drives
// last-writer-wins conflict resolution; timestamps are Unix milliseconds and
// must round-trip exactly.
type Item struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Fields  map[string]string `json:"fields"`
	Updated int64             `json:"updated"`
}

// Collection is an id-to-item mapping plus its revision marker. It is never
// persisted bare; a container wraps it before it leaves memory.
type Collection struct {
	Revision Revision
	items    map[string]Item
}

// New returns an empty collection. The revision timestamp starts at zero so
// items added before the first sync compare as newer than the last (never)
// known common state.
func New() *Collection {
	return &Collection{
		Revision: Revision{ID: uuid.NewString()},
		items:    make(map[string]Item),
	}
}

func (c *Collection) Len() int { return len(c.items) }

func (c *Collection) Get(id string) (Item, bool) {
	it, ok := c.items[id]
	return it, ok
}

// Items returns all items sorted by id.
func (c *Collection) Items() []Item {
	out := make([]Item, 0, len(c.items))
	for _, id := range c.sortedIDs() {
		out = append(out, c.items[id])
	}
	return out
}

// Update stamps each item's Updated with the current time and upserts it.
// The revision marker is not advanced here; it moves only at merge time (see
// Merge), otherwise fresh local additions would compare as older than the
// last sync point and be dropped as remote deletions.
func (c *Collection) Update(items ...Item) {
	ts := now()
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.Updated = ts
		c.items[it.ID] = it
	}
}

// Remove deletes items by id. No tombstone is kept; deletion is inferred
// during merge purely from absence plus timestamp comparison.
func (c *Collection) Remove(items ...Item) {
	for _, it := range items {
		delete(c.items, it.ID)
	}
}

// Clone returns a deep copy sharing no state with the original.
func (c *Collection) Clone() *Collection {
	out := &Collection{
		Revision: Revision{
			ID:         c.Revision.ID,
			Timestamp:  c.Revision.Timestamp,
			MergedFrom: append([]string(nil), c.Revision.MergedFrom...),
		},
		items: make(map[string]Item, len(c.items)),
	}
	if len(out.Revision.MergedFrom) == 0 {
		out.Revision.MergedFrom = nil
	}
	for id, it := range c.items {
		out.items[id] = cloneItem(it)
	}
	return out
}

func cloneItem(it Item) Item {
	if it.Fields != nil {
		fields := make(map[string]string, len(it.Fields))
		for k, v := range it.Fields {
			fields[k] = v
		}
		it.Fields = fields
	}
	return it
}

func (c *Collection) sortedIDs() []string {
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type document struct {
	Revision Revision `json:"revision"`
	Items    []Item   `json:"items"`
}

// Serialize produces the canonical byte form: revision plus items sorted by
// id, so identical collections serialize identically.
func (c *Collection) Serialize() ([]byte, error) {
	return json.Marshal(document{Revision: c.Revision, Items: c.Items()})
}

// Deserialize replaces the collection's state with the parsed document.
// Malformed revisions, duplicate ids and negative timestamps are rejected
// here so the merge can stay a total function over well-formed collections.
func (c *Collection) Deserialize(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCollectionData, err)
	}
	if doc.Revision.ID == "" || doc.Revision.Timestamp < 0 {
		return fmt.Errorf("%w: malformed revision", ErrInvalidCollectionData)
	}
	items := make(map[string]Item, len(doc.Items))
	for _, it := range doc.Items {
		if it.ID == "" || it.Updated < 0 {
			return fmt.Errorf("%w: malformed item %q", ErrInvalidCollectionData, it.ID)
		}
		if _, dup := items[it.ID]; dup {
			return fmt.Errorf("%w: duplicate item id %q", ErrInvalidCollectionData, it.ID)
		}
		items[it.ID] = it
	}
	c.Revision = doc.Revision
	c.items = items
	return nil
}
