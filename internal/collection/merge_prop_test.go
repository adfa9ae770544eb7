package collection

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// buildCollection derives a well-formed collection from generated inputs:
// each id gets a timestamp spread around the ancestor marker so merges
// exercise both the deleted-remotely and added-locally branches.
func buildCollection(revID string, ancestor int64, ids []string) *Collection {
	c := New()
	c.Revision = Revision{ID: revID, Timestamp: ancestor}
	for i, id := range ids {
		if id == "" {
			continue
		}
		c.items[id] = Item{
			ID:      id,
			Updated: ancestor + int64(i%7) - 3,
		}
	}
	return c
}

func TestMergeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("merging a clone of itself changes nothing", prop.ForAll(
		func(ids []string, ancestor int64) bool {
			c := buildCollection("r0", ancestor, ids)
			before := c.Items()
			changes := c.Merge(c.Clone())
			return len(changes) == 0 &&
				c.Revision.ID == "r0" &&
				reflect.DeepEqual(before, c.Items())
		},
		gen.SliceOf(gen.Identifier()),
		gen.Int64Range(10, 1_000_000),
	))

	properties.Property("merge is deterministic for identical inputs", prop.ForAll(
		func(localIDs, remoteIDs []string, ancestor int64) bool {
			local := buildCollection("r0", ancestor, localIDs)
			remote := buildCollection("r1", ancestor, remoteIDs)

			a := local.Clone()
			b := local.Clone()
			changesA := a.Merge(remote.Clone())
			changesB := b.Merge(remote.Clone())

			return reflect.DeepEqual(changesA, changesB) &&
				reflect.DeepEqual(a.Items(), b.Items())
		},
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.Identifier()),
		gen.Int64Range(10, 1_000_000),
	))

	properties.Property("mutual merge converges both sides", prop.ForAll(
		func(localIDs, remoteIDs []string, ancestor int64) bool {
			local := buildCollection("r0", ancestor, localIDs)
			remote := buildCollection("r1", ancestor, remoteIDs)

			local.Merge(remote.Clone())
			remote.Merge(local.Clone())

			return reflect.DeepEqual(local.Items(), remote.Items())
		},
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.Identifier()),
		gen.Int64Range(10, 1_000_000),
	))

	properties.TestingRun(t)
}
