package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultsync/internal/audit"
	"vaultsync/internal/collection"
	"vaultsync/internal/container"
	"vaultsync/internal/crypto"
	"vaultsync/internal/logging"
	"vaultsync/internal/storage"
)

func testContainer(t *testing.T, password string) *container.PasswordContainer {
	t.Helper()
	c := container.NewPasswordContainer(crypto.Default())
	c.KDF.Iterations = 1000
	c.SetPassword([]byte(password))
	return c
}

func testSyncer(t *testing.T) (*Syncer, *audit.Log) {
	t.Helper()
	log := audit.New()
	s := New(storage.NewFileStore(t.TempDir()), logging.Logger{}, log)
	return s, log
}

func TestSyncFirstPush(t *testing.T) {
	s, auditLog := testSyncer(t)
	ctr := testContainer(t, "pw")

	local := collection.New()
	local.Update(collection.Item{ID: "a", Type: "login"})

	changes, err := s.Sync(context.Background(), "vault-1", ctr, local)
	require.NoError(t, err)
	assert.Empty(t, changes, "first push applies nothing locally")

	// The pushed envelope is readable back.
	fresh := collection.New()
	reader := testContainer(t, "pw")
	_, err = s.Sync(context.Background(), "vault-1", reader, fresh)
	require.NoError(t, err)
	_, ok := fresh.Get("a")
	assert.True(t, ok)

	ops := make([]audit.Op, 0, len(auditLog.Entries()))
	for _, e := range auditLog.Entries() {
		ops = append(ops, e.Op)
	}
	assert.Contains(t, ops, audit.OpPush)
	assert.Contains(t, ops, audit.OpSync)
	assert.NoError(t, auditLog.Verify())
}

func TestSyncConvergesTwoDevices(t *testing.T) {
	s, _ := testSyncer(t)
	ctx := context.Background()

	deviceA := collection.New()
	deviceA.Update(collection.Item{ID: "fromA", Type: "login"})
	_, err := s.Sync(ctx, "shared", testContainer(t, "pw"), deviceA)
	require.NoError(t, err)

	deviceB := collection.New()
	deviceB.Update(collection.Item{ID: "fromB", Type: "note"})
	changes, err := s.Sync(ctx, "shared", testContainer(t, "pw"), deviceB)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, collection.ChangeAdded, changes[0].Kind)
	assert.Equal(t, "fromA", changes[0].Item.ID)

	// A second round brings device A up to date.
	changes, err = s.Sync(ctx, "shared", testContainer(t, "pw"), deviceA)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "fromB", changes[0].Item.ID)

	assert.Equal(t, deviceA.Items(), deviceB.Items())
	assert.Equal(t, deviceA.Revision.ID, deviceB.Revision.ID)
}

func TestSyncWrongPassword(t *testing.T) {
	s, _ := testSyncer(t)
	ctx := context.Background()

	local := collection.New()
	local.Update(collection.Item{ID: "a"})
	_, err := s.Sync(ctx, "vault-1", testContainer(t, "right"), local)
	require.NoError(t, err)

	_, err = s.Sync(ctx, "vault-1", testContainer(t, "wrong"), collection.New())
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestSyncThrottle(t *testing.T) {
	s, auditLog := testSyncer(t)
	ctx := context.Background()
	ctr := testContainer(t, "pw")
	local := collection.New()

	// Burst of 5, then throttled.
	var throttled bool
	for i := 0; i < 6; i++ {
		_, err := s.Sync(ctx, "hammered", ctr, local)
		if err != nil {
			assert.ErrorIs(t, err, ErrUnlockThrottled)
			throttled = true
		}
	}
	assert.True(t, throttled, "sixth attempt within the burst window must be throttled")

	// Other vaults have their own bucket.
	_, err := s.Sync(ctx, "other", ctr, local)
	assert.NoError(t, err)

	ops := make([]audit.Op, 0)
	for _, e := range auditLog.Entries() {
		ops = append(ops, e.Op)
	}
	assert.Contains(t, ops, audit.OpUnlockThrottle)
}

func TestMultiLimiterEviction(t *testing.T) {
	m := newMultiLimiter(1, 1, 0)
	assert.True(t, m.allow("a"))
	// ttl zero evicts the stale bucket on the next call, resetting the burst.
	assert.True(t, m.allow("b"))
	assert.True(t, m.allow("a"))
}
