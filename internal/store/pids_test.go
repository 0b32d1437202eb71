// internal/store/pids_test.go
package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodePIDShape(t *testing.T) {
	pid := EncodePID(uuid.MustParse("00000000-0000-0000-0000-000000000000"))
	assert.Equal(t, "00000-0000", pid[:10])
	assert.Len(t, pid, 11)
	assert.Equal(t, byte('-'), pid[5])
}

func TestEncodePIDIsDeterministicAndReadable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var id uuid.UUID
		copy(id[:], rapid.SliceOfN(rapid.Byte(), 16, 16).Draw(t, "bytes"))

		pid := EncodePID(id)
		if pid != EncodePID(id) {
			t.Fatalf("encoding is not deterministic for %s", id)
		}
		if len(pid) != 11 || pid[5] != '-' {
			t.Fatalf("unexpected pid shape %q", pid)
		}
		for i, c := range pid {
			if i == 5 {
				continue
			}
			// Ambiguous letters (i, l, o, u) never appear.
			if c == 'i' || c == 'l' || c == 'o' || c == 'u' {
				t.Fatalf("pid %q contains ambiguous character %q", pid, c)
			}
		}
	})
}

func TestMintAndResolve(t *testing.T) {
	db := setupTestDB(t)
	pids := NewPIDProvider(db)

	recordID := uuid.New()
	pid, err := pids.Mint(context.Background(), recordID, "loan")
	require.NoError(t, err)
	assert.Equal(t, EncodePID(recordID), pid)

	resolved, err := pids.Resolve(context.Background(), "loan", pid)
	require.NoError(t, err)
	assert.Equal(t, recordID, resolved)
}

func TestMintRejectsDuplicate(t *testing.T) {
	db := setupTestDB(t)
	pids := NewPIDProvider(db)

	recordID := uuid.New()
	_, err := pids.Mint(context.Background(), recordID, "loan")
	require.NoError(t, err)

	_, err = pids.Mint(context.Background(), recordID, "loan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestResolveNotFound(t *testing.T) {
	db := setupTestDB(t)
	pids := NewPIDProvider(db)

	_, err := pids.Resolve(context.Background(), "loan", "zzzzz-zzzzz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
