package kvstore_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpruntime/kvstore"
)

func openStore(t *testing.T, size int, opts kvstore.Options) *kvstore.Store {
	t.Helper()
	backend := kvstore.NewMemBackend(size)
	s, err := kvstore.Open(backend, opts)
	require.NoError(t, err)
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := openStore(t, 4096, kvstore.Options{MaxKeys: 8})
	require.NoError(t, s.Write("tool.blink", []byte("on")))

	got, err := s.Read("tool.blink")
	require.NoError(t, err)
	assert.Equal(t, []byte("on"), got)
	assert.True(t, s.Exists("tool.blink"))
}

func TestReadMissingKeyFails(t *testing.T) {
	s := openStore(t, 4096, kvstore.Options{MaxKeys: 8})
	_, err := s.Read("nope")
	assert.ErrorIs(t, err, kvstore.ErrKeyNotFound)
}

func TestOverwriteReplacesValue(t *testing.T) {
	s := openStore(t, 4096, kvstore.Options{MaxKeys: 8})
	require.NoError(t, s.Write("cfg.threshold", []byte("10")))
	require.NoError(t, s.Write("cfg.threshold", []byte("20")))

	got, err := s.Read("cfg.threshold")
	require.NoError(t, err)
	assert.Equal(t, []byte("20"), got)
}

func TestDeleteFreesSlotForReuse(t *testing.T) {
	s := openStore(t, 4096, kvstore.Options{MaxKeys: 1})
	require.NoError(t, s.Write("a", []byte("1")))
	require.NoError(t, s.Delete("a"))
	require.NoError(t, s.Write("b", []byte("2")))

	assert.False(t, s.Exists("a"))
	got, err := s.Read("b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)
}

func TestDirectoryFullRejectsNewKey(t *testing.T) {
	s := openStore(t, 4096, kvstore.Options{MaxKeys: 1})
	require.NoError(t, s.Write("a", []byte("1")))
	err := s.Write("b", []byte("2"))
	assert.ErrorIs(t, err, kvstore.ErrDirectoryFull)
}

func TestNoSpaceWhenDataAreaExhausted(t *testing.T) {
	s := openStore(t, 200, kvstore.Options{MaxKeys: 4})
	big := bytes.Repeat([]byte{0xFF}, 300)
	err := s.Write("huge", big)
	assert.ErrorIs(t, err, kvstore.ErrNoSpace)
}

func TestKeyTooLongRejected(t *testing.T) {
	s := openStore(t, 4096, kvstore.Options{MaxKeys: 4})
	err := s.Write(string(bytes.Repeat([]byte{'x'}, 64)), []byte("v"))
	assert.ErrorIs(t, err, kvstore.ErrKeyTooLong)
}

func TestReadOnlyRejectsMutation(t *testing.T) {
	s := openStore(t, 4096, kvstore.Options{MaxKeys: 4, ReadOnly: true})
	err := s.Write("a", []byte("1"))
	assert.ErrorIs(t, err, kvstore.ErrReadOnly)
}

func TestTransactionDefersDirectoryCommit(t *testing.T) {
	backend := kvstore.NewMemBackend(4096)
	s, err := kvstore.Open(backend, kvstore.Options{MaxKeys: 4})
	require.NoError(t, err)

	require.NoError(t, s.BeginTransaction())
	require.NoError(t, s.Write("a", []byte("1")))

	before, err := kvstore.Open(backend, kvstore.Options{MaxKeys: 4})
	require.NoError(t, err)
	assert.False(t, before.Exists("a"))

	require.NoError(t, s.EndTransaction())

	after, err := kvstore.Open(backend, kvstore.Options{MaxKeys: 4})
	require.NoError(t, err)
	assert.True(t, after.Exists("a"))

	got, err := s.Read("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)
}

func TestNestedTransactionRejected(t *testing.T) {
	s := openStore(t, 4096, kvstore.Options{MaxKeys: 4})
	require.NoError(t, s.BeginTransaction())
	err := s.BeginTransaction()
	assert.ErrorIs(t, err, kvstore.ErrTransactionActive)
	require.NoError(t, s.EndTransaction())
}

func TestClearRemovesAllKeys(t *testing.T) {
	s := openStore(t, 4096, kvstore.Options{MaxKeys: 4})
	require.NoError(t, s.Write("a", []byte("1")))
	require.NoError(t, s.Write("b", []byte("2")))

	require.NoError(t, s.Clear())
	assert.Empty(t, s.ListKeys())
}

func TestCompressionRoundTripsLargeRepetitiveValue(t *testing.T) {
	s := openStore(t, 8192, kvstore.Options{MaxKeys: 4, Compression: true})
	big := bytes.Repeat([]byte{0x7A}, 200)
	require.NoError(t, s.Write("rule.program", big))

	got, err := s.Read("rule.program")
	require.NoError(t, err)
	assert.Equal(t, big, got)
}

func TestReopenRecoversDirectoryFromBackend(t *testing.T) {
	backend := kvstore.NewMemBackend(4096)
	s1, err := kvstore.Open(backend, kvstore.Options{MaxKeys: 4})
	require.NoError(t, err)
	require.NoError(t, s1.Write("a", []byte("persisted")))

	s2, err := kvstore.Open(backend, kvstore.Options{MaxKeys: 4})
	require.NoError(t, err)
	got, err := s2.Read("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}

func TestCorruptDirectoryAutoReinitializes(t *testing.T) {
	backend := kvstore.NewMemBackend(4096)
	garbage := bytes.Repeat([]byte{0x11}, 4096)
	require.NoError(t, backend.WriteAt(0, garbage))

	s, err := kvstore.Open(backend, kvstore.Options{MaxKeys: 4})
	require.NoError(t, err)
	assert.Empty(t, s.ListKeys())
}

func TestSizeAndCapacityReflectUsage(t *testing.T) {
	s := openStore(t, 4096, kvstore.Options{MaxKeys: 4})
	base := s.Size()
	require.NoError(t, s.Write("a", []byte("12345")))
	assert.Equal(t, base+5, s.Size())
	assert.EqualValues(t, 4096, s.Capacity())
}
