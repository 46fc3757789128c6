package pagestore

import (
	"path/filepath"
	"testing"

	"github.com/relcore/txnstore/txn"
	"github.com/stretchr/testify/require"
)

func TestHeapInsertDeleteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := OpenFileStore(7, filepath.Join(dir, "t7.tbl"))
	require.NoError(t, err)
	defer fs.Close()

	tid := txn.New()
	pages, err := fs.InsertTuple(tid, nil, []byte("alpha"))
	require.NoError(t, err)
	require.NoError(t, fs.WritePage(pages[0])) // simulate a flush between statements
	pages, err = fs.InsertTuple(tid, nil, []byte("bravo"))
	require.NoError(t, err)
	require.NoError(t, fs.WritePage(pages[0]))

	got, err := fs.ReadTuple(RID{PageNo: 0, Slot: 0})
	require.NoError(t, err)
	require.Equal(t, "alpha", string(got))

	got, err = fs.ReadTuple(RID{PageNo: 0, Slot: 1})
	require.NoError(t, err)
	require.Equal(t, "bravo", string(got))

	deleted, err := fs.DeleteTuple(tid, nil, RID{PageNo: 0, Slot: 0})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	require.True(t, deleted[0].IsDirty())
	require.NoError(t, fs.WritePage(deleted[0]))

	_, err = fs.ReadTuple(RID{PageNo: 0, Slot: 0})
	require.Error(t, err)

	// slot 1 is untouched by slot 0's tombstone
	got, err = fs.ReadTuple(RID{PageNo: 0, Slot: 1})
	require.NoError(t, err)
	require.Equal(t, "bravo", string(got))
}

func TestHeapInsertSpillsToNewPage(t *testing.T) {
	dir := t.TempDir()
	SetPageSizeForTesting(64)
	defer SetPageSizeForTesting(DefaultPageSize)

	fs, err := OpenFileStore(9, filepath.Join(dir, "t9.tbl"))
	require.NoError(t, err)
	defer fs.Close()

	tid := txn.New()
	tuple := make([]byte, 20)
	for i := 0; i < 4; i++ {
		pages, err := fs.InsertTuple(tid, nil, tuple)
		require.NoError(t, err)
		require.NoError(t, fs.WritePage(pages[0])) // flush so the next insert sees reduced free space
	}

	require.GreaterOrEqual(t, fs.NumPages(), int32(2))
}
