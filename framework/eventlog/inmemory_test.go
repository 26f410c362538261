package eventlog

import (
	"context"
	"errors"
	"testing"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(value string) Record {
	return Record{
		Key:     []byte("1"),
		Value:   []byte(value),
		Headers: map[string]string{HeaderEventID: "id-" + value},
	}
}

func TestInMemoryLog_AppendAssignsOffsets(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, "books", rec("a"), rec("b")))
	require.NoError(t, log.Append(ctx, "books", rec("c")))
	require.NoError(t, log.Append(ctx, "other", rec("x")))

	records := log.Records("books")
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, int64(i), r.Offset)
		assert.Equal(t, "books", r.Topic)
	}
	assert.Equal(t, "c", string(records[2].Value))
	assert.Len(t, log.Records("other"), 1)
}

func TestInMemoryLog_AppendCopiesInput(t *testing.T) {
	log := NewInMemoryLog()
	r := rec("a")
	require.NoError(t, log.Append(context.Background(), "books", r))

	r.Value[0] = 'z'
	r.Headers[HeaderEventID] = "changed"

	stored := log.Records("books")[0]
	assert.Equal(t, "a", string(stored.Value))
	assert.Equal(t, "id-a", stored.Header(HeaderEventID))
}

func TestInMemoryReader_PollInBatches(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()
	require.NoError(t, log.Append(ctx, "books", rec("a"), rec("b"), rec("c")))

	reader := log.NewReader("books", "g", 2)
	first, err := reader.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := reader.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "c", string(second[0].Value))

	empty, err := reader.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInMemoryReader_UncommittedRedeliveredToNewReader(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()
	require.NoError(t, log.Append(ctx, "books", rec("a"), rec("b")))

	reader := log.NewReader("books", "g", 10)
	batch, err := reader.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.NoError(t, reader.Close())

	restarted := log.NewReader("books", "g", 10)
	again, err := restarted.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, batch[0].Offset, again[0].Offset)
}

func TestInMemoryReader_CommitAdvancesGroup(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()
	require.NoError(t, log.Append(ctx, "books", rec("a"), rec("b"), rec("c")))

	reader := log.NewReader("books", "g", 2)
	batch, err := reader.Poll(ctx)
	require.NoError(t, err)
	require.NoError(t, reader.Commit(ctx, batch))
	assert.Equal(t, int64(2), log.Committed("books", "g"))
	assert.Equal(t, int64(0), log.Committed("books", "other"))

	restarted := log.NewReader("books", "g", 10)
	rest, err := restarted.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", string(rest[0].Value))

	other := log.NewReader("books", "other", 10)
	all, err := other.Poll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestInMemoryLog_FailureInjection(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()
	boom := errors.New("boom")

	log.FailAppends(boom)
	err := log.Append(ctx, "books", rec("a"))
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrTransport))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, log.Records("books"))
	log.FailAppends(nil)
	require.NoError(t, log.Append(ctx, "books", rec("a")))

	reader := log.NewReader("books", "g", 10)
	log.FailPolls(boom)
	_, err = reader.Poll(ctx)
	assert.True(t, core.HasCode(err, core.ErrTransport))
	log.FailPolls(nil)

	batch, err := reader.Poll(ctx)
	require.NoError(t, err)
	log.FailCommits(boom)
	err = reader.Commit(ctx, batch)
	assert.True(t, core.HasCode(err, core.ErrOffsetCommit))
	assert.Equal(t, int64(0), log.Committed("books", "g"))
}

func TestInMemoryReader_CancelledContext(t *testing.T) {
	log := NewInMemoryLog()
	reader := log.NewReader("books", "g", 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reader.Poll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, log.Append(ctx, "books", rec("a")), context.Canceled)
}

func TestRecord_Ref(t *testing.T) {
	assert.Equal(t, "books:0@7", Record{Topic: "books", Offset: 7}.Ref())
	assert.Equal(t, "books@1700000000000-0", Record{Topic: "books", Position: "1700000000000-0"}.Ref())
	assert.Equal(t, "", Record{}.Header(HeaderEventID))
}
