package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/internal/backend"
	"taskhub/internal/common"
	"taskhub/internal/realtime"
	"taskhub/internal/store"
)

func newThreadFixture(t *testing.T) (*store.Memory, *backend.Service) {
	t.Helper()
	mem := store.NewMemory()
	feed := realtime.NewFeed(64)
	svc := backend.NewService(mem.Messages, mem.Notifications, mem.Profiles, mem.Todos, feed)
	return mem, svc
}

func seedMessage(t *testing.T, mem *store.Memory, sender, receiver, content string) *store.Message {
	t.Helper()
	msg, err := mem.Messages.Insert(context.Background(), &store.Message{
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
	})
	require.NoError(t, err)
	return msg
}

func TestThreadStore_SendAppendsCanonicalRow(t *testing.T) {
	_, svc := newThreadFixture(t)
	ts := NewThreadStore(svc, "alice", "alice_a")
	_, err := ts.Open(context.Background(), "bob")
	require.NoError(t, err)

	msg, err := ts.Send(context.Background(), "hello bob")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())

	msgs := ts.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
	assert.Equal(t, "hello bob", msgs[0].Content)
}

func TestThreadStore_SendPreconditions(t *testing.T) {
	_, svc := newThreadFixture(t)

	tests := []struct {
		name     string
		setup    func(ts *ThreadStore)
		text     string
		errorMsg string
	}{
		{
			name:     "blank text",
			setup:    func(ts *ThreadStore) { _, _ = ts.Open(context.Background(), "bob") },
			text:     "   ",
			errorMsg: "message cannot be empty",
		},
		{
			name:     "no conversation selected",
			setup:    func(ts *ThreadStore) {},
			text:     "hello",
			errorMsg: "no conversation selected",
		},
		{
			name: "missing username",
			setup: func(ts *ThreadStore) {
				ts.SetUsername("")
				_, _ = ts.Open(context.Background(), "bob")
			},
			text:     "hello",
			errorMsg: "set a username before sending messages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := NewThreadStore(svc, "alice", "alice_a")
			tt.setup(ts)

			_, err := ts.Send(context.Background(), tt.text)
			require.Error(t, err)
			notice, ok := common.AsNotice(err)
			require.True(t, ok, "user-facing failures must be notices")
			assert.Contains(t, notice.Message, tt.errorMsg)
			assert.Empty(t, ts.Messages(), "failed send must not append")
		})
	}
}

func TestThreadStore_SendFailureKeepsThreadUntouched(t *testing.T) {
	mem, svc := newThreadFixture(t)
	ts := NewThreadStore(svc, "alice", "alice_a")
	_, err := ts.Open(context.Background(), "bob")
	require.NoError(t, err)

	mem.FailWith(errors.New("store down"))
	_, err = ts.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Empty(t, ts.Messages())
}

func TestThreadStore_EchoAfterOptimisticAppendIsMergedByID(t *testing.T) {
	_, svc := newThreadFixture(t)
	ts := NewThreadStore(svc, "alice", "alice_a")
	_, err := ts.Open(context.Background(), "bob")
	require.NoError(t, err)

	sub := svc.Feed().Subscribe(realtime.TableMessages, "alice")
	defer sub.Close()

	msg, err := ts.Send(context.Background(), "hello bob")
	require.NoError(t, err)
	require.Len(t, ts.Messages(), 1)

	// The sender's own session receives the insert event back; applying it
	// must not produce a second entry.
	ev := <-sub.C()
	require.Equal(t, realtime.OpInsert, ev.Op)
	require.Equal(t, msg.ID, ev.Message.ID)
	ts.ApplyEvent(ev)

	msgs := ts.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
}

func TestThreadStore_EventBeforeLocalAppendStillMerges(t *testing.T) {
	_, svc := newThreadFixture(t)
	ts := NewThreadStore(svc, "alice", "alice_a")
	_, err := ts.Open(context.Background(), "bob")
	require.NoError(t, err)

	msg, err := svc.SendMessage(context.Background(), "alice", "bob", "raced")
	require.NoError(t, err)

	// Event lands first, then the same row is upserted again (as the send
	// path would do on return).
	applied := ts.ApplyEvent(realtime.Event{Table: realtime.TableMessages, Op: realtime.OpInsert, Message: msg})
	assert.True(t, applied)
	ts.ApplyEvent(realtime.Event{Table: realtime.TableMessages, Op: realtime.OpInsert, Message: msg})

	require.Len(t, ts.Messages(), 1)
}

func TestThreadStore_OpenMarksIncomingRead(t *testing.T) {
	mem, svc := newThreadFixture(t)
	m1 := seedMessage(t, mem, "bob", "alice", "first")
	m2 := seedMessage(t, mem, "bob", "alice", "second")
	seedMessage(t, mem, "alice", "bob", "reply") // outgoing, never marked

	ts := NewThreadStore(svc, "alice", "alice_a")
	readIDs, err := ts.Open(context.Background(), "bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{m1.ID, m2.ID}, readIDs)

	for _, msg := range ts.Messages() {
		if msg.ReceiverID == "alice" {
			assert.True(t, msg.Read)
		}
	}

	// The store saw the batch too.
	stored, err := mem.Messages.UnreadFor(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestThreadStore_OpenOrdersOldestFirst(t *testing.T) {
	mem, svc := newThreadFixture(t)
	first := seedMessage(t, mem, "alice", "bob", "one")
	second := seedMessage(t, mem, "bob", "alice", "two")
	third := seedMessage(t, mem, "alice", "bob", "three")

	ts := NewThreadStore(svc, "alice", "alice_a")
	_, err := ts.Open(context.Background(), "bob")
	require.NoError(t, err)

	msgs := ts.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}

func TestThreadStore_OpenFailureLeavesStateUntouched(t *testing.T) {
	mem, svc := newThreadFixture(t)
	seedMessage(t, mem, "bob", "alice", "hello")

	ts := NewThreadStore(svc, "alice", "alice_a")
	_, err := ts.Open(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, ts.Messages(), 1)

	mem.FailWith(errors.New("store down"))
	_, err = ts.Open(context.Background(), "carol")
	require.Error(t, err)
	_, ok := common.AsNotice(err)
	assert.True(t, ok)
	assert.Len(t, ts.Messages(), 1, "failed load keeps the previous thread")
}

func TestThreadStore_EditKeepsPosition(t *testing.T) {
	mem, svc := newThreadFixture(t)
	first := seedMessage(t, mem, "alice", "bob", "one")
	seedMessage(t, mem, "bob", "alice", "two")
	seedMessage(t, mem, "alice", "bob", "three")

	ts := NewThreadStore(svc, "alice", "alice_a")
	_, err := ts.Open(context.Background(), "bob")
	require.NoError(t, err)

	require.NoError(t, ts.Edit(context.Background(), first.ID, "one, edited"))

	msgs := ts.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, first.ID, msgs[0].ID, "edited message must not move")
	assert.Equal(t, "one, edited", msgs[0].Content)
	assert.NotNil(t, msgs[0].EditedAt)
}

func TestThreadStore_EditRejectsOthersMessages(t *testing.T) {
	mem, svc := newThreadFixture(t)
	incoming := seedMessage(t, mem, "bob", "alice", "from bob")

	ts := NewThreadStore(svc, "alice", "alice_a")
	_, err := ts.Open(context.Background(), "bob")
	require.NoError(t, err)

	err = ts.Edit(context.Background(), incoming.ID, "hijacked")
	require.Error(t, err)
	notice, ok := common.AsNotice(err)
	require.True(t, ok)
	assert.Contains(t, notice.Message, "your own messages")
	assert.Equal(t, "from bob", ts.Messages()[0].Content)
}

func TestThreadStore_DeleteIsTerminal(t *testing.T) {
	mem, svc := newThreadFixture(t)
	msg := seedMessage(t, mem, "alice", "bob", "gone soon")

	ts := NewThreadStore(svc, "alice", "alice_a")
	_, err := ts.Open(context.Background(), "bob")
	require.NoError(t, err)

	require.NoError(t, ts.Delete(context.Background(), msg.ID))
	assert.Empty(t, ts.Messages())

	_, err = mem.Messages.ByID(context.Background(), msg.ID)
	assert.Error(t, err, "row is gone at the store")

	// Deleting again is a no-op, not an error.
	assert.NoError(t, ts.Delete(context.Background(), msg.ID))

	// A full reload does not resurrect it.
	_, err = ts.Open(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, ts.Messages())
}

func TestThreadStore_ApplyEventScopedToOpenCounterpart(t *testing.T) {
	_, svc := newThreadFixture(t)
	ts := NewThreadStore(svc, "alice", "alice_a")
	_, err := ts.Open(context.Background(), "bob")
	require.NoError(t, err)

	fromCarol, err := svc.SendMessage(context.Background(), "carol", "alice", "other thread")
	require.NoError(t, err)

	applied := ts.ApplyEvent(realtime.Event{Table: realtime.TableMessages, Op: realtime.OpInsert, Message: fromCarol})
	assert.False(t, applied)
	assert.Empty(t, ts.Messages())
}

func TestThreadStore_ApplyEventUpdateAndDelete(t *testing.T) {
	mem, svc := newThreadFixture(t)
	msg := seedMessage(t, mem, "bob", "alice", "original")

	ts := NewThreadStore(svc, "alice", "alice_a")
	_, err := ts.Open(context.Background(), "bob")
	require.NoError(t, err)

	edited := msg.Clone()
	edited.Content = "edited elsewhere"
	applied := ts.ApplyEvent(realtime.Event{Table: realtime.TableMessages, Op: realtime.OpUpdate, Message: edited})
	assert.True(t, applied)
	assert.Equal(t, "edited elsewhere", ts.Messages()[0].Content)

	applied = ts.ApplyEvent(realtime.Event{Table: realtime.TableMessages, Op: realtime.OpDelete, Message: msg})
	assert.True(t, applied)
	assert.Empty(t, ts.Messages())

	// Update for a row we no longer hold is ignored.
	applied = ts.ApplyEvent(realtime.Event{Table: realtime.TableMessages, Op: realtime.OpUpdate, Message: edited})
	assert.False(t, applied)
}

func TestThreadStore_CloseStopsEventFlow(t *testing.T) {
	mem, svc := newThreadFixture(t)
	msg := seedMessage(t, mem, "bob", "alice", "hello")

	ts := NewThreadStore(svc, "alice", "alice_a")
	_, err := ts.Open(context.Background(), "bob")
	require.NoError(t, err)
	require.True(t, ts.IsOpen("bob"))

	ts.Close()
	assert.False(t, ts.IsOpen("bob"))
	assert.Empty(t, ts.Counterpart())

	applied := ts.ApplyEvent(realtime.Event{Table: realtime.TableMessages, Op: realtime.OpInsert, Message: msg})
	assert.False(t, applied)
}
