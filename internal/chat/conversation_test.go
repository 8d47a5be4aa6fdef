package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kmohamed-dz/abcher/internal/model"
	"github.com/kmohamed-dz/abcher/internal/realtime"
)

type fakeMessages struct {
	mu        sync.Mutex
	rows      []model.Message
	createErr error
	listErr   error
	seq       int
}

func (f *fakeMessages) ListConversation(_ context.Context, schoolID, a, b string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Message
	for _, row := range f.rows {
		if row.SchoolID == schoolID && row.InConversation(a, b) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeMessages) CreateMessage(_ context.Context, message model.Message) (model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return model.Message{}, f.createErr
	}
	f.seq++
	message.ID = fmt.Sprintf("m%d", f.seq)
	message.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(f.seq) * time.Second)
	f.rows = append(f.rows, message)
	return message, nil
}

func at(sec int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(sec) * time.Second)
}

func waitForCount(t *testing.T, conv *Conversation, want int) []model.Message {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		got := conv.Messages()
		if len(got) == want {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d messages, have %d", want, len(got))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendAppearsExactlyOnceDespiteBothPaths(t *testing.T) {
	store := &fakeMessages{}
	bus := realtime.NewMemoryBus()
	svc := NewService(store, bus, zap.NewNop())

	conv, err := svc.Open(context.Background(), "school-a", "alice", "bob")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer conv.Close()

	sent, err := conv.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	// The broadcast copy follows the insert response. Give the pump time
	// to deliver it, then check the list never grew past one entry.
	time.Sleep(50 * time.Millisecond)
	got := conv.Messages()
	if len(got) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(got))
	}
	if got[0].ID != sent.ID || got[0].Body != "hello" {
		t.Fatalf("unexpected message %+v", got[0])
	}
}

func TestBroadcastBeforeInsertResponseStillDeduplicates(t *testing.T) {
	store := &fakeMessages{}
	bus := realtime.NewMemoryBus()
	svc := NewService(store, bus, zap.NewNop())

	conv, err := svc.Open(context.Background(), "school-a", "alice", "bob")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer conv.Close()

	// Broadcast lands first, then the same row arrives as an insert
	// response.
	row := model.Message{ID: "m9", SchoolID: "school-a", SenderID: "alice", ReceiverID: "bob", Body: "hi", CreatedAt: at(1)}
	if err := bus.Publish(context.Background(), row); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	waitForCount(t, conv, 1)

	conv.apply(row)
	got := conv.Messages()
	if len(got) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(got))
	}
}

func TestApplyKeepsAscendingTimestampOrder(t *testing.T) {
	conv := &Conversation{byID: map[string]struct{}{}}

	rows := []model.Message{
		{ID: "m3", CreatedAt: at(3)},
		{ID: "m1", CreatedAt: at(1)},
		{ID: "m4", CreatedAt: at(4)},
		{ID: "m2", CreatedAt: at(2)},
	}
	for _, row := range rows {
		conv.apply(row)
	}

	got := conv.Messages()
	if len(got) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(got))
	}
	for i, want := range []string{"m1", "m2", "m3", "m4"} {
		if got[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, got[i].ID)
		}
	}
}

func TestApplyEqualTimestampsKeepArrivalOrder(t *testing.T) {
	conv := &Conversation{byID: map[string]struct{}{}}
	conv.apply(model.Message{ID: "first", CreatedAt: at(1)})
	conv.apply(model.Message{ID: "second", CreatedAt: at(1)})

	got := conv.Messages()
	if got[0].ID != "first" || got[1].ID != "second" {
		t.Fatalf("equal timestamps reordered: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestConversationFiltersOtherPairs(t *testing.T) {
	store := &fakeMessages{}
	bus := realtime.NewMemoryBus()
	svc := NewService(store, bus, zap.NewNop())

	conv, err := svc.Open(context.Background(), "school-a", "alice", "bob")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer conv.Close()

	if err := bus.Publish(context.Background(), model.Message{
		ID: "other", SchoolID: "school-a", SenderID: "carol", ReceiverID: "dave", CreatedAt: at(1),
	}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := bus.Publish(context.Background(), model.Message{
		ID: "mine", SchoolID: "school-a", SenderID: "bob", ReceiverID: "alice", CreatedAt: at(2),
	}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	got := waitForCount(t, conv, 1)
	if got[0].ID != "mine" {
		t.Fatalf("expected pair message, got %s", got[0].ID)
	}
}

func TestOpenLoadsHistory(t *testing.T) {
	store := &fakeMessages{rows: []model.Message{
		{ID: "m1", SchoolID: "school-a", SenderID: "alice", ReceiverID: "bob", Body: "old", CreatedAt: at(1)},
		{ID: "m2", SchoolID: "school-a", SenderID: "bob", ReceiverID: "alice", Body: "older reply", CreatedAt: at(2)},
		{ID: "mx", SchoolID: "school-a", SenderID: "carol", ReceiverID: "alice", Body: "unrelated", CreatedAt: at(3)},
	}}
	bus := realtime.NewMemoryBus()
	svc := NewService(store, bus, zap.NewNop())

	conv, err := svc.Open(context.Background(), "school-a", "alice", "bob")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer conv.Close()

	got := conv.Messages()
	if len(got) != 2 {
		t.Fatalf("expected 2 history messages, got %d", len(got))
	}
	if got[0].ID != "m1" || got[1].ID != "m2" {
		t.Fatalf("history out of order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestOpenReleasesSubscriptionOnLoadFailure(t *testing.T) {
	store := &fakeMessages{listErr: errors.New("relation does not exist")}
	bus := realtime.NewMemoryBus()
	svc := NewService(store, bus, zap.NewNop())

	if _, err := svc.Open(context.Background(), "school-a", "alice", "bob"); err == nil {
		t.Fatalf("expected load failure")
	}
	if n := bus.SubscriberCount("school-a"); n != 0 {
		t.Fatalf("expected subscription released, %d remain", n)
	}
}

func TestCloseReleasesSubscription(t *testing.T) {
	store := &fakeMessages{}
	bus := realtime.NewMemoryBus()
	svc := NewService(store, bus, zap.NewNop())

	conv, err := svc.Open(context.Background(), "school-a", "alice", "bob")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := conv.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if n := bus.SubscriberCount("school-a"); n != 0 {
		t.Fatalf("expected subscription released, %d remain", n)
	}
	if err := conv.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	// Events published after close never reach the list.
	_ = bus.Publish(context.Background(), model.Message{
		ID: "late", SchoolID: "school-a", SenderID: "bob", ReceiverID: "alice", CreatedAt: at(9),
	})
	time.Sleep(20 * time.Millisecond)
	if got := conv.Messages(); len(got) != 0 {
		t.Fatalf("closed conversation received %d events", len(got))
	}
}

func TestSendSurfacesStoreFailure(t *testing.T) {
	storeErr := errors.New("insert denied")
	store := &fakeMessages{createErr: storeErr}
	bus := realtime.NewMemoryBus()
	svc := NewService(store, bus, zap.NewNop())

	conv, err := svc.Open(context.Background(), "school-a", "alice", "bob")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer conv.Close()

	if _, err := conv.Send(context.Background(), "hello"); !errors.Is(err, storeErr) {
		t.Fatalf("expected store failure, got %v", err)
	}
	if got := conv.Messages(); len(got) != 0 {
		t.Fatalf("failed send left %d messages", len(got))
	}
}

func TestSendSucceedsWhenBroadcastFails(t *testing.T) {
	store := &fakeMessages{}
	svc := NewService(store, failingBus{}, zap.NewNop())

	message, err := svc.Send(context.Background(), "school-a", "alice", "bob", "hello")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if message.ID == "" {
		t.Fatalf("expected stored message id")
	}
}

type failingBus struct{}

func (failingBus) Publish(context.Context, model.Message) error {
	return errors.New("broker unavailable")
}

func (failingBus) Subscribe(context.Context, string) (realtime.Subscription, error) {
	return nil, errors.New("broker unavailable")
}
