package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"relaydesk-backend/internal/interaction/domain"
	"relaydesk-backend/internal/interaction/repository"
	"relaydesk-backend/pkg/database/dbtest"
	"relaydesk-backend/pkg/types"
)

type recordedEvent struct {
	ownerID, kind, severity string
}

type fakeActivity struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeActivity) Record(_ context.Context, ownerID, kind, severity, _ string, _ types.Metadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{ownerID, kind, severity})
}

type failingRepo struct {
	repository.InteractionRepository
}

func (failingRepo) Create(context.Context, *domain.Interaction) error {
	return errors.New("disk full")
}

type fakeIndex struct {
	upserts chan string
	ids     []string
}

func (f *fakeIndex) UpsertExchange(_ context.Context, id, _, _, _, _ string) error {
	f.upserts <- id
	return nil
}

func (f *fakeIndex) SemanticSearch(context.Context, string, string, int) ([]string, error) {
	return f.ids, nil
}

var base = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newLedger(t *testing.T, index ExchangeIndex) *ledgerUsecase {
	t.Helper()
	db := dbtest.New(t, &domain.Interaction{})
	return NewLedgerUsecase(repository.NewInteractionRepository(db), &fakeActivity{}, index).(*ledgerUsecase)
}

func record(t *testing.T, u *ledgerUsecase, channel types.Channel, direction, content string, at time.Time) *domain.Interaction {
	t.Helper()
	i := u.Record(context.Background(), RecordInput{
		OwnerID: "acc-1", ProfileID: "p-1", Channel: channel, Direction: direction, Content: content, At: at,
	})
	if i == nil {
		t.Fatalf("record %q failed", content)
	}
	return i
}

func contents(items []*domain.Interaction) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Content
	}
	return out
}

func TestRecentHistory_SessionWindowAndOrder(t *testing.T) {
	u := newLedger(t, nil)
	ctx := context.Background()

	record(t, u, types.ChannelEmail, types.DirectionInbound, "old", base.Add(-72*time.Hour))
	record(t, u, types.ChannelEmail, types.DirectionInbound, "first", base.Add(-2*time.Hour))
	record(t, u, types.ChannelEmail, types.DirectionOutbound, "second", base.Add(-time.Hour))
	record(t, u, types.ChannelEmail, types.DirectionInbound, "third", base)

	history, err := u.RecentHistory(ctx, "p-1", 0, domain.HistoryOptions{Channel: types.ChannelEmail})
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	got := contents(history)
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if !history[0].FromCustomer() || history[1].FromCustomer() {
		t.Error("direction not preserved")
	}

	all, err := u.RecentHistory(ctx, "p-1", 0, domain.HistoryOptions{CrossSession: true})
	if err != nil {
		t.Fatalf("RecentHistory cross-session: %v", err)
	}
	if len(all) != 4 || all[0].Content != "old" {
		t.Errorf("expected full history oldest first, got %v", contents(all))
	}
}

func TestRecentHistory_WindowAnchorsOnChannel(t *testing.T) {
	u := newLedger(t, nil)

	record(t, u, types.ChannelWhatsApp, types.DirectionInbound, "wa-old", base.Add(-50*time.Hour))
	record(t, u, types.ChannelWhatsApp, types.DirectionInbound, "wa-last", base.Add(-48*time.Hour))
	record(t, u, types.ChannelEmail, types.DirectionInbound, "email-now", base)

	history, err := u.RecentHistory(context.Background(), "p-1", 0, domain.HistoryOptions{Channel: types.ChannelWhatsApp})
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	// Anchored on the last WhatsApp contact, so the whole older session counts
	if len(history) != 3 || history[0].Content != "wa-old" {
		t.Errorf("unexpected history %v", contents(history))
	}

	history, err = u.RecentHistory(context.Background(), "p-1", 0, domain.HistoryOptions{})
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(history) != 1 || history[0].Content != "email-now" {
		t.Errorf("expected only the current session, got %v", contents(history))
	}
}

func TestRecentHistory_LimitKeepsNewest(t *testing.T) {
	u := newLedger(t, nil)
	for i := 0; i < 25; i++ {
		record(t, u, types.ChannelChat, types.DirectionInbound, string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
	}

	history, err := u.RecentHistory(context.Background(), "p-1", 0, domain.HistoryOptions{})
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(history) != domain.DefaultHistoryLimit {
		t.Fatalf("expected %d, got %d", domain.DefaultHistoryLimit, len(history))
	}
	if history[0].Content != "f" || history[len(history)-1].Content != "y" {
		t.Errorf("expected newest 20 ascending, got %v", contents(history))
	}
}

func TestRecentHistory_Empty(t *testing.T) {
	u := newLedger(t, nil)
	history, err := u.RecentHistory(context.Background(), "nobody", 5, domain.HistoryOptions{Channel: types.ChannelVoice})
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d", len(history))
	}
}

func TestRecord_FailureIsSwallowed(t *testing.T) {
	activity := &fakeActivity{}
	u := NewLedgerUsecase(failingRepo{}, activity, nil)

	got := u.Record(context.Background(), RecordInput{OwnerID: "acc-1", ProfileID: "p-1", Channel: types.ChannelChat, Direction: types.DirectionInbound, Content: "hi"})
	if got != nil {
		t.Fatalf("expected nil on failure, got %+v", got)
	}
	if len(activity.events) != 1 || activity.events[0].severity != "warning" || activity.events[0].ownerID != "acc-1" {
		t.Errorf("expected one warning activity, got %+v", activity.events)
	}
}

func TestRecord_IndexesOutboundOnly(t *testing.T) {
	index := &fakeIndex{upserts: make(chan string, 4)}
	u := newLedger(t, index)

	record(t, u, types.ChannelEmail, types.DirectionInbound, "question", base)
	reply := record(t, u, types.ChannelEmail, types.DirectionOutbound, "answer", base.Add(time.Minute))

	select {
	case id := <-index.upserts:
		if id != reply.ID {
			t.Errorf("expected outbound %s indexed, got %s", reply.ID, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("outbound reply was not indexed")
	}
	select {
	case id := <-index.upserts:
		t.Errorf("unexpected second upsert %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSimilarExchanges_KeepsRankingOrder(t *testing.T) {
	index := &fakeIndex{upserts: make(chan string, 8)}
	u := newLedger(t, index)

	a := record(t, u, types.ChannelEmail, types.DirectionOutbound, "pricing answer", base)
	b := record(t, u, types.ChannelEmail, types.DirectionOutbound, "hours answer", base.Add(time.Minute))
	index.ids = []string{b.ID, "gone", a.ID}

	similar, err := u.SimilarExchanges(context.Background(), "acc-1", "when are you open?", 3)
	if err != nil {
		t.Fatalf("SimilarExchanges: %v", err)
	}
	if len(similar) != 2 || similar[0].ID != b.ID || similar[1].ID != a.ID {
		t.Errorf("unexpected result %v", contents(similar))
	}

	none, err := newLedger(t, nil).SimilarExchanges(context.Background(), "acc-1", "anything", 3)
	if err != nil || none != nil {
		t.Errorf("expected nothing without an index, got %v %v", none, err)
	}
}
