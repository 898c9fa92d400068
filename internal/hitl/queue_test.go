package hitl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okenna/parentcare/internal/push"
	"github.com/okenna/parentcare/internal/safety"
	"github.com/okenna/parentcare/internal/session"
)

func newTestQueue(t *testing.T) (*Queue, *session.Registry, *push.Dispatcher) {
	t.Helper()
	registry := session.NewRegistry(nil, nil)
	dispatcher := push.NewDispatcher(8, nil)
	q := NewQueue(NewMemoryStore(), registry, dispatcher, nil)
	return q, registry, dispatcher
}

func TestCreateCaseIsIdempotentPerSession(t *testing.T) {
	q, registry, dispatcher := newTestQueue(t)
	ctx := context.Background()
	s := registry.Create(ctx)

	reviewer := dispatcher.SubscribeReviewer()
	defer dispatcher.Unsubscribe(reviewer)

	first, created, err := q.CreateCase(ctx, s.ID, safety.CategoryCrisis, "I can't go on")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusPending, first.Status)
	assert.Equal(t, PriorityHigh, first.Priority)

	second, created, err := q.CreateCase(ctx, s.ID, safety.CategoryMedical, "how much ibuprofen")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// The session points at the open case.
	caseID, err := registry.ActiveCase(s.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, caseID)

	// Reviewers hear about the case exactly once.
	require.Len(t, reviewer.Events(), 1)
	ev := <-reviewer.Events()
	assert.Equal(t, "new_case", ev.Type)
}

func TestCreateCasePriorityByCategory(t *testing.T) {
	q, registry, _ := newTestQueue(t)
	ctx := context.Background()

	crisis, _, err := q.CreateCase(ctx, registry.Create(ctx).ID, safety.CategoryCrisis, "x")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, crisis.Priority)

	medical, _, err := q.CreateCase(ctx, registry.Create(ctx).ID, safety.CategoryMedical, "x")
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, medical.Priority)
}

func TestClaimTransitions(t *testing.T) {
	q, registry, _ := newTestQueue(t)
	ctx := context.Background()
	s := registry.Create(ctx)

	c, _, err := q.CreateCase(ctx, s.ID, safety.CategoryLegal, "custody question")
	require.NoError(t, err)

	claimed, err := q.Claim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, claimed.Status)

	_, err = q.Claim(ctx, c.ID)
	assert.ErrorIs(t, err, ErrCaseClaimed)

	_, err = q.Claim(ctx, "missing")
	assert.ErrorIs(t, err, ErrCaseNotFound)

	_, err = q.Reply(ctx, c.ID, "talk to a family lawyer")
	require.NoError(t, err)
	_, err = q.Claim(ctx, c.ID)
	assert.ErrorIs(t, err, ErrCaseResolved)
}

func TestReplyResolvesAndDelivers(t *testing.T) {
	q, registry, dispatcher := newTestQueue(t)
	ctx := context.Background()
	s := registry.Create(ctx)

	client := dispatcher.Subscribe(s.ID)
	defer dispatcher.Unsubscribe(client)
	reviewer := dispatcher.SubscribeReviewer()
	defer dispatcher.Unsubscribe(reviewer)

	c, _, err := q.CreateCase(ctx, s.ID, safety.CategoryTherapy, "I feel hopeless lately")
	require.NoError(t, err)
	<-reviewer.Events() // new_case

	resolved, err := q.Reply(ctx, c.ID, "Thank you for sharing. Please consider talking to a counselor.")
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.False(t, resolved.ResolvedAt.Before(resolved.CreatedAt))

	// Reply lands in the transcript with the reviewer role.
	history, err := registry.History(s.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, session.RoleReviewer, history[0].Role)
	assert.Contains(t, history[0].Text, "counselor")

	// Parent's channel receives the reply.
	select {
	case ev := <-client.Events():
		assert.Equal(t, "reviewer_reply", ev.Type)
		msg, ok := ev.Data.(session.Message)
		require.True(t, ok)
		assert.Equal(t, session.RoleReviewer, msg.Role)
	case <-time.After(time.Second):
		t.Fatal("reviewer reply not delivered")
	}

	// Session is released and reviewers see the resolution.
	caseID, err := registry.ActiveCase(s.ID)
	require.NoError(t, err)
	assert.Empty(t, caseID)

	ev := <-reviewer.Events()
	assert.Equal(t, "case_resolved", ev.Type)
}

func TestReplyOnResolvedCaseFails(t *testing.T) {
	q, registry, _ := newTestQueue(t)
	ctx := context.Background()
	s := registry.Create(ctx)

	c, _, err := q.CreateCase(ctx, s.ID, safety.CategoryCrisis, "trigger")
	require.NoError(t, err)

	_, err = q.Reply(ctx, c.ID, "first reply")
	require.NoError(t, err)

	_, err = q.Reply(ctx, c.ID, "second reply")
	assert.ErrorIs(t, err, ErrCaseResolved)

	// No duplicate message reaches the transcript.
	history, err := registry.History(s.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "first reply", history[0].Text)
}

func TestReplyWithoutOpenChannel(t *testing.T) {
	q, registry, _ := newTestQueue(t)
	ctx := context.Background()
	s := registry.Create(ctx)

	c, _, err := q.CreateCase(ctx, s.ID, safety.CategoryPII, "trigger")
	require.NoError(t, err)

	// No subscribed client: the reply still resolves and persists.
	_, err = q.Reply(ctx, c.ID, "we removed the personal details")
	require.NoError(t, err)

	history, err := registry.History(s.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestListCasesOrdering(t *testing.T) {
	store := NewMemoryStore()
	q := NewQueue(store, session.NewRegistry(nil, nil), push.NewDispatcher(8, nil), nil)
	ctx := context.Background()
	base := time.Now()

	seed := []Case{
		{ID: "c1", SessionID: "s1", Priority: PriorityMedium, CreatedAt: base},
		{ID: "c2", SessionID: "s2", Priority: PriorityHigh, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "c3", SessionID: "s3", Priority: PriorityHigh, CreatedAt: base.Add(time.Minute)},
	}
	for _, c := range seed {
		_, created, err := store.Create(ctx, c)
		require.NoError(t, err)
		require.True(t, created)
	}

	cases, err := q.ListCases(ctx, StatusPending)
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, "c3", cases[0].ID)
	assert.Equal(t, "c2", cases[1].ID)
	assert.Equal(t, "c1", cases[2].ID)

	resolved, err := q.ListCases(ctx, StatusResolved)
	require.NoError(t, err)
	assert.Empty(t, resolved)
}
