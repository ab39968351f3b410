package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"helpboard/internal/models"
	"helpboard/internal/notifications"
	"helpboard/internal/repository"
	"helpboard/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []notifications.ChatEvent
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, requestID uint, ev notifications.ChatEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev.RequestID = requestID
	p.events = append(p.events, ev)
	return p.err
}

func (p *capturePublisher) ofType(typ string) []notifications.ChatEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notifications.ChatEvent
	for _, ev := range p.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	db        *gorm.DB
	svc       *RequestService
	gate      *ChatGate
	pub       *capturePublisher
	owner     *models.User
	requester *models.User
	outsider  *models.User
	item      *models.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	pub := &capturePublisher{}
	svc := NewRequestService(db, repository.NewRequestRepository(db), pub)
	gate := NewChatGate(svc, NewMessageRelay(pub), repository.NewMessageRepository(db), 0)

	owner := testutil.CreateUser(t, db, "Owner")
	requester := testutil.CreateUser(t, db, "Requester")
	outsider := testutil.CreateUser(t, db, "Outsider")
	return &fixture{
		db:        db,
		svc:       svc,
		gate:      gate,
		pub:       pub,
		owner:     owner,
		requester: requester,
		outsider:  outsider,
		item:      testutil.CreateItem(t, db, owner.ID),
	}
}

func (f *fixture) itemStatus(t *testing.T) models.ItemStatus {
	t.Helper()
	var it models.Item
	require.NoError(t, f.db.Unscoped().First(&it, f.item.ID).Error)
	return it.Status
}

func (f *fixture) approved(t *testing.T) *models.Request {
	t.Helper()
	req, err := f.svc.Open(context.Background(), f.item.ID, f.requester.ID)
	require.NoError(t, err)
	req, err = f.svc.Transition(context.Background(), req.ID, f.owner.ID, models.RequestApproved)
	require.NoError(t, err)
	return req
}

func TestOpen_CreatesPendingAndReservesItem(t *testing.T) {
	f := newFixture(t)

	req, err := f.svc.Open(context.Background(), f.item.ID, f.requester.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)
	assert.Equal(t, f.requester.ID, req.RequesterID)
	assert.Equal(t, f.owner.ID, req.OwnerID())
	assert.Nil(t, req.ApprovedAt)
	assert.Equal(t, models.ItemRequested, f.itemStatus(t))
}

func TestOpen_Rejections(t *testing.T) {
	t.Run("Own item", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Open(context.Background(), f.item.ID, f.owner.ID)
		assert.ErrorIs(t, err, models.ErrSelfReference)
		assert.Equal(t, models.ItemAvailable, f.itemStatus(t))
	})

	t.Run("Missing item", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Open(context.Background(), 9999, f.requester.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("Item already requested", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Open(context.Background(), f.item.ID, f.requester.ID)
		require.NoError(t, err)
		_, err = f.svc.Open(context.Background(), f.item.ID, f.outsider.ID)
		assert.ErrorIs(t, err, models.ErrTargetUnavailable)
	})

	t.Run("Open request with drifted item status", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Open(context.Background(), f.item.ID, f.requester.ID)
		require.NoError(t, err)
		require.NoError(t, f.db.Model(&models.Item{}).Where("id = ?", f.item.ID).
			Update("status", models.ItemAvailable).Error)

		_, err = f.svc.Open(context.Background(), f.item.ID, f.outsider.ID)
		assert.ErrorIs(t, err, models.ErrDuplicateOpenRequest)
	})
}

func TestOpen_ConcurrentCallsExactlyOneWins(t *testing.T) {
	f := newFixture(t)

	const callers = 12
	requesters := make([]*models.User, callers)
	for i := range requesters {
		requesters[i] = testutil.CreateUser(t, f.db, "")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	for _, u := range requesters {
		wg.Add(1)
		go func(uid uint) {
			defer wg.Done()
			<-start
			_, err := f.svc.Open(context.Background(), f.item.ID, uid)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}(u.ID)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.True(t,
			errors.Is(err, models.ErrTargetUnavailable) || errors.Is(err, models.ErrDuplicateOpenRequest),
			"unexpected error %v", err)
	}

	var open int64
	require.NoError(t, f.db.Model(&models.Request{}).
		Where("item_id = ? AND status IN ?", f.item.ID, []string{"PENDING", "APPROVED"}).
		Count(&open).Error)
	assert.Equal(t, int64(1), open)
	assert.Equal(t, models.ItemRequested, f.itemStatus(t))
	assert.Equal(t, 0, f.svc.locks.size())
}

func TestOpen_RollsBackWhenItemUpdateFails(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("test:fail_items", func(tx *gorm.DB) {
		if tx.Statement.Table == "items" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	_, err := f.svc.Open(context.Background(), f.item.ID, f.requester.ID)
	assert.ErrorIs(t, err, models.ErrInternal)

	var count int64
	require.NoError(t, f.db.Model(&models.Request{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, models.ItemAvailable, f.itemStatus(t))
}

func TestTransition_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("Approve", func(t *testing.T) {
		f := newFixture(t)
		req, err := f.svc.Open(ctx, f.item.ID, f.requester.ID)
		require.NoError(t, err)

		req, err = f.svc.Transition(ctx, req.ID, f.owner.ID, models.RequestApproved)
		require.NoError(t, err)
		assert.Equal(t, models.RequestApproved, req.Status)
		assert.NotNil(t, req.ApprovedAt)
		assert.Nil(t, req.ClosedAt)
		assert.Equal(t, models.ItemApproved, f.itemStatus(t))

		open, err := f.svc.IsOpenForMessaging(ctx, req.ID)
		require.NoError(t, err)
		assert.True(t, open)

		status := f.pub.ofType(notifications.EventStatus)
		require.Len(t, status, 1)
		assert.Equal(t, req.ID, status[0].RequestID)
		assert.True(t, status[0].Payload.(notifications.StatusPayload).ChatActive)
	})

	t.Run("Reject frees the item", func(t *testing.T) {
		f := newFixture(t)
		req, err := f.svc.Open(ctx, f.item.ID, f.requester.ID)
		require.NoError(t, err)

		req, err = f.svc.Transition(ctx, req.ID, f.owner.ID, models.RequestRejected)
		require.NoError(t, err)
		assert.Equal(t, models.RequestRejected, req.Status)
		assert.NotNil(t, req.ClosedAt)
		assert.Equal(t, models.ItemAvailable, f.itemStatus(t))

		again, err := f.svc.Open(ctx, f.item.ID, f.outsider.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestPending, again.Status)
	})

	t.Run("Return completes the item", func(t *testing.T) {
		f := newFixture(t)
		req := f.approved(t)

		req, err := f.svc.Transition(ctx, req.ID, f.owner.ID, models.RequestReturned)
		require.NoError(t, err)
		assert.Equal(t, models.RequestReturned, req.Status)
		assert.NotNil(t, req.ClosedAt)
		assert.NotNil(t, req.ApprovedAt)
		assert.Equal(t, models.ItemCompleted, f.itemStatus(t))

		open, err := f.svc.IsOpenForMessaging(ctx, req.ID)
		require.NoError(t, err)
		assert.False(t, open)
	})

	t.Run("Non-owner is forbidden", func(t *testing.T) {
		f := newFixture(t)
		req, err := f.svc.Open(ctx, f.item.ID, f.requester.ID)
		require.NoError(t, err)

		for _, actor := range []uint{f.outsider.ID, f.requester.ID} {
			_, err = f.svc.Transition(ctx, req.ID, actor, models.RequestApproved)
			assert.ErrorIs(t, err, models.ErrForbidden)
		}
		assert.Equal(t, models.ItemRequested, f.itemStatus(t))
		assert.Empty(t, f.pub.ofType(notifications.EventStatus))
	})

	t.Run("Edges outside the graph", func(t *testing.T) {
		f := newFixture(t)
		req, err := f.svc.Open(ctx, f.item.ID, f.requester.ID)
		require.NoError(t, err)

		_, err = f.svc.Transition(ctx, req.ID, f.owner.ID, models.RequestReturned)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
		_, err = f.svc.Transition(ctx, req.ID, f.owner.ID, models.RequestPending)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)

		_, err = f.svc.Transition(ctx, req.ID, f.owner.ID, models.RequestRejected)
		require.NoError(t, err)
		_, err = f.svc.Transition(ctx, req.ID, f.owner.ID, models.RequestApproved)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
		assert.Equal(t, models.ItemAvailable, f.itemStatus(t))
	})

	t.Run("Missing request", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Transition(ctx, 404, f.owner.ID, models.RequestApproved)
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = f.svc.IsOpenForMessaging(ctx, 404)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestTransition_RollsBackRequestWhenItemUpdateFails(t *testing.T) {
	f := newFixture(t)
	req, err := f.svc.Open(context.Background(), f.item.ID, f.requester.ID)
	require.NoError(t, err)

	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("test:fail_items", func(tx *gorm.DB) {
		if tx.Statement.Table == "items" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	_, err = f.svc.Transition(context.Background(), req.ID, f.owner.ID, models.RequestApproved)
	assert.ErrorIs(t, err, models.ErrInternal)

	var stored models.Request
	require.NoError(t, f.db.First(&stored, req.ID).Error)
	assert.Equal(t, models.RequestPending, stored.Status)
	assert.Nil(t, stored.ApprovedAt)
	assert.Equal(t, models.ItemRequested, f.itemStatus(t))
}

func TestChatGate_SendMatrix(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req, err := f.svc.Open(ctx, f.item.ID, f.requester.ID)
	require.NoError(t, err)

	requester := f.requester.Identity()
	owner := f.owner.Identity()
	outsider := f.outsider.Identity()

	_, err = f.gate.Send(ctx, requester, 404, "hi")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.gate.Send(ctx, requester, req.ID, "hi")
	assert.ErrorIs(t, err, models.ErrChatNotActive, "pending request")
	_, err = f.gate.Send(ctx, outsider, req.ID, "hi")
	assert.ErrorIs(t, err, models.ErrChatNotActive, "status is checked before membership")

	_, err = f.svc.Transition(ctx, req.ID, f.owner.ID, models.RequestApproved)
	require.NoError(t, err)

	_, err = f.gate.Send(ctx, outsider, req.ID, "hi")
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.gate.Send(ctx, requester, req.ID, "   \n\t")
	assert.ErrorIs(t, err, models.ErrEmptyMessage)
	_, err = f.gate.Send(ctx, requester, req.ID, strings.Repeat("x", DefaultMaxMessageLength+1))
	assert.ErrorIs(t, err, models.ErrValidation)

	first, err := f.gate.Send(ctx, requester, req.ID, "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, "hi", first.Text)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, "Requester", first.SenderName)

	second, err := f.gate.Send(ctx, owner, req.ID, "hello back")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Seq)

	msgs := f.pub.ofType(notifications.EventMessage)
	require.Len(t, msgs, 2)
	assert.Equal(t, req.ID, msgs[0].RequestID)

	_, err = f.svc.Transition(ctx, req.ID, f.owner.ID, models.RequestReturned)
	require.NoError(t, err)
	_, err = f.gate.Send(ctx, owner, req.ID, "too late")
	assert.ErrorIs(t, err, models.ErrChatNotActive)

	var stored int64
	require.NoError(t, f.db.Model(&models.Message{}).Where("request_id = ?", req.ID).Count(&stored).Error)
	assert.Equal(t, int64(2), stored)
}

func TestChatGate_SendSurvivesPublishFailure(t *testing.T) {
	f := newFixture(t)
	req := f.approved(t)
	f.pub.err = errors.New("redis down")

	view, err := f.gate.Send(context.Background(), f.requester.Identity(), req.ID, "still saved")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), view.Seq)
}

func TestChatGate_BroadcastReachesBothParticipants(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	hub := notifications.NewRequestHub()
	fan := notifications.NewFanout(hub, nil)
	svc := NewRequestService(db, repository.NewRequestRepository(db), fan)
	gate := NewChatGate(svc, NewMessageRelay(fan), repository.NewMessageRepository(db), 0)

	owner := testutil.CreateUser(t, db, "Owner")
	requester := testutil.CreateUser(t, db, "Requester")
	item := testutil.CreateItem(t, db, owner.ID)

	req, err := svc.Open(ctx, item.ID, requester.ID)
	require.NoError(t, err)

	ownerConn := notifications.NewClient(hub, nil, "owner-conn")
	requesterConn := notifications.NewClient(hub, nil, "requester-conn")
	for _, c := range []*notifications.Client{ownerConn, requesterConn} {
		hub.Register(c)
		hub.Subscribe(req.ID, c)
	}

	_, err = gate.Send(ctx, requester.Identity(), req.ID, "hi")
	assert.ErrorIs(t, err, models.ErrChatNotActive)

	_, err = svc.Transition(ctx, req.ID, owner.ID, models.RequestApproved)
	require.NoError(t, err)
	_, err = gate.Send(ctx, requester.Identity(), req.ID, "hi")
	require.NoError(t, err)

	for _, c := range []*notifications.Client{ownerConn, requesterConn} {
		require.Len(t, c.Send, 2, "status then message for %s", c.ConnID)
		var status, msg notifications.ChatEvent
		require.NoError(t, json.Unmarshal(<-c.Send, &status))
		require.NoError(t, json.Unmarshal(<-c.Send, &msg))
		assert.Equal(t, notifications.EventStatus, status.Type)
		assert.Equal(t, notifications.EventMessage, msg.Type)
		assert.Equal(t, req.ID, msg.RequestID)
		assert.Equal(t, "hi", msg.Payload.(map[string]any)["text"])
	}
}

func TestChatGate_ConcurrentSendsKeepOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.approved(t)

	const perSender = 15
	var wg sync.WaitGroup
	for _, who := range []models.Identity{f.owner.Identity(), f.requester.Identity()} {
		wg.Add(1)
		go func(id models.Identity) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := f.gate.Send(ctx, id, req.ID, "msg")
				assert.NoError(t, err)
			}
		}(who)
	}
	wg.Wait()

	history, err := f.gate.History(ctx, f.owner.Identity(), req.ID, models.HistoryPage{})
	require.NoError(t, err)
	require.Len(t, history, 2*perSender)
	for i, m := range history {
		assert.Equal(t, uint64(i+1), m.Seq)
		if i > 0 {
			assert.False(t, m.Timestamp.Before(history[i-1].Timestamp), "timestamp went backwards at seq %d", m.Seq)
		}
	}
	assert.Equal(t, 0, f.svc.locks.size())
}

func TestChatGate_ReturnCutsOffInFlightSends(t *testing.T) {
	const rounds = 5
	const senders = 20

	for round := 0; round < rounds; round++ {
		ctx := context.Background()
		f := newFixture(t)
		req := f.approved(t)

		start := make(chan struct{})
		errs := make(chan error, senders)
		var wg sync.WaitGroup
		for i := 0; i < senders; i++ {
			who := f.requester.Identity()
			if i%2 == 0 {
				who = f.owner.Identity()
			}
			wg.Add(1)
			go func(id models.Identity) {
				defer wg.Done()
				<-start
				_, err := f.gate.Send(ctx, id, req.ID, "racing the return")
				errs <- err
			}(who)
		}

		returned := make(chan error, 1)
		go func() {
			<-start
			_, err := f.svc.Transition(ctx, req.ID, f.owner.ID, models.RequestReturned)
			returned <- err
		}()

		close(start)
		wg.Wait()
		require.NoError(t, <-returned)
		close(errs)

		accepted := 0
		for err := range errs {
			if err == nil {
				accepted++
				continue
			}
			assert.ErrorIs(t, err, models.ErrChatNotActive)
		}

		var closed models.Request
		require.NoError(t, f.db.First(&closed, req.ID).Error)
		require.NotNil(t, closed.ClosedAt)

		var stored []models.Message
		require.NoError(t, f.db.Where("request_id = ?", req.ID).Find(&stored).Error)
		assert.Len(t, stored, accepted, "round %d", round)
		for _, m := range stored {
			assert.False(t, m.CreatedAt.After(*closed.ClosedAt),
				"round %d: seq %d stored after the request closed", round, m.Seq)
		}

		_, err := f.gate.Send(ctx, f.requester.Identity(), req.ID, "too late")
		assert.ErrorIs(t, err, models.ErrChatNotActive)
	}
}

func TestChatGate_TimestampsNeverGoBackwards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.approved(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	f.gate.relay.now = func() time.Time {
		ts := clock[i]
		i++
		return ts
	}

	var views []*models.MessageView
	for range clock {
		v, err := f.gate.Send(ctx, f.requester.Identity(), req.ID, "tick")
		require.NoError(t, err)
		views = append(views, v)
	}

	assert.True(t, views[0].Timestamp.Equal(base))
	assert.True(t, views[1].Timestamp.Equal(base), "skewed clock is clamped to the last stored timestamp")
	assert.True(t, views[2].Timestamp.Equal(base.Add(time.Second)))
}

func TestChatGate_SubscribeAndHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req, err := f.svc.Open(ctx, f.item.ID, f.requester.ID)
	require.NoError(t, err)

	_, err = f.gate.AuthorizeSubscribe(ctx, f.requester.Identity(), req.ID)
	assert.NoError(t, err, "participants may wait for approval")
	_, err = f.gate.AuthorizeSubscribe(ctx, f.owner.Identity(), req.ID)
	assert.NoError(t, err)
	_, err = f.gate.AuthorizeSubscribe(ctx, f.outsider.Identity(), req.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.gate.AuthorizeSubscribe(ctx, f.owner.Identity(), 404)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.gate.History(ctx, f.outsider.Identity(), req.ID, models.HistoryPage{})
	assert.ErrorIs(t, err, models.ErrForbidden)

	history, err := f.gate.History(ctx, f.requester.Identity(), req.ID, models.HistoryPage{})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder entered while the key was locked")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	<-acquired
	unlockB()
	assert.Eventually(t, func() bool { return k.size() == 0 }, time.Second, 5*time.Millisecond)
}
