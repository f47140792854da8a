package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/researchhub/internal/clock"
	"github.com/smallbiznis/researchhub/internal/notification/domain"
	"github.com/smallbiznis/researchhub/internal/notification/repository"
	"github.com/smallbiznis/researchhub/internal/realtime"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type failingRepo struct {
	domain.Repository
}

func (failingRepo) Insert(context.Context, *domain.Notification) error {
	return errors.New("disk full")
}

type recordingPublisher struct {
	calls []snowflake.ID
}

func (p *recordingPublisher) PublishToUser(userID snowflake.ID, _ string, _ any) int {
	p.calls = append(p.calls, userID)
	return 0
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&domain.Notification{}))
	return db
}

func newService(t *testing.T, repo domain.Repository, publisher domain.Publisher, clk clock.Clock) domain.Dispatcher {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParam{
		Repo:      repo,
		Publisher: publisher,
		GenID:     node,
		Clock:     clk,
		Log:       zaptest.NewLogger(t),
	})
}

func TestNotifyReachesEverySessionOfUser(t *testing.T) {
	db := setupDB(t)
	manager := realtime.NewManager(realtime.ManagerParam{Clock: &clock.SystemClock{}, Log: zaptest.NewLogger(t)})
	svc := newService(t, repository.NewRepository(db), manager, &clock.SystemClock{})

	first, err := manager.Register("tab-1", 77)
	require.NoError(t, err)
	second, err := manager.Register("tab-2", 77)
	require.NoError(t, err)

	stored, err := svc.Notify(context.Background(), 77, domain.TypeChatCreated, "Chat room created", map[string]any{"projectId": "5"})
	require.NoError(t, err)

	for _, session := range []*realtime.Session{first, second} {
		select {
		case ev := <-session.Events():
			require.Equal(t, realtime.EventNotification, ev.Type)
			pushed, ok := ev.Data.(*domain.Notification)
			require.True(t, ok)
			require.Equal(t, stored.ID, pushed.ID)
		default:
			t.Fatalf("session %s received nothing", session.ID)
		}
	}
}

func TestNotifyStoresWhenUserOffline(t *testing.T) {
	db := setupDB(t)
	publisher := &recordingPublisher{}
	svc := newService(t, repository.NewRepository(db), publisher, &clock.SystemClock{})

	_, err := svc.Notify(context.Background(), 5, domain.TypeJoinRequest, "New join request", nil)
	require.NoError(t, err)
	require.Equal(t, []snowflake.ID{5}, publisher.calls)

	items, err := svc.ListForUser(context.Background(), 5, true, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, domain.TypeJoinRequest, items[0].Type)
	require.False(t, items[0].ReadStatus)
}

func TestNotifyDoesNotPushWhenStoreFails(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := newService(t, failingRepo{}, publisher, &clock.SystemClock{})

	_, err := svc.Notify(context.Background(), 5, domain.TypeRequestApproved, "Approved", nil)
	require.Error(t, err)
	require.Empty(t, publisher.calls)
}

func TestNotifyValidation(t *testing.T) {
	svc := newService(t, failingRepo{}, &recordingPublisher{}, &clock.SystemClock{})

	_, err := svc.Notify(context.Background(), 0, domain.TypeChatCreated, "", nil)
	require.ErrorIs(t, err, domain.ErrInvalidUser)

	_, err = svc.Notify(context.Background(), 1, "", "", nil)
	require.ErrorIs(t, err, domain.ErrInvalidType)
}

func TestListAndMarkRead(t *testing.T) {
	db := setupDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	svc := newService(t, repository.NewRepository(db), &recordingPublisher{}, clk)
	ctx := context.Background()

	older, err := svc.Notify(ctx, 9, domain.TypeRequestRejected, "Rejected", nil)
	require.NoError(t, err)
	clk.Advance(time.Minute)
	newer, err := svc.Notify(ctx, 9, domain.TypeRequestApproved, "Approved", nil)
	require.NoError(t, err)
	_, err = svc.Notify(ctx, 10, domain.TypeRequestApproved, "Approved", nil)
	require.NoError(t, err)

	items, err := svc.ListForUser(ctx, 9, false, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, newer.ID, items[0].ID)
	require.Equal(t, older.ID, items[1].ID)

	require.NoError(t, svc.MarkRead(ctx, 9, older.ID))
	require.NoError(t, svc.MarkRead(ctx, 9, older.ID))
	require.ErrorIs(t, svc.MarkRead(ctx, 10, older.ID), domain.ErrNotFound)

	unread, err := svc.ListForUser(ctx, 9, true, 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	require.Equal(t, newer.ID, unread[0].ID)
}
