package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/researchhub/internal/activation"
	"github.com/smallbiznis/researchhub/internal/authorization"
	"github.com/smallbiznis/researchhub/internal/clock"
	"github.com/smallbiznis/researchhub/internal/collaboration/domain"
	membershipdomain "github.com/smallbiznis/researchhub/internal/membership/domain"
	membershiprepository "github.com/smallbiznis/researchhub/internal/membership/repository"
	"github.com/smallbiznis/researchhub/internal/migration"
	notificationdomain "github.com/smallbiznis/researchhub/internal/notification/domain"
	notificationrepository "github.com/smallbiznis/researchhub/internal/notification/repository"
	notificationservice "github.com/smallbiznis/researchhub/internal/notification/service"
	projectdomain "github.com/smallbiznis/researchhub/internal/project/domain"
	projectrepository "github.com/smallbiznis/researchhub/internal/project/repository"
	"github.com/smallbiznis/researchhub/internal/ratelimit"
	"github.com/smallbiznis/researchhub/internal/realtime"
	"github.com/smallbiznis/researchhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const ownerID snowflake.ID = 1

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	projects projectdomain.Repository
	manager  *realtime.Manager
	locker   ratelimit.ProjectLocker
	svc      domain.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)
	require.NoError(t, migration.Migrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	manager := realtime.NewManager(realtime.ManagerParam{Clock: clk, Log: log})
	projects := projectrepository.NewRepository(conn)
	members := membershiprepository.NewRepository(conn, node, clk)
	notifier := notificationservice.NewService(notificationservice.ServiceParam{
		Repo:      notificationrepository.NewRepository(conn),
		Publisher: manager,
		GenID:     node,
		Clock:     clk,
		Log:       log,
	})
	locker := ratelimit.NewLocalProjectLocker()
	activator := activation.NewService(activation.ServiceParam{
		DB:       conn,
		Projects: projects,
		Members:  members,
		Notifier: notifier,
		Realtime: manager,
		Locker:   locker,
		GenID:    node,
		Clock:    clk,
		Log:      log,
	})

	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:         conn,
		Members:    members,
		Projects:   projects,
		Authz:      authorization.NewService(authorization.Params{DB: conn, Log: log, Enforcer: enforcer}),
		Activation: activator,
		Notifier:   notifier,
		Realtime:   manager,
		Clock:      clk,
		Log:        log,
	})

	return &fixture{db: conn, node: node, projects: projects, manager: manager, locker: locker, svc: svc}
}

func (f *fixture) project(t *testing.T, required int) projectdomain.Project {
	t.Helper()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	p := projectdomain.Project{
		ID:                    f.node.Generate(),
		OwnerID:               ownerID,
		Title:                 "Soil Microbiome",
		RequiredCollaborators: required,
		Status:                projectdomain.StatusPlanning,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	require.NoError(t, f.projects.Create(context.Background(), p))
	return p
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func TestSubmitRequest(t *testing.T) {
	f := setup(t)
	p := f.project(t, 2)
	ctx := context.Background()

	req, err := f.svc.SubmitRequest(ctx, p.ID, 10, "  I run the sequencer ")
	require.NoError(t, err)
	require.Equal(t, membershipdomain.StatusPending, req.Status)
	require.Equal(t, "I run the sequencer", req.RequestMessage)

	require.EqualValues(t, 1, f.count(t, &notificationdomain.Notification{}, "user_id = ? AND type = ?", ownerID, notificationdomain.TypeJoinRequest))
}

func TestSubmitRequestErrors(t *testing.T) {
	f := setup(t)
	p := f.project(t, 2)
	ctx := context.Background()

	_, err := f.svc.SubmitRequest(ctx, 424242, 10, "")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.SubmitRequest(ctx, p.ID, ownerID, "")
	require.ErrorIs(t, err, domain.ErrConflict)
	require.ErrorIs(t, err, domain.ErrSelfRequest)

	_, err = f.svc.SubmitRequest(ctx, p.ID, 0, "")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.SubmitRequest(ctx, p.ID, 10, "")
	require.NoError(t, err)
	_, err = f.svc.SubmitRequest(ctx, p.ID, 10, "")
	require.ErrorIs(t, err, domain.ErrPendingRequestExists)
}

func TestSubmitByApprovedMemberConflicts(t *testing.T) {
	f := setup(t)
	p := f.project(t, 3)
	ctx := context.Background()

	req, err := f.svc.SubmitRequest(ctx, p.ID, 10, "")
	require.NoError(t, err)
	_, err = f.svc.RespondToRequest(ctx, domain.RespondRequest{RequestID: req.ID, Decision: domain.DecisionApprove, ResponderID: ownerID})
	require.NoError(t, err)

	_, err = f.svc.SubmitRequest(ctx, p.ID, 10, "again")
	require.ErrorIs(t, err, domain.ErrConflict)
	require.ErrorIs(t, err, domain.ErrAlreadyMember)
}

func TestRejectThenResubmit(t *testing.T) {
	f := setup(t)
	p := f.project(t, 2)
	ctx := context.Background()

	session, err := f.manager.Register("requester-tab", 10)
	require.NoError(t, err)

	req, err := f.svc.SubmitRequest(ctx, p.ID, 10, "")
	require.NoError(t, err)

	res, err := f.svc.RespondToRequest(ctx, domain.RespondRequest{RequestID: req.ID, Decision: domain.DecisionReject, ResponseMessage: "Full team", ResponderID: ownerID})
	require.NoError(t, err)
	require.Equal(t, membershipdomain.StatusRejected, res.Request.Status)
	require.Nil(t, res.Membership)
	require.False(t, res.ChatActivated)

	types := map[string]int{}
	for len(session.Events()) > 0 {
		types[(<-session.Events()).Type]++
	}
	require.Equal(t, 1, types[realtime.EventNotification])
	require.Equal(t, 1, types[realtime.EventRequestResponded])

	require.EqualValues(t, 0, f.count(t, &membershipdomain.Membership{}, "project_id = ?", p.ID))

	_, err = f.svc.SubmitRequest(ctx, p.ID, 10, "second try")
	require.NoError(t, err)
}

func TestRespondErrors(t *testing.T) {
	f := setup(t)
	p := f.project(t, 2)
	ctx := context.Background()

	_, err := f.svc.RespondToRequest(ctx, domain.RespondRequest{RequestID: 777, Decision: domain.DecisionApprove, ResponderID: ownerID})
	require.ErrorIs(t, err, domain.ErrNotFound)

	req, err := f.svc.SubmitRequest(ctx, p.ID, 10, "")
	require.NoError(t, err)

	_, err = f.svc.RespondToRequest(ctx, domain.RespondRequest{RequestID: req.ID, Decision: "perhaps", ResponderID: ownerID})
	require.ErrorIs(t, err, domain.ErrInvalidDecision)

	_, err = f.svc.RespondToRequest(ctx, domain.RespondRequest{RequestID: req.ID, Decision: domain.DecisionApprove, ResponderID: 99})
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.RespondToRequest(ctx, domain.RespondRequest{RequestID: req.ID, Decision: domain.DecisionApprove, ResponderID: ownerID})
	require.NoError(t, err)

	_, err = f.svc.RespondToRequest(ctx, domain.RespondRequest{RequestID: req.ID, Decision: domain.DecisionReject, ResponderID: ownerID})
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestConcurrentRespondHasOneWinner(t *testing.T) {
	f := setup(t)
	p := f.project(t, 5)
	ctx := context.Background()

	req, err := f.svc.SubmitRequest(ctx, p.ID, 10, "")
	require.NoError(t, err)

	decisions := []domain.Decision{domain.DecisionApprove, domain.DecisionReject, domain.DecisionApprove, domain.DecisionReject}
	errs := make([]error, len(decisions))
	var wg sync.WaitGroup
	for i, decision := range decisions {
		wg.Add(1)
		go func(i int, decision domain.Decision) {
			defer wg.Done()
			_, errs[i] = f.svc.RespondToRequest(ctx, domain.RespondRequest{RequestID: req.ID, Decision: decision, ResponderID: ownerID})
		}(i, decision)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, domain.ErrInvalidState)
	}
	require.Equal(t, 1, succeeded)
	require.LessOrEqual(t, f.count(t, &membershipdomain.Membership{}, "project_id = ?", p.ID), int64(1))
}

func TestTwoCollaboratorScenario(t *testing.T) {
	f := setup(t)
	p := f.project(t, 2)
	ctx := context.Background()

	reqA, err := f.svc.SubmitRequest(ctx, p.ID, 10, "")
	require.NoError(t, err)
	reqB, err := f.svc.SubmitRequest(ctx, p.ID, 11, "")
	require.NoError(t, err)

	first, err := f.svc.RespondToRequest(ctx, domain.RespondRequest{RequestID: reqA.ID, Decision: domain.DecisionApprove, ResponderID: ownerID})
	require.NoError(t, err)
	require.False(t, first.ChatActivated)

	loaded, err := f.projects.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, projectdomain.StatusPlanning, loaded.Status)

	second, err := f.svc.RespondToRequest(ctx, domain.RespondRequest{RequestID: reqB.ID, Decision: domain.DecisionApprove, ResponderID: ownerID})
	require.NoError(t, err)
	require.True(t, second.ChatActivated)

	loaded, err = f.projects.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, projectdomain.StatusActive, loaded.Status)

	require.EqualValues(t, 1, f.count(t, &projectdomain.ChatRoom{}, "project_id = ?", p.ID))
	require.EqualValues(t, 2, f.count(t, &notificationdomain.Notification{}, "type = ?", notificationdomain.TypeChatCreated))
	require.EqualValues(t, 1, f.count(t, &notificationdomain.Notification{}, "type = ? AND user_id = ?", notificationdomain.TypeChatCreated, 10))
	require.EqualValues(t, 1, f.count(t, &notificationdomain.Notification{}, "type = ? AND user_id = ?", notificationdomain.TypeChatCreated, 11))
}

func TestCollaboratorCannotRespond(t *testing.T) {
	f := setup(t)
	p := f.project(t, 3)
	ctx := context.Background()

	first, err := f.svc.SubmitRequest(ctx, p.ID, 10, "")
	require.NoError(t, err)
	_, err = f.svc.RespondToRequest(ctx, domain.RespondRequest{RequestID: first.ID, Decision: domain.DecisionApprove, ResponderID: ownerID})
	require.NoError(t, err)

	second, err := f.svc.SubmitRequest(ctx, p.ID, 11, "")
	require.NoError(t, err)
	_, err = f.svc.RespondToRequest(ctx, domain.RespondRequest{RequestID: second.ID, Decision: domain.DecisionApprove, ResponderID: 10})
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.RespondToRequest(ctx, domain.RespondRequest{RequestID: second.ID, Decision: domain.DecisionApprove, ResponderID: 0})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestApprovalCompletesAfterCallerDeadline(t *testing.T) {
	f := setup(t)
	p := f.project(t, 1)

	req, err := f.svc.SubmitRequest(context.Background(), p.ID, 10, "")
	require.NoError(t, err)

	// Hold the project lock so activation is still waiting when the caller gives up.
	unlock, err := f.locker.Lock(context.Background(), p.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan *domain.RespondResult, 1)
	go func() {
		res, err := f.svc.RespondToRequest(ctx, domain.RespondRequest{RequestID: req.ID, Decision: domain.DecisionApprove, ResponderID: ownerID})
		if !assert.NoError(t, err) {
			done <- nil
			return
		}
		done <- res
	}()

	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	unlock()

	var res *domain.RespondResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("respond did not return")
	}
	require.NotNil(t, res)
	require.True(t, res.ChatActivated)

	loaded, err := f.projects.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, projectdomain.StatusActive, loaded.Status)
	require.EqualValues(t, 1, f.count(t, &projectdomain.ChatRoom{}, "project_id = ?", p.ID))
	require.EqualValues(t, 1, f.count(t, &notificationdomain.Notification{}, "user_id = ? AND type = ?", snowflake.ID(10), notificationdomain.TypeRequestApproved))
	require.EqualValues(t, 1, f.count(t, &notificationdomain.Notification{}, "user_id = ? AND type = ?", snowflake.ID(10), notificationdomain.TypeChatCreated))
}
