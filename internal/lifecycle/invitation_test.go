package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"procurement/internal/lifecycle"
)

func TestCreateInvitationRequiresOrgAdmin(t *testing.T) {
	tc := newTestCore(newMemRepo())
	p := tc.seedProject(projectOpts{status: lifecycle.StatusBidding})
	tc.grantRole("staffer", "org-acme", lifecycle.RoleStaff)
	tc.repo.favorites["org-acme/c1"] = true

	_, err := tc.orch.CreateInvitation(context.Background(), p.ID, "c1", "staffer", 0)
	require.Equal(t, lifecycle.KindUnauthorized, lifecycle.KindOf(err))
}

func TestCreateInvitationRequiresFavorite(t *testing.T) {
	tc := newTestCore(newMemRepo())
	p := tc.seedProject(projectOpts{status: lifecycle.StatusBidding})
	tc.grantRole("owner", "org-acme", lifecycle.RoleOrgAdmin)

	_, err := tc.orch.CreateInvitation(context.Background(), p.ID, "c-stranger", "owner", 0)
	require.Equal(t, lifecycle.KindUnauthorized, lifecycle.KindOf(err))
}

func TestCreateInvitationClosedStatuses(t *testing.T) {
	tc := newTestCore(newMemRepo())
	tc.grantRole("owner", "org-acme", lifecycle.RoleOrgAdmin)
	tc.repo.favorites["org-acme/c1"] = true

	for _, status := range []lifecycle.Status{
		lifecycle.StatusDraft,
		lifecycle.StatusPriorityInvitation,
		lifecycle.StatusContracted,
		lifecycle.StatusCancelled,
	} {
		p := tc.seedProject(projectOpts{status: status})
		_, err := tc.orch.CreateInvitation(context.Background(), p.ID, "c1", "owner", 0)
		require.Equal(t, lifecycle.KindInvalidState, lifecycle.KindOf(err), "status %s", status)
	}
}

func TestCreateInvitationDefaultTTL(t *testing.T) {
	tc := newTestCore(newMemRepo())
	p := tc.seedProject(projectOpts{status: lifecycle.StatusBidding})
	tc.grantRole("owner", "org-acme", lifecycle.RoleOrgAdmin)
	tc.repo.favorites["org-acme/c1"] = true

	inv, err := tc.orch.CreateInvitation(context.Background(), p.ID, "c1", "owner", 0)
	require.NoError(t, err)
	require.Equal(t, tc.now.Add(24*time.Hour), inv.ExpiresAt)
	require.Equal(t, lifecycle.ResponsePending, inv.Response)
	require.NotEmpty(t, tc.notifier.byType("priority_invitation"))
}

func TestCreateInvitationCustomTTL(t *testing.T) {
	tc := newTestCore(newMemRepo())
	p := tc.seedProject(projectOpts{status: lifecycle.StatusBidding})
	tc.grantRole("owner", "org-acme", lifecycle.RoleOrgAdmin)
	tc.repo.favorites["org-acme/c1"] = true

	inv, err := tc.orch.CreateInvitation(context.Background(), p.ID, "c1", "owner", 72*time.Hour)
	require.NoError(t, err)
	require.Equal(t, tc.now.Add(72*time.Hour), inv.ExpiresAt)
}

// Однажды разрешенная пара проект+подрядчик не приглашается повторно.
func TestCreateInvitationDuplicatePair(t *testing.T) {
	tc := newTestCore(newMemRepo())
	p := tc.seedProject(projectOpts{status: lifecycle.StatusBidding})
	tc.grantRole("owner", "org-acme", lifecycle.RoleOrgAdmin)
	tc.repo.favorites["org-acme/c1"] = true

	_, err := tc.orch.CreateInvitation(context.Background(), p.ID, "c1", "owner", 0)
	require.NoError(t, err)

	_, err = tc.orch.CreateInvitation(context.Background(), p.ID, "c1", "owner", 0)
	require.Equal(t, lifecycle.KindAlreadyResolved, lifecycle.KindOf(err))

	// То же после отказа: GetInvitation видит и разрешенные приглашения.
	_, err = tc.orch.RespondInvitation(context.Background(), p.ID, "c1", lifecycle.ResponseDeclined, "")
	require.NoError(t, err)
	_, err = tc.orch.CreateInvitation(context.Background(), p.ID, "c1", "owner", 0)
	require.Equal(t, lifecycle.KindAlreadyResolved, lifecycle.KindOf(err))
}

// Принятие оставляет статус проекта как есть: обязательство возникает
// только с подписанным договором.
func TestRespondInvitationAccepted(t *testing.T) {
	tc := newTestCore(newMemRepo())
	tc.repo.admins["org-acme"] = []string{"owner"}
	p := tc.seedProject(projectOpts{
		status:    lifecycle.StatusPendingApproval,
		approvers: []string{"alice"},
		candidate: "c1",
	})
	_, err := tc.orch.Approve(context.Background(), p.ID, "alice", lifecycle.DecisionApprove, "")
	require.NoError(t, err)

	out, err := tc.orch.RespondInvitation(context.Background(), p.ID, "c1", lifecycle.ResponseAccepted, "happy to")
	require.NoError(t, err)
	require.Equal(t, lifecycle.ResponseAccepted, out.Response)
	require.Equal(t, lifecycle.StatusPriorityInvitation, out.ProjectStatus)

	stored, err := tc.repo.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusPriorityInvitation, stored.Status)
	require.NotEmpty(t, tc.notifier.byType("invitation_accepted"))
}

func TestRespondInvitationDeclinedRoutesToBidding(t *testing.T) {
	tc := newTestCore(newMemRepo())
	tc.repo.admins["org-acme"] = []string{"owner"}
	p := tc.seedProject(projectOpts{
		status:    lifecycle.StatusPendingApproval,
		approvers: []string{"alice"},
		candidate: "c1",
	})
	_, err := tc.orch.Approve(context.Background(), p.ID, "alice", lifecycle.DecisionApprove, "")
	require.NoError(t, err)

	out, err := tc.orch.RespondInvitation(context.Background(), p.ID, "c1", lifecycle.ResponseDeclined, "too busy")
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusBidding, out.ProjectStatus)

	stored, err := tc.repo.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusBidding, stored.Status)
	require.False(t, stored.PriorityInviteOn)
	require.NotEmpty(t, tc.notifier.byType("invitation_declined"))
}

// Истечение сильнее позднего ответа: даже первая попытка через миллисекунду
// после expiresAt получает Expired, а не проходит.
func TestRespondInvitationExpiredWinsOverLateResponse(t *testing.T) {
	tc := newTestCore(newMemRepo())
	p := tc.seedProject(projectOpts{
		status:    lifecycle.StatusPendingApproval,
		approvers: []string{"alice"},
		candidate: "c1",
	})
	_, err := tc.orch.Approve(context.Background(), p.ID, "alice", lifecycle.DecisionApprove, "")
	require.NoError(t, err)

	tc.now = tc.now.Add(24*time.Hour + time.Millisecond)

	_, err = tc.orch.RespondInvitation(context.Background(), p.ID, "c1", lifecycle.ResponseAccepted, "")
	require.Equal(t, lifecycle.KindExpired, lifecycle.KindOf(err))
}

func TestRespondInvitationTwice(t *testing.T) {
	tc := newTestCore(newMemRepo())
	p := tc.seedProject(projectOpts{status: lifecycle.StatusBidding})
	tc.grantRole("owner", "org-acme", lifecycle.RoleOrgAdmin)
	tc.repo.favorites["org-acme/c1"] = true
	_, err := tc.orch.CreateInvitation(context.Background(), p.ID, "c1", "owner", 0)
	require.NoError(t, err)

	_, err = tc.orch.RespondInvitation(context.Background(), p.ID, "c1", lifecycle.ResponseAccepted, "")
	require.NoError(t, err)

	_, err = tc.orch.RespondInvitation(context.Background(), p.ID, "c1", lifecycle.ResponseDeclined, "")
	require.Equal(t, lifecycle.KindAlreadyResolved, lifecycle.KindOf(err))
}

func TestRespondInvitationBadResponse(t *testing.T) {
	tc := newTestCore(newMemRepo())
	p := tc.seedProject(projectOpts{status: lifecycle.StatusBidding})

	_, err := tc.orch.RespondInvitation(context.Background(), p.ID, "c1", lifecycle.Response("maybe"), "")
	require.Equal(t, lifecycle.KindInvalidState, lifecycle.KindOf(err))
}

// Отмена проекта закрывает и ответы на приглашения: висящая pending-запись
// не дает принять предложение по мертвому проекту.
func TestRespondInvitationAfterCancel(t *testing.T) {
	tc := newTestCore(newMemRepo())
	tc.grantRole("owner", "org-acme", lifecycle.RoleOrgAdmin)
	p := tc.seedProject(projectOpts{
		status:    lifecycle.StatusPendingApproval,
		approvers: []string{"alice"},
		candidate: "c1",
	})
	_, err := tc.orch.Approve(context.Background(), p.ID, "alice", lifecycle.DecisionApprove, "")
	require.NoError(t, err)

	_, err = tc.orch.Cancel(context.Background(), p.ID, "owner")
	require.NoError(t, err)

	_, err = tc.orch.RespondInvitation(context.Background(), p.ID, "c1", lifecycle.ResponseAccepted, "")
	require.Equal(t, lifecycle.KindInvalidState, lifecycle.KindOf(err))

	// Запись осталась pending: разрешение не происходило.
	inv, err := tc.repo.GetInvitation(context.Background(), p.ID, "c1")
	require.NoError(t, err)
	require.Equal(t, lifecycle.ResponsePending, inv.Response)
}

func TestRespondInvitationNotFound(t *testing.T) {
	tc := newTestCore(newMemRepo())
	p := tc.seedProject(projectOpts{status: lifecycle.StatusBidding})

	_, err := tc.orch.RespondInvitation(context.Background(), p.ID, "c-none", lifecycle.ResponseAccepted, "")
	require.Equal(t, lifecycle.KindNotFound, lifecycle.KindOf(err))
}

func TestResolveExpired(t *testing.T) {
	tc := newTestCore(newMemRepo())
	p := tc.seedProject(projectOpts{
		status:    lifecycle.StatusPendingApproval,
		approvers: []string{"alice"},
		candidate: "c1",
	})
	_, err := tc.orch.Approve(context.Background(), p.ID, "alice", lifecycle.DecisionApprove, "")
	require.NoError(t, err)

	// До истечения проход ничего не меняет.
	resolved, err := tc.orch.Invitations.ResolveExpired(context.Background(), p.ID)
	require.NoError(t, err)
	require.False(t, resolved)

	tc.now = tc.now.Add(25 * time.Hour)

	resolved, err = tc.orch.Invitations.ResolveExpired(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, resolved)

	stored, err := tc.repo.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusBidding, stored.Status)

	inv, err := tc.repo.GetInvitation(context.Background(), p.ID, "c1")
	require.NoError(t, err)
	require.Equal(t, lifecycle.ResponseDeclined, inv.Response)

	// Повторный проход — ноп.
	resolved, err = tc.orch.Invitations.ResolveExpired(context.Background(), p.ID)
	require.NoError(t, err)
	require.False(t, resolved)
}
