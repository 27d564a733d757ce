package lifecycle

import (
	"context"
	"log"
	"time"
)

// Decision — решение согласующего по проекту.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ValidDecision(d Decision) bool {
	return d == DecisionApprove || d == DecisionReject
}

// ApprovalGate выводит проект из pending_approval: проверяет согласующего и
// дедлайн, переключает статус и запускает побочные эффекты.
type ApprovalGate struct {
	Repo        Repository
	Invitations *Invitations
	Provisioner Provisioner
	Notifier    Notifier

	// Now подменяется в тестах; nil означает time.Now.
	Now func() time.Time
}

// ApprovalOutcome — результат решения согласующего.
type ApprovalOutcome struct {
	NewStatus    Status  `json:"newStatus"`
	WorkspaceRef *string `json:"workspaceRef,omitempty"`
}

func (g *ApprovalGate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Approve проводит решение approve/reject по проекту в pending_approval.
func (g *ApprovalGate) Approve(ctx context.Context, projectID, actorID string, decision Decision, comment string) (*ApprovalOutcome, error) {
	p, err := g.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPendingApproval {
		return nil, Errf(KindInvalidState, "project %s is %s, not pending_approval", p.ID, p.Status)
	}
	if !isApprover(p, actorID) {
		return nil, Errf(KindUnauthorized, "user %s is not an approver of project %s", actorID, p.ID)
	}
	if deadlinePassed(g.now(), p.BiddingDeadline) {
		return nil, Errf(KindDeadlinePassed, "bidding deadline %s has passed", p.BiddingDeadline.Format("2006-01-02"))
	}

	if decision == DecisionReject {
		rejected := StatusRejected
		patch := ProjectPatch{Status: &rejected, ClearApprovers: true, ClearCandidate: true}
		if _, err := applyProjectPatch(ctx, g.Repo, p.ID, patch); err != nil {
			return nil, err
		}
		g.notifyOrg(ctx, p, "project_rejected", "Project rejected",
			"Project was rejected during approval: "+comment)
		return &ApprovalOutcome{NewStatus: StatusRejected}, nil
	}

	// Приглашение создается до переключения статуса, чтобы приглашенный не
	// потерялся, даже если запись статуса деградирует до bidding. Кандидат,
	// выбывший из избранных между созданием проекта и согласованием, не
	// получает эксклюзивного предложения: проект уходит в публичный отбор.
	target := StatusBidding
	if p.PriorityCandidateID != nil {
		fav, err := g.Repo.IsFavoriteContractor(ctx, p.OrgID, *p.PriorityCandidateID)
		if err != nil {
			return nil, err
		}
		if fav {
			target = StatusPriorityInvitation
			if _, err := g.Invitations.create(ctx, p, *p.PriorityCandidateID, 0); err != nil && !IsKind(err, KindAlreadyResolved) {
				return nil, err
			}
		} else {
			log.Printf("project %s: candidate %s is no longer an active favorite, opening public bidding", p.ID, *p.PriorityCandidateID)
		}
	}

	active := target == StatusPriorityInvitation
	patch := ProjectPatch{
		Status:           &target,
		ApprovedBy:       &actorID,
		ClearApprovers:   true,
		PriorityInviteOn: &active,
	}
	applied, err := applyProjectPatch(ctx, g.Repo, p.ID, patch)
	if err != nil {
		return nil, err
	}

	out := &ApprovalOutcome{NewStatus: applied}
	g.provision(ctx, p, out)
	g.notifyOrg(ctx, p, "project_approved", "Project approved",
		"Project entered "+string(applied))
	return out, nil
}

// provision запрашивает рабочее пространство. Сбой не откатывает
// согласование: ошибка записывается на проект, повторный запуск идемпотентен.
func (g *ApprovalGate) provision(ctx context.Context, p *Project, out *ApprovalOutcome) {
	ref, err := g.Provisioner.ProvisionWorkspace(ctx, p.OrgID, p.Title)
	if err != nil {
		msg := err.Error()
		log.Printf("project %s: workspace provisioning failed: %v", p.ID, err)
		if _, uerr := applyProjectPatch(ctx, g.Repo, p.ID, ProjectPatch{ProvisioningError: &msg}); uerr != nil {
			log.Printf("project %s: recording provisioning error failed: %v", p.ID, uerr)
		}
		return
	}
	if _, err := applyProjectPatch(ctx, g.Repo, p.ID, ProjectPatch{WorkspaceRef: &ref}); err != nil {
		log.Printf("project %s: recording workspace ref failed: %v", p.ID, err)
		return
	}
	out.WorkspaceRef = &ref
}

func (g *ApprovalGate) notifyOrg(ctx context.Context, p *Project, ntype, title, message string) {
	admins, err := g.Repo.ListOrgAdmins(ctx, p.OrgID)
	if err != nil {
		log.Printf("project %s: listing org admins failed: %v", p.ID, err)
		return
	}
	for _, admin := range admins {
		if err := g.Notifier.Notify(ctx, admin, ntype, title, message, map[string]string{"projectId": p.ID}); err != nil {
			log.Printf("project %s: notify %s failed: %v", p.ID, admin, err)
		}
	}
}

func isApprover(p *Project, userID string) bool {
	for _, id := range p.ApproverIDs {
		if id == userID {
			return true
		}
	}
	return false
}
