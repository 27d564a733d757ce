package lifecycle

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Orchestrator — верхний уровень машины состояний проекта. Связывает шлюз
// согласования, приглашения и прием предложений и ведет проект от черновика
// до завершения. Каждый переход сверяется с таблицей transitions по
// свежепрочитанному статусу.
type Orchestrator struct {
	Repo     Repository
	Authz    Authorizer
	Notifier Notifier

	Gate        *ApprovalGate
	Invitations *Invitations
	Admission   *Admission

	Now func() time.Time
}

// NewOrchestrator собирает ядро над одним хранилищем и внешними границами.
func NewOrchestrator(repo Repository, authz Authorizer, notifier Notifier, provisioner Provisioner, invitationTTL time.Duration) *Orchestrator {
	inv := &Invitations{Repo: repo, Authz: authz, Notifier: notifier, TTL: invitationTTL}
	return &Orchestrator{
		Repo:        repo,
		Authz:       authz,
		Notifier:    notifier,
		Invitations: inv,
		Gate:        &ApprovalGate{Repo: repo, Invitations: inv, Provisioner: provisioner, Notifier: notifier},
		Admission:   &Admission{Repo: repo, Authz: authz, Notifier: notifier, Invitations: inv},
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// CreateProjectInput — параметры создания проекта.
type CreateProjectInput struct {
	Title               string     `json:"title"`
	OrgID               string     `json:"orgId"`
	RequiredContractors int        `json:"requiredContractors"`
	BiddingDeadline     *time.Time `json:"biddingDeadline,omitempty"`
	ApproverIDs         []string   `json:"approverIds,omitempty"`
	PriorityCandidateID *string    `json:"priorityInvitationCandidateId,omitempty"`
}

// CreateProject создает проект в draft либо, при непустом наборе
// согласующих, сразу в pending_approval. Инвариант: pending_approval
// тогда и только тогда, когда набор согласующих непуст.
func (o *Orchestrator) CreateProject(ctx context.Context, in CreateProjectInput, actorID string) (*Project, error) {
	role, err := o.Authz.GetRole(ctx, actorID, in.OrgID)
	if err != nil {
		return nil, err
	}
	if role != RoleOrgAdmin && role != RoleAdmin && role != RoleStaff {
		return nil, Errf(KindUnauthorized, "user %s may not create projects in org %s", actorID, in.OrgID)
	}
	if in.PriorityCandidateID != nil {
		fav, err := o.Repo.IsFavoriteContractor(ctx, in.OrgID, *in.PriorityCandidateID)
		if err != nil {
			return nil, err
		}
		if !fav {
			return nil, Errf(KindUnauthorized, "contractor %s is not an active favorite of org %s", *in.PriorityCandidateID, in.OrgID)
		}
	}

	status := StatusDraft
	if len(in.ApproverIDs) > 0 {
		status = StatusPendingApproval
	}
	p := &Project{
		ID:                  uuid.NewString(),
		Title:               in.Title,
		OrgID:               in.OrgID,
		Status:              status,
		RequiredContractors: in.RequiredContractors,
		BiddingDeadline:     in.BiddingDeadline,
		ApproverIDs:         in.ApproverIDs,
		PriorityCandidateID: in.PriorityCandidateID,
		CreatedAt:           o.now(),
	}
	if err := o.Repo.InsertProject(ctx, p); err != nil {
		return nil, err
	}
	for _, approver := range p.ApproverIDs {
		if err := o.Notifier.Notify(ctx, approver, "approval_requested", "Approval requested",
			"Project "+p.Title+" awaits your decision",
			map[string]string{"projectId": p.ID}); err != nil {
			log.Printf("project %s: notify approver %s failed: %v", p.ID, approver, err)
		}
	}
	return p, nil
}

// SubmitForApproval переводит черновик в pending_approval с непустым
// набором согласующих.
func (o *Orchestrator) SubmitForApproval(ctx context.Context, projectID, actorID string, approverIDs []string) (*Project, error) {
	p, err := o.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := o.requireOrgAdmin(ctx, actorID, p.OrgID); err != nil {
		return nil, err
	}
	if len(approverIDs) == 0 {
		return nil, Errf(KindInvalidState, "approver set must not be empty")
	}
	if !CanTransition(p.Status, StatusPendingApproval) {
		return nil, Errf(KindInvalidState, "project %s is %s and cannot enter pending_approval", p.ID, p.Status)
	}
	// Сначала согласующие, затем статус: pending_approval не должен
	// наблюдаться с пустым набором.
	if err := o.Repo.SetProjectApprovers(ctx, p.ID, approverIDs); err != nil {
		return nil, err
	}
	pending := StatusPendingApproval
	if _, err := applyProjectPatch(ctx, o.Repo, p.ID, ProjectPatch{Status: &pending}); err != nil {
		return nil, err
	}
	p.Status = StatusPendingApproval
	p.ApproverIDs = approverIDs
	for _, approver := range approverIDs {
		if err := o.Notifier.Notify(ctx, approver, "approval_requested", "Approval requested",
			"Project "+p.Title+" awaits your decision",
			map[string]string{"projectId": p.ID}); err != nil {
			log.Printf("project %s: notify approver %s failed: %v", p.ID, approver, err)
		}
	}
	return p, nil
}

// AwardContract — оформление договора организацией. Разрешено из bidding,
// когда у подрядчика есть одобренное предложение, и из priority_invitation,
// когда приглашение принято. Проект переходит в contracted только после
// подписания (RespondContract), не при оферте.
func (o *Orchestrator) AwardContract(ctx context.Context, projectID, contractorID, actorID string) (*Contract, error) {
	p, err := o.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := o.requireOrgAdmin(ctx, actorID, p.OrgID); err != nil {
		return nil, err
	}

	switch p.Status {
	case StatusBidding:
		bid, err := o.Repo.GetLiveBid(ctx, projectID, contractorID)
		if err != nil {
			return nil, err
		}
		if bid.Status != BidApproved {
			return nil, Errf(KindInvalidState, "contractor %s has no approved bid on project %s", contractorID, p.ID)
		}
	case StatusPriorityInvitation:
		inv, err := o.Repo.GetInvitation(ctx, projectID, contractorID)
		if err != nil {
			return nil, err
		}
		if inv.Response != ResponseAccepted {
			return nil, Errf(KindInvalidState, "priority invitation for contractor %s is %s, not accepted", contractorID, inv.Response)
		}
	default:
		return nil, Errf(KindInvalidState, "project %s is %s, contracts cannot be awarded", p.ID, p.Status)
	}

	c := &Contract{
		ID:           uuid.NewString(),
		ProjectID:    p.ID,
		ContractorID: contractorID,
		OrgID:        p.OrgID,
		Status:       ContractOffered,
		CreatedAt:    o.now(),
	}
	if err := o.Repo.InsertContract(ctx, c); err != nil {
		return nil, err
	}
	if err := o.Notifier.Notify(ctx, contractorID, "contract_offered", "Contract offered",
		"You were offered a contract for "+p.Title,
		map[string]string{"projectId": p.ID, "contractId": c.ID}); err != nil {
		log.Printf("contract %s: notify contractor failed: %v", c.ID, err)
	}
	return c, nil
}

// RespondContract — подписание или отказ подрядчика. Отказ — постоянное
// исключение из отбора по этому проекту. Подписание закрывает проект в
// contracted: из priority_invitation сразу, из bidding — по достижении
// требуемого числа подписанных договоров.
func (o *Orchestrator) RespondContract(ctx context.Context, contractID, actorID string, accept bool) (*Contract, error) {
	c, err := o.Repo.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.ContractorID != actorID {
		return nil, Errf(KindUnauthorized, "user %s is not the contractor on contract %s", actorID, c.ID)
	}
	if c.Status != ContractOffered {
		return nil, Errf(KindAlreadyResolved, "contract %s is already %s", c.ID, c.Status)
	}

	now := o.now()
	status := ContractDeclined
	if accept {
		status = ContractSigned
	}
	if err := o.Repo.ResolveContract(ctx, c.ID, status, now); err != nil {
		return nil, err
	}
	c.Status = status
	c.RespondedAt = &now

	if !accept {
		return c, nil
	}

	p, err := o.Repo.GetProject(ctx, c.ProjectID)
	if err != nil {
		return nil, err
	}
	contracted := false
	switch p.Status {
	case StatusPriorityInvitation:
		contracted = true
	case StatusBidding:
		signed, err := o.Repo.CountSignedContracts(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		contracted = signed >= p.RequiredContractors
	}
	if contracted && CanTransition(p.Status, StatusContracted) {
		target := StatusContracted
		off := false
		if _, err := applyProjectPatch(ctx, o.Repo, p.ID, ProjectPatch{Status: &target, PriorityInviteOn: &off}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Start переводит проект с исполненными договорами в работу.
func (o *Orchestrator) Start(ctx context.Context, projectID, actorID string) (Status, error) {
	return o.transition(ctx, projectID, actorID, StatusInProgress)
}

// Complete завершает проект. Терминально.
func (o *Orchestrator) Complete(ctx context.Context, projectID, actorID string) (Status, error) {
	return o.transition(ctx, projectID, actorID, StatusCompleted)
}

// Cancel отменяет проект на любой стадии до contracted. Терминально.
func (o *Orchestrator) Cancel(ctx context.Context, projectID, actorID string) (Status, error) {
	return o.transition(ctx, projectID, actorID, StatusCancelled)
}

func (o *Orchestrator) transition(ctx context.Context, projectID, actorID string, to Status) (Status, error) {
	p, err := o.Repo.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	if err := o.requireOrgAdmin(ctx, actorID, p.OrgID); err != nil {
		return "", err
	}
	if !CanTransition(p.Status, to) {
		return "", Errf(KindInvalidState, "project %s cannot go %s -> %s", p.ID, p.Status, to)
	}
	patch := ProjectPatch{Status: &to}
	if to == StatusCancelled || to == StatusRejected {
		patch.ClearApprovers = true
	}
	applied, err := applyProjectPatch(ctx, o.Repo, p.ID, patch)
	if err != nil {
		return "", err
	}
	return applied, nil
}

// Тонкие делегаты: оркестратор — единая точка входа для вызывающего слоя.

func (o *Orchestrator) Approve(ctx context.Context, projectID, actorID string, decision Decision, comment string) (*ApprovalOutcome, error) {
	return o.Gate.Approve(ctx, projectID, actorID, decision, comment)
}

func (o *Orchestrator) CreateInvitation(ctx context.Context, projectID, contractorID, actorID string, ttl time.Duration) (*Invitation, error) {
	return o.Invitations.Create(ctx, projectID, contractorID, actorID, ttl)
}

func (o *Orchestrator) RespondInvitation(ctx context.Context, projectID, contractorID string, response Response, notes string) (*RespondOutcome, error) {
	return o.Invitations.Respond(ctx, projectID, contractorID, response, notes)
}

func (o *Orchestrator) SubmitBid(ctx context.Context, projectID, contractorID string, amount int64, proposal string) (*Bid, error) {
	return o.Admission.SubmitBid(ctx, projectID, contractorID, amount, proposal)
}

func (o *Orchestrator) ApproveBid(ctx context.Context, bidID, actorID string) (*Bid, error) {
	return o.Admission.ApproveBid(ctx, bidID, actorID)
}

func (o *Orchestrator) requireOrgAdmin(ctx context.Context, actorID, orgID string) error {
	role, err := o.Authz.GetRole(ctx, actorID, orgID)
	if err != nil {
		return err
	}
	if role != RoleOrgAdmin && role != RoleAdmin {
		return Errf(KindUnauthorized, "user %s lacks org_admin in org %s", actorID, orgID)
	}
	return nil
}
