package lifecycle

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// DefaultInvitationTTL — срок эксклюзивного предложения по умолчанию.
const DefaultInvitationTTL = 24 * time.Hour

// Invitations управляет эксклюзивными предложениями приоритетному подрядчику:
// создание, ответ и ленивое истечение с откатом проекта в публичный отбор.
type Invitations struct {
	Repo     Repository
	Authz    Authorizer
	Notifier Notifier
	TTL      time.Duration

	Now func() time.Time
}

func (s *Invitations) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Invitations) ttl(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultInvitationTTL
}

// Create — явное приглашение от имени организации. Требует роли org_admin и
// активного избранного подрядчика.
func (s *Invitations) Create(ctx context.Context, projectID, contractorID, actorID string, ttl time.Duration) (*Invitation, error) {
	p, err := s.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	role, err := s.Authz.GetRole(ctx, actorID, p.OrgID)
	if err != nil {
		return nil, err
	}
	if role != RoleOrgAdmin && role != RoleAdmin {
		return nil, Errf(KindUnauthorized, "user %s lacks org_admin in org %s", actorID, p.OrgID)
	}
	fav, err := s.Repo.IsFavoriteContractor(ctx, p.OrgID, contractorID)
	if err != nil {
		return nil, err
	}
	if !fav {
		return nil, Errf(KindUnauthorized, "contractor %s is not an active favorite of org %s", contractorID, p.OrgID)
	}
	return s.create(ctx, p, contractorID, ttl)
}

// create — общий путь для Create и Approval Gate (кандидат у шлюза уже
// проверен при создании проекта). Приглашения создаются только из
// pending_approval или bidding; однажды разрешенная пара не приглашается
// повторно.
func (s *Invitations) create(ctx context.Context, p *Project, contractorID string, ttl time.Duration) (*Invitation, error) {
	if p.Status != StatusPendingApproval && p.Status != StatusBidding {
		return nil, Errf(KindInvalidState, "project %s is %s, invitations are closed", p.ID, p.Status)
	}
	existing, err := s.Repo.GetInvitation(ctx, p.ID, contractorID)
	if err != nil && !IsKind(err, KindNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, Errf(KindAlreadyResolved, "invitation for contractor %s on project %s already exists", contractorID, p.ID)
	}

	now := s.now()
	inv := &Invitation{
		ID:           uuid.NewString(),
		ProjectID:    p.ID,
		ContractorID: contractorID,
		OrgID:        p.OrgID,
		Response:     ResponsePending,
		ExpiresAt:    now.Add(s.ttl(ttl)),
		CreatedAt:    now,
	}
	if err := s.Repo.InsertPriorityInvitation(ctx, inv); err != nil {
		return nil, err
	}
	if err := s.Notifier.Notify(ctx, contractorID, "priority_invitation", "Priority invitation",
		"You received an exclusive offer for project "+p.Title,
		map[string]string{"projectId": p.ID, "invitationId": inv.ID}); err != nil {
		log.Printf("invitation %s: notify contractor failed: %v", inv.ID, err)
	}
	return inv, nil
}

// RespondOutcome — итог ответа подрядчика.
type RespondOutcome struct {
	ProjectStatus Status   `json:"projectStatus"`
	Response      Response `json:"response"`
}

// Respond принимает ответ подрядчика. Истечение всегда сильнее позднего
// ответа: даже первая попытка после expiresAt получает Expired.
func (s *Invitations) Respond(ctx context.Context, projectID, contractorID string, response Response, notes string) (*RespondOutcome, error) {
	if response != ResponseAccepted && response != ResponseDeclined {
		return nil, Errf(KindInvalidState, "response must be accepted or declined")
	}
	inv, err := s.Repo.GetPendingInvitation(ctx, projectID, contractorID)
	if err != nil {
		if IsKind(err, KindNotFound) {
			if resolved, rerr := s.Repo.GetInvitation(ctx, projectID, contractorID); rerr == nil && resolved != nil {
				return nil, Errf(KindAlreadyResolved, "invitation already resolved as %s", resolved.Response)
			}
		}
		return nil, err
	}

	// Отмененный или иначе закрытый проект не принимает ответов, даже если
	// pending-запись еще существует.
	p, err := s.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPriorityInvitation && p.Status != StatusBidding {
		return nil, Errf(KindInvalidState, "project %s is %s, invitation responses are closed", p.ID, p.Status)
	}

	now := s.now()
	if inv.Expired(now) {
		return nil, Errf(KindExpired, "invitation expired at %s", inv.ExpiresAt.Format(time.RFC3339))
	}

	var np *string
	if notes != "" {
		np = &notes
	}
	if err := s.Repo.ResolveInvitation(ctx, inv.ID, response, np, now); err != nil {
		return nil, err
	}

	out := &RespondOutcome{ProjectStatus: p.Status, Response: response}
	if response == ResponseAccepted {
		// Статус намеренно не меняется: обязательство возникает только с
		// договором, который организация оформляет отдельно.
		s.notifyAdmins(ctx, p, "invitation_accepted", "Invitation accepted",
			"Preferred contractor accepted the offer for "+p.Title)
		return out, nil
	}

	status, err := s.routeToBidding(ctx, p)
	if err != nil {
		return nil, err
	}
	out.ProjectStatus = status
	s.notifyAdmins(ctx, p, "invitation_declined", "Invitation declined",
		"Preferred contractor declined, project "+p.Title+" is open for bidding")
	return out, nil
}

// ResolveExpired — явный проход разрешения: просроченное pending-приглашение
// помечается отклоненным и проект уходит в публичный отбор. Вызывается из
// читающих путей, фонового обходчика нет.
func (s *Invitations) ResolveExpired(ctx context.Context, projectID string) (bool, error) {
	p, err := s.Repo.GetProject(ctx, projectID)
	if err != nil {
		return false, err
	}
	if p.Status != StatusPriorityInvitation {
		return false, nil
	}
	inv, err := s.Repo.GetProjectPendingInvitation(ctx, projectID)
	if err != nil {
		if IsKind(err, KindNotFound) {
			return false, nil
		}
		return false, err
	}
	now := s.now()
	if !inv.Expired(now) {
		return false, nil
	}
	expired := "expired without response"
	if err := s.Repo.ResolveInvitation(ctx, inv.ID, ResponseDeclined, &expired, now); err != nil {
		return false, err
	}
	if _, err := s.routeToBidding(ctx, p); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Invitations) routeToBidding(ctx context.Context, p *Project) (Status, error) {
	if p.Status != StatusPriorityInvitation {
		// Проект уже публичный (например, запись статуса деградировала при
		// согласовании) — менять нечего.
		if p.Status == StatusBidding {
			return StatusBidding, nil
		}
		return p.Status, nil
	}
	bidding := StatusBidding
	off := false
	return applyProjectPatch(ctx, s.Repo, p.ID, ProjectPatch{Status: &bidding, PriorityInviteOn: &off})
}

func (s *Invitations) notifyAdmins(ctx context.Context, p *Project, ntype, title, message string) {
	admins, err := s.Repo.ListOrgAdmins(ctx, p.OrgID)
	if err != nil {
		log.Printf("project %s: listing org admins failed: %v", p.ID, err)
		return
	}
	for _, admin := range admins {
		if err := s.Notifier.Notify(ctx, admin, ntype, title, message, map[string]string{"projectId": p.ID}); err != nil {
			log.Printf("project %s: notify %s failed: %v", p.ID, admin, err)
		}
	}
}
