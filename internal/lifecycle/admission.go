package lifecycle

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Admission принимает предложения подрядчиков против фиксированной
// вместимости проекта. Проверка вместимости и запись — одно атомарное
// решение хранилища; предварительные проверки здесь ранжированы от дешевой
// к дорогой и дают быстрый отказ с различимым видом ошибки.
type Admission struct {
	Repo        Repository
	Authz       Authorizer
	Notifier    Notifier
	Invitations *Invitations

	Now func() time.Time
}

func (a *Admission) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// SubmitBid подает предложение подрядчика на проект в публичном отборе.
func (a *Admission) SubmitBid(ctx context.Context, projectID, contractorID string, amount int64, proposal string) (*Bid, error) {
	p, err := a.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	// Ленивая развязка: просроченное приоритетное приглашение переводит
	// проект в bidding прямо на пути подачи.
	if p.Status == StatusPriorityInvitation {
		resolved, rerr := a.Invitations.ResolveExpired(ctx, projectID)
		if rerr != nil {
			return nil, rerr
		}
		if resolved {
			if p, err = a.Repo.GetProject(ctx, projectID); err != nil {
				return nil, err
			}
		}
	}

	if p.Status != StatusBidding {
		return nil, Errf(KindNotOpenForBidding, "project %s is %s, not open for bidding", p.ID, p.Status)
	}
	if deadlinePassed(a.now(), p.BiddingDeadline) {
		return nil, Errf(KindDeadlinePassed, "bidding deadline %s has passed", p.BiddingDeadline.Format("2006-01-02"))
	}

	if live, err := a.Repo.GetLiveBid(ctx, projectID, contractorID); err != nil && !IsKind(err, KindNotFound) {
		return nil, err
	} else if live != nil {
		return nil, Errf(KindDuplicateBid, "contractor %s already has a live bid on project %s", contractorID, p.ID)
	}

	if declined, err := a.Repo.GetDeclinedContract(ctx, projectID, contractorID); err != nil && !IsKind(err, KindNotFound) {
		return nil, err
	} else if declined != nil {
		return nil, Errf(KindPermanentlyExcluded, "contractor %s declined a contract on project %s and may not bid again", contractorID, p.ID)
	}

	approved, err := a.Repo.CountApprovedBids(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if approved >= p.RequiredContractors {
		return nil, CapacityError(p.RequiredContractors, approved)
	}

	bid := &Bid{
		ID:           uuid.NewString(),
		ProjectID:    p.ID,
		ContractorID: contractorID,
		Amount:       amount,
		Proposal:     proposal,
		Status:       BidSubmitted,
		CreatedAt:    a.now(),
	}
	// Хранилище перечитывает статус, дубликат и вместимость внутри одной
	// транзакции; гонка за последний слот разрешается там, не здесь.
	if err := a.Repo.InsertBid(ctx, bid); err != nil {
		return nil, err
	}

	a.notifyAdmins(ctx, p, "bid_submitted", "New bid",
		"Contractor submitted a bid for "+p.Title, bid)
	return bid, nil
}

// ApproveBid одобряет поданное предложение. Счетчик одобренных всегда
// считается по живому состоянию предложений, кэша слотов нет.
func (a *Admission) ApproveBid(ctx context.Context, bidID, actorID string) (*Bid, error) {
	bid, err := a.Repo.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	p, err := a.Repo.GetProject(ctx, bid.ProjectID)
	if err != nil {
		return nil, err
	}
	role, err := a.Authz.GetRole(ctx, actorID, p.OrgID)
	if err != nil {
		return nil, err
	}
	if role != RoleOrgAdmin && role != RoleAdmin {
		return nil, Errf(KindUnauthorized, "user %s lacks org_admin in org %s", actorID, p.OrgID)
	}
	if bid.Status != BidSubmitted {
		return nil, Errf(KindInvalidState, "bid %s is %s, not submitted", bid.ID, bid.Status)
	}

	// Атомарное решение: count-then-update под блокировкой строки проекта.
	approved, err := a.Repo.ApproveBid(ctx, bidID)
	if err != nil {
		return nil, err
	}

	if err := a.Notifier.Notify(ctx, approved.ContractorID, "bid_approved", "Bid approved",
		"Your bid for "+p.Title+" was approved",
		map[string]string{"projectId": p.ID, "bidId": approved.ID}); err != nil {
		log.Printf("bid %s: notify contractor failed: %v", approved.ID, err)
	}
	return approved, nil
}

func (a *Admission) notifyAdmins(ctx context.Context, p *Project, ntype, title, message string, bid *Bid) {
	admins, err := a.Repo.ListOrgAdmins(ctx, p.OrgID)
	if err != nil {
		log.Printf("project %s: listing org admins failed: %v", p.ID, err)
		return
	}
	data := map[string]string{
		"projectId": p.ID,
		"bidId":     bid.ID,
		"amount":    strconv.FormatInt(bid.Amount, 10),
	}
	for _, admin := range admins {
		if err := a.Notifier.Notify(ctx, admin, ntype, title, message, data); err != nil {
			log.Printf("project %s: notify %s failed: %v", p.ID, admin, err)
		}
	}
}
