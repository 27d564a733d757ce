package handlers

import (
	"context"
	"time"

	"procurement/db"
	"procurement/internal/lifecycle"
)

// StorageInterface — читающие запросы, идущие мимо ядра.
type StorageInterface interface {
	GetProject(ctx context.Context, id string) (*lifecycle.Project, error)
	GetProjects(ctx context.Context, statuses []string, limit, offset int) ([]lifecycle.Project, error)
	GetOrgProjects(ctx context.Context, orgID string, limit, offset int) ([]lifecycle.Project, error)

	GetContractorBids(ctx context.Context, contractorID string, limit, offset int) ([]lifecycle.Bid, error)
	GetProjectBids(ctx context.Context, projectID string, limit, offset int) ([]lifecycle.Bid, error)

	GetUserNotifications(ctx context.Context, userID string, limit, offset int) ([]db.Notification, error)
}

// CoreInterface — мутирующие операции ядра жизненного цикла.
type CoreInterface interface {
	CreateProject(ctx context.Context, in lifecycle.CreateProjectInput, actorID string) (*lifecycle.Project, error)
	SubmitForApproval(ctx context.Context, projectID, actorID string, approverIDs []string) (*lifecycle.Project, error)
	Approve(ctx context.Context, projectID, actorID string, decision lifecycle.Decision, comment string) (*lifecycle.ApprovalOutcome, error)

	CreateInvitation(ctx context.Context, projectID, contractorID, actorID string, ttl time.Duration) (*lifecycle.Invitation, error)
	RespondInvitation(ctx context.Context, projectID, contractorID string, response lifecycle.Response, notes string) (*lifecycle.RespondOutcome, error)

	SubmitBid(ctx context.Context, projectID, contractorID string, amount int64, proposal string) (*lifecycle.Bid, error)
	ApproveBid(ctx context.Context, bidID, actorID string) (*lifecycle.Bid, error)

	AwardContract(ctx context.Context, projectID, contractorID, actorID string) (*lifecycle.Contract, error)
	RespondContract(ctx context.Context, contractID, actorID string, accept bool) (*lifecycle.Contract, error)

	Start(ctx context.Context, projectID, actorID string) (lifecycle.Status, error)
	Complete(ctx context.Context, projectID, actorID string) (lifecycle.Status, error)
	Cancel(ctx context.Context, projectID, actorID string) (lifecycle.Status, error)
}
