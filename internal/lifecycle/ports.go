package lifecycle

import (
	"context"
	"time"
)

// Role — роль пользователя в организации (читается, никогда не пишется ядром).
type Role string

const (
	RoleOrgAdmin   Role = "org_admin"
	RoleStaff      Role = "staff"
	RoleAdmin      Role = "admin"
	RoleReviewer   Role = "reviewer"
	RoleAuditor    Role = "auditor"
	RoleContractor Role = "contractor"
	RoleNone       Role = ""
)

// Сущность Проекта
type Project struct {
	ID                  string     `db:"id" json:"id"`
	Title               string     `db:"title" json:"title" validate:"required,max=200"`
	OrgID               string     `db:"org_id" json:"orgId" validate:"required"`
	Status              Status     `db:"status" json:"status"`
	RequiredContractors int        `db:"required_contractors" json:"requiredContractors" validate:"required,min=1"`
	BiddingDeadline     *time.Time `db:"bidding_deadline" json:"biddingDeadline,omitempty"`
	ApproverIDs         []string   `db:"-" json:"approverIds,omitempty"`
	ApprovedBy          *string    `db:"approved_by" json:"approvedBy,omitempty"`
	PriorityCandidateID *string    `db:"priority_invitation_candidate_id" json:"priorityInvitationCandidateId,omitempty"`
	PriorityInviteOn    bool       `db:"priority_invitation_active" json:"priorityInvitationActive"`
	WorkspaceRef        *string    `db:"workspace_ref" json:"workspaceRef,omitempty"`
	ProvisioningError   *string    `db:"provisioning_error" json:"provisioningError,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time  `db:"updated_at" json:"-"`
}

// BidStatus — статус предложения подрядчика.
type BidStatus string

const (
	BidSubmitted BidStatus = "submitted"
	BidApproved  BidStatus = "approved"
	BidRejected  BidStatus = "rejected"
	BidWithdrawn BidStatus = "withdrawn"
)

// Live — предложение занимает слот пары (project, contractor).
func (s BidStatus) Live() bool {
	return s == BidSubmitted || s == BidApproved
}

// Сущность Предложения
type Bid struct {
	ID           string    `db:"id" json:"id"`
	ProjectID    string    `db:"project_id" json:"projectId" validate:"required"`
	ContractorID string    `db:"contractor_id" json:"contractorId" validate:"required"`
	Amount       int64     `db:"amount" json:"amount" validate:"required,min=1"`
	Proposal     string    `db:"proposal" json:"proposal" validate:"required,max=2000"`
	Status       BidStatus `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Response — ответ на приоритетное приглашение.
type Response string

const (
	ResponsePending  Response = "pending"
	ResponseAccepted Response = "accepted"
	ResponseDeclined Response = "declined"
)

// Сущность Приоритетного приглашения
type Invitation struct {
	ID           string     `db:"id" json:"id"`
	ProjectID    string     `db:"project_id" json:"projectId"`
	ContractorID string     `db:"contractor_id" json:"contractorId"`
	OrgID        string     `db:"org_id" json:"orgId"`
	Response     Response   `db:"response" json:"response"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expiresAt"`
	RespondedAt  *time.Time `db:"responded_at" json:"respondedAt,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
}

// Expired — приглашение уже нельзя принять на момент now.
func (i *Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// ContractStatus — статус договора с подрядчиком.
type ContractStatus string

const (
	ContractOffered  ContractStatus = "offered"
	ContractSigned   ContractStatus = "signed"
	ContractDeclined ContractStatus = "declined"
)

// Сущность Договора
type Contract struct {
	ID           string         `db:"id" json:"id"`
	ProjectID    string         `db:"project_id" json:"projectId"`
	ContractorID string         `db:"contractor_id" json:"contractorId"`
	OrgID        string         `db:"org_id" json:"orgId"`
	Status       ContractStatus `db:"status" json:"status"`
	RespondedAt  *time.Time     `db:"responded_at" json:"respondedAt,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
}

// ProjectPatch — частичное обновление проекта. Незаданные поля не попадают
// в запрос, поэтому запись переживает расхождение поколений схемы.
type ProjectPatch struct {
	Status            *Status
	ApprovedBy        *string
	ClearApprovers    bool
	ClearCandidate    bool
	PriorityInviteOn  *bool
	WorkspaceRef      *string
	ProvisioningError *string
}

// Empty сообщает, что патч ничего не меняет.
func (p ProjectPatch) Empty() bool {
	return p.Status == nil && p.ApprovedBy == nil && !p.ClearApprovers &&
		!p.ClearCandidate && p.PriorityInviteOn == nil &&
		p.WorkspaceRef == nil && p.ProvisioningError == nil
}

// Repository — граница хранилища. Статус проекта перечитывается внутри
// каждой пишущей операции; InsertBid и ApproveBid обязаны выполнять
// проверку вместимости и запись как одно атомарное решение.
type Repository interface {
	GetProject(ctx context.Context, id string) (*Project, error)
	InsertProject(ctx context.Context, p *Project) error
	UpdateProject(ctx context.Context, id string, patch ProjectPatch) error
	SetProjectApprovers(ctx context.Context, id string, approverIDs []string) error

	GetBid(ctx context.Context, id string) (*Bid, error)
	InsertBid(ctx context.Context, b *Bid) error
	ApproveBid(ctx context.Context, id string) (*Bid, error)
	CountApprovedBids(ctx context.Context, projectID string) (int, error)
	GetLiveBid(ctx context.Context, projectID, contractorID string) (*Bid, error)

	GetDeclinedContract(ctx context.Context, projectID, contractorID string) (*Contract, error)
	GetContract(ctx context.Context, id string) (*Contract, error)
	InsertContract(ctx context.Context, c *Contract) error
	ResolveContract(ctx context.Context, id string, status ContractStatus, respondedAt time.Time) error
	CountSignedContracts(ctx context.Context, projectID string) (int, error)

	InsertPriorityInvitation(ctx context.Context, inv *Invitation) error
	GetPendingInvitation(ctx context.Context, projectID, contractorID string) (*Invitation, error)
	GetInvitation(ctx context.Context, projectID, contractorID string) (*Invitation, error)
	GetProjectPendingInvitation(ctx context.Context, projectID string) (*Invitation, error)
	ResolveInvitation(ctx context.Context, id string, response Response, notes *string, respondedAt time.Time) error

	IsFavoriteContractor(ctx context.Context, orgID, contractorID string) (bool, error)
	ListOrgAdmins(ctx context.Context, orgID string) ([]string, error)
}

// Authorizer отдает роль пользователя в организации.
type Authorizer interface {
	GetRole(ctx context.Context, userID, orgID string) (Role, error)
}

// Notifier — сток уведомлений; доставка best-effort, ядро не ждет и не
// повторяет ее в рамках транзакции.
type Notifier interface {
	Notify(ctx context.Context, userID, ntype, title, message string, data map[string]string) error
}

// Provisioner создает рабочее пространство проекта у внешнего провайдера.
// Повторный запуск идемпотентен.
type Provisioner interface {
	ProvisionWorkspace(ctx context.Context, orgFolderRef, projectName string) (string, error)
}
