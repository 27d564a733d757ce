package lifecycle_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"procurement/internal/lifecycle"
)

// memRepo — хранилище в памяти для тестов ядра. Мьютекс дает ту же
// атомарность count-then-write, что блокировка строки проекта в Postgres.
type memRepo struct {
	mu          sync.Mutex
	projects    map[string]*lifecycle.Project
	bids        map[string]*lifecycle.Bid
	invitations map[string]*lifecycle.Invitation
	contracts   map[string]*lifecycle.Contract
	favorites   map[string]bool
	admins      map[string][]string

	// Эмуляция старого поколения схемы.
	rejectPriorityColumn bool
	rejectStatuses       map[lifecycle.Status]bool
	// Оборачивать ли ошибки схемы, как это делает хранилище с контекстом.
	wrapSchemaErrors bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		projects:    map[string]*lifecycle.Project{},
		bids:        map[string]*lifecycle.Bid{},
		invitations: map[string]*lifecycle.Invitation{},
		contracts:   map[string]*lifecycle.Contract{},
		favorites:   map[string]bool{},
		admins:      map[string][]string{},
	}
}

func (m *memRepo) GetProject(ctx context.Context, id string) (*lifecycle.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, lifecycle.Errf(lifecycle.KindNotFound, "project %s not found", id)
	}
	cp := *p
	cp.ApproverIDs = append([]string(nil), p.ApproverIDs...)
	return &cp, nil
}

func (m *memRepo) InsertProject(ctx context.Context, p *lifecycle.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *memRepo) UpdateProject(ctx context.Context, id string, patch lifecycle.ProjectPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return lifecycle.Errf(lifecycle.KindNotFound, "project %s not found", id)
	}
	if m.rejectPriorityColumn && patch.PriorityInviteOn != nil {
		return m.schemaError(&lifecycle.Error{
			Kind:  lifecycle.KindSchemaDegraded,
			Msg:   `column "priority_invitation_active" of relation "project" does not exist`,
			Field: "priority_invitation_active",
		})
	}
	if patch.Status != nil && m.rejectStatuses[*patch.Status] {
		return m.schemaError(&lifecycle.Error{
			Kind:  lifecycle.KindSchemaDegraded,
			Msg:   "value violates check constraint project_status_check",
			Field: "status",
		})
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.ApprovedBy != nil {
		p.ApprovedBy = patch.ApprovedBy
	}
	if patch.ClearApprovers {
		p.ApproverIDs = nil
	}
	if patch.ClearCandidate {
		p.PriorityCandidateID = nil
	}
	if patch.PriorityInviteOn != nil {
		p.PriorityInviteOn = *patch.PriorityInviteOn
	}
	if patch.WorkspaceRef != nil {
		p.WorkspaceRef = patch.WorkspaceRef
	}
	if patch.ProvisioningError != nil {
		p.ProvisioningError = patch.ProvisioningError
	}
	return nil
}

func (m *memRepo) schemaError(e *lifecycle.Error) error {
	if m.wrapSchemaErrors {
		return fmt.Errorf("update project: %w", e)
	}
	return e
}

func (m *memRepo) SetProjectApprovers(ctx context.Context, id string, approverIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return lifecycle.Errf(lifecycle.KindNotFound, "project %s not found", id)
	}
	p.ApproverIDs = append([]string(nil), approverIDs...)
	return nil
}

func (m *memRepo) GetBid(ctx context.Context, id string) (*lifecycle.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[id]
	if !ok {
		return nil, lifecycle.Errf(lifecycle.KindNotFound, "bid %s not found", id)
	}
	cp := *b
	return &cp, nil
}

func (m *memRepo) InsertBid(ctx context.Context, b *lifecycle.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[b.ProjectID]
	if !ok {
		return lifecycle.Errf(lifecycle.KindNotFound, "project %s not found", b.ProjectID)
	}
	if p.Status != lifecycle.StatusBidding {
		return lifecycle.Errf(lifecycle.KindNotOpenForBidding, "project %s is %s", p.ID, p.Status)
	}
	for _, other := range m.bids {
		if other.ProjectID == b.ProjectID && other.ContractorID == b.ContractorID && other.Status.Live() {
			return lifecycle.Errf(lifecycle.KindDuplicateBid, "live bid exists")
		}
	}
	approved := m.countApprovedLocked(b.ProjectID)
	if approved >= p.RequiredContractors {
		return lifecycle.CapacityError(p.RequiredContractors, approved)
	}
	cp := *b
	m.bids[b.ID] = &cp
	return nil
}

func (m *memRepo) ApproveBid(ctx context.Context, id string) (*lifecycle.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[id]
	if !ok {
		return nil, lifecycle.Errf(lifecycle.KindNotFound, "bid %s not found", id)
	}
	if b.Status != lifecycle.BidSubmitted {
		return nil, lifecycle.Errf(lifecycle.KindInvalidState, "bid %s is %s", b.ID, b.Status)
	}
	p := m.projects[b.ProjectID]
	approved := m.countApprovedLocked(b.ProjectID)
	if approved >= p.RequiredContractors {
		return nil, lifecycle.CapacityError(p.RequiredContractors, approved)
	}
	b.Status = lifecycle.BidApproved
	cp := *b
	return &cp, nil
}

func (m *memRepo) CountApprovedBids(ctx context.Context, projectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countApprovedLocked(projectID), nil
}

func (m *memRepo) countApprovedLocked(projectID string) int {
	count := 0
	for _, b := range m.bids {
		if b.ProjectID == projectID && b.Status == lifecycle.BidApproved {
			count++
		}
	}
	return count
}

func (m *memRepo) GetLiveBid(ctx context.Context, projectID, contractorID string) (*lifecycle.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bids {
		if b.ProjectID == projectID && b.ContractorID == contractorID && b.Status.Live() {
			cp := *b
			return &cp, nil
		}
	}
	return nil, lifecycle.Errf(lifecycle.KindNotFound, "no live bid")
}

func (m *memRepo) GetDeclinedContract(ctx context.Context, projectID, contractorID string) (*lifecycle.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contracts {
		if c.ProjectID == projectID && c.ContractorID == contractorID && c.Status == lifecycle.ContractDeclined {
			cp := *c
			return &cp, nil
		}
	}
	return nil, lifecycle.Errf(lifecycle.KindNotFound, "no declined contract")
}

func (m *memRepo) GetContract(ctx context.Context, id string) (*lifecycle.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[id]
	if !ok {
		return nil, lifecycle.Errf(lifecycle.KindNotFound, "contract %s not found", id)
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) InsertContract(ctx context.Context, c *lifecycle.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.contracts[c.ID] = &cp
	return nil
}

func (m *memRepo) ResolveContract(ctx context.Context, id string, status lifecycle.ContractStatus, respondedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[id]
	if !ok {
		return lifecycle.Errf(lifecycle.KindNotFound, "contract %s not found", id)
	}
	if c.Status != lifecycle.ContractOffered {
		return lifecycle.Errf(lifecycle.KindAlreadyResolved, "contract %s is already %s", id, c.Status)
	}
	c.Status = status
	c.RespondedAt = &respondedAt
	return nil
}

func (m *memRepo) CountSignedContracts(ctx context.Context, projectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.contracts {
		if c.ProjectID == projectID && c.Status == lifecycle.ContractSigned {
			count++
		}
	}
	return count, nil
}

func (m *memRepo) InsertPriorityInvitation(ctx context.Context, inv *lifecycle.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.invitations {
		if other.ProjectID == inv.ProjectID && other.ContractorID == inv.ContractorID && other.Response == lifecycle.ResponsePending {
			return lifecycle.Errf(lifecycle.KindAlreadyResolved, "pending invitation exists")
		}
	}
	cp := *inv
	m.invitations[inv.ID] = &cp
	return nil
}

func (m *memRepo) GetPendingInvitation(ctx context.Context, projectID, contractorID string) (*lifecycle.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.ProjectID == projectID && inv.ContractorID == contractorID && inv.Response == lifecycle.ResponsePending {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, lifecycle.Errf(lifecycle.KindNotFound, "no pending invitation")
}

func (m *memRepo) GetInvitation(ctx context.Context, projectID, contractorID string) (*lifecycle.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.ProjectID == projectID && inv.ContractorID == contractorID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, lifecycle.Errf(lifecycle.KindNotFound, "no invitation")
}

func (m *memRepo) GetProjectPendingInvitation(ctx context.Context, projectID string) (*lifecycle.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.ProjectID == projectID && inv.Response == lifecycle.ResponsePending {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, lifecycle.Errf(lifecycle.KindNotFound, "no pending invitation")
}

func (m *memRepo) ResolveInvitation(ctx context.Context, id string, response lifecycle.Response, notes *string, respondedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok {
		return lifecycle.Errf(lifecycle.KindNotFound, "invitation %s not found", id)
	}
	if inv.Response != lifecycle.ResponsePending {
		return lifecycle.Errf(lifecycle.KindAlreadyResolved, "invitation %s is already resolved", id)
	}
	inv.Response = response
	inv.Notes = notes
	inv.RespondedAt = &respondedAt
	return nil
}

func (m *memRepo) IsFavoriteContractor(ctx context.Context, orgID, contractorID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.favorites[orgID+"/"+contractorID], nil
}

func (m *memRepo) ListOrgAdmins(ctx context.Context, orgID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.admins[orgID]...), nil
}

// stubAuthz отдает роли из таблицы.
type stubAuthz struct {
	roles map[string]lifecycle.Role
}

func (a *stubAuthz) GetRole(ctx context.Context, userID, orgID string) (lifecycle.Role, error) {
	return a.roles[userID+"/"+orgID], nil
}

// stubNotifier копит уведомления; может имитировать сбой доставки.
type stubNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	fail error
}

type sentNotification struct {
	UserID string
	Type   string
}

func (n *stubNotifier) Notify(ctx context.Context, userID, ntype, title, message string, data map[string]string) error {
	if n.fail != nil {
		return n.fail
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Type: ntype})
	return nil
}

func (n *stubNotifier) byType(ntype string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		if s.Type == ntype {
			out = append(out, s)
		}
	}
	return out
}

// stubProvisioner возвращает фиксированную ссылку либо ошибку.
type stubProvisioner struct {
	ref string
	err error
}

func (p *stubProvisioner) ProvisionWorkspace(ctx context.Context, orgFolderRef, projectName string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.ref, nil
}
