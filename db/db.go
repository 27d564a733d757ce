package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sethvargo/go-retry"

	"procurement/internal/lifecycle"
)

type Storage struct {
	db   *sqlx.DB
	caps SchemaCapabilities
}

func NewStorage(ctx context.Context, db *sqlx.DB) (*Storage, error) {
	s := &Storage{db: db}
	caps, err := DetectCapabilities(ctx, s)
	if err != nil {
		return nil, err
	}
	s.caps = caps
	return s, nil
}

// NewStorageWithCaps — для тестов, где дескриптор схемы задается напрямую.
func NewStorageWithCaps(db *sqlx.DB, caps SchemaCapabilities) *Storage {
	return &Storage{db: db, caps: caps}
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return lifecycle.Errf(lifecycle.KindNotFound, format, args...)
	}
	return err
}

// Project (Проект)

func (s *Storage) GetProject(ctx context.Context, id string) (*lifecycle.Project, error) {
	p := &lifecycle.Project{}
	query := `SELECT * FROM project WHERE id = $1`
	if !s.caps.PriorityInviteActive {
		// Старое поколение схемы: опциональной колонки нет.
		query = `SELECT id, title, org_id, status, required_contractors, bidding_deadline,
                 approved_by, priority_invitation_candidate_id, workspace_ref,
                 provisioning_error, created_at, updated_at
                 FROM project WHERE id = $1`
	}
	if err := s.db.GetContext(ctx, p, query, id); err != nil {
		return nil, notFound(err, "project %s not found", id)
	}
	approvers := []string{}
	err := s.db.SelectContext(ctx, &approvers,
		`SELECT user_id FROM project_approver WHERE project_id = $1 ORDER BY user_id`, id)
	if err != nil {
		return nil, err
	}
	p.ApproverIDs = approvers
	return p, nil
}

func (s *Storage) InsertProject(ctx context.Context, p *lifecycle.Project) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO project
            (id, title, org_id, status, required_contractors, bidding_deadline,
             priority_invitation_candidate_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at, updated_at`
	err = tx.QueryRowContext(ctx, query,
		p.ID, p.Title, p.OrgID, string(p.Status), p.RequiredContractors,
		p.BiddingDeadline, p.PriorityCandidateID).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	for _, approver := range p.ApproverIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO project_approver (project_id, user_id) VALUES ($1, $2)`,
			p.ID, approver); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Storage) UpdateProject(ctx context.Context, id string, patch lifecycle.ProjectPatch) error {
	set, args := s.buildProjectPatch(patch)
	args = append(args, id)
	query := fmt.Sprintf("UPDATE project SET %s WHERE id = $%d", set, len(args))

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lifecycle.Errf(lifecycle.KindNotFound, "project %s not found", id)
	}
	if patch.ClearApprovers {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM project_approver WHERE project_id = $1`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Storage) SetProjectApprovers(ctx context.Context, id string, approverIDs []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM project_approver WHERE project_id = $1`, id); err != nil {
		return err
	}
	for _, approver := range approverIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO project_approver (project_id, user_id) VALUES ($1, $2)`,
			id, approver); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Storage) GetProjects(ctx context.Context, statuses []string, limit, offset int) ([]lifecycle.Project, error) {
	query := `SELECT * FROM project`
	var args []interface{}
	if len(statuses) > 0 {
		query += ` WHERE status = ANY($1)`
		args = append(args, pq.Array(statuses))
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset)

	projects := []lifecycle.Project{}
	err := s.db.SelectContext(ctx, &projects, query, args...)
	return projects, err
}

func (s *Storage) GetOrgProjects(ctx context.Context, orgID string, limit, offset int) ([]lifecycle.Project, error) {
	query := `
        SELECT * FROM project
        WHERE org_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	projects := []lifecycle.Project{}
	err := s.db.SelectContext(ctx, &projects, query, orgID, limit, offset)
	return projects, err
}

// Bid (Предложение)

func (s *Storage) GetBid(ctx context.Context, id string) (*lifecycle.Bid, error) {
	b := &lifecycle.Bid{}
	err := s.db.GetContext(ctx, b, `SELECT * FROM bid WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "bid %s not found", id)
	}
	return b, nil
}

func (s *Storage) GetLiveBid(ctx context.Context, projectID, contractorID string) (*lifecycle.Bid, error) {
	b := &lifecycle.Bid{}
	query := `
        SELECT * FROM bid
        WHERE project_id = $1 AND contractor_id = $2 AND status IN ('submitted', 'approved')`
	err := s.db.GetContext(ctx, b, query, projectID, contractorID)
	if err != nil {
		return nil, notFound(err, "no live bid for contractor %s on project %s", contractorID, projectID)
	}
	return b, nil
}

func (s *Storage) CountApprovedBids(ctx context.Context, projectID string) (int, error) {
	var count int
	query := `SELECT COUNT(1) FROM bid WHERE project_id = $1 AND status = 'approved'`
	err := s.db.GetContext(ctx, &count, query, projectID)
	return count, err
}

// InsertBid — атомарное решение о допуске: строка проекта блокируется, а
// статус, дубликат и вместимость перечитываются в той же транзакции. Две
// подачи, гонящиеся за последний слот, упираются в блокировку, и вторая
// видит уже занятый слот.
func (s *Storage) InsertBid(ctx context.Context, b *lifecycle.Bid) error {
	return s.withSerial(ctx, func(tx *sqlx.Tx) error {
		var (
			status   string
			deadline *time.Time
			required int
		)
		row := tx.QueryRowContext(ctx,
			`SELECT status, bidding_deadline, required_contractors FROM project WHERE id = $1 FOR UPDATE`,
			b.ProjectID)
		if err := row.Scan(&status, &deadline, &required); err != nil {
			return notFound(err, "project %s not found", b.ProjectID)
		}
		if lifecycle.Status(status) != lifecycle.StatusBidding {
			return lifecycle.Errf(lifecycle.KindNotOpenForBidding,
				"project %s is %s, not open for bidding", b.ProjectID, status)
		}

		var live int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM bid WHERE project_id = $1 AND contractor_id = $2 AND status IN ('submitted', 'approved')`,
			b.ProjectID, b.ContractorID).Scan(&live); err != nil {
			return err
		}
		if live > 0 {
			return lifecycle.Errf(lifecycle.KindDuplicateBid,
				"contractor %s already has a live bid on project %s", b.ContractorID, b.ProjectID)
		}

		var approved int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM bid WHERE project_id = $1 AND status = 'approved'`,
			b.ProjectID).Scan(&approved); err != nil {
			return err
		}
		if approved >= required {
			return lifecycle.CapacityError(required, approved)
		}

		query := `
            INSERT INTO bid (id, project_id, contractor_id, amount, proposal, status)
            VALUES ($1, $2, $3, $4, $5, $6)
            RETURNING created_at`
		err := tx.QueryRowContext(ctx, query,
			b.ID, b.ProjectID, b.ContractorID, b.Amount, b.Proposal, string(b.Status)).
			Scan(&b.CreatedAt)
		return mapWriteError(err)
	})
}

// ApproveBid — count-then-update под той же блокировкой строки проекта.
func (s *Storage) ApproveBid(ctx context.Context, id string) (*lifecycle.Bid, error) {
	b := &lifecycle.Bid{}
	err := s.withSerial(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, b, `SELECT * FROM bid WHERE id = $1`, id); err != nil {
			return notFound(err, "bid %s not found", id)
		}
		if b.Status != lifecycle.BidSubmitted {
			return lifecycle.Errf(lifecycle.KindInvalidState, "bid %s is %s, not submitted", b.ID, b.Status)
		}

		var required int
		if err := tx.QueryRowContext(ctx,
			`SELECT required_contractors FROM project WHERE id = $1 FOR UPDATE`,
			b.ProjectID).Scan(&required); err != nil {
			return notFound(err, "project %s not found", b.ProjectID)
		}
		var approved int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM bid WHERE project_id = $1 AND status = 'approved'`,
			b.ProjectID).Scan(&approved); err != nil {
			return err
		}
		if approved >= required {
			return lifecycle.CapacityError(required, approved)
		}

		_, err := tx.ExecContext(ctx, `UPDATE bid SET status = 'approved' WHERE id = $1`, id)
		if err == nil {
			b.Status = lifecycle.BidApproved
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Storage) GetContractorBids(ctx context.Context, contractorID string, limit, offset int) ([]lifecycle.Bid, error) {
	query := `
        SELECT * FROM bid
        WHERE contractor_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	bids := []lifecycle.Bid{}
	err := s.db.SelectContext(ctx, &bids, query, contractorID, limit, offset)
	return bids, err
}

func (s *Storage) GetProjectBids(ctx context.Context, projectID string, limit, offset int) ([]lifecycle.Bid, error) {
	query := `
        SELECT * FROM bid
        WHERE project_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	bids := []lifecycle.Bid{}
	err := s.db.SelectContext(ctx, &bids, query, projectID, limit, offset)
	return bids, err
}

// withSerial повторяет транзакцию при сбое сериализации или дедлоке.
func (s *Storage) withSerial(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(10*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return retryableSerial(err)
		}
		return retryableSerial(tx.Commit())
	})
}

func retryableSerial(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		if pqErr.Code == "40001" || pqErr.Code == "40P01" {
			return retry.RetryableError(err)
		}
	}
	return err
}

// PriorityInvitation (Приоритетное приглашение)

func (s *Storage) InsertPriorityInvitation(ctx context.Context, inv *lifecycle.Invitation) error {
	query := `
        INSERT INTO priority_invitation
            (id, project_id, contractor_id, org_id, response, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query,
		inv.ID, inv.ProjectID, inv.ContractorID, inv.OrgID, string(inv.Response), inv.ExpiresAt).
		Scan(&inv.CreatedAt)
	return mapWriteError(err)
}

func (s *Storage) GetPendingInvitation(ctx context.Context, projectID, contractorID string) (*lifecycle.Invitation, error) {
	inv := &lifecycle.Invitation{}
	query := `
        SELECT * FROM priority_invitation
        WHERE project_id = $1 AND contractor_id = $2 AND response = 'pending'`
	err := s.db.GetContext(ctx, inv, query, projectID, contractorID)
	if err != nil {
		return nil, notFound(err, "no pending invitation for contractor %s on project %s", contractorID, projectID)
	}
	return inv, nil
}

func (s *Storage) GetInvitation(ctx context.Context, projectID, contractorID string) (*lifecycle.Invitation, error) {
	inv := &lifecycle.Invitation{}
	query := `
        SELECT * FROM priority_invitation
        WHERE project_id = $1 AND contractor_id = $2
        ORDER BY created_at DESC LIMIT 1`
	err := s.db.GetContext(ctx, inv, query, projectID, contractorID)
	if err != nil {
		return nil, notFound(err, "no invitation for contractor %s on project %s", contractorID, projectID)
	}
	return inv, nil
}

func (s *Storage) GetProjectPendingInvitation(ctx context.Context, projectID string) (*lifecycle.Invitation, error) {
	inv := &lifecycle.Invitation{}
	query := `
        SELECT * FROM priority_invitation
        WHERE project_id = $1 AND response = 'pending'
        LIMIT 1`
	err := s.db.GetContext(ctx, inv, query, projectID)
	if err != nil {
		return nil, notFound(err, "no pending invitation on project %s", projectID)
	}
	return inv, nil
}

// ResolveInvitation пишет ответ только поверх pending; разрешенная запись
// больше не мутирует.
func (s *Storage) ResolveInvitation(ctx context.Context, id string, response lifecycle.Response, notes *string, respondedAt time.Time) error {
	query := `
        UPDATE priority_invitation
        SET response = $1, notes = $2, responded_at = $3
        WHERE id = $4 AND response = 'pending'`
	res, err := s.db.ExecContext(ctx, query, string(response), notes, respondedAt, id)
	if err != nil {
		return mapWriteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lifecycle.Errf(lifecycle.KindAlreadyResolved, "invitation %s is already resolved", id)
	}
	return nil
}

// Contract (Договор)

func (s *Storage) GetContract(ctx context.Context, id string) (*lifecycle.Contract, error) {
	c := &lifecycle.Contract{}
	err := s.db.GetContext(ctx, c, `SELECT * FROM contract WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "contract %s not found", id)
	}
	return c, nil
}

func (s *Storage) GetDeclinedContract(ctx context.Context, projectID, contractorID string) (*lifecycle.Contract, error) {
	c := &lifecycle.Contract{}
	query := `
        SELECT * FROM contract
        WHERE project_id = $1 AND contractor_id = $2 AND status = 'declined'
        LIMIT 1`
	err := s.db.GetContext(ctx, c, query, projectID, contractorID)
	if err != nil {
		return nil, notFound(err, "no declined contract for contractor %s on project %s", contractorID, projectID)
	}
	return c, nil
}

func (s *Storage) InsertContract(ctx context.Context, c *lifecycle.Contract) error {
	query := `
        INSERT INTO contract (id, project_id, contractor_id, org_id, status)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query,
		c.ID, c.ProjectID, c.ContractorID, c.OrgID, string(c.Status)).
		Scan(&c.CreatedAt)
	return mapWriteError(err)
}

func (s *Storage) ResolveContract(ctx context.Context, id string, status lifecycle.ContractStatus, respondedAt time.Time) error {
	query := `
        UPDATE contract SET status = $1, responded_at = $2
        WHERE id = $3 AND status = 'offered'`
	res, err := s.db.ExecContext(ctx, query, string(status), respondedAt, id)
	if err != nil {
		return mapWriteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lifecycle.Errf(lifecycle.KindAlreadyResolved, "contract %s is already resolved", id)
	}
	return nil
}

func (s *Storage) CountSignedContracts(ctx context.Context, projectID string) (int, error) {
	var count int
	query := `SELECT COUNT(1) FROM contract WHERE project_id = $1 AND status = 'signed'`
	err := s.db.GetContext(ctx, &count, query, projectID)
	return count, err
}

// Membership / Favorites (только чтение со стороны ядра)

func (s *Storage) GetRole(ctx context.Context, userID, orgID string) (lifecycle.Role, error) {
	var role string
	query := `SELECT role FROM membership WHERE user_id = $1 AND org_id = $2`
	err := s.db.GetContext(ctx, &role, query, userID, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return lifecycle.RoleNone, nil
	}
	if err != nil {
		return lifecycle.RoleNone, err
	}
	return lifecycle.Role(role), nil
}

func (s *Storage) IsFavoriteContractor(ctx context.Context, orgID, contractorID string) (bool, error) {
	var count int
	query := `
        SELECT COUNT(1) FROM favorite_contractor
        WHERE org_id = $1 AND contractor_id = $2 AND active`
	err := s.db.GetContext(ctx, &count, query, orgID, contractorID)
	return count > 0, err
}

func (s *Storage) ListOrgAdmins(ctx context.Context, orgID string) ([]string, error) {
	admins := []string{}
	query := `SELECT user_id FROM membership WHERE org_id = $1 AND role = 'org_admin'`
	err := s.db.SelectContext(ctx, &admins, query, orgID)
	return admins, err
}

// Notification (Уведомление) — сток best-effort; Storage реализует
// lifecycle.Notifier записью в таблицу.

type Notification struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Data      []byte    `db:"data" json:"data"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

func (s *Storage) Notify(ctx context.Context, userID, ntype, title, message string, data map[string]string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO notification (user_id, type, title, message, data)
        VALUES ($1, $2, $3, $4, $5)`
	_, err = s.db.ExecContext(ctx, query, userID, ntype, title, message, payload)
	return err
}

func (s *Storage) GetUserNotifications(ctx context.Context, userID string, limit, offset int) ([]Notification, error) {
	query := `
        SELECT * FROM notification
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	items := []Notification{}
	err := s.db.SelectContext(ctx, &items, query, userID, limit, offset)
	return items, err
}
