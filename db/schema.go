package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"procurement/internal/lifecycle"
)

// SchemaCapabilities описывает, какие опциональные колонки есть в текущем
// поколении схемы. Патчи опрашивают дескриптор до записи, чтобы не
// рассыпать try/retry по вызывающему коду.
type SchemaCapabilities struct {
	PriorityInviteActive bool
}

// DetectCapabilities опрашивает information_schema один раз при старте.
func DetectCapabilities(ctx context.Context, s *Storage) (SchemaCapabilities, error) {
	var count int
	query := `
        SELECT COUNT(1) FROM information_schema.columns
        WHERE table_name = 'project' AND column_name = 'priority_invitation_active'`
	if err := s.db.GetContext(ctx, &count, query); err != nil {
		return SchemaCapabilities{}, err
	}
	return SchemaCapabilities{PriorityInviteActive: count > 0}, nil
}

// buildProjectPatch собирает SET-часть UPDATE из заданных полей патча.
// Поля, которых нет в текущей схеме, молча опускаются.
func (s *Storage) buildProjectPatch(patch lifecycle.ProjectPatch) (string, []interface{}) {
	var sets []string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.ApprovedBy != nil {
		add("approved_by", *patch.ApprovedBy)
	}
	if patch.ClearCandidate {
		sets = append(sets, "priority_invitation_candidate_id = NULL")
	}
	if patch.PriorityInviteOn != nil && s.caps.PriorityInviteActive {
		add("priority_invitation_active", *patch.PriorityInviteOn)
	}
	if patch.WorkspaceRef != nil {
		add("workspace_ref", *patch.WorkspaceRef)
	}
	if patch.ProvisioningError != nil {
		add("provisioning_error", *patch.ProvisioningError)
	}

	sets = append(sets, "updated_at = NOW()")
	return strings.Join(sets, ", "), args
}

// mapWriteError переводит ошибки Postgres в виды ядра. 42703 — колонка
// отсутствует в старой схеме; 23514/22P02 — устаревший constraint или enum
// отверг значение статуса; 23505 по живому индексу предложений — дубликат.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return err
	}
	switch pqErr.Code {
	case "42703":
		return &lifecycle.Error{
			Kind:  lifecycle.KindSchemaDegraded,
			Msg:   pqErr.Message,
			Field: undefinedColumn(pqErr),
		}
	case "23514", "22P02":
		return &lifecycle.Error{Kind: lifecycle.KindSchemaDegraded, Msg: pqErr.Message, Field: "status"}
	case "23505":
		if strings.Contains(pqErr.Constraint, "bid_live") {
			return lifecycle.Errf(lifecycle.KindDuplicateBid, "live bid already exists")
		}
		if strings.Contains(pqErr.Constraint, "invitation_pending") {
			return lifecycle.Errf(lifecycle.KindAlreadyResolved, "pending invitation already exists")
		}
	}
	return err
}

func undefinedColumn(pqErr *pq.Error) string {
	if pqErr.Column != "" {
		return pqErr.Column
	}
	// Postgres кладет имя колонки в текст вида: column "x" ... does not exist
	if i := strings.Index(pqErr.Message, `"`); i >= 0 {
		rest := pqErr.Message[i+1:]
		if j := strings.Index(rest, `"`); j >= 0 {
			return rest[:j]
		}
	}
	return ""
}
