package lifecycle

import (
	"context"
	"errors"
	"log"
	"time"
)

// applyProjectPatch пишет патч с лестницей деградации для старых поколений
// схемы. Если хранилище отвергло опциональную колонку
// priority_invitation_active, тот же патч повторяется без нее. Если устаревший
// constraint отверг само значение статуса, статус понижается до публичного
// bidding — приглашенный подрядчик при этом не теряется, приглашение уже
// создано вызывающей стороной.
func applyProjectPatch(ctx context.Context, repo Repository, id string, patch ProjectPatch) (Status, error) {
	err := repo.UpdateProject(ctx, id, patch)
	if err == nil || !IsKind(err, KindSchemaDegraded) {
		return statusOf(patch), err
	}

	// Хранилище может вернуть ошибку обернутой, поэтому только errors.As.
	var degraded *Error
	errors.As(err, &degraded)
	if degraded.Field == "priority_invitation_active" && patch.PriorityInviteOn != nil {
		log.Printf("project %s: store rejected priority_invitation_active, retrying without it", id)
		retry := patch
		retry.PriorityInviteOn = nil
		err = repo.UpdateProject(ctx, id, retry)
		if err == nil || !IsKind(err, KindSchemaDegraded) {
			return statusOf(retry), err
		}
		errors.As(err, &degraded)
		patch = retry
	}

	if degraded.Field == "status" && patch.Status != nil && *patch.Status != StatusBidding {
		log.Printf("project %s: store rejected status %q, falling back to bidding", id, *patch.Status)
		fallback := patch
		public := StatusBidding
		fallback.Status = &public
		fallback.PriorityInviteOn = nil
		return statusOf(fallback), repo.UpdateProject(ctx, id, fallback)
	}

	return "", err
}

func statusOf(patch ProjectPatch) Status {
	if patch.Status != nil {
		return *patch.Status
	}
	return ""
}

// endOfDay — последний момент календарного дня дедлайна.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location()).Add(-time.Nanosecond)
}

// deadlinePassed: дедлайн включает весь свой день.
func deadlinePassed(now time.Time, deadline *time.Time) bool {
	if deadline == nil {
		return false
	}
	return now.After(endOfDay(*deadline))
}
