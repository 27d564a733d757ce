package lifecycle

import (
	"errors"
	"fmt"
)

// Kind — машиночитаемый вид ошибки жизненного цикла.
type Kind string

const (
	KindNotFound            Kind = "NotFound"
	KindUnauthorized        Kind = "Unauthorized"
	KindInvalidState        Kind = "InvalidState"
	KindDeadlinePassed      Kind = "DeadlinePassed"
	KindDuplicateBid        Kind = "DuplicateBid"
	KindPermanentlyExcluded Kind = "PermanentlyExcluded"
	KindCapacityReached     Kind = "CapacityReached"
	KindExpired             Kind = "Expired"
	KindAlreadyResolved     Kind = "AlreadyResolved"
	KindNotOpenForBidding   Kind = "NotOpenForBidding"

	// KindSchemaDegraded не выходит за границу компонента: ловится и
	// обрабатывается повторной записью без неподдерживаемых полей.
	KindSchemaDegraded Kind = "SchemaDegraded"
)

// Error несет вид ошибки и структурированный контекст для сообщения.
type Error struct {
	Kind Kind
	Msg  string

	// Для CapacityReached: настроенный лимит и текущее число одобренных.
	Required int
	Approved int

	// Для SchemaDegraded: колонка, которую отвергло хранилище.
	Field string
}

func (e *Error) Error() string {
	if e.Kind == KindCapacityReached {
		return fmt.Sprintf("%s: %s (required=%d, approved=%d)", e.Kind, e.Msg, e.Required, e.Approved)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func Errf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// CapacityError строит ошибку CapacityReached с обязательным контекстом.
func CapacityError(required, approved int) *Error {
	return &Error{
		Kind:     KindCapacityReached,
		Msg:      "no contractor slots left",
		Required: required,
		Approved: approved,
	}
}

// KindOf возвращает вид ошибки, либо пустой Kind для посторонних ошибок.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
