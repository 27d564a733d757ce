package lifecycle

// Status — статус проекта в машине состояний.
type Status string

const (
	StatusDraft              Status = "draft"
	StatusPendingApproval    Status = "pending_approval"
	StatusBidding            Status = "bidding"
	StatusPriorityInvitation Status = "priority_invitation"
	StatusContracted         Status = "contracted"
	StatusInProgress         Status = "in_progress"
	StatusCompleted          Status = "completed"
	StatusRejected           Status = "rejected"
	StatusCancelled          Status = "cancelled"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusBidding, StatusPriorityInvitation,
		StatusContracted, StatusInProgress, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// transitions — единственная таблица допустимых переходов; ею пользуются
// все пишущие компоненты.
var transitions = map[Status][]Status{
	StatusDraft:              {StatusPendingApproval, StatusRejected, StatusCancelled},
	StatusPendingApproval:    {StatusBidding, StatusPriorityInvitation, StatusRejected, StatusCancelled},
	StatusPriorityInvitation: {StatusBidding, StatusContracted, StatusRejected, StatusCancelled},
	StatusBidding:            {StatusContracted, StatusRejected, StatusCancelled},
	StatusContracted:         {StatusInProgress},
	StatusInProgress:         {StatusCompleted},
	// rejected, completed, cancelled — терминальные
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}
