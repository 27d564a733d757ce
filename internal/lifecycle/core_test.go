package lifecycle_test

import (
	"time"

	"github.com/google/uuid"

	"procurement/internal/lifecycle"
)

// testCore собирает ядро над memRepo с управляемыми часами.
type testCore struct {
	repo        *memRepo
	authz       *stubAuthz
	notifier    *stubNotifier
	provisioner *stubProvisioner
	now         time.Time
	orch        *lifecycle.Orchestrator
}

func newTestCore(repo *memRepo) *testCore {
	tc := &testCore{
		repo:        repo,
		authz:       &stubAuthz{roles: map[string]lifecycle.Role{}},
		notifier:    &stubNotifier{},
		provisioner: &stubProvisioner{ref: "workspaces/acme/design"},
		now:         time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
	}
	nowFn := func() time.Time { return tc.now }
	inv := &lifecycle.Invitations{Repo: repo, Authz: tc.authz, Notifier: tc.notifier, Now: nowFn}
	tc.orch = &lifecycle.Orchestrator{
		Repo:        repo,
		Authz:       tc.authz,
		Notifier:    tc.notifier,
		Invitations: inv,
		Gate: &lifecycle.ApprovalGate{
			Repo: repo, Invitations: inv, Provisioner: tc.provisioner, Notifier: tc.notifier, Now: nowFn,
		},
		Admission: &lifecycle.Admission{
			Repo: repo, Authz: tc.authz, Notifier: tc.notifier, Invitations: inv, Now: nowFn,
		},
		Now: nowFn,
	}
	return tc
}

func (tc *testCore) grantRole(userID, orgID string, role lifecycle.Role) {
	tc.authz.roles[userID+"/"+orgID] = role
}

type projectOpts struct {
	status    lifecycle.Status
	required  int
	deadline  *time.Time
	approvers []string
	candidate string
}

func (tc *testCore) seedProject(opts projectOpts) *lifecycle.Project {
	if opts.required == 0 {
		opts.required = 1
	}
	p := &lifecycle.Project{
		ID:                  uuid.NewString(),
		Title:               "Bridge Redesign",
		OrgID:               "org-acme",
		Status:              opts.status,
		RequiredContractors: opts.required,
		BiddingDeadline:     opts.deadline,
		ApproverIDs:         opts.approvers,
		CreatedAt:           tc.now,
	}
	if opts.candidate != "" {
		candidate := opts.candidate
		p.PriorityCandidateID = &candidate
		// Кандидат проходит проверку избранного при создании проекта.
		tc.repo.favorites[p.OrgID+"/"+candidate] = true
	}
	tc.repo.projects[p.ID] = p
	return p
}

func datePtr(t time.Time) *time.Time { return &t }
