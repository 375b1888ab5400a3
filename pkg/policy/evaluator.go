// Package policy decides whether a user may view or edit a saved query.
//
// The built-in rules (unsaved queries, the name lock sentinels and creator
// ownership) are always applied. An injected Provider can restrict the
// result further but can never grant edit access the built-in rules deny.
package policy

import (
	"context"

	"github.com/ekaya-inc/ekaya-queries/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-queries/pkg/models"
)

// Provider is the pluggable authorization collaborator. It is configured once
// at startup and consulted on every evaluation.
type Provider interface {
	// CanView is authoritative for visibility.
	CanView(ctx context.Context, q *models.Query, user *models.User) (bool, error)
	// CanEdit can only veto edit access established by the built-in rules.
	CanEdit(ctx context.Context, q *models.Query, user *models.User) (bool, error)
}

// PolicyFunc is a single view or edit callback.
type PolicyFunc func(ctx context.Context, q *models.Query, user *models.User) (bool, error)

// Funcs adapts a pair of optional callbacks to a Provider.
// A nil callback means that policy is not configured.
type Funcs struct {
	View PolicyFunc
	Edit PolicyFunc
}

var _ Provider = Funcs{}

func (f Funcs) CanView(ctx context.Context, q *models.Query, user *models.User) (bool, error) {
	if f.View == nil {
		return true, nil
	}
	return f.View(ctx, q, user)
}

func (f Funcs) CanEdit(ctx context.Context, q *models.Query, user *models.User) (bool, error) {
	if f.Edit == nil {
		return true, nil
	}
	return f.Edit(ctx, q, user)
}

// Permissive allows everything. It is the default Provider.
type Permissive struct{}

var _ Provider = Permissive{}

func (Permissive) CanView(context.Context, *models.Query, *models.User) (bool, error) {
	return true, nil
}

func (Permissive) CanEdit(context.Context, *models.Query, *models.User) (bool, error) {
	return true, nil
}

// Permissions is the evaluated access of one user to one query.
type Permissions struct {
	Viewable bool `json:"viewable"`
	Editable bool `json:"editable"`
	Locked   bool `json:"locked"`
}

// Evaluator computes viewable/editable. Results are never cached: every call
// reads the query's current state. Safe for concurrent use if the Provider is.
type Evaluator struct {
	provider Provider
}

// NewEvaluator creates an Evaluator. A nil provider behaves as Permissive.
func NewEvaluator(provider Provider) *Evaluator {
	if provider == nil {
		provider = Permissive{}
	}
	return &Evaluator{provider: provider}
}

// Viewable reports whether user may see q.
func (e *Evaluator) Viewable(ctx context.Context, q *models.Query, user *models.User) (bool, error) {
	ok, err := e.provider.CanView(ctx, q, user)
	if err != nil {
		return false, &apperrors.PolicyEvaluationError{Policy: "view", Err: err}
	}
	return ok, nil
}

// Editable reports whether user may modify q. The checks run cheapest first
// and stop at the first rejection:
//  1. q is unsaved, or q has a non-empty name without a lock sentinel, or
//     user created q
//  2. q is viewable by user
//  3. the provider's edit policy agrees
func (e *Evaluator) Editable(ctx context.Context, q *models.Query, user *models.User) (bool, error) {
	if !e.passesOwnershipRule(q, user) {
		return false, nil
	}

	viewable, err := e.Viewable(ctx, q, user)
	if err != nil || !viewable {
		return false, err
	}

	ok, err := e.provider.CanEdit(ctx, q, user)
	if err != nil {
		return false, &apperrors.PolicyEvaluationError{Policy: "edit", Err: err}
	}
	return ok, nil
}

// Permissions evaluates both checks for the UI.
func (e *Evaluator) Permissions(ctx context.Context, q *models.Query, user *models.User) (Permissions, error) {
	viewable, err := e.Viewable(ctx, q, user)
	if err != nil {
		return Permissions{}, err
	}
	editable := false
	if viewable {
		editable, err = e.Editable(ctx, q, user)
		if err != nil {
			return Permissions{}, err
		}
	}
	return Permissions{Viewable: viewable, Editable: editable, Locked: q.IsLocked()}, nil
}

func (e *Evaluator) passesOwnershipRule(q *models.Query, user *models.User) bool {
	if !q.IsPersisted() {
		return true
	}
	if q.Name != "" && !q.IsLocked() {
		return true
	}
	return q.IsCreatedBy(user.ID())
}
