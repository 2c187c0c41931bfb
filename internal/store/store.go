package store

import (
	"context"

	"github.com/me/q2galaxy/pkg/model"
)

// Store indexes tool invocations and the artifacts they saved.
type Store interface {
	// Invocations
	CreateInvocation(ctx context.Context, inv *model.Invocation) error
	GetInvocation(ctx context.Context, id string) (*model.Invocation, error)
	ListInvocations(ctx context.Context, opts model.ListOptions) ([]*model.Invocation, int, error)
	UpdateInvocation(ctx context.Context, inv *model.Invocation) error

	// Results
	CreateResult(ctx context.Context, res *model.ResultRecord) error
	ListResults(ctx context.Context, invocationID string) ([]model.ResultRecord, error)
	GetResultByUUID(ctx context.Context, uuid string) (*model.ResultRecord, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
