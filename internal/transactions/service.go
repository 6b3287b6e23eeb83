package transactions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

// Service exposes read access to a participant's transactions.
type Service interface {
	Get(ctx context.Context, id, actorID uuid.UUID) (*TransactionDTO, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type readRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListForUser(ctx context.Context, params listForUserParams) ([]models.Transaction, *pagination.Cursor, error)
}

type service struct {
	repo readRepository
}

// ListParams configures a transaction listing for one user.
type ListParams struct {
	UserID uuid.UUID
	Role   Role
	Limit  int
	Cursor string
}

// ListResult wraps a page of transactions and the cursor for the next page.
type ListResult struct {
	Items  []TransactionDTO `json:"items"`
	Cursor string           `json:"cursor"`
}

// NewService wires the transaction read service.
func NewService(repo readRepository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transactions repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, id, actorID uuid.UUID) (*TransactionDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	txn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if txn.BuyerID != actorID && txn.SellerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "transaction belongs to other users")
	}
	return FromModel(txn), nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	switch params.Role {
	case "", RoleBuyer, RoleSeller:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be buyer or seller")
	}

	query := listForUserParams{
		UserID: params.UserID,
		Role:   params.Role,
		Limit:  params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListForUser(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	items := make([]TransactionDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: items, Cursor: cursor}, nil
}
