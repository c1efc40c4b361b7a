package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/core/ports"
)

const maxCatalogPage = 500

type Catalog struct {
	docs ports.DocumentRepository
}

func NewCatalog(docs ports.DocumentRepository) *Catalog {
	return &Catalog{docs: docs}
}

// ListDocuments only returns documents whose department and role tags the
// principal's access filter admits.
func (c *Catalog) ListDocuments(ctx context.Context, principal domain.Principal, filter domain.DocumentFilter) ([]domain.Document, error) {
	if principal.UserID <= 0 {
		return nil, domain.WrapError(domain.ErrUnauthorized, "list documents", errors.New("missing principal"))
	}
	filter.Access = domain.NewAccessFilter(principal)
	switch filter.Status {
	case "", domain.StatusPending, domain.StatusProcessing, domain.StatusIndexed, domain.StatusFailed:
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("unknown status %q", filter.Status))
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > maxCatalogPage {
		filter.Limit = maxCatalogPage
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	docs, err := c.docs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}
