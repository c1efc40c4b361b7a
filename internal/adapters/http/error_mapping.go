package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

// errorStatuses is checked in order; the first matching kind wins.
var errorStatuses = []struct {
	kind   error
	status int
}{
	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrUnauthorized, http.StatusUnauthorized},
	{domain.ErrDocumentNotFound, http.StatusNotFound},
	{domain.ErrUnsupportedType, http.StatusUnsupportedMediaType},
	{domain.ErrDocumentBusy, http.StatusConflict},
	// A collaborator answered with something we cannot use.
	{domain.ErrContractViolation, http.StatusBadGateway},
	{domain.ErrTemporary, http.StatusServiceUnavailable},
	{context.DeadlineExceeded, http.StatusServiceUnavailable},
}

func mapErrorToHTTPStatus(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.kind) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}
