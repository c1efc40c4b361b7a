package httpadapter

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

// Identity headers are set by the authenticating gateway in front of the API.
const (
	userIDHeader       = "X-User-Id"
	departmentIDHeader = "X-Department-Id"
	roleIDHeader       = "X-Role-Id"
)

// principalFromRequest reads the caller identity. Department and role default
// to the wildcard, which restricts the caller to wildcard-tagged content.
func principalFromRequest(r *http.Request) (domain.Principal, error) {
	raw := strings.TrimSpace(r.Header.Get(userIDHeader))
	if raw == "" {
		return domain.Principal{}, domain.WrapError(domain.ErrUnauthorized, "resolve principal", errors.New("missing "+userIDHeader))
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return domain.Principal{}, domain.WrapError(domain.ErrUnauthorized, "resolve principal", fmt.Errorf("invalid %s %q", userIDHeader, raw))
	}

	dept, err := optionalIDHeader(r, departmentIDHeader)
	if err != nil {
		return domain.Principal{}, err
	}
	role, err := optionalIDHeader(r, roleIDHeader)
	if err != nil {
		return domain.Principal{}, err
	}
	return domain.Principal{UserID: userID, DepartmentID: dept, RoleID: role}, nil
}

func optionalIDHeader(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(name))
	if raw == "" {
		return domain.WildcardID, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "resolve principal", fmt.Errorf("invalid %s %q", name, raw))
	}
	return id, nil
}

func clientInfo(r *http.Request) domain.ClientInfo {
	ip := r.RemoteAddr
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return domain.ClientInfo{IPAddress: ip, UserAgent: r.UserAgent()}
}
