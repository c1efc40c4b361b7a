package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SupportedExtensions is the scan allow-list. Legacy .doc and .ppt are
// accepted by the scanner even though no reader handles them.
var SupportedExtensions = map[string]bool{
	".pdf": true, ".docx": true, ".doc": true,
	".xlsx": true, ".xls": true, ".pptx": true, ".ppt": true,
	".tif": true, ".tiff": true, ".png": true, ".jpg": true, ".jpeg": true,
	".txt": true, ".md": true, ".csv": true, ".html": true, ".htm": true,
}

type HierarchyMode string

const (
	HierarchyWildcard HierarchyMode = "wildcard"
	HierarchyReject   HierarchyMode = "reject"
	HierarchyDefault  HierarchyMode = "default"
)

// HierarchyPolicy decides the ACL of files whose path does not encode one.
type HierarchyPolicy struct {
	Mode         HierarchyMode `yaml:"mode"`
	DepartmentID int64         `yaml:"department_id"`
	RoleID       int64         `yaml:"role_id"`
}

// ParseHierarchyPolicy accepts "wildcard", "reject" or "default:<dept>:<role>".
func ParseHierarchyPolicy(raw string) (HierarchyPolicy, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case value == "" || value == string(HierarchyWildcard):
		return HierarchyPolicy{Mode: HierarchyWildcard}, nil
	case value == string(HierarchyReject):
		return HierarchyPolicy{Mode: HierarchyReject}, nil
	case strings.HasPrefix(value, string(HierarchyDefault)+":"):
		parts := strings.Split(value, ":")
		if len(parts) != 3 {
			return HierarchyPolicy{}, WrapError(ErrInvalidConfig, "parse hierarchy policy", fmt.Errorf("want default:<dept>:<role>, got %q", raw))
		}
		dept, err1 := parseACLID(parts[1])
		role, err2 := parseACLID(parts[2])
		if err1 != nil || err2 != nil {
			return HierarchyPolicy{}, WrapError(ErrInvalidConfig, "parse hierarchy policy", fmt.Errorf("invalid ids in %q", raw))
		}
		return HierarchyPolicy{Mode: HierarchyDefault, DepartmentID: dept, RoleID: role}, nil
	default:
		return HierarchyPolicy{}, WrapError(ErrInvalidConfig, "parse hierarchy policy", fmt.Errorf("unknown policy %q", raw))
	}
}

func (p HierarchyPolicy) Validate() error {
	switch p.Mode {
	case HierarchyWildcard, HierarchyReject:
		return nil
	case HierarchyDefault:
		if p.DepartmentID < 0 || p.RoleID < 0 {
			return WrapError(ErrInvalidConfig, "hierarchy policy", fmt.Errorf("default ids must not be negative"))
		}
		return nil
	default:
		return WrapError(ErrInvalidConfig, "hierarchy policy", fmt.Errorf("unknown mode %q", p.Mode))
	}
}

// ResolveACL derives (department, role) from a slash-separated path relative
// to the corpus root: <dept>/<role>/... gives both, <dept>/<file> gives the
// department with a wildcard role. Other paths fall back to the policy;
// ok is false when the policy rejects them.
func (p HierarchyPolicy) ResolveACL(relPath string) (dept, role int64, ok bool) {
	parts := strings.Split(strings.Trim(relPath, "/"), "/")
	switch {
	case len(parts) >= 3:
		d, errD := parseACLID(parts[0])
		r, errR := parseACLID(parts[1])
		if errD == nil && errR == nil {
			return d, r, true
		}
	case len(parts) == 2:
		if d, err := parseACLID(parts[0]); err == nil {
			return d, WildcardID, true
		}
	}

	switch p.Mode {
	case HierarchyReject:
		return 0, 0, false
	case HierarchyDefault:
		return p.DepartmentID, p.RoleID, true
	default:
		return WildcardID, WildcardID, true
	}
}

func parseACLID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	if id < 0 {
		return 0, fmt.Errorf("negative id %d", id)
	}
	return id, nil
}
