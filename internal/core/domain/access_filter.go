package domain

const (
	FieldDepartmentID = "department_id"
	FieldRoleID       = "role_id"
)

// AnyOf matches when the payload field equals one of Values.
type AnyOf struct {
	Field  string
	Values []int64
}

// AccessFilter is a conjunction of AnyOf clauses. Vector store adapters translate
// it into their native filter syntax; Allows evaluates it in process.
type AccessFilter struct {
	Must []AnyOf
}

// NewAccessFilter admits content tagged with the principal's department or the
// wildcard, and the principal's role or the wildcard.
func NewAccessFilter(p Principal) AccessFilter {
	return AccessFilter{
		Must: []AnyOf{
			{Field: FieldDepartmentID, Values: distinctIDs(p.DepartmentID, WildcardID)},
			{Field: FieldRoleID, Values: distinctIDs(p.RoleID, WildcardID)},
		},
	}
}

func (f AccessFilter) IsZero() bool {
	return len(f.Must) == 0
}

func (f AccessFilter) Allows(payload PointPayload) bool {
	for _, clause := range f.Must {
		value, ok := payload.IntField(clause.Field)
		if !ok || !containsID(clause.Values, value) {
			return false
		}
	}
	return true
}

// AllowsDocument applies the filter to a document's access tags.
func (f AccessFilter) AllowsDocument(d Document) bool {
	return f.Allows(PointPayload{DepartmentID: d.DepartmentID, RoleID: d.RoleID})
}

// IntField exposes the integer payload fields addressable by an AccessFilter.
func (p PointPayload) IntField(name string) (int64, bool) {
	switch name {
	case FieldDepartmentID:
		return p.DepartmentID, true
	case FieldRoleID:
		return p.RoleID, true
	case "document_id":
		return p.DocumentID, true
	default:
		return 0, false
	}
}

func distinctIDs(ids ...int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !containsID(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
