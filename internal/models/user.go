package models

// UserRole represents the roles carried in access tokens.
type UserRole string

const (
	RoleAdminCPO  UserRole = "admin_cpo"
	RoleConductor UserRole = "conductor"
)

// Valid reports whether the role is one the API knows about.
func (r UserRole) Valid() bool {
	return r == RoleAdminCPO || r == RoleConductor
}

// SystemActor is recorded as the acting user for unattended mutations.
const SystemActor = "system"

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// MaxPage caps the page number so offsets cannot overflow.
const MaxPage = 100000

// PageRequest carries normalised paging input.
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize clamps page and size to sane bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.PageSize <= 0 || p.PageSize > 100 {
		p.PageSize = 20
	}
	return p
}

// Offset returns the SQL offset of the page.
func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// Pagination builds response metadata for a total row count.
func (p PageRequest) Pagination(total int) *Pagination {
	n := p.Normalize()
	return &Pagination{Page: n.Page, PageSize: n.PageSize, TotalCount: total}
}
