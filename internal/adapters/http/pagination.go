package http

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Pagination bounds for the archive listing. The handler clamps to the same
// window the archive service enforces, so the Link headers it emits always
// describe the page that was actually served.
const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// PaginatedResponse wraps list results with pagination metadata.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination describes one offset window into a listing.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// ParsePagination reads offset/limit from the query string, clamped to the
// archive's bounds.
func ParsePagination(c *fiber.Ctx) Pagination {
	p := Pagination{
		Offset: c.QueryInt("offset", 0),
		Limit:  c.QueryInt("limit", defaultPageLimit),
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 || p.Limit > maxPageLimit {
		p.Limit = defaultPageLimit
	}
	return p
}

// SetLinkHeaders adds RFC 8288 Link headers describing the listing's pages.
func SetLinkHeaders(c *fiber.Ctx, p Pagination) {
	rels := []struct {
		name   string
		offset int
		ok     bool
	}{
		{"first", 0, true},
		{"prev", max(p.Offset-p.Limit, 0), p.Offset > 0},
		{"next", p.Offset + p.Limit, p.Offset+p.Limit < p.Total},
		{"last", max(p.Total-p.Limit, 0), true},
	}

	links := make([]string, 0, len(rels))
	for _, rel := range rels {
		if !rel.ok {
			continue
		}
		links = append(links, fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel=%q`,
			c.Path(), rel.offset, p.Limit, rel.name))
	}
	c.Set(fiber.HeaderLink, strings.Join(links, ", "))
}
