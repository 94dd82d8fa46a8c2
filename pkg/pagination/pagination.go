package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// defaultLimitKey holds a per-request page size set by SetDefaultLimit.
const defaultLimitKey = "pagination.default_limit"

// SetDefaultLimit overrides DefaultLimit for the rest of the request.
// Values outside 1..MaxLimit are ignored.
func SetDefaultLimit(c echo.Context, n int) {
	if n > 0 && n <= MaxLimit {
		c.Set(defaultLimitKey, n)
	}
}

func defaultLimit(c echo.Context) int {
	if n, ok := c.Get(defaultLimitKey).(int); ok {
		return n
	}
	return DefaultLimit
}

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts pagination parameters from the echo context. Both
// page/per_page and limit/offset are accepted; page wins when present.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("per_page"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	if limit <= 0 {
		limit = defaultLimit(c)
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var offset int
	if page, _ := strconv.Atoi(c.QueryParam("page")); page > 0 {
		offset = (page - 1) * limit
	} else {
		offset, _ = strconv.Atoi(c.QueryParam("offset"))
	}
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Page returns the 1-based page number of the current offset.
func (p Params) Page() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

// Response wraps a paginated API response.
type Response struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
	Page       int         `json:"page"`
	TotalPages int         `json:"total_pages"`
	HasMore    bool        `json:"has_more"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	p := Params{Limit: limit, Offset: offset}
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return &Response{
		Data:       data,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		Page:       p.Page(),
		TotalPages: pages,
		HasMore:    offset+limit < total,
	}
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}
