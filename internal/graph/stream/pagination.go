package stream

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/r3e-network/graphdb/internal/graph/model"
)

// Page is one (offset, limit) slice of a node result set.
type Page struct {
	Nodes    []*model.Node
	HasMore  bool
	Cursor   string
	PageSize int
}

// Paginate returns the page at (page, pageSize) over nodes, 0-indexed.
func Paginate(nodes []*model.Node, page, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = len(nodes)
	}
	start := page * pageSize
	if start > len(nodes) {
		start = len(nodes)
	}
	end := start + pageSize
	if end > len(nodes) {
		end = len(nodes)
	}
	return Page{
		Nodes:    nodes[start:end],
		HasMore:  end < len(nodes),
		PageSize: pageSize,
	}
}

// Cursor carries pagination state across successive NextPage calls
// until HasMore reports false. Each cursor is tagged with a uuid token
// so a caller cannot forge one by guessing an offset.
type Cursor struct {
	token    string
	nodes    []*model.Node
	pageSize int
	offset   int
}

// NewCursor starts a cursor over nodes with the given page size.
func NewCursor(nodes []*model.Node, pageSize int) *Cursor {
	if pageSize <= 0 {
		pageSize = len(nodes)
	}
	return &Cursor{token: uuid.NewString(), nodes: nodes, pageSize: pageSize}
}

// Token returns the cursor's opaque correlation id.
func (c *Cursor) Token() string { return c.token }

// NextPage returns the next page and advances the cursor's offset by the
// number of nodes actually returned.
func (c *Cursor) NextPage() Page {
	start := c.offset
	if start > len(c.nodes) {
		start = len(c.nodes)
	}
	end := start + c.pageSize
	if end > len(c.nodes) {
		end = len(c.nodes)
	}
	c.offset = end
	return Page{
		Nodes:    c.nodes[start:end],
		HasMore:  end < len(c.nodes),
		Cursor:   c.token,
		PageSize: c.pageSize,
	}
}

// HasMore reports whether NextPage would return a non-empty page.
func (c *Cursor) HasMore() bool {
	return c.offset < len(c.nodes)
}

// EncodeOffset renders an offset as an opaque cursor string for transport
// across a stateless HTTP boundary.
func EncodeOffset(offset int) string {
	return strconv.Itoa(offset)
}

// DecodeOffset parses a cursor string produced by EncodeOffset.
func DecodeOffset(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
