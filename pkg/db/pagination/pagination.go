package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidCursor is returned for page tokens that were not produced by
// EncodeCursor.
var ErrInvalidCursor = errors.New("invalid_cursor")

// Cursor identifies the last row of a page in keyset order.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// EncodeCursor renders a cursor as an opaque token safe to place in a query
// string.
func EncodeCursor(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil || c.ID == "" {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// BuildCursorPageInfo expects rows fetched with limit+1. The extra row only
// signals that another page exists; the token points at the last row the
// caller will return.
func BuildCursorPageInfo[T any](rows []*T, limit int, cursorOf func(*T) string) PageInfo {
	if limit <= 0 || len(rows) <= limit {
		return PageInfo{}
	}
	return PageInfo{
		HasMore:       true,
		NextPageToken: cursorOf(rows[limit-1]),
	}
}
