package maillist

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Cursor is a keyset position: the first row of the next page. SortKey is
// the value of whichever column the facet orders by.
type Cursor struct {
	ID      string
	SortKey time.Time
}

type cursorToken struct {
	ID      string     `json:"id,omitempty"`
	SortKey *time.Time `json:"k,omitempty"`
	Offset  *int       `json:"offset,omitempty"`
}

// Encode returns the opaque token handed to clients.
func (c Cursor) Encode() string {
	k := c.SortKey.UTC()
	data, _ := json.Marshal(cursorToken{ID: c.ID, SortKey: &k})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses a token produced by Encode. An empty token means "from
// the most recent row" and yields nil. Offset tokens from older clients are
// recognised and refused with ErrUnsupportedCursor.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	var t cursorToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	if t.Offset != nil {
		return nil, ErrUnsupportedCursor
	}
	if t.ID == "" || t.SortKey == nil {
		return nil, fmt.Errorf("%w: missing id or sort key", ErrInvalidCursor)
	}

	return &Cursor{ID: t.ID, SortKey: *t.SortKey}, nil
}
