package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidCursor indicates a cursor token that cannot be decoded.
var ErrInvalidCursor = errors.New("pagination: invalid cursor")

// Cursor is the decoded form of an opaque cursor token: the sort-key value
// and row id of the last row the client has seen. The id doubles as the
// deterministic tiebreak for non-unique sort keys.
type Cursor struct {
	Key string `json:"k"`
	ID  string `json:"id"`
}

// EncodeCursor produces the opaque token handed to clients.
func EncodeCursor(key, id string) string {
	raw, _ := json.Marshal(Cursor{Key: key, ID: id})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses an opaque token back into its components.
func DecodeCursor(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, ErrInvalidCursor
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	if c.ID == "" {
		return Cursor{}, ErrInvalidCursor
	}
	return c, nil
}
