package main

import (
	"encoding/base64"
	"encoding/json"
)

// feedCursor is the decoded form of the opaque pagination token. It encodes
// the sort-key tuple of the last delivered item. Ranked-feed cursors carry a
// star count and the title filter they were minted under; author-feed cursors
// carry neither and order by recency alone. The two kinds never mix.
type feedCursor struct {
	Stars     *int64 `json:"stars,omitempty"`
	CreatedAt int64  `json:"created_at"`
	ID        string `json:"id"`
	Query     string `json:"q,omitempty"`
}

func (c feedCursor) ranked() bool { return c.Stars != nil }

// Encode serializes the cursor as url-safe base64 over JSON. The token is
// opaque to clients.
func (c feedCursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(token string) (*feedCursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	c := feedCursor{}
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, ErrInvalidCursor
	}
	if c.ID == "" || c.CreatedAt <= 0 {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// decodeRankedCursor rejects tokens minted by the author feed or minted under
// a different title filter; a filtered cursor is only valid with its filter.
func decodeRankedCursor(token, query string) (*feedCursor, error) {
	c, err := decodeCursor(token)
	if err != nil || c == nil {
		return c, err
	}
	if !c.ranked() || c.Query != query {
		return nil, ErrInvalidCursor
	}
	return c, nil
}

// decodeRecencyCursor rejects ranked-feed tokens.
func decodeRecencyCursor(token string) (*feedCursor, error) {
	c, err := decodeCursor(token)
	if err != nil || c == nil {
		return c, err
	}
	if c.ranked() {
		return nil, ErrInvalidCursor
	}
	return c, nil
}

func rankedCursor(last Resource, query string) string {
	stars := last.Stars
	return feedCursor{
		Stars:     &stars,
		CreatedAt: last.CreatedAt,
		ID:        last.ID,
		Query:     query,
	}.Encode()
}

func recencyCursor(last Resource) string {
	return feedCursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
}
