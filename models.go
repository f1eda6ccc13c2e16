// this file defines the data structures to be used throughout
package main

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList is a string slice stored as a JSON text column so the same
// schema works on both postgres and sqlite.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return json.Unmarshal([]byte(v), l)
	case []byte:
		return json.Unmarshal(v, l)
	case nil:
		*l = StringList{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}

func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// Without returns a copy of the list with every occurrence of s removed.
func (l StringList) Without(s string) StringList {
	out := make(StringList, 0, len(l))
	for _, v := range l {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

type Resource struct {
	ID          string     `db:"resource_id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	URL         string     `db:"url" json:"url"`
	Category    string     `db:"category" json:"category"`
	Tags        StringList `db:"tags" json:"tags"`
	AuthorEmail string     `db:"author_email" json:"author_email"`
	CreatedAt   int64      `db:"created_at" json:"created_at"`
	Stars       int64      `db:"stars" json:"stars"`
	StarredBy   StringList `db:"starred_by" json:"starred_by"`
	Reviewed    bool       `db:"reviewed" json:"reviewed"`

	// Version is the optimistic-concurrency token used by the star toggle.
	Version int64 `db:"version" json:"-"`
}

// ResourceView is the single-resource client shape: starredBy is stripped and
// is_starred is computed for the requesting identity, never persisted.
type ResourceView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	Category    string     `json:"category"`
	Tags        StringList `json:"tags"`
	AuthorEmail string     `json:"author_email"`
	CreatedAt   int64      `json:"created_at"`
	Stars       int64      `json:"stars"`
	Reviewed    bool       `json:"reviewed"`
	IsStarred   bool       `json:"is_starred"`
}

func (r Resource) View(viewer string) ResourceView {
	return ResourceView{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		URL:         r.URL,
		Category:    r.Category,
		Tags:        r.Tags,
		AuthorEmail: r.AuthorEmail,
		CreatedAt:   r.CreatedAt,
		Stars:       r.Stars,
		Reviewed:    r.Reviewed,
		IsStarred:   viewer != "" && r.StarredBy.Contains(viewer),
	}
}

// ResourceUpdate carries the author-mutable fields. URL and author are frozen
// after creation.
type ResourceUpdate struct {
	Title       string
	Description string
	Category    string
	Tags        StringList
}

type User struct {
	Email      string `db:"email" json:"email"`
	Name       string `db:"name" json:"name"`
	IsReviewer bool   `db:"is_reviewer" json:"is_reviewer"`
}
