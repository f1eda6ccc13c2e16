package main

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// maxToggleRetries bounds the optimistic-concurrency retry loop in
// ToggleStar before the caller gets ErrContention.
const maxToggleRetries = 10

const resourceColumns = `resource_id, title, description, url, category, tags,
	author_email, created_at, stars, starred_by, reviewed, version`

// SQLRepository implements all repository interfaces on top of sqlx.
// Queries are written with ? placeholders and rebound per driver, so the same
// implementation backs both the postgres and sqlite constructors.
type SQLRepository struct {
	db  *sqlx.DB
	log logrus.FieldLogger
}

func (r *SQLRepository) InsertResource(res Resource) error {
	query := r.db.Rebind(`
	  insert into resources (resource_id, title, description, url, category,
			tags, author_email, created_at, stars, starred_by, reviewed, version)
	  values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)

	_, err := r.db.Exec(query, res.ID, res.Title, res.Description, res.URL,
		res.Category, res.Tags, res.AuthorEmail, res.CreatedAt, res.Stars,
		res.StarredBy, res.Reviewed, res.Version)
	if err != nil {
		r.log.WithError(err).Error("insert resource failed")
	}
	return err
}

func (r *SQLRepository) GetResourceByID(id string) (*Resource, error) {
	query := r.db.Rebind(`select ` + resourceColumns + ` from resources where resource_id=?;`)

	res := Resource{}
	err := r.db.Get(&res, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.log.WithError(err).WithField("resource_id", id).Error("get resource failed")
		return nil, err
	}
	return &res, nil
}

func (r *SQLRepository) UpdateResource(id string, upd ResourceUpdate) error {
	// url and author_email are frozen after creation and never touched here.
	query := r.db.Rebind(`
	  update resources
	  set title=?, description=?, category=?, tags=?
	  where resource_id=?;`)

	result, err := r.db.Exec(query, upd.Title, upd.Description, upd.Category, upd.Tags, id)
	if err != nil {
		r.log.WithError(err).WithField("resource_id", id).Error("update resource failed")
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepository) DeleteResource(id string) error {
	query := r.db.Rebind(`delete from resources where resource_id=?;`)

	result, err := r.db.Exec(query, id)
	if err != nil {
		r.log.WithError(err).WithField("resource_id", id).Error("delete resource failed")
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkReviewed flips reviewed from false to true exactly once. It reports
// whether this call performed the transition; a resource that was already
// reviewed yields (false, nil).
func (r *SQLRepository) MarkReviewed(id string) (bool, error) {
	query := r.db.Rebind(`update resources set reviewed=? where resource_id=? and reviewed=?;`)

	result, err := r.db.Exec(query, true, id, false)
	if err != nil {
		r.log.WithError(err).WithField("resource_id", id).Error("mark reviewed failed")
		return false, err
	}
	if n, _ := result.RowsAffected(); n == 1 {
		return true, nil
	}
	if _, err := r.GetResourceByID(id); err != nil {
		return false, err
	}
	return false, nil
}

// ToggleStar is the vote ledger. It reads the current stars/starredBy/version,
// computes the toggled state, and writes stars and starredBy together guarded
// by the version token. A concurrent writer bumps the version and the update
// matches zero rows; the toggle is then retried against the fresh state, so a
// same-voter race becomes star-then-unstar rather than a double count. After
// maxToggleRetries lost races the caller gets ErrContention.
func (r *SQLRepository) ToggleStar(resourceID, voterID string) (int64, bool, error) {
	query := r.db.Rebind(`
	  update resources
	  set stars=?, starred_by=?, version=version+1
	  where resource_id=? and version=?;`)

	for attempt := 0; attempt < maxToggleRetries; attempt++ {
		res, err := r.GetResourceByID(resourceID)
		if err != nil {
			return 0, false, err
		}

		var (
			starredBy StringList
			stars     int64
			voted     bool
		)
		if res.StarredBy.Contains(voterID) {
			starredBy = res.StarredBy.Without(voterID)
			stars = res.Stars - 1
			voted = false
		} else {
			starredBy = append(res.StarredBy.Without(voterID), voterID)
			stars = res.Stars + 1
			voted = true
		}

		result, err := r.db.Exec(query, stars, starredBy, resourceID, res.Version)
		if err != nil {
			r.log.WithError(err).WithField("resource_id", resourceID).Error("star toggle write failed")
			return 0, false, err
		}
		if n, _ := result.RowsAffected(); n == 1 {
			return stars, voted, nil
		}

		r.log.WithFields(logrus.Fields{
			"resource_id": resourceID,
			"voter":       voterID,
			"attempt":     attempt + 1,
		}).Debug("star toggle lost the version race, retrying")
		time.Sleep(time.Duration(attempt+1) * time.Millisecond)
	}

	return 0, false, ErrContention
}

// FeedPage returns one ranked page ordered by (stars desc, created_at desc,
// resource_id asc) resuming strictly after the cursor position. The keyset
// comparison never dereferences the cursor row, so a deleted anchor is
// harmless.
func (r *SQLRepository) FeedPage(query string, after *feedCursor, limit int) ([]Resource, error) {
	var (
		conds []string
		args  []interface{}
	)
	if query != "" {
		conds = append(conds, `lower(title) like ?`)
		args = append(args, "%"+strings.ToLower(query)+"%")
	}
	if after != nil {
		conds = append(conds, `(stars < ?
			or (stars = ? and created_at < ?)
			or (stars = ? and created_at = ? and resource_id > ?))`)
		args = append(args, *after.Stars,
			*after.Stars, after.CreatedAt,
			*after.Stars, after.CreatedAt, after.ID)
	}

	sqlText := `select ` + resourceColumns + ` from resources`
	if len(conds) > 0 {
		sqlText += ` where ` + strings.Join(conds, " and ")
	}
	sqlText += ` order by stars desc, created_at desc, resource_id asc limit ?;`
	args = append(args, limit)

	return r.selectResources(r.db.Rebind(sqlText), args...)
}

// FeedPageByAuthor is the unranked author-scoped page, ordered by recency with
// resource_id as the tiebreaker.
func (r *SQLRepository) FeedPageByAuthor(email string, after *feedCursor, limit int) ([]Resource, error) {
	conds := []string{`author_email = ?`}
	args := []interface{}{email}
	if after != nil {
		conds = append(conds, `(created_at < ? or (created_at = ? and resource_id > ?))`)
		args = append(args, after.CreatedAt, after.CreatedAt, after.ID)
	}

	sqlText := `select ` + resourceColumns + ` from resources where ` +
		strings.Join(conds, " and ") +
		` order by created_at desc, resource_id asc limit ?;`
	args = append(args, limit)

	return r.selectResources(r.db.Rebind(sqlText), args...)
}

func (r *SQLRepository) selectResources(query string, args ...interface{}) ([]Resource, error) {
	resources := make([]Resource, 0)
	if err := r.db.Select(&resources, query, args...); err != nil {
		r.log.WithError(err).Error("feed page query failed")
		return nil, err
	}
	return resources, nil
}

func (r *SQLRepository) CreateOrUpdateUser(user User) error {
	query := r.db.Rebind(`
	  insert into users (email, name, is_reviewer)
	  values (?, ?, ?)
	  on conflict(email) do update
	     set name = excluded.name,
	         is_reviewer = excluded.is_reviewer;`)

	_, err := r.db.Exec(query, user.Email, user.Name, user.IsReviewer)
	if err != nil {
		r.log.WithError(err).WithField("email", user.Email).Error("upsert user failed")
	}
	return err
}

// EnsureUser records an email on first sign-in. An existing row is left
// untouched so a reviewer keeps their flag and name across sign-ins.
func (r *SQLRepository) EnsureUser(email string) error {
	query := r.db.Rebind(`
	  insert into users (email, name, is_reviewer)
	  values (?, ?, ?)
	  on conflict(email) do nothing;`)

	_, err := r.db.Exec(query, email, "", false)
	if err != nil {
		r.log.WithError(err).WithField("email", email).Error("ensure user failed")
	}
	return err
}

func (r *SQLRepository) GetUserByEmail(email string) (*User, error) {
	query := r.db.Rebind(`select email, name, is_reviewer from users where email=?;`)

	user := User{}
	err := r.db.Get(&user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.log.WithError(err).WithField("email", email).Error("get user failed")
		return nil, err
	}
	return &user, nil
}

func (r *SQLRepository) GetReviewers() ([]string, error) {
	emails := make([]string, 0)
	err := r.db.Select(&emails, `select email from users where is_reviewer = true order by email;`)
	if err != nil {
		r.log.WithError(err).Error("get reviewers failed")
		return nil, err
	}
	return emails, nil
}

func (r *SQLRepository) close() {
	r.db.Close()
}
