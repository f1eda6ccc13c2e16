package main

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// feedPageSize is the fixed page size for both feeds. An empty page is the
// definitive end-of-feed signal; a full page always carries a next cursor.
const feedPageSize = 6

type FeedResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor *string    `json:"next_cursor"`
}

type Service interface {
	SubmitResource(in ResourceInput, authorEmail string) (*Resource, error)
	UpdateResource(id string, in ResourceUpdateInput, actor string) error
	DeleteResource(id string, actor string) error
	GetResource(id string, viewer string) (*ResourceView, error)
	ToggleStar(resourceID, voterID string) (stars int64, voted bool, err error)
	Feed(query, cursor string) (*FeedResult, error)
	FeedByAuthor(email, cursor string) (*FeedResult, error)
	AcceptReview(resourceID string) error
	CreateOrUpdateUser(user User) error
	EnsureUser(email string) error
	Reviewers() ([]string, error)
	close()
}

type ServiceImpl struct {
	resourceRepo ResourceRepository
	voteRepo     VoteRepository
	userRepo     UserRepository
	log          logrus.FieldLogger
}

func NewService(resourceRepo ResourceRepository, voteRepo VoteRepository,
	userRepo UserRepository, logger logrus.FieldLogger) *ServiceImpl {
	return &ServiceImpl{
		resourceRepo: resourceRepo,
		voteRepo:     voteRepo,
		userRepo:     userRepo,
		log:          logger.WithField("component", "service"),
	}
}

func (s *ServiceImpl) SubmitResource(in ResourceInput, authorEmail string) (*Resource, error) {
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	res := Resource{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		URL:         in.URL,
		Category:    in.Category,
		Tags:        tags,
		AuthorEmail: authorEmail,
		CreatedAt:   time.Now().UnixNano(),
		Stars:       0,
		StarredBy:   StringList{},
		Reviewed:    false,
	}
	if err := s.resourceRepo.InsertResource(res); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"resource_id": res.ID,
		"author":      authorEmail,
	}).Info("resource submitted")
	return &res, nil
}

func (s *ServiceImpl) UpdateResource(id string, in ResourceUpdateInput, actor string) error {
	res, err := s.resourceRepo.GetResourceByID(id)
	if err != nil {
		return err
	}
	if res.AuthorEmail != actor {
		return ErrForbidden
	}

	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return err
	}
	return s.resourceRepo.UpdateResource(id, ResourceUpdate{
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Tags:        tags,
	})
}

func (s *ServiceImpl) DeleteResource(id string, actor string) error {
	res, err := s.resourceRepo.GetResourceByID(id)
	if err != nil {
		return err
	}
	if res.AuthorEmail != actor {
		return ErrForbidden
	}
	return s.resourceRepo.DeleteResource(id)
}

func (s *ServiceImpl) GetResource(id string, viewer string) (*ResourceView, error) {
	res, err := s.resourceRepo.GetResourceByID(id)
	if err != nil {
		return nil, err
	}
	view := res.View(viewer)
	return &view, nil
}

func (s *ServiceImpl) ToggleStar(resourceID, voterID string) (int64, bool, error) {
	return s.voteRepo.ToggleStar(resourceID, voterID)
}

// Feed returns one ranked page. A malformed or mismatched cursor degrades to
// end-of-feed instead of erroring so infinite scroll clients keep working.
func (s *ServiceImpl) Feed(query, cursor string) (*FeedResult, error) {
	after, err := decodeRankedCursor(cursor, query)
	if errors.Is(err, ErrInvalidCursor) {
		s.log.WithField("cursor", cursor).Warn("invalid feed cursor, treating as end of feed")
		return &FeedResult{Resources: []Resource{}}, nil
	}

	resources, err := s.resourceRepo.FeedPage(query, after, feedPageSize)
	if err != nil {
		return nil, err
	}

	result := &FeedResult{Resources: resources}
	if len(resources) == feedPageSize {
		next := rankedCursor(resources[len(resources)-1], query)
		result.NextCursor = &next
	}
	return result, nil
}

func (s *ServiceImpl) FeedByAuthor(email, cursor string) (*FeedResult, error) {
	after, err := decodeRecencyCursor(cursor)
	if errors.Is(err, ErrInvalidCursor) {
		s.log.WithField("cursor", cursor).Warn("invalid author cursor, treating as end of feed")
		return &FeedResult{Resources: []Resource{}}, nil
	}

	resources, err := s.resourceRepo.FeedPageByAuthor(email, after, feedPageSize)
	if err != nil {
		return nil, err
	}

	result := &FeedResult{Resources: resources}
	if len(resources) == feedPageSize {
		next := recencyCursor(resources[len(resources)-1])
		result.NextCursor = &next
	}
	return result, nil
}

// AcceptReview flips the reviewed flag exactly once; a second acceptance for
// the same resource reports ErrAlreadyReviewed.
func (s *ServiceImpl) AcceptReview(resourceID string) error {
	changed, err := s.resourceRepo.MarkReviewed(resourceID)
	if err != nil {
		return err
	}
	if !changed {
		return ErrAlreadyReviewed
	}
	s.log.WithField("resource_id", resourceID).Info("resource marked reviewed")
	return nil
}

func (s *ServiceImpl) CreateOrUpdateUser(user User) error {
	return s.userRepo.CreateOrUpdateUser(user)
}

func (s *ServiceImpl) EnsureUser(email string) error {
	return s.userRepo.EnsureUser(email)
}

func (s *ServiceImpl) Reviewers() ([]string, error) {
	return s.userRepo.GetReviewers()
}

func (s *ServiceImpl) close() {
	s.resourceRepo.close()
	s.voteRepo.close()
	s.userRepo.close()
}

// normalizeTags lowercases, trims, and dedupes tags, preserving first-seen
// order. An input that normalizes to nothing is a validation failure.
func normalizeTags(tags []string) (StringList, error) {
	seen := make(map[string]bool, len(tags))
	out := make(StringList, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, &ValidationError{Fields: map[string][]string{
			"tags": {"Please add at least one tag."},
		}}
	}
	return out, nil
}
