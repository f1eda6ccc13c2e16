package main

type ResourceRepository interface {
	InsertResource(res Resource) error
	GetResourceByID(id string) (*Resource, error)
	UpdateResource(id string, upd ResourceUpdate) error
	DeleteResource(id string) error
	MarkReviewed(id string) (bool, error)
	FeedPage(query string, after *feedCursor, limit int) ([]Resource, error)
	FeedPageByAuthor(email string, after *feedCursor, limit int) ([]Resource, error)
	close()
}

type VoteRepository interface {
	ToggleStar(resourceID, voterID string) (stars int64, voted bool, err error)
	close()
}

type UserRepository interface {
	CreateOrUpdateUser(user User) error
	EnsureUser(email string) error
	GetUserByEmail(email string) (*User, error)
	GetReviewers() ([]string, error)
	close()
}
