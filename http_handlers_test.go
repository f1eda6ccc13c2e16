package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMailer struct {
	mu      sync.Mutex
	signin  []string
	reviews []string
}

func (m *stubMailer) SendSigninLink(to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signin = append(m.signin, link)
	return nil
}

func (m *stubMailer) SendReviewRequest(to, title, resourceURL, acceptLink string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews = append(m.reviews, acceptLink)
	return nil
}

func (m *stubMailer) reviewCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reviews)
}

func (m *stubMailer) lastReviewLink() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reviews[len(m.reviews)-1]
}

func setupTestServer(t *testing.T) (*echo.Echo, *SQLRepository, *stubMailer) {
	t.Helper()

	testLogger := logrus.New()
	testLogger.SetOutput(os.Stderr)
	testLogger.SetLevel(logrus.ErrorLevel)

	repo, err := NewSQLiteRepository(":memory:", testLogger)
	require.NoError(t, err)
	t.Cleanup(repo.close)

	svc := NewService(repo, repo, repo, testLogger)
	stub := &stubMailer{}
	cfg := Config{
		JWTSecret: "test-secret",
		BaseURL:   "http://localhost:3000",
	}

	reviewNotifier := NewReviewNotifier(svc, stub, []byte(cfg.JWTSecret), cfg.BaseURL, testLogger)
	reviewNotifier.Start()
	t.Cleanup(reviewNotifier.Shutdown)

	return NewHTTPRouter(cfg, svc, stub, reviewNotifier, testLogger), repo, stub
}

func sessionFor(t *testing.T, email string) *http.Cookie {
	t.Helper()
	token, err := signSessionToken([]byte("test-secret"), email)
	require.NoError(t, err)
	return &http.Cookie{Name: sessionCookieName, Value: token}
}

func doJSON(router *echo.Echo, method, target string, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStarEndpoint_ToggleAndToggleBack(t *testing.T) {
	router, repo, _ := setupTestServer(t)
	mustInsert(t, repo, testResource("r1", "Go Tour", "author@x.com", 100))

	cookie := sessionFor(t, "voter@x.com")

	rec := doJSON(router, http.MethodPost, "/api/resources/r1/star", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := struct {
		Stars int64 `json:"stars"`
		Voted bool  `json:"voted"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.EqualValues(t, 1, out.Stars)
	assert.True(t, out.Voted)

	rec = doJSON(router, http.MethodPost, "/api/resources/r1/star", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.EqualValues(t, 0, out.Stars)
	assert.False(t, out.Voted)
}

func TestStarEndpoint_RequiresSession(t *testing.T) {
	router, repo, _ := setupTestServer(t)
	mustInsert(t, repo, testResource("r1", "Go Tour", "author@x.com", 100))

	rec := doJSON(router, http.MethodPost, "/api/resources/r1/star", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(router, http.MethodPost, "/api/resources/r1/star", "", &http.Cookie{
		Name:  sessionCookieName,
		Value: "garbage",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a malformed cookie reads as unauthenticated")
}

func TestStarEndpoint_UnknownResource(t *testing.T) {
	router, _, _ := setupTestServer(t)

	rec := doJSON(router, http.MethodPost, "/api/resources/ghost/star", "", sessionFor(t, "voter@x.com"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitResource_ValidationErrorShape(t *testing.T) {
	router, _, _ := setupTestServer(t)

	rec := doJSON(router, http.MethodPost, "/api/resources",
		`{"title":"x","description":"y","url":"z","category":"","tags":[]}`,
		sessionFor(t, "author@x.com"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	out := struct {
		Errors map[string][]string `json:"errors"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	for _, field := range []string{"title", "description", "url", "category", "tags"} {
		assert.Contains(t, out.Errors, field)
	}
}

func TestSubmitResource_NotifiesReviewerPool(t *testing.T) {
	router, repo, stub := setupTestServer(t)
	require.NoError(t, repo.CreateOrUpdateUser(User{Email: "rev1@x.com", IsReviewer: true}))
	require.NoError(t, repo.CreateOrUpdateUser(User{Email: "rev2@x.com", IsReviewer: true}))

	rec := doJSON(router, http.MethodPost, "/api/resources",
		`{"title":"Learning Go","description":"a thorough introduction","url":"https://example.com/go","category":"books","tags":["Go"]}`,
		sessionFor(t, "author@x.com"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := Resource{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "author@x.com", res.AuthorEmail)
	assert.Equal(t, StringList{"go"}, res.Tags)

	require.Eventually(t, func() bool { return stub.reviewCount() == 2 },
		time.Second, 10*time.Millisecond, "both reviewers get a tokenized accept link")
	assert.Contains(t, stub.lastReviewLink(), "/api/review/accept?token=")
}

func TestUpdateResource_ForbiddenForNonAuthor(t *testing.T) {
	router, repo, _ := setupTestServer(t)
	mustInsert(t, repo, testResource("r1", "Go Tour", "owner@x.com", 100))

	body := `{"title":"Hijacked title","description":"a thorough introduction","category":"books","tags":["go"]}`
	rec := doJSON(router, http.MethodPut, "/api/resources/r1", body, sessionFor(t, "intruder@x.com"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(router, http.MethodPut, "/api/resources/r1", body, sessionFor(t, "owner@x.com"))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestFeedEndpoint_PaginatesWithCursor(t *testing.T) {
	router, repo, _ := setupTestServer(t)
	for i := 0; i < feedPageSize+1; i++ {
		mustInsert(t, repo, testResource(
			"r"+string(rune('a'+i)), "Resource", "author@x.com", int64(1000+i)))
	}

	rec := doJSON(router, http.MethodGet, "/api/resources", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	page := FeedResult{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Resources, feedPageSize)
	require.NotNil(t, page.NextCursor)

	rec = doJSON(router, http.MethodGet, "/api/resources?cursor="+*page.NextCursor, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Resources, 1)
	assert.Nil(t, page.NextCursor)
}

func TestResourceByID_ComputesIsStarredAndHidesVoters(t *testing.T) {
	router, repo, _ := setupTestServer(t)
	mustInsert(t, repo, testResource("r1", "Go Tour", "author@x.com", 100, "fan@x.com"))

	rec := doJSON(router, http.MethodGet, "/api/resources/r1", "", sessionFor(t, "fan@x.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_starred":true`)
	assert.NotContains(t, rec.Body.String(), "starred_by", "the voter set is never exposed")

	rec = doJSON(router, http.MethodGet, "/api/resources/r1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_starred":false`)
}

func TestMyResources_ScopedToSession(t *testing.T) {
	router, repo, _ := setupTestServer(t)
	mustInsert(t, repo, testResource("r1", "Mine", "me@x.com", 100))
	mustInsert(t, repo, testResource("r2", "Theirs", "them@x.com", 200))

	rec := doJSON(router, http.MethodGet, "/api/resources/mine", "", sessionFor(t, "me@x.com"))
	require.Equal(t, http.StatusOK, rec.Code)

	page := FeedResult{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Resources, 1)
	assert.Equal(t, "r1", page.Resources[0].ID)
}

func TestReviewAccept_FlowAndReplay(t *testing.T) {
	router, repo, _ := setupTestServer(t)
	mustInsert(t, repo, testResource("r1", "Go Tour", "author@x.com", 100))

	token, err := signReviewToken([]byte("test-secret"), "rev@x.com", "r1")
	require.NoError(t, err)

	rec := doJSON(router, http.MethodGet, "/api/review/accept?token="+token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)

	res, err := repo.GetResourceByID("r1")
	require.NoError(t, err)
	assert.True(t, res.Reviewed)

	rec = doJSON(router, http.MethodGet, "/api/review/accept?token="+token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)

	rec = doJSON(router, http.MethodGet, "/api/review/accept?token=garbage", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_JoinCallbackMe(t *testing.T) {
	router, _, stub := setupTestServer(t)

	rec := doJSON(router, http.MethodPost, "/api/auth/join", `{"email":"user@x.com"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, stub.signin, 1)
	assert.Contains(t, stub.signin[0], "/api/auth/callback?token=")

	token := stub.signin[0][strings.Index(stub.signin[0], "token=")+len("token="):]
	rec = doJSON(router, http.MethodGet, "/api/auth/callback?token="+token, "", nil)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, sessionCookieName, cookies[0].Name)

	rec = doJSON(router, http.MethodGet, "/api/auth/me", "", &http.Cookie{
		Name:  sessionCookieName,
		Value: token,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"user@x.com"`)
}

func TestJoin_ReviewerPoolSurvivesSignin(t *testing.T) {
	router, repo, _ := setupTestServer(t)
	require.NoError(t, repo.CreateOrUpdateUser(User{Email: "rev@x.com", Name: "Rev", IsReviewer: true}))

	rec := doJSON(router, http.MethodPost, "/api/auth/join", `{"email":"rev@x.com"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	user, err := repo.GetUserByEmail("rev@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Rev", user.Name)
	assert.True(t, user.IsReviewer)

	reviewers, err := repo.GetReviewers()
	require.NoError(t, err)
	assert.Equal(t, []string{"rev@x.com"}, reviewers, "reviewer pool must survive a sign-in")
}

func TestJoin_RejectsBadEmail(t *testing.T) {
	router, _, _ := setupTestServer(t)

	rec := doJSON(router, http.MethodPost, "/api/auth/join", `{"email":"nope"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
