package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"gotest.tools/assert"

	"github.com/Techyishu/writerly/cms/cmstest"
	"github.com/Techyishu/writerly/cms/docstore"
	"github.com/Techyishu/writerly/cms/memstore"
	"github.com/Techyishu/writerly/fallback"
	"github.com/Techyishu/writerly/media"
	"github.com/Techyishu/writerly/models"
	"github.com/Techyishu/writerly/outbox"
	"github.com/Techyishu/writerly/search"
	"github.com/Techyishu/writerly/service/authService"
	"github.com/Techyishu/writerly/service/trackingService"
	"github.com/Techyishu/writerly/service/userService"
	"github.com/Techyishu/writerly/settings"
	"github.com/Techyishu/writerly/telemetry"
)

const (
	testAdminEmail      = "admin@writerly.test"
	testAdminPassword   = "admin-password"
	testRegistrationKey = "registration-key"
)

// testEnv - API server on top of in-memory stores. The document store can be switched off
type testEnv struct {
	env      *Env
	primary  *cmstest.Switchable
	fallback *fallback.MemoryStore
	queue    *outbox.MemoryQueue
	server   *httptest.Server
}

func newTestEnv(t *testing.T, configure ...func(*Env)) *testEnv {
	ctx := context.Background()
	cfg := &settings.Config{
		SecureCookies: false,
		Auth: settings.Auth{
			JWTSecret:       []byte("test-secret"),
			TokenTTL:        time.Hour,
			Admins:          []string{testAdminEmail},
			RegistrationKey: testRegistrationKey,
		},
		Upload: settings.Upload{MaxBytes: 1 << 20, PublicURL: "/uploads"},
	}

	db, err := docstore.Open(docstore.DriverSQLite, ":memory:")
	assert.NilError(t, err)
	assert.NilError(t, userService.Migrate(ctx, db))
	_, err = userService.EnsureAdmin(ctx, db, "Admin", testAdminEmail, testAdminPassword)
	assert.NilError(t, err)

	primary := cmstest.NewSwitchable(memstore.New())
	store := fallback.NewMemoryStore()
	queue := outbox.NewMemoryQueue()
	metrics := telemetry.NewMetrics()
	index, err := search.Open("")
	assert.NilError(t, err)
	storage, err := media.NewLocalStorage(t.TempDir(), cfg.Upload.PublicURL)
	assert.NilError(t, err)

	testLogInfo, testLogError := loggers("test")
	env := &Env{
		Config:    cfg,
		DB:        db,
		Client:    primary,
		Fallback:  store,
		Outbox:    queue,
		Tracker:   trackingService.NewTracker(primary, store, queue, metrics, testLogInfo, testLogError),
		Index:     index,
		Auth:      authService.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.SecureCookies),
		Uploader:  media.NewStorageUploader(storage, primary, cfg.Upload.MaxBytes),
		Metrics:   metrics,
		UploadDir: storage.Dir(),
	}
	env.onClose(db)
	env.onClose(store)
	env.onClose(queue)
	env.onClose(index)
	for _, fn := range configure {
		fn(env)
	}

	te := &testEnv{
		env:      env,
		primary:  primary,
		fallback: store,
		queue:    queue,
		server:   httptest.NewServer(NewRouter(env)),
	}
	t.Cleanup(func() {
		te.server.Close()
		env.Close()
	})
	return te
}

// drain - replays the outbox until it is empty
func (te *testEnv) drain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		te.env.Tracker.Reconciler(3, 0).Run(ctx)
	}()
	deadline := time.Now().Add(5 * time.Second)
	for te.queue.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	// let the last handler finish its fallback cleanup
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, te.queue.Len(), 0)
}

// apiClient - one browser session: cookies persist between requests
type apiClient struct {
	t       *testing.T
	baseURL string
	client  *http.Client
}

func (te *testEnv) newSession(t *testing.T) *apiClient {
	jar, err := cookiejar.New(nil)
	assert.NilError(t, err)
	return &apiClient{
		t:       t,
		baseURL: te.server.URL,
		client:  &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}
}

// adminSession - session logged in as the configured admin
func (te *testEnv) adminSession(t *testing.T) *apiClient {
	c := te.newSession(t)
	r := c.login(testAdminEmail, testAdminPassword)
	checkNiceResponse(t, r, http.StatusOK)
	return c
}

func (c *apiClient) send(method, path, contentType string, body io.Reader) *http.Response {
	request, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		c.t.Fatalf("Can not create request. Error: %s", err)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	r, err := c.client.Do(request)
	if err != nil {
		c.t.Fatalf("Can not send request. Error: %s", err)
	}
	c.t.Cleanup(func() {
		_ = r.Body.Close()
	})
	return r
}

func (c *apiClient) do(method, path string, message interface{}) *http.Response {
	var body io.Reader
	if message != nil {
		body = bytes.NewReader(encodeMessage(c.t, message))
	}
	return c.send(method, path, "application/json", body)
}

func (c *apiClient) login(email, password string) *http.Response {
	return c.do("POST", "/api/auth/login", models.LoginRequest{Email: email, Password: password})
}

// -----------
// blog posts related API

func (c *apiClient) createPost(request *models.CreatePostRequest) *http.Response {
	return c.do("POST", "/api/admin/posts", request)
}

func (c *apiClient) updatePost(id string, request interface{}) *http.Response {
	return c.do("PUT", "/api/admin/posts/"+id, request)
}

func (c *apiClient) deletePost(id string) *http.Response {
	return c.do("DELETE", "/api/admin/posts/"+id, nil)
}

func (c *apiClient) getPost(slug string) *http.Response {
	return c.do("GET", "/api/posts/"+slug, nil)
}

// mustCreatePost - creates a published post and returns it
func (c *apiClient) mustCreatePost(title, category string) models.Post {
	r := c.createPost(&models.CreatePostRequest{
		Title:     title,
		Excerpt:   "Excerpt of " + title,
		Content:   json.RawMessage(`"Body of the post"`),
		Category:  category,
		Published: true,
	})
	checkNiceResponse(c.t, r, http.StatusCreated)
	var post models.Post
	decodeMessage(c.t, r, &post)
	return post
}

// -----------
// metrics related API

func (c *apiClient) trackView(postID string) models.ViewResponse {
	r := c.do("POST", "/api/visitors", models.ViewRequest{PostID: postID})
	checkNiceResponse(c.t, r, http.StatusOK)
	var response models.ViewResponse
	decodeMessage(c.t, r, &response)
	return response
}

func (c *apiClient) viewCount(postID string) int64 {
	r := c.do("GET", "/api/visitors?postId="+postID, nil)
	checkNiceResponse(c.t, r, http.StatusOK)
	var response models.ViewCountResponse
	decodeMessage(c.t, r, &response)
	return response.ViewCount
}

func (c *apiClient) sendFeedback(postID string, feedbackType models.FeedbackType) *http.Response {
	return c.do("POST", "/api/feedback", models.FeedbackRequest{PostID: postID, Type: feedbackType})
}

func (c *apiClient) feedback(postID string) models.FeedbackCounts {
	r := c.do("GET", "/api/feedback?postId="+postID, nil)
	checkNiceResponse(c.t, r, http.StatusOK)
	var counts models.FeedbackCounts
	decodeMessage(c.t, r, &counts)
	return counts
}

func (c *apiClient) createComment(postID, name, comment string) *http.Response {
	return c.do("POST", "/api/comments", models.CreateCommentRequest{PostID: postID, Name: name, Comment: comment})
}

func (c *apiClient) comments(postID string) []models.Comment {
	r := c.do("GET", "/api/comments?postId="+postID, nil)
	checkNiceResponse(c.t, r, http.StatusOK)
	var response models.CommentsResponse
	decodeMessage(c.t, r, &response)
	return response.Comments
}

// -----------
// Common helpful functions
// API for matching status code and error message of responses

// checkErrorResponse - check response that should return error message in response body
func checkErrorResponse(t *testing.T, r *http.Response, expectedStatusCode int, expectedError models.RequestErrorCode) {
	t.Helper()
	var response models.Response
	decodeMessage(t, r, &response)
	assert.Equal(t, r.StatusCode, expectedStatusCode)
	assert.Equal(t, response.Error, expectedError)
}

// checkNiceResponse - fails with the error from the body if status code doesn't match
func checkNiceResponse(t *testing.T, r *http.Response, expectedStatusCode int) {
	t.Helper()
	if r.StatusCode != expectedStatusCode {
		body, _ := io.ReadAll(r.Body)
		t.Fatalf("Received status code %d, expected %d. Body: %s", r.StatusCode, expectedStatusCode, body)
	}
}

func encodeMessage(t *testing.T, message interface{}) []byte {
	encodedMessage, err := json.Marshal(message)
	if err != nil {
		t.Fatalf("Error encoding message.\nMessage: %v\n. Error: %s", message, err)
	}
	return encodedMessage
}

func decodeMessage(t *testing.T, r *http.Response, v interface{}) {
	bodyBytes, err := io.ReadAll(r.Body)
	assert.NilError(t, err)
	if err = json.Unmarshal(bodyBytes, v); err != nil {
		t.Fatalf("Error decoding received body.\nBody: %s\n. Error: %s", string(bodyBytes), err)
	}
}
