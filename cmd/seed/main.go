package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"github.com/Techyishu/writerly/models"
	"github.com/brianvoe/gofakeit/v6"
)

var (
	logInfo  = log.New(os.Stdout, "[seed] INFO: ", log.Ltime)
	logError = log.New(os.Stderr, "[seed] ERROR: ", log.Ltime)
)

var categories = []string{"Go", "Architecture", "Databases", "DevOps", "Career"}

type seeder struct {
	baseURL string
	client  *http.Client
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "writerly API base URL")
	email := flag.String("email", "admin@writerly.com", "admin email")
	password := flag.String("password", "", "admin password")
	postCount := flag.Int("posts", 10, "number of posts to create")
	seed := flag.Int64("seed", 0, "random seed, 0 means current time")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	gofakeit.Seed(*seed)

	jar, err := cookiejar.New(nil)
	if err != nil {
		logError.Fatal(err)
	}
	s := &seeder{
		baseURL: strings.TrimRight(*baseURL, "/"),
		client:  &http.Client{Jar: jar, Timeout: 15 * time.Second},
	}

	if err := s.login(*email, *password); err != nil {
		logError.Fatalf("Login failed: %s", err)
	}

	created := 0
	for i := 0; i < *postCount; i++ {
		post, err := s.createPost()
		if err != nil {
			logError.Printf("Error creating post: %s", err)
			continue
		}
		created++
		logInfo.Printf("Created post %s (%s)", post.Slug.Current, post.ID)

		if !post.Published {
			continue
		}
		s.engage(post.ID)
	}
	logInfo.Printf("Seeded %d of %d posts", created, *postCount)
}

func (s *seeder) login(email, password string) error {
	var response models.LoginResponse
	return s.call("POST", "/api/auth/login", models.LoginRequest{Email: email, Password: password}, http.StatusOK, &response)
}

func (s *seeder) createPost() (*models.Post, error) {
	title := strings.TrimSuffix(gofakeit.Sentence(gofakeit.Number(3, 8)), ".")
	request := models.CreatePostRequest{
		Title:     title,
		Excerpt:   gofakeit.Sentence(15),
		Content:   richText(gofakeit.Number(2, 6)),
		Category:  gofakeit.RandomString(categories),
		ReadTime:  fmt.Sprintf("%d min read", gofakeit.Number(2, 15)),
		Featured:  gofakeit.Number(1, 5) == 1,
		Published: gofakeit.Number(1, 4) != 1,
	}

	var post models.Post
	if err := s.call("POST", "/api/admin/posts", request, http.StatusCreated, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// engage - views, votes and comments from a handful of fresh visitors
func (s *seeder) engage(postID string) {
	visitors := gofakeit.Number(1, 5)
	for i := 0; i < visitors; i++ {
		// every visitor gets its own cookie jar, so views are counted once per visitor
		jar, _ := cookiejar.New(nil)
		visitor := &seeder{baseURL: s.baseURL, client: &http.Client{Jar: jar, Timeout: s.client.Timeout}}

		var view models.ViewResponse
		if err := visitor.call("POST", "/api/visitors", models.ViewRequest{PostID: postID}, http.StatusOK, &view); err != nil {
			logError.Printf("Error tracking view of %s: %s", postID, err)
		}

		feedbackType := models.FeedbackPositive
		if gofakeit.Number(1, 4) == 1 {
			feedbackType = models.FeedbackNegative
		}
		var ok models.SuccessResponse
		if err := visitor.call("POST", "/api/feedback", models.FeedbackRequest{PostID: postID, Type: feedbackType}, http.StatusOK, &ok); err != nil {
			logError.Printf("Error sending feedback for %s: %s", postID, err)
		}

		if gofakeit.Bool() {
			comment := models.CreateCommentRequest{
				PostID:  postID,
				Name:    gofakeit.Name(),
				Comment: gofakeit.Paragraph(1, 2, 12, " "),
			}
			var created models.CreateCommentResponse
			if err := visitor.call("POST", "/api/comments", comment, http.StatusOK, &created); err != nil {
				logError.Printf("Error commenting on %s: %s", postID, err)
			}
		}
	}
}

func (s *seeder) call(method, path string, body interface{}, expectedStatus int, v interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	request, err := http.NewRequest(method, s.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}
	if response.StatusCode != expectedStatus {
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, response.StatusCode, strings.TrimSpace(string(data)))
	}
	if v == nil {
		return nil
	}
	return json.Unmarshal(data, v)
}

// richText - rich-text blocks with one span per paragraph
func richText(paragraphs int) json.RawMessage {
	type span struct {
		Type string `json:"_type"`
		Key  string `json:"_key"`
		Text string `json:"text"`
	}
	type block struct {
		Type     string `json:"_type"`
		Key      string `json:"_key"`
		Style    string `json:"style"`
		Children []span `json:"children"`
	}

	blocks := make([]block, 0, paragraphs)
	for i := 0; i < paragraphs; i++ {
		blocks = append(blocks, block{
			Type:  "block",
			Key:   gofakeit.LetterN(12),
			Style: "normal",
			Children: []span{{
				Type: "span",
				Key:  gofakeit.LetterN(12),
				Text: gofakeit.Paragraph(1, gofakeit.Number(3, 6), 14, " "),
			}},
		})
	}
	data, _ := json.Marshal(blocks)
	return data
}
