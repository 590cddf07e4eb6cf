package restapi

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"github.com/Techyishu/writerly/cms"
	"github.com/Techyishu/writerly/models"
	"github.com/Techyishu/writerly/search"
	"github.com/Techyishu/writerly/service/postService"
	"github.com/Techyishu/writerly/service/trackingService"
)

// PostAPIHandler - used for dependency injection
type PostAPIHandler struct {
	client   cms.Client
	tracker  *trackingService.Tracker
	index    *search.Index
	logInfo  *log.Logger
	logError *log.Logger
}

func NewPostAPIHandler(client cms.Client, tracker *trackingService.Tracker, index *search.Index,
	logInfo, logError *log.Logger) *PostAPIHandler {
	return &PostAPIHandler{
		client:   client,
		tracker:  tracker,
		index:    index,
		logInfo:  logInfo,
		logError: logError,
	}
}

// error codes for this API
var (
	// InvalidPostTitle - invalid post title
	InvalidPostTitle = models.NewRequestErrorCode("INVALID_TITLE")
	// InvalidPostSlug - invalid post slug
	InvalidPostSlug = models.NewRequestErrorCode("INVALID_SLUG")
	// NoSuchPost - post does not exist
	NoSuchPost = models.NewRequestErrorCode("NO_SUCH_POST")
	// SlugTaken - another post has the same slug
	SlugTaken = models.NewRequestErrorCode("SLUG_TAKEN")
	// PostReferenced - post can't be deleted while other documents reference it
	PostReferenced = models.NewRequestErrorCode("POST_REFERENCED")
	// InvalidSearchQuery - invalid search parameters
	InvalidSearchQuery = models.NewRequestErrorCode("INVALID_SEARCH_QUERY")
)

// constants for use in validator methods
const (
	// MaxPostTitleLen - maximum post title length
	MaxPostTitleLen int = 200
	// MaxSlugLen - maximum slug length
	MaxSlugLen int = 200
)

func validatePostTitle(title string) models.RequestErrorCode {
	titleLen := utf8.RuneCountInString(strings.TrimSpace(title))
	if titleLen == 0 || titleLen > MaxPostTitleLen {
		return InvalidPostTitle
	}
	return ""
}

func validatePostSlug(slug string) models.RequestErrorCode {
	if slug == "" || len(slug) > MaxSlugLen || strings.ContainsAny(slug, "/?# \t\n") {
		return InvalidPostSlug
	}
	return ""
}

func validateCreatePostRequest(request *models.CreatePostRequest) models.RequestErrorCode {
	if err := validatePostTitle(request.Title); err != "" {
		return err
	}
	if request.Slug != nil && request.Slug.Current != "" {
		if err := validatePostSlug(request.Slug.Current); err != "" {
			return err
		}
	}
	return ""
}

func validateUpdatePostRequest(request *models.UpdatePostRequest) models.RequestErrorCode {
	if request.Title != nil {
		if err := validatePostTitle(*request.Title); err != "" {
			return err
		}
	}
	if request.Slug != nil {
		if err := validatePostSlug(request.Slug.Current); err != "" {
			return err
		}
	}
	return ""
}

// reindex - keeps search index in sync with the document store. Index errors are only logged
func (api *PostAPIHandler) reindex(post *models.Post) {
	if api.index == nil {
		return
	}
	if err := api.index.IndexPost(post); err != nil {
		api.logError.Printf("Can't update search index. Post ID: %s. Error: %s", post.ID, err)
	}
}

// GetPublishedPostsHandler - serves published posts, optionally of one category
func (api *PostAPIHandler) GetPublishedPostsHandler() http.Handler {
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		category := strings.TrimSpace(r.URL.Query().Get("category"))

		posts, err := postService.GetPublished(r.Context(), api.client, category)
		if err != nil {
			logError.Printf("Error getting posts from document store. Category: %q. Error: %s", category, err)
			RespondWithError(w, http.StatusInternalServerError, TechnicalError, err.Error())
			return
		}

		RespondWithBody(w, http.StatusOK, posts)
	})
}

// GetPostBySlugHandler - serves single published post with its counters
func (api *PostAPIHandler) GetPostBySlugHandler() http.Handler {
	logInfo := api.logInfo
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := mux.Vars(r)["slug"]

		post, err := postService.GetBySlug(r.Context(), api.client, slug)
		if err != nil {
			if errors.Is(err, postService.ErrNoSuchPost) {
				logInfo.Printf("Can't get post: post does not exist. Slug: %s", slug)
				RespondWithError(w, http.StatusNotFound, NoSuchPost, "")
				return
			}
			logError.Printf("Error getting post from document store. Slug: %s. Error: %s", slug, err)
			RespondWithError(w, http.StatusInternalServerError, TechnicalError, err.Error())
			return
		}

		if api.tracker != nil {
			views, err := api.tracker.ViewCount(r.Context(), post.ID)
			if err != nil {
				logError.Printf("Can't read view count. Post ID: %s. Error: %s", post.ID, err)
			}
			feedback, err := api.tracker.FeedbackCounts(r.Context(), post.ID)
			if err != nil {
				logError.Printf("Can't read feedback counts. Post ID: %s. Error: %s", post.ID, err)
			}
			post.ViewCount = &views
			post.PositiveFeedback = &feedback.Positive
			post.NegativeFeedback = &feedback.Negative
		}

		RespondWithBody(w, http.StatusOK, post)
	})
}

// SearchPostsHandler - full-text search over published posts
func (api *PostAPIHandler) SearchPostsHandler() http.Handler {
	logInfo := api.logInfo
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		limit := search.DefaultLimit
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 || parsed > search.MaxLimit {
				logInfo.Printf("Can't search posts: invalid limit. Limit: %s", limitParam)
				RespondWithError(w, http.StatusBadRequest, InvalidSearchQuery, "limit must be between 1 and 50")
				return
			}
			limit = parsed
		}

		if api.index == nil {
			RespondWithBody(w, http.StatusOK, []models.SearchResult{})
			return
		}
		results, err := api.index.Search(query, limit)
		if err != nil {
			logError.Printf("Error searching posts. Query: %q. Error: %s", query, err)
			RespondWithError(w, http.StatusInternalServerError, TechnicalError, err.Error())
			return
		}

		RespondWithBody(w, http.StatusOK, results)
	})
}

// GetAllPostsHandler - serves all posts including unpublished ones
func (api *PostAPIHandler) GetAllPostsHandler() http.Handler {
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts, err := postService.GetAll(r.Context(), api.client)
		if err != nil {
			logError.Printf("Error getting all posts from document store: %s", err)
			RespondWithError(w, http.StatusInternalServerError, TechnicalError, err.Error())
			return
		}

		RespondWithBody(w, http.StatusOK, posts)
	})
}

// CreatePostHandler - this handler serves post creation requests
func (api *PostAPIHandler) CreatePostHandler() http.Handler {
	logInfo := api.logInfo
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		request := models.CreatePostRequest{}
		if err := decodeBody(w, r, &request); err != nil {
			RespondWithError(w, http.StatusBadRequest, BadRequestBody, err.Error())
			return
		}

		logInfo.Printf("Got new post creation request. Title: %q, admin: %s", request.Title, requestAdmin(r))

		if validatePostError := validateCreatePostRequest(&request); validatePostError != "" {
			logInfo.Printf("Can't create post: invalid request. Error: %s", validatePostError)
			RespondWithError(w, http.StatusBadRequest, validatePostError, "")
			return
		}

		saveRequest := &postService.SaveRequest{
			Title:      strings.TrimSpace(request.Title),
			Excerpt:    request.Excerpt,
			Content:    request.Content,
			Category:   strings.TrimSpace(request.Category),
			ReadTime:   request.ReadTime,
			Featured:   request.Featured,
			Published:  request.Published,
			CoverImage: request.CoverImage.Value(),
		}
		if request.Slug != nil {
			saveRequest.Slug = request.Slug.Current
		}

		createdPost, err := postService.Save(r.Context(), api.client, saveRequest)
		if err != nil {
			if errors.Is(err, postService.ErrSlugTaken) {
				logInfo.Printf("Can't create post: slug is taken. Slug: %s", saveRequest.Slug)
				RespondWithError(w, http.StatusConflict, SlugTaken, err.Error())
				return
			}
			logError.Printf("Error saving post in document store: %s", err)
			RespondWithError(w, http.StatusInternalServerError, TechnicalError, err.Error())
			return
		}

		api.reindex(createdPost)
		logInfo.Printf("Post saved. Post ID: %s, slug: %s", createdPost.ID, createdPost.Slug.Current)
		RespondWithBody(w, http.StatusCreated, createdPost)
	})
}

// UpdatePostHandler - this handler serves post update requests
func (api *PostAPIHandler) UpdatePostHandler() http.Handler {
	logInfo := api.logInfo
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		request := models.UpdatePostRequest{}
		if err := decodeBody(w, r, &request); err != nil {
			RespondWithError(w, http.StatusBadRequest, BadRequestBody, err.Error())
			return
		}

		postID := mux.Vars(r)["id"]
		logInfo.Printf("Got new post update request. Post ID: %s, admin: %s", postID, requestAdmin(r))

		if validatePostError := validateUpdatePostRequest(&request); validatePostError != "" {
			logInfo.Printf("Can't update post: invalid request. Post ID: %s. Error: %s", postID, validatePostError)
			RespondWithError(w, http.StatusBadRequest, validatePostError, "")
			return
		}

		updateRequest := &postService.UpdateRequest{
			ID:         postID,
			Title:      request.Title,
			Excerpt:    request.Excerpt,
			Content:    request.Content,
			Category:   request.Category,
			ReadTime:   request.ReadTime,
			Featured:   request.Featured,
			Published:  request.Published,
			CoverImage: request.CoverImage,
		}
		if request.Slug != nil {
			updateRequest.Slug = &request.Slug.Current
		}

		updatedPost, err := postService.Update(r.Context(), api.client, updateRequest)
		if err != nil {
			switch {
			case errors.Is(err, postService.ErrNoSuchPost):
				logInfo.Printf("Can't update post: post does not exist. Post ID: %s", postID)
				RespondWithError(w, http.StatusNotFound, NoSuchPost, "")
			case errors.Is(err, postService.ErrSlugTaken):
				logInfo.Printf("Can't update post: slug is taken. Post ID: %s", postID)
				RespondWithError(w, http.StatusConflict, SlugTaken, err.Error())
			default:
				logError.Printf("Error updating post in document store. Post ID: %s. Error: %s", postID, err)
				RespondWithError(w, http.StatusInternalServerError, TechnicalError, err.Error())
			}
			return
		}

		api.reindex(updatedPost)
		logInfo.Printf("Post updated. Post ID: %s", postID)
		RespondWithBody(w, http.StatusOK, updatedPost)
	})
}

// DeletePostHandler - this handler serves post deletion requests
func (api *PostAPIHandler) DeletePostHandler() http.Handler {
	logInfo := api.logInfo
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		postID := mux.Vars(r)["id"]
		logInfo.Printf("Got new post deletion request. Post ID: %s, admin: %s", postID, requestAdmin(r))

		err := postService.Delete(r.Context(), api.client, postID)
		if err != nil {
			var storeErr *cms.Error
			switch {
			case errors.Is(err, postService.ErrNoSuchPost):
				logInfo.Printf("Can't delete post: post does not exist. Post ID: %s", postID)
				RespondWithError(w, http.StatusNotFound, NoSuchPost, "")
			case errors.Is(err, cms.ErrReferenced):
				logInfo.Printf("Can't delete post: post is referenced by other documents. Post ID: %s", postID)
				RespondWithError(w, http.StatusConflict, PostReferenced, err.Error())
			case errors.Is(err, cms.ErrForbidden):
				logError.Printf("Can't delete post: document store rejected credentials. Post ID: %s", postID)
				RespondWithError(w, http.StatusForbidden, NoPermissions, err.Error())
			case errors.As(err, &storeErr) && storeErr.StatusCode >= 400 && storeErr.StatusCode < 500:
				logError.Printf("Can't delete post: document store refused. Post ID: %s. Error: %s", postID, err)
				RespondWithError(w, storeErr.StatusCode, InvalidRequest, err.Error())
			default:
				logError.Printf("Error deleting post from document store. Post ID: %s. Error: %s", postID, err)
				RespondWithError(w, http.StatusInternalServerError, TechnicalError, err.Error())
			}
			return
		}

		if api.index != nil {
			if err = api.index.Delete(strings.TrimPrefix(postID, cms.DraftsPrefix)); err != nil {
				logError.Printf("Can't remove post from search index. Post ID: %s. Error: %s", postID, err)
			}
		}
		logInfo.Printf("Post deleted. Post ID: %s", postID)
		respondSuccess(w, http.StatusOK)
	})
}
