package restapi

import (
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/Techyishu/writerly/models"
	"github.com/Techyishu/writerly/service/trackingService"
)

const (
	// ViewedPostsCookieName - session cookie listing posts already counted for this browser session
	ViewedPostsCookieName = "viewed_posts"
	// maxViewedPosts - oldest entries are dropped to keep the cookie small
	maxViewedPosts       = 100
	viewedPostsSeparator = "|"
)

// VisitorAPIHandler - used for dependency injection
type VisitorAPIHandler struct {
	tracker       *trackingService.Tracker
	secureCookies bool
	logInfo       *log.Logger
	logError      *log.Logger
}

func NewVisitorAPIHandler(tracker *trackingService.Tracker, secureCookies bool,
	logInfo, logError *log.Logger) *VisitorAPIHandler {
	return &VisitorAPIHandler{
		tracker:       tracker,
		secureCookies: secureCookies,
		logInfo:       logInfo,
		logError:      logError,
	}
}

// viewedPosts - post IDs stored in the session cookie
func viewedPosts(r *http.Request) []string {
	cookie, err := r.Cookie(ViewedPostsCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	var ids []string
	for _, escaped := range strings.Split(cookie.Value, viewedPostsSeparator) {
		id, err := url.QueryUnescape(escaped)
		if err == nil && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// setViewedPosts - cookie has no expiry so it dies with the browser session
func (api *VisitorAPIHandler) setViewedPosts(w http.ResponseWriter, ids []string) {
	if len(ids) > maxViewedPosts {
		ids = ids[len(ids)-maxViewedPosts:]
	}
	escaped := make([]string, len(ids))
	for i, id := range ids {
		escaped[i] = url.QueryEscape(id)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     ViewedPostsCookieName,
		Value:    strings.Join(escaped, viewedPostsSeparator),
		Path:     "/",
		HttpOnly: true,
		Secure:   api.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// TrackViewHandler - counts a view at most once per browser session
func (api *VisitorAPIHandler) TrackViewHandler() http.Handler {
	logInfo := api.logInfo
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		request := models.ViewRequest{}
		if err := decodeBody(w, r, &request); err != nil {
			RespondWithError(w, http.StatusBadRequest, BadRequestBody, err.Error())
			return
		}
		postID := strings.TrimSpace(request.PostID)

		viewed := viewedPosts(r)
		if postID != "" && containsString(viewed, postID) {
			RespondWithBody(w, http.StatusOK, &models.ViewResponse{Success: true, Counted: false})
			return
		}

		if err := api.tracker.RecordView(r.Context(), postID); err != nil {
			logInfo.Printf("Can't track view: invalid request. Error: %s", err)
			respondTrackingError(w, err)
			return
		}

		api.setViewedPosts(w, append(viewed, postID))
		RespondWithBody(w, http.StatusOK, &models.ViewResponse{Success: true, Counted: true})
	})
}

// GetViewCountHandler - serves view count of the post given by 'postId' query param
func (api *VisitorAPIHandler) GetViewCountHandler() http.Handler {
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		postID := r.URL.Query().Get("postId")

		views, err := api.tracker.ViewCount(r.Context(), postID)
		if err != nil {
			logError.Printf("Can't get view count. Post ID: %s. Error: %s", postID, err)
			respondTrackingError(w, err)
			return
		}

		RespondWithBody(w, http.StatusOK, &models.ViewCountResponse{ViewCount: views})
	})
}
