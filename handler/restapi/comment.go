package restapi

import (
	"log"
	"net/http"

	"github.com/Techyishu/writerly/models"
	"github.com/Techyishu/writerly/service/trackingService"
)

// CommentAPIHandler - used for dependency injection
type CommentAPIHandler struct {
	tracker  *trackingService.Tracker
	logInfo  *log.Logger
	logError *log.Logger
}

func NewCommentAPIHandler(tracker *trackingService.Tracker, logInfo, logError *log.Logger) *CommentAPIHandler {
	return &CommentAPIHandler{
		tracker:  tracker,
		logInfo:  logInfo,
		logError: logError,
	}
}

// CreateCommentHandler - this handler serves comment creation requests
func (api *CommentAPIHandler) CreateCommentHandler() http.Handler {
	logInfo := api.logInfo
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		request := models.CreateCommentRequest{}
		if err := decodeBody(w, r, &request); err != nil {
			RespondWithError(w, http.StatusBadRequest, BadRequestBody, err.Error())
			return
		}

		logInfo.Printf("Got new comment creation request. Post ID: %s, name: %q", request.PostID, request.Name)

		createdComment, err := api.tracker.AddComment(r.Context(), &request)
		if err != nil {
			logError.Printf("Can't create comment. Post ID: %s. Error: %s", request.PostID, err)
			respondTrackingError(w, err)
			return
		}

		logInfo.Printf("Comment saved. Post ID: %s, comment ID: %s", request.PostID, createdComment.ID)
		RespondWithBody(w, http.StatusOK, &models.CreateCommentResponse{Success: true, Comment: createdComment})
	})
}

// GetCommentsHandler - serves comments of the post given by 'postId' query param
func (api *CommentAPIHandler) GetCommentsHandler() http.Handler {
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		postID := r.URL.Query().Get("postId")

		comments, err := api.tracker.Comments(r.Context(), postID)
		if err != nil {
			logError.Printf("Can't get comments. Post ID: %s. Error: %s", postID, err)
			respondTrackingError(w, err)
			return
		}

		RespondWithBody(w, http.StatusOK, &models.CommentsResponse{Comments: comments})
	})
}
