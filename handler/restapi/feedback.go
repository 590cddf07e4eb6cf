package restapi

import (
	"log"
	"net/http"

	"github.com/Techyishu/writerly/models"
	"github.com/Techyishu/writerly/service/trackingService"
)

// FeedbackAPIHandler - used for dependency injection
type FeedbackAPIHandler struct {
	tracker  *trackingService.Tracker
	logInfo  *log.Logger
	logError *log.Logger
}

func NewFeedbackAPIHandler(tracker *trackingService.Tracker, logInfo, logError *log.Logger) *FeedbackAPIHandler {
	return &FeedbackAPIHandler{
		tracker:  tracker,
		logInfo:  logInfo,
		logError: logError,
	}
}

// CreateFeedbackHandler - this handler serves positive/negative votes
func (api *FeedbackAPIHandler) CreateFeedbackHandler() http.Handler {
	logInfo := api.logInfo
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		request := models.FeedbackRequest{}
		if err := decodeBody(w, r, &request); err != nil {
			RespondWithError(w, http.StatusBadRequest, BadRequestBody, err.Error())
			return
		}

		logInfo.Printf("Got new feedback request. Request: %+v", request)

		if err := api.tracker.RecordFeedback(r.Context(), &request); err != nil {
			logInfo.Printf("Can't record feedback: invalid request. Error: %s", err)
			respondTrackingError(w, err)
			return
		}

		respondSuccess(w, http.StatusOK)
	})
}

// GetFeedbackHandler - serves feedback counts of the post given by 'postId' query param
func (api *FeedbackAPIHandler) GetFeedbackHandler() http.Handler {
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		postID := r.URL.Query().Get("postId")

		counts, err := api.tracker.FeedbackCounts(r.Context(), postID)
		if err != nil {
			logError.Printf("Can't get feedback counts. Post ID: %s. Error: %s", postID, err)
			respondTrackingError(w, err)
			return
		}

		RespondWithBody(w, http.StatusOK, counts)
	})
}
