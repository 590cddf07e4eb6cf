package restapi

import (
	"log"
	"net/http"

	"github.com/Techyishu/writerly/cms"
	"github.com/Techyishu/writerly/service/categoryService"
)

// CategoryAPIHandler - used for dependency injection
type CategoryAPIHandler struct {
	client   cms.Client
	logInfo  *log.Logger
	logError *log.Logger
}

func NewCategoryAPIHandler(client cms.Client, logInfo, logError *log.Logger) *CategoryAPIHandler {
	return &CategoryAPIHandler{
		client:   client,
		logInfo:  logInfo,
		logError: logError,
	}
}

// GetCategoriesHandler - serves categories of published posts with post counts
func (api *CategoryAPIHandler) GetCategoriesHandler() http.Handler {
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		categories, err := categoryService.GetAll(r.Context(), api.client)
		if err != nil {
			logError.Printf("Error getting categories from document store: %s", err)
			RespondWithError(w, http.StatusInternalServerError, TechnicalError, err.Error())
			return
		}

		RespondWithBody(w, http.StatusOK, categories)
	})
}
