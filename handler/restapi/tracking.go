package restapi

import (
	"errors"
	"net/http"

	"github.com/Techyishu/writerly/service/trackingService"
)

// respondTrackingError - validation errors become 400, anything else 500
func respondTrackingError(w http.ResponseWriter, err error) {
	if errors.Is(err, trackingService.ErrInvalidRequest) {
		RespondWithError(w, http.StatusBadRequest, InvalidRequest, err.Error())
		return
	}
	RespondWithError(w, http.StatusInternalServerError, TechnicalError, err.Error())
}
