package restapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Techyishu/writerly/models"
)

// general error codes
var (
	// TechnicalError - internal server error
	TechnicalError = models.NewRequestErrorCode("TECHNICAL_ERROR")
	// BadRequestBody - invalid body
	BadRequestBody = models.NewRequestErrorCode("BAD_BODY")
	// NoPermissions - user doesn't have permissions to create/update/delete resource
	NoPermissions = models.NewRequestErrorCode("NO_PERMISSIONS")
	// InvalidRequest - error code for other errors
	InvalidRequest = models.NewRequestErrorCode("INVALID_REQUEST")
	// InvalidToken - missing, expired or forged session
	InvalidToken = models.NewRequestErrorCode("INVALID_TOKEN")
	// TooManyRequests - client exceeded the rate limit
	TooManyRequests = models.NewRequestErrorCode("TOO_MANY_REQUESTS")
	// NotFound - route or resource does not exist
	NotFound = models.NewRequestErrorCode("NOT_FOUND")
)

// maxBodyBytes - upper bound of JSON request bodies
const maxBodyBytes = 1 << 20

func respondWithJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// RespondWithError - helper function for responding with error in body
// This function uses special 'Response' struct. details is omitted if empty
func RespondWithError(w http.ResponseWriter, code int, errorCode models.RequestErrorCode, details string) {
	response := &models.Response{
		Error:   errorCode,
		Details: details,
	}
	encodedResponse, err := json.Marshal(response)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, code, encodedResponse)
}

// RespondWithBody - helper function for responding with payload in body
func RespondWithBody(w http.ResponseWriter, code int, payload interface{}) {
	encodedResponse, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, code, encodedResponse)
}

// respondSuccess - {"success": true}
func respondSuccess(w http.ResponseWriter, code int) {
	RespondWithBody(w, code, &models.SuccessResponse{Success: true})
}

// decodeBody - decodes JSON body into v. Empty body is an error
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return errors.New("request body is empty")
	}
	return err
}

// NotFoundHandler - JSON 404 for unknown routes
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RespondWithError(w, http.StatusNotFound, NotFound, "")
	})
}
