package restapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/Techyishu/writerly/media"
	"github.com/Techyishu/writerly/models"
)

// UploadAPIHandler - used for dependency injection
type UploadAPIHandler struct {
	uploader media.Uploader
	maxBytes int64
	logInfo  *log.Logger
	logError *log.Logger
}

func NewUploadAPIHandler(uploader media.Uploader, maxBytes int64, logInfo, logError *log.Logger) *UploadAPIHandler {
	return &UploadAPIHandler{
		uploader: uploader,
		maxBytes: maxBytes,
		logInfo:  logInfo,
		logError: logError,
	}
}

// error codes for this API
var (
	// NoFile - multipart form has no 'file' field
	NoFile = models.NewRequestErrorCode("NO_FILE")
	// NotAnImage - uploaded file is not an image
	NotAnImage = models.NewRequestErrorCode("NOT_AN_IMAGE")
	// FileTooLarge - uploaded file exceeds the size limit
	FileTooLarge = models.NewRequestErrorCode("FILE_TOO_LARGE")
)

// multipartOverhead - room for multipart boundaries and headers on top of the file limit
const multipartOverhead = 1 << 20

// UploadImageHandler - stores multipart field 'file' and returns {assetId, url}
func (api *UploadAPIHandler) UploadImageHandler() http.Handler {
	logInfo := api.logInfo
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, api.maxBytes+multipartOverhead)
		if err := r.ParseMultipartForm(api.maxBytes); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				RespondWithError(w, http.StatusRequestEntityTooLarge, FileTooLarge, err.Error())
				return
			}
			RespondWithError(w, http.StatusBadRequest, BadRequestBody, err.Error())
			return
		}
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()

		file, header, err := r.FormFile("file")
		if err != nil {
			logInfo.Printf("Can't upload image: no file provided. Error: %s", err)
			RespondWithError(w, http.StatusBadRequest, NoFile, "")
			return
		}
		defer func() {
			_ = file.Close()
		}()

		contentType := header.Header.Get("Content-Type")
		logInfo.Printf("Got new image upload request. File: %s, size: %d, type: %s, admin: %s",
			header.Filename, header.Size, contentType, requestAdmin(r))

		asset, err := api.uploader.Upload(r.Context(), header.Filename, contentType, file)
		if err != nil {
			switch {
			case errors.Is(err, media.ErrNotImage):
				logInfo.Printf("Can't upload image: not an image. File: %s", header.Filename)
				RespondWithError(w, http.StatusBadRequest, NotAnImage, err.Error())
			case errors.Is(err, media.ErrTooLarge):
				logInfo.Printf("Can't upload image: file is too large. File: %s", header.Filename)
				RespondWithError(w, http.StatusRequestEntityTooLarge, FileTooLarge, err.Error())
			default:
				logError.Printf("Error uploading image. File: %s. Error: %s", header.Filename, err)
				RespondWithError(w, http.StatusInternalServerError, TechnicalError, err.Error())
			}
			return
		}

		logInfo.Printf("Image uploaded. Asset ID: %s", asset.AssetID)
		RespondWithBody(w, http.StatusOK, asset)
	})
}
