package restapi

import (
	"crypto/subtle"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/Techyishu/writerly/models"
	"github.com/Techyishu/writerly/service/authService"
	"github.com/Techyishu/writerly/service/userService"
)

// UserAPIHandler - environment container struct to declare all auth handlers as methods
type UserAPIHandler struct {
	db              *sql.DB
	auth            *authService.Authenticator
	admins          []string
	registrationKey string
	logInfo         *log.Logger
	logError        *log.Logger
}

func NewUserAPIHandler(db *sql.DB, auth *authService.Authenticator, admins []string, registrationKey string,
	logInfo, logError *log.Logger) *UserAPIHandler {
	return &UserAPIHandler{
		db:              db,
		auth:            auth,
		admins:          admins,
		registrationKey: registrationKey,
		logInfo:         logInfo,
		logError:        logError,
	}
}

// error codes for this API
var (
	// WrongCredentials - user inputs wrong password or email while logging in
	WrongCredentials = models.NewRequestErrorCode("WRONG_CREDENTIALS")
	// InvalidEmail - user inputs invalid email while registration or logging in
	InvalidEmail = models.NewRequestErrorCode("INVALID_EMAIL")
	// InvalidPassword - user inputs invalid password while registration
	InvalidPassword = models.NewRequestErrorCode("INVALID_PASSWORD")
	// UserAlreadyRegistered - user trying to register account while already registered
	UserAlreadyRegistered = models.NewRequestErrorCode("USER_ALREADY_REGISTERED")
	// IncompleteCredentials - user do not input full credentials
	IncompleteCredentials = models.NewRequestErrorCode("INCOMPLETE_CREDENTIALS")
	// RegistrationDisabled - no registration key configured
	RegistrationDisabled = models.NewRequestErrorCode("REGISTRATION_DISABLED")
)

// constants for use in validator methods
const (
	// MinPwdLen - minimum length of user password
	MinPwdLen int = 8
	// MaxPwdLen - maximum length of user password. bcrypt ignores bytes after 72
	MaxPwdLen int = 72
	// MaxEmailLen - maximum length of email
	MaxEmailLen int = 255
	// MaxUsernameLen - maximum user name length
	MaxUsernameLen int = 100
)

func validateEmail(email string) models.RequestErrorCode {
	email = strings.TrimSpace(email)
	if strings.Count(email, "@") != 1 || len(email) > MaxEmailLen || email[0] == '@' || email[len(email)-1] == '@' {
		return InvalidEmail
	}
	return ""
}

func validatePassword(password string) models.RequestErrorCode {
	passwordLen := len(password)
	if passwordLen < MinPwdLen || passwordLen > MaxPwdLen {
		return InvalidPassword
	}
	return ""
}

func validateRegistrationRequest(request *models.RegistrationRequest) models.RequestErrorCode {
	if strings.TrimSpace(request.Name) == "" || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		return IncompleteCredentials
	}
	if len([]rune(strings.TrimSpace(request.Name))) > MaxUsernameLen {
		return InvalidRequest
	}
	if err := validateEmail(request.Email); err != "" {
		return err
	}
	return validatePassword(request.Password)
}

func validateLoginRequest(request *models.LoginRequest) models.RequestErrorCode {
	if strings.TrimSpace(request.Email) == "" || request.Password == "" {
		return IncompleteCredentials
	}
	return validateEmail(request.Email)
}

// LoginUserHandler - checks credentials and sets session cookies
func (api *UserAPIHandler) LoginUserHandler() http.Handler {
	logInfo := api.logInfo
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request models.LoginRequest
		if err := decodeBody(w, r, &request); err != nil {
			RespondWithError(w, http.StatusBadRequest, BadRequestBody, err.Error())
			return
		}

		logInfo.Printf("Got new user login request. Email: %s", request.Email)

		if validateError := validateLoginRequest(&request); validateError != "" {
			logInfo.Printf("Can't login user: invalid request. Error: %s", validateError)
			RespondWithError(w, http.StatusBadRequest, validateError, "")
			return
		}

		user, err := userService.Authenticate(r.Context(), api.db, request.Email, request.Password)
		if err != nil {
			if errors.Is(err, userService.ErrWrongCredentials) {
				logInfo.Printf("Can't login user: wrong credentials. Email: %s", request.Email)
				RespondWithError(w, http.StatusUnauthorized, WrongCredentials, "")
				return
			}
			logError.Printf("Can't login user: error getting user from database. Email: %s. Error: %s",
				request.Email, err)
			RespondWithError(w, http.StatusInternalServerError, TechnicalError, err.Error())
			return
		}
		if authService.IsUserAdmin(user.Email, api.admins) {
			user.Role = models.RoleAdmin
		}

		if err = api.auth.IssueToken(w, user); err != nil {
			logError.Printf("Can't login user: error issuing token. User ID: %s. Error: %s", user.ID, err)
			RespondWithError(w, http.StatusInternalServerError, TechnicalError, err.Error())
			return
		}

		logInfo.Printf("User logged in. User ID: %s, role: %s", user.ID, user.Role)
		RespondWithBody(w, http.StatusOK, &models.LoginResponse{Success: true, User: user})
	})
}

// SessionHandler - returns the current user or null. Never fails with 401
// A valid token of a user that no longer exists ends the session
func (api *UserAPIHandler) SessionHandler() http.Handler {
	logInfo := api.logInfo
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := api.auth.Authenticate(r)
		if err != nil {
			RespondWithBody(w, http.StatusOK, &models.SessionResponse{})
			return
		}
		if _, err = userService.GetByID(r.Context(), api.db, principal.UserID); err != nil {
			if errors.Is(err, userService.ErrNoSuchUser) {
				logInfo.Printf("Session of removed user ended. User ID: %s", principal.UserID)
				api.auth.ClearToken(w)
				RespondWithBody(w, http.StatusOK, &models.SessionResponse{})
				return
			}
			logError.Printf("Can't check session user. User ID: %s. Error: %s", principal.UserID, err)
		}
		RespondWithBody(w, http.StatusOK, &models.SessionResponse{User: principal})
	})
}

// LogoutUserHandler - clears session cookies
func (api *UserAPIHandler) LogoutUserHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.auth.ClearToken(w)
		respondSuccess(w, http.StatusOK)
	})
}

// RegisterAdminHandler - serves admin registration requests guarded by the registration key
func (api *UserAPIHandler) RegisterAdminHandler() http.Handler {
	logInfo := api.logInfo
	logError := api.logError
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.registrationKey == "" {
			logError.Print("Can't register admin: registration key is not configured")
			RespondWithError(w, http.StatusInternalServerError, RegistrationDisabled, "registration key is not configured")
			return
		}

		var request models.RegistrationRequest
		if err := decodeBody(w, r, &request); err != nil {
			RespondWithError(w, http.StatusBadRequest, BadRequestBody, err.Error())
			return
		}

		logInfo.Printf("Got new admin registration request. Email: %s, name: %s", request.Email, request.Name)

		if subtle.ConstantTimeCompare([]byte(request.AdminKey), []byte(api.registrationKey)) != 1 {
			logInfo.Printf("Can't register admin: wrong registration key. Email: %s", request.Email)
			RespondWithError(w, http.StatusForbidden, NoPermissions, "")
			return
		}

		if validateError := validateRegistrationRequest(&request); validateError != "" {
			logInfo.Printf("Can't register admin: invalid request. Error: %s", validateError)
			RespondWithError(w, http.StatusBadRequest, validateError, "")
			return
		}

		exists, err := userService.ExistsByEmail(r.Context(), api.db, request.Email)
		if err != nil {
			logError.Printf("Error checking user existence. Email: %s. Error: %s", request.Email, err)
			RespondWithError(w, http.StatusInternalServerError, TechnicalError, err.Error())
			return
		}
		if exists {
			logInfo.Printf("Can't register admin: user already registered. Email: %s", request.Email)
			RespondWithError(w, http.StatusConflict, UserAlreadyRegistered, "")
			return
		}

		// the unique email constraint still catches concurrent registrations
		user, err := userService.Save(r.Context(), api.db, strings.TrimSpace(request.Name), request.Email,
			request.Password, models.RoleAdmin)
		if err != nil {
			if errors.Is(err, userService.ErrUserExists) {
				logInfo.Printf("Can't register admin: user already registered. Email: %s", request.Email)
				RespondWithError(w, http.StatusConflict, UserAlreadyRegistered, "")
				return
			}
			logError.Printf("Error saving user in database. Email: %s. Error: %s", request.Email, err)
			RespondWithError(w, http.StatusInternalServerError, TechnicalError, err.Error())
			return
		}

		logInfo.Printf("Admin registered. User ID: %s, email: %s", user.ID, user.Email)
		RespondWithBody(w, http.StatusCreated, &models.LoginResponse{Success: true, User: user})
	})
}
