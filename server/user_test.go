package server

import (
	"context"
	"net/http"
	"testing"

	"gotest.tools/assert"

	"github.com/Techyishu/writerly/handler/restapi"
	"github.com/Techyishu/writerly/models"
	"github.com/Techyishu/writerly/service/userService"
)

func TestDeletePostWithoutAuth(t *testing.T) {
	te := newTestEnv(t)
	post := te.adminSession(t).mustCreatePost("Protected Post", "Go")

	checkErrorResponse(t, te.newSession(t).deletePost(post.ID), http.StatusUnauthorized, restapi.InvalidToken)
	checkNiceResponse(t, te.newSession(t).getPost(post.Slug.Current), http.StatusOK)
}

func TestAdminRoutesRejectNonAdmin(t *testing.T) {
	te := newTestEnv(t)
	_, err := userService.Save(context.Background(), te.env.DB, "Reader", "reader@writerly.test", "reader-password", models.RoleUser)
	assert.NilError(t, err)

	reader := te.newSession(t)
	checkNiceResponse(t, reader.login("reader@writerly.test", "reader-password"), http.StatusOK)
	checkErrorResponse(t, reader.do("GET", "/api/admin/posts", nil), http.StatusForbidden, restapi.NoPermissions)
	checkErrorResponse(t, reader.createPost(&models.CreatePostRequest{Title: "Nope"}),
		http.StatusForbidden, restapi.NoPermissions)
}

func TestLoginSessionLogout(t *testing.T) {
	te := newTestEnv(t)
	c := te.newSession(t)

	var session models.SessionResponse
	decodeMessage(t, c.do("GET", "/api/auth/login", nil), &session)
	assert.Assert(t, session.User == nil)

	checkErrorResponse(t, c.login(testAdminEmail, "wrong-password"), http.StatusUnauthorized, restapi.WrongCredentials)
	checkErrorResponse(t, c.login("", "x"), http.StatusBadRequest, restapi.IncompleteCredentials)

	r := c.login(testAdminEmail, testAdminPassword)
	checkNiceResponse(t, r, http.StatusOK)
	var login models.LoginResponse
	decodeMessage(t, r, &login)
	assert.Equal(t, login.Success, true)
	assert.Equal(t, login.User.Role, models.RoleAdmin)

	decodeMessage(t, c.do("GET", "/api/auth/login", nil), &session)
	assert.Assert(t, session.User != nil)
	assert.Equal(t, session.User.Email, testAdminEmail)

	checkNiceResponse(t, c.do("DELETE", "/api/auth/login", nil), http.StatusOK)
	session = models.SessionResponse{}
	decodeMessage(t, c.do("GET", "/api/auth/login", nil), &session)
	assert.Assert(t, session.User == nil)
	checkErrorResponse(t, c.do("GET", "/api/admin/posts", nil), http.StatusUnauthorized, restapi.InvalidToken)
}

func TestRegisterAdmin(t *testing.T) {
	te := newTestEnv(t)
	c := te.newSession(t)

	request := models.RegistrationRequest{
		Email:    "editor@writerly.test",
		Password: "editor-password",
		Name:     "Editor",
		AdminKey: "wrong",
	}
	checkErrorResponse(t, c.do("POST", "/api/admin/register", request), http.StatusForbidden, restapi.NoPermissions)

	request.AdminKey = testRegistrationKey
	request.Password = "short"
	checkErrorResponse(t, c.do("POST", "/api/admin/register", request), http.StatusBadRequest, restapi.InvalidPassword)

	request.Password = "editor-password"
	r := c.do("POST", "/api/admin/register", request)
	checkNiceResponse(t, r, http.StatusCreated)
	assert.Equal(t, r.Header.Get("Cache-Control"), "no-store")

	checkErrorResponse(t, c.do("POST", "/api/admin/register", request), http.StatusConflict, restapi.UserAlreadyRegistered)

	checkNiceResponse(t, c.login(request.Email, request.Password), http.StatusOK)
	checkNiceResponse(t, c.do("GET", "/api/admin/posts", nil), http.StatusOK)
}

func TestRegisterAdminDisabledWithoutKey(t *testing.T) {
	te := newTestEnv(t, func(env *Env) {
		env.Config.Auth.RegistrationKey = ""
	})
	r := te.newSession(t).do("POST", "/api/admin/register", models.RegistrationRequest{
		Email: "x@writerly.test", Password: "long-enough", Name: "X",
	})
	checkErrorResponse(t, r, http.StatusInternalServerError, restapi.RegistrationDisabled)
}

func TestSessionOfRemovedUser(t *testing.T) {
	te := newTestEnv(t)
	c := te.adminSession(t)

	var session models.SessionResponse
	decodeMessage(t, c.do("GET", "/api/auth/login", nil), &session)
	assert.Assert(t, session.User != nil)

	_, err := te.env.DB.ExecContext(context.Background(), "delete from users where email = $1", testAdminEmail)
	assert.NilError(t, err)

	session = models.SessionResponse{}
	decodeMessage(t, c.do("GET", "/api/auth/login", nil), &session)
	assert.Assert(t, session.User == nil)

	// cookies were cleared with the session
	checkErrorResponse(t, c.do("GET", "/api/admin/posts", nil), http.StatusUnauthorized, restapi.InvalidToken)
}
