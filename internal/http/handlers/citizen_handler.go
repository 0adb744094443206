// Citizen account handlers.
//
//   - POST /auth/register   (create a citizen account)
//   - POST /auth/login      (exchange credentials for a citizen token)
//
// The token is what GET /complaints reads the caller's identity from.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/civic-complaints-backend/internal/services"
)

// RegisterRequest is the citizen sign-up payload.
type RegisterRequest struct {
	Email    string `json:"email"    binding:"required,email,max=255" example:"citizen@example.com"`
	Password string `json:"password" binding:"required,min=8,max=72"  example:"correct horse battery staple"`
	Name     string `json:"name"     binding:"max=128"                example:"Ayesha Khan"`
	Phone    string `json:"phone"    binding:"max=32"                 example:"+923001234567"`
}

// CitizenLoginRequest is the citizen sign-in payload.
type CitizenLoginRequest struct {
	Email    string `json:"email"    binding:"required" example:"citizen@example.com"`
	Password string `json:"password" binding:"required" example:"correct horse battery staple"`
}

// RegisterCitizen godoc
// @ID          registerCitizen
// @Summary     Create a citizen account
// @Description Registers an account; complaints filed with this e-mail become "my complaints".
// @Tags        Citizens
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.RegisterRequest  true  "Account"
// @Success     201  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409  {object}  handlers.ErrorResponse  "E-mail already registered"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/register [post]
func (h *Handlers) RegisterCitizen(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			fail(c, http.StatusBadRequest, ErrCodeValidation, registerMessage(invalid))
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	u, err := h.citizens.Register(c.Request.Context(), services.Registration{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
	})
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusCreated, u)
}

// CitizenLogin godoc
// @ID          citizenLogin
// @Summary     Citizen sign-in
// @Description Exchanges citizen credentials for a bearer token.
// @Tags        Citizens
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CitizenLoginRequest  true  "Credentials"
// @Success     200  {object}  services.CitizenLoginResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid credentials"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/login [post]
func (h *Handlers) CitizenLogin(c *gin.Context) {
	var req CitizenLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password required")
		return
	}
	res, err := h.citizens.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	c.Header("Cache-Control", "no-store")
	ok(c, http.StatusOK, res)
}

func registerMessage(errs validator.ValidationErrors) string {
	fe := errs[0]
	switch {
	case fe.Field() == "Email":
		return "email must be a plain e-mail address"
	case fe.Field() == "Password":
		return "password must be 8 to 72 characters"
	}
	return fieldMessage(errs)
}
