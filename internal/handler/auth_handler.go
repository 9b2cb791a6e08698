package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/DGApex/CRT-INV/internal/middleware"
	"github.com/DGApex/CRT-INV/pkg/jwt"
	"github.com/DGApex/CRT-INV/pkg/response"

	"github.com/go-playground/validator/v10"
)

type TokenRequest struct {
	AccessKey string `json:"access_key" validate:"required"`
	ClientID  string `json:"client_id" validate:"omitempty,max=64"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthHandler trades the shared access key for a bearer token usable by
// clients that cannot send custom headers, such as browser WebSockets.
type AuthHandler struct {
	accessKey  string
	jwtSecret  string
	expiration time.Duration
	validator  *validator.Validate
}

func NewAuthHandler(accessKey, jwtSecret string, expiration time.Duration) *AuthHandler {
	return &AuthHandler{
		accessKey:  accessKey,
		jwtSecret:  jwtSecret,
		expiration: expiration,
		validator:  validator.New(),
	}
}

func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.ValidationError(w, err)
		return
	}

	if !middleware.KeyMatches(req.AccessKey, h.accessKey) {
		response.Unauthorized(w, "Invalid access key")
		return
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = "web"
	}

	token, err := jwt.GenerateToken(clientID, h.expiration, h.jwtSecret)
	if err != nil {
		response.InternalError(w, "Failed to issue token")
		return
	}

	response.Success(w, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.expiration).UTC(),
	})
}
