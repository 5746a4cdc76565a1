package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/beside/server/internal/auth"
	"github.com/beside/server/internal/middleware"
	"github.com/beside/server/internal/model"
)

const birthdayLayout = "2006-01-02"

// AuthHandler handles registration, login and profile endpoints.
type AuthHandler struct {
	service *auth.Service
	logger  *logrus.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(service *auth.Service, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{service: service, logger: logger}
}

// userPayload is the user object in API responses. The password hash and raw
// location never appear here.
type userPayload struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Gender   string  `json:"gender"`
	Birthday string  `json:"birthday"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone,omitempty"`
}

func toUserPayload(u model.User) userPayload {
	return userPayload{
		ID:       u.ID.String(),
		Name:     u.Name,
		Gender:   u.Gender,
		Birthday: u.Birthday.Format(birthdayLayout),
		Email:    u.Email,
		Phone:    u.Phone,
	}
}

type sessionPayload struct {
	User  userPayload `json:"user"`
	Token string      `json:"token"`
}

type registerRequest struct {
	Name     string  `json:"name"`
	Gender   string  `json:"gender"`
	Birthday string  `json:"birthday"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Phone    *string `json:"phone,omitempty"`
}

// HandleRegister handles POST /api/v1/auth/register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	birthday, err := time.Parse(birthdayLayout, req.Birthday)
	if err != nil {
		respondError(w, http.StatusBadRequest, "birthday must be YYYY-MM-DD")
		return
	}

	user, token, err := h.service.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Gender:   req.Gender,
		Birthday: birthday,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusCreated, sessionPayload{User: toUserPayload(user), Token: token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin handles POST /api/v1/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusOK, sessionPayload{User: toUserPayload(user), Token: token})
}

// HandleMe handles GET /api/v1/auth/me.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondData(w, http.StatusOK, toUserPayload(*user))
}

type profileRequest struct {
	Name     *string `json:"name,omitempty"`
	Gender   *string `json:"gender,omitempty"`
	Birthday *string `json:"birthday,omitempty"`
}

// HandleUpdateProfile handles PUT /api/v1/auth/profile.
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := auth.ProfileUpdate{Name: req.Name, Gender: req.Gender}
	if req.Birthday != nil {
		birthday, err := time.Parse(birthdayLayout, *req.Birthday)
		if err != nil {
			respondError(w, http.StatusBadRequest, "birthday must be YYYY-MM-DD")
			return
		}
		upd.Birthday = &birthday
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, upd)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusOK, toUserPayload(user))
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	// Accuracy is accepted from clients but not stored.
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// HandleUpdateLocation handles PUT /api/v1/users/location.
func (h *AuthHandler) HandleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		respondError(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}

	if err := h.service.UpdateLocation(r.Context(), userID, *req.Latitude, *req.Longitude); err != nil {
		respondServiceError(w, err)
		return
	}

	respondMessage(w, http.StatusOK, "location updated")
}
