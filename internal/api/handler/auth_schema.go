package handler

import "github.com/gecofarm/farm-session/internal/core/domain"

type roleRequest struct {
	Type     string `json:"type" validate:"required,oneof=admin employee"`
	Position string `json:"position" validate:"required"`
}

type registerRequest struct {
	Name     string      `json:"name" validate:"required"`
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required,min=6"`
	Role     roleRequest `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type updateProfileRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=1"`
	ProfilePhoto *string `json:"profile_photo" validate:"omitempty,url"`
}

type registerResponse struct {
	User *domain.User `json:"user"`
}

type loginResponse struct {
	Redirect string       `json:"redirect"`
	User     *domain.User `json:"user"`
}

type conflictResponse struct {
	Error string `json:"error"`
	Login string `json:"login"`
}

type meResponse struct {
	Phase   domain.Phase `json:"phase"`
	User    *domain.User `json:"user"`
	IsAdmin bool         `json:"is_admin"`
}

func toMeResponse(st domain.SessionState) meResponse {
	return meResponse{Phase: st.Phase, User: st.User, IsAdmin: st.IsAdmin()}
}

type dashboardResponse struct {
	Tier domain.RoleType `json:"tier"`
	User *domain.User    `json:"user"`
}
