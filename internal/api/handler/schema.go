package handler

import (
	"time"

	"github.com/sdcourse/auth-api/internal/core/domain"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email"    validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" validate:"required"`
	Password        string `json:"password"        validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type updateUserRequest struct {
	Username string   `json:"username,omitempty" validate:"omitempty,min=3,max=50"`
	Email    string   `json:"email,omitempty"    validate:"omitempty,email,max=100"`
	Password string   `json:"password,omitempty" validate:"omitempty,min=6,max=72"`
	Roles    []string `json:"roles,omitempty"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type registerResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

type tokenResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	TokenType    string       `json:"tokenType"`
	ExpiresIn    int64        `json:"expiresIn"`
	User         userResponse `json:"user"`
}

type pageResponse struct {
	Content       []userResponse `json:"content"`
	Page          int            `json:"page"`
	Size          int            `json:"size"`
	TotalElements int64          `json:"totalElements"`
	TotalPages    int            `json:"totalPages"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func toUserResponse(p *domain.Principal) userResponse {
	return userResponse{
		ID:        p.ID,
		Username:  p.Username,
		Email:     p.Email,
		Roles:     p.Authorities(),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// toTokenResponse reports expiresIn in seconds.
func toTokenResponse(pair *domain.TokenPair) tokenResponse {
	resp := tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
	}
	if pair.Principal != nil {
		resp.User = toUserResponse(pair.Principal)
	}
	return resp
}

func toPageResponse(page *domain.Page) pageResponse {
	content := make([]userResponse, len(page.Items))
	for i, p := range page.Items {
		content[i] = toUserResponse(p)
	}
	return pageResponse{
		Content:       content,
		Page:          page.Page,
		Size:          page.Size,
		TotalElements: page.Total,
		TotalPages:    page.TotalPages,
	}
}
