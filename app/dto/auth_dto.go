package dto

// RegisterRequest represents the request payload for account registration
type RegisterRequest struct {
	Email        string   `json:"email" validate:"required,email,max=120" example:"ana@example.com"`
	Password     string   `json:"password" validate:"required,min=6,max=100" example:"secreto123"`
	Name         string   `json:"name" validate:"required,min=1,max=100" example:"Ana García"`
	Phone        *string  `json:"phone,omitempty" validate:"omitempty,max=20" example:"+34600111222"`
	Company      *string  `json:"company,omitempty" validate:"omitempty,max=100" example:"Acme SL"`
	CaptchaID    string   `json:"captcha_id,omitempty" example:"7d9f2c1e-..."`
	CaptchaAngle *float64 `json:"captcha_angle,omitempty" example:"135"`
}

// LoginRequest represents the request payload for user login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=120" example:"ana@example.com"`
	Password string `json:"password" validate:"required,max=100" example:"secreto123"`
}

// RefreshTokenRequest carries the refresh token to rotate
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UserDTO is the public view of a user account
type UserDTO struct {
	ID                     uint    `json:"id" example:"1"`
	Email                  string  `json:"email" example:"ana@example.com"`
	Name                   string  `json:"name" example:"Ana García"`
	Phone                  *string `json:"phone,omitempty"`
	Company                *string `json:"company,omitempty"`
	GeminiAutoReplyEnabled bool    `json:"gemini_auto_reply_enabled"`
	EmailNotifications     bool    `json:"email_notifications"`
	PushNotifications      bool    `json:"push_notifications"`
	SMSNotifications       bool    `json:"sms_notifications"`
	ProfileVisible         bool    `json:"profile_visible"`
	DataSharing            bool    `json:"data_sharing"`
	Analytics              bool    `json:"analytics"`
	Language               string  `json:"language" example:"es"`
	Timezone               string  `json:"timezone" example:"Europe/Madrid"`
	Theme                  string  `json:"theme" example:"light"`
	CreatedAt              string  `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt              string  `json:"updated_at" example:"2024-01-15T10:30:00Z"`
	LastLogin              *string `json:"last_login,omitempty"`
}

// AuthResponse is returned by register, login and refresh
type AuthResponse struct {
	User         *UserDTO `json:"user,omitempty"`
	AccessToken  string   `json:"access_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	RefreshToken string   `json:"refresh_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	TokenType    string   `json:"token_type" example:"Bearer"`
	ExpiresIn    int      `json:"expires_in" example:"86400"`
}

// SessionResponse answers the check-session probe
type SessionResponse struct {
	Authenticated bool     `json:"authenticated"`
	User          *UserDTO `json:"user,omitempty"`
}

// CaptchaResponse carries a rotate captcha challenge
type CaptchaResponse struct {
	ChallengeID string `json:"challenge_id"`
	MasterImage string `json:"master_image"`
	ThumbImage  string `json:"thumb_image"`
}
