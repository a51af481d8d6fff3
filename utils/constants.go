package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the default time-to-live for access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// RefreshTokenTTL is the default time-to-live for refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour

	// SessionCookieName carries the access token for browser clients
	SessionCookieName = "session_token"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Pagination constants
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Request context keys
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserAgentKey contextKey = "user_agent"
	IPAddressKey contextKey = "ip_address"
	EndpointKey  contextKey = "endpoint"
	TimeoutKey   contextKey = "timeout"
)

// Redis key prefixes
const (
	RevokedTokenKeyPrefix   = "revoked_token:"
	DispatchLockKeyPrefix   = "campaign_dispatch_lock:"
	DashboardStatsKeyPrefix = "dashboard_stats:"
)
