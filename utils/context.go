package utils

type contextKey string

// Request-scoped context keys populated by handlers
const (
	RequestIDKey  contextKey = "request_id"
	UserAgentKey  contextKey = "user_agent"
	IPAddressKey  contextKey = "ip_address"
	EndpointKey   contextKey = "endpoint"
	TimeoutKey    contextKey = "timeout"
	SessionIDKey  contextKey = "session_id"
)

// Fiber locals keys
const (
	LocalSessionID = "session_id"
	LocalRequestID = "request_id"
)
