package authflow

// Event name constants to avoid string duplication/typos
const (
	EventProvidersUpdated = "auth:providers_updated"
	EventSessionStarted   = "auth:session_started"
	EventSessionChanged   = "auth:session_changed"
	EventAuthorized       = "auth:authorized"
	EventLoggedOut        = "auth:logged_out"
)
