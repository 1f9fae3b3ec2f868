package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypeDegraded = "degraded"
	WSMessageTypeRedirect = "redirect"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage carries the synthetic progress estimate while a job is
// processing. Progress is a cosmetic, elapsed-time estimate and never
// reaches 100 before confirmed completion.
type WSProgressMessage struct {
	Type     string      `json:"type"`
	VideoID  string      `json:"videoId"`
	Progress int         `json:"progress"`
	Status   VideoStatus `json:"status"`
}

// WSCompleteMessage signals confirmed analysis completion
type WSCompleteMessage struct {
	Type    string `json:"type"`
	VideoID string `json:"videoId"`
}

// WSErrorMessage signals a terminal analysis error with a retry affordance
type WSErrorMessage struct {
	Type    string  `json:"type"`
	VideoID string  `json:"videoId"`
	Error   WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSDegradedMessage signals that status could not be verified; the job is
// not failed, observation simply hit a glitch.
type WSDegradedMessage struct {
	Type    string `json:"type"`
	VideoID string `json:"videoId"`
	Reason  string `json:"reason"`
}

// WSRedirectMessage asks the client to navigate to the results view. Sent
// exactly once, a short delay after completion.
type WSRedirectMessage struct {
	Type    string `json:"type"`
	VideoID string `json:"videoId"`
	Path    string `json:"path"`
}
