package api

// DispatchRequest is the JSON body for POST /v1/dispatch/{capability}
type DispatchRequest struct {
	Params map[string]any `json:"params,omitempty"`
}

// DispatchResponse is returned on successful dispatch
type DispatchResponse struct {
	RequestID  string `json:"request_id"`
	Capability string `json:"capability"`
	Handler    string `json:"handler"`
	Attempts   int    `json:"attempts"`
	ElapsedMS  int64  `json:"elapsed_ms"`
}

// HandlerInfo describes one registered handler
type HandlerInfo struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Capability string `json:"capability"`
	Priority   int    `json:"priority"`
	Deprecated bool   `json:"deprecated,omitempty"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
	Cause string `json:"cause,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Capabilities   int    `json:"capabilities"`
	HandlersLoaded int    `json:"handlers_loaded"`
}
