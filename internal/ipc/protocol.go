// Package ipc implements the JSON-line unix socket used by status and stop.
package ipc

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK      bool    `json:"ok"`
	State   string  `json:"state,omitempty"`
	Message string  `json:"message,omitempty"`
	Error   string  `json:"error,omitempty"`
	Status  *Status `json:"status,omitempty"`
}

// Status is the runtime snapshot attached to status responses.
type Status struct {
	Camera   string `json:"camera"`
	Device   string `json:"device"`
	Surface  string `json:"surface"`
	Cycles   uint64 `json:"cycles"`
	Skipped  uint64 `json:"skipped"`
	Failed   uint64 `json:"failed"`
	Positive uint64 `json:"positive"`
}
