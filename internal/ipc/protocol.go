package ipc

// Request is one newline-delimited command sent to the owning daemon.
type Request struct {
	Command string `json:"command"`
	Value   string `json:"value,omitempty"`
}

// Response reports the daemon's state after handling a Request.
type Response struct {
	OK         bool     `json:"ok"`
	State      string   `json:"state,omitempty"`
	Message    string   `json:"message,omitempty"`
	Error      string   `json:"error,omitempty"`
	Cooldown   bool     `json:"cooldown,omitempty"`
	Muted      bool     `json:"muted,omitempty"`
	Wide       bool     `json:"wide,omitempty"`
	Answer     string   `json:"answer,omitempty"`
	Transcript []string `json:"transcript,omitempty"`
}
