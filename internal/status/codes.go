package status

const (
	Initializing = "INIT"  // Camera discovery or open in progress
	Ready        = "READY" // Device initialized, streaming
	Recording    = "REC"   // Recording in progress
	Done         = "DONE"  // Recording finished, file ready
	Error        = "ERR"   // User-facing error
)

// Message wraps a status code and message text
type Message struct {
	Code    string `json:"code"`
	Text    string `json:"text"`
	Session string `json:"session,omitempty"` // current procedure, when set
}
