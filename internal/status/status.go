package status

import (
	"encoding/json"

	"github.com/reemio/endoapp/internal/state"
	"github.com/reemio/endoapp/internal/websocket"
)

// StatusChan feeds the Fyne UI status label.
var StatusChan = make(chan Message, 10)

// Send sends a status update to all web clients and to the UI channel.
func Send(code string, text string) {
	msg := Message{
		Code:    code,
		Text:    text,
		Session: state.CurrentProcedure(),
	}

	// Send to web clients
	if data, err := json.Marshal(msg); err == nil {
		websocket.SendMessage(string(data))
	}

	// Send to Fyne UI
	select {
	case StatusChan <- msg:
	default:
		// Channel is full, skip this update
	}
}
