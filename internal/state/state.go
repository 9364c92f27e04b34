package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/reemio/endoapp/internal/logging"
)

// Procedure context shared between the camera manager, the file tree and
// the status stream. Guarded by mu; the capture goroutine and the MQTT
// monitor both touch it.
var (
	mu sync.Mutex

	hospital    string
	patientName string
	patientID   string
	procedureID string

	LastStartTime int64 // procedure start, milliseconds since epoch
)

// StartMessage is the payload published by the clinic system when a
// procedure begins.
type StartMessage struct {
	Hospital    string `json:"hospital"`
	PatientName string `json:"patientName"`
	PatientID   string `json:"patientId"`
	ProcedureID string `json:"procedureId"`
}

// SetPatient records the active hospital/patient context.
func SetPatient(hospitalName, name, id string) {
	mu.Lock()
	hospital = hospitalName
	patientName = name
	patientID = id
	mu.Unlock()
}

// Patient returns the active hospital/patient context.
func Patient() (hospitalName, name, id string) {
	mu.Lock()
	defer mu.Unlock()
	return hospital, patientName, patientID
}

// CurrentProcedure returns a short label for the active procedure, or ""
// when none is active.
func CurrentProcedure() string {
	mu.Lock()
	defer mu.Unlock()
	if procedureID == "" {
		return ""
	}
	if patientName == "" {
		return procedureID
	}
	return fmt.Sprintf("%s (%s)", patientName, procedureID)
}

// UpdateFromStartMessage parses a procedure start payload: a JSON document
// followed by a space and a millisecond timestamp.
func UpdateFromStartMessage(message string) {
	// Find the last space to separate JSON and timestamp
	spaceIndex := strings.LastIndex(message, " ")
	if spaceIndex == -1 {
		return
	}

	jsonPart := message[:spaceIndex]

	var startMsg StartMessage
	if err := json.Unmarshal([]byte(jsonPart), &startMsg); err != nil {
		logging.ErrorLogger.Printf("Error parsing start message: %v", err)
		return
	}

	logging.Trace("Parsed start message: %+v", startMsg)

	mu.Lock()
	if startMsg.Hospital != "" {
		hospital = startMsg.Hospital
	}
	patientName = startMsg.PatientName
	patientID = startMsg.PatientID
	procedureID = startMsg.ProcedureID
	LastStartTime = time.Now().UnixNano() / int64(time.Millisecond)
	mu.Unlock()
}

// ClearProcedure ends the active procedure, keeping the hospital.
func ClearProcedure() {
	mu.Lock()
	patientName = ""
	patientID = ""
	procedureID = ""
	mu.Unlock()
}
