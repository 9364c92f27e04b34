// Package httpserver exposes the local API the report-authoring UI talks
// to: current status, camera control, and captured-media file serving.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/reemio/endoapp/internal/camera"
	"github.com/reemio/endoapp/internal/config"
	"github.com/reemio/endoapp/internal/files"
	"github.com/reemio/endoapp/internal/logging"
	"github.com/reemio/endoapp/internal/state"
	"github.com/reemio/endoapp/internal/websocket"
)

var server *http.Server

// StatusResponse is the GET /status payload.
type StatusResponse struct {
	Version      string           `json:"version"`
	Hospital     string           `json:"hospital"`
	Procedure    string           `json:"procedure,omitempty"`
	CameraID     int              `json:"cameraId"`
	Settings     *camera.Settings `json:"settings,omitempty"`
	Recording    bool             `json:"recording"`
	RecordingSec float64          `json:"recordingSeconds"`
}

// StartServer starts the HTTP server on the configured port. Blocks until
// the server stops; run it on its own goroutine.
func StartServer(cfg *config.Config, cameras *camera.Manager, filesMgr *files.Manager) {
	router := mux.NewRouter()

	router.HandleFunc("/status", statusHandler(cfg, cameras)).Methods(http.MethodGet)
	router.HandleFunc("/cameras", camerasHandler(cameras)).Methods(http.MethodGet)
	router.HandleFunc("/cameras/{id:[0-9]+}/select", selectCameraHandler(cameras)).Methods(http.MethodPost)
	router.HandleFunc("/record/start", recordStartHandler(cameras)).Methods(http.MethodPost)
	router.HandleFunc("/record/stop", recordStopHandler(cameras)).Methods(http.MethodPost)
	router.HandleFunc("/capture", captureHandler(cameras)).Methods(http.MethodPost)
	router.HandleFunc("/ws", handleWebSocket)

	// Captured media for the report UI
	dataDir := http.Dir(filesMgr.DataDir())
	router.PathPrefix("/media/").Handler(http.StripPrefix("/media/", http.FileServer(dataDir)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	server = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	logging.Info("Starting HTTP server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Error("HTTP server failed: %v", err)
	}
}

// StopServer shuts the server down gracefully.
func StopServer() {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logging.Error("HTTP server shutdown: %v", err)
	}
	server = nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusHandler(cfg *config.Config, cameras *camera.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hospital, _, _ := state.Patient()
		if hospital == "" {
			hospital = cfg.Hospital
		}
		resp := StatusResponse{
			Version:      config.GetProgramVersion(),
			Hospital:     hospital,
			Procedure:    state.CurrentProcedure(),
			CameraID:     cameras.CurrentCamera(),
			Recording:    cameras.IsRecording(),
			RecordingSec: cameras.RecordingDuration().Seconds(),
		}
		if s, ok := cameras.Settings(); ok {
			resp.Settings = &s
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func camerasHandler(cameras *camera.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		devices := cameras.AvailableCameras()
		if r.URL.Query().Get("rescan") == "true" {
			devices = cameras.ScanCameras()
		}
		writeJSON(w, http.StatusOK, devices)
	}
}

func selectCameraHandler(cameras *camera.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id int
		if _, err := fmt.Sscanf(mux.Vars(r)["id"], "%d", &id); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := cameras.SelectCamera(id); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"selected": id})
	}
}

func recordStartHandler(cameras *camera.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := cameras.StartRecording()
		if err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"path": path})
	}
}

func recordStopHandler(cameras *camera.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := cameras.StopRecording()
		if err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"path": path})
	}
}

func captureHandler(cameras *camera.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := cameras.CaptureImage()
		if err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"path": path})
	}
}

// handleWebSocket upgrades the connection and keeps it registered for
// status broadcasts until the peer goes away.
func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("WebSocket upgrade failed: %v", err)
		return
	}
	websocket.Register(conn)
	logging.Trace("WebSocket client connected (%d total)", websocket.ClientCount())

	go func() {
		defer websocket.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
