//go:build windows || linux

package main

import (
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/reemio/endoapp/internal/assets"
	"github.com/reemio/endoapp/internal/camera"
	"github.com/reemio/endoapp/internal/config"
	"github.com/reemio/endoapp/internal/files"
	"github.com/reemio/endoapp/internal/httpserver"
	"github.com/reemio/endoapp/internal/logging"
	"github.com/reemio/endoapp/internal/monitor"
	"github.com/reemio/endoapp/internal/state"
	"github.com/reemio/endoapp/internal/status"
)

var sigChan = make(chan os.Signal, 1)

func main() {
	// Disable Fyne telemetry
	os.Setenv("FYNE_TELEMETRY", "0")

	cfg, err := config.InitConfig()
	if err != nil {
		logging.ErrorLogger.Fatalf("Error processing flags: %v", err)
	}

	filesMgr, err := files.NewManager(cfg.DataDir)
	if err != nil {
		logging.ErrorLogger.Fatalf("Error creating data directories: %v", err)
	}
	if err := logging.Init(filesMgr.LogDir()); err != nil {
		logging.ErrorLogger.Printf("Could not open log file: %v", err)
	}
	defer logging.Close()

	state.SetPatient(cfg.Hospital, "", "")

	cameras := camera.NewManager(cfg, filesMgr)

	go httpserver.StartServer(cfg, cameras, filesMgr)

	myApp := app.New()
	myApp.SetIcon(assets.IconResource)
	window := myApp.NewWindow("Endoscopy Capture")

	// Live preview
	preview := canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, cfg.Camera.Width, cfg.Camera.Height)))
	preview.FillMode = canvas.ImageFillContain
	preview.SetMinSize(fyne.NewSize(640, 480))
	cameras.OnDisplayFrame = func(img image.Image) {
		preview.Image = img
		canvas.Refresh(preview)
	}

	statusLabel := widget.NewLabel("Initializing camera...")
	statusLabel.Wrapping = fyne.TextWrapWord

	timerLabel := widget.NewLabel("")

	var recordButton *widget.Button
	recordButton = widget.NewButton("Start Recording", func() {
		if cameras.IsRecording() {
			if _, err := cameras.StopRecording(); err != nil {
				dialog.ShowError(err, window)
				return
			}
			recordButton.SetText("Start Recording")
			timerLabel.SetText("")
			return
		}
		if _, err := cameras.StartRecording(); err != nil {
			dialog.ShowError(err, window)
			return
		}
		recordButton.SetText("Stop Recording")
	})

	captureButton := widget.NewButton("Capture Image", func() {
		path, err := cameras.CaptureImage()
		if err != nil {
			dialog.ShowError(err, window)
			return
		}
		logging.Info("Captured image: %s", path)
	})

	content := container.NewBorder(
		nil,
		container.NewVBox(
			container.NewHBox(recordButton, captureButton, timerLabel),
			widget.NewSeparator(),
			statusLabel,
		),
		nil, nil,
		preview,
	)
	window.SetContent(content)
	window.Resize(fyne.NewSize(800, 640))
	window.CenterOnScreen()

	setMainMenu(window, cfg, cameras, nil)
	cameras.OnCamerasDiscovered = func(devices []camera.DeviceInfo) {
		setMainMenu(window, cfg, cameras, devices)
	}

	// Don't let an accidental close lose an active recording
	window.SetCloseIntercept(func() {
		if !cameras.IsRecording() {
			window.Close()
			return
		}
		confirmDialog := dialog.NewConfirm(
			"Confirm Exit",
			"A recording is in progress. Exiting will stop and finalize it. Are you sure?",
			func(confirm bool) {
				if confirm {
					window.Close()
				}
			},
			window,
		)
		confirmDialog.SetConfirmText("Stop and Exit")
		confirmDialog.SetDismissText("Keep Recording")
		confirmDialog.Show()
	})

	// Status update goroutine
	go func() {
		for msg := range status.StatusChan {
			text := msg.Text
			if msg.Session != "" {
				text = fmt.Sprintf("%s — %s", msg.Session, msg.Text)
			}
			statusLabel.SetText(text)
			statusLabel.TextStyle = fyne.TextStyle{Bold: msg.Code == status.Error}
			statusLabel.Refresh()
		}
	}()

	// Recording timer goroutine
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if cameras.IsRecording() {
				elapsed := cameras.RecordingDuration().Round(time.Second)
				timerLabel.SetText(fmt.Sprintf("REC %s", elapsed))
				timerLabel.Refresh()
			}
		}
	}()

	window.Show()

	cameras.Initialize()
	go monitor.Monitor(cfg, cameras)

	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logging.Info("Interrupt signal received, shutting down")
		shutdown(cameras)
		myApp.Quit()
	}()

	window.SetOnClosed(func() {
		shutdown(cameras)
	})

	window.ShowAndRun()
}

func shutdown(cameras *camera.Manager) {
	monitor.Disconnect()
	cameras.Close()
	httpserver.StopServer()
}

// setMainMenu rebuilds the menu; the camera list fills in once discovery
// has run.
func setMainMenu(window fyne.Window, cfg *config.Config, cameras *camera.Manager, devices []camera.DeviceInfo) {
	cameraItems := []*fyne.MenuItem{
		fyne.NewMenuItem("Rescan Devices", func() {
			go func() {
				devices := cameras.ScanCameras()
				setMainMenu(window, cfg, cameras, devices)
			}()
		}),
	}
	for _, d := range devices {
		device := d
		cameraItems = append(cameraItems, fyne.NewMenuItem(device.Name, func() {
			go func() {
				if err := cameras.SelectCamera(device.ID); err != nil {
					logging.Error("Could not select camera %d: %v", device.ID, err)
				}
			}()
		}))
	}

	mainMenu := fyne.NewMainMenu(
		fyne.NewMenu("Files",
			fyne.NewMenuItem("Open Data Directory", func() {
				openDataDirectory(cfg)
			}),
		),
		fyne.NewMenu("Camera", cameraItems...),
		fyne.NewMenu("Help",
			fyne.NewMenuItem("About", func() {
				dialog.ShowInformation("About", fmt.Sprintf("Endoscopy Capture\nVersion %s", config.GetProgramVersion()), window)
			}),
		),
	)
	window.SetMainMenu(mainMenu)
}

// openDataDirectory opens the data directory in the file explorer
func openDataDirectory(cfg *config.Config) {
	dir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		dir = cfg.DataDir
	}
	openInExplorer(dir)
}
