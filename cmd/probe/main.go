// Command probe is a command-line capability tester: it scans for camera
// devices or measures what a single device can actually deliver, without
// starting the GUI.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/reemio/endoapp/internal/camera"
	"github.com/reemio/endoapp/internal/config"
	"github.com/reemio/endoapp/internal/files"
	"github.com/reemio/endoapp/internal/logging"
)

func main() {
	device := flag.Int("device", -1, "device index to probe (default: scan all)")
	full := flag.Bool("full", false, "run the timed multi-frame probe instead of the quick check")
	verbose := flag.Bool("v", false, "enable verbose capture logging")
	dataDir := flag.String("data", "data", "data directory")
	flag.Parse()

	logging.SetVerbose(*verbose || logging.VerboseFromEnv())

	if *device < 0 {
		scanAll(*dataDir)
		return
	}

	prober := camera.NewProber()
	if !*full {
		caps := prober.TestCapabilities(*device)
		fmt.Printf("Device %d: optimal %dx%d @ %.1f fps\n",
			caps.DeviceID, caps.OptimalWidth, caps.OptimalHeight, caps.OptimalFPS)
		for _, r := range caps.Results {
			printResult(r)
		}
		return
	}

	for _, mode := range []struct {
		label string
		w, h  int
	}{
		{"1080p", 1920, 1080},
		{"720p", 1280, 720},
		{"VGA", 640, 480},
	} {
		printResult(prober.ProbeResolution(*device, mode.w, mode.h, mode.label, false))
	}
}

func printResult(r camera.ProbeResult) {
	if !r.OK {
		fmt.Printf("  %-6s %dx%d: failed (%d frames)\n", r.Label, r.Width, r.Height, r.FrameCount)
		return
	}
	fmt.Printf("  %-6s %dx%d via %s: %.1f fps (%d frames in %s)\n",
		r.Label, r.Width, r.Height, r.Backend, r.FPS, r.FrameCount, r.Elapsed.Round(10*time.Millisecond))
}

func scanAll(dataDir string) {
	cfg := config.LoadConfig("config.toml")
	cfg.DataDir = dataDir

	filesMgr, err := files.NewManager(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cameras := camera.NewManager(&cfg, filesMgr)
	devices := cameras.ScanCameras()
	fmt.Printf("Found %d device(s):\n", len(devices))
	for _, d := range devices {
		fmt.Printf("  [%d] %s (backend %s)\n", d.ID, d.Name, d.Backend)
	}
}
