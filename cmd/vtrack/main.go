package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ayusman/vtrack/internal/app"
	"github.com/ayusman/vtrack/internal/capture"
	"github.com/ayusman/vtrack/internal/config"
	"github.com/ayusman/vtrack/internal/detector"
	"github.com/ayusman/vtrack/internal/server"
	"github.com/ayusman/vtrack/internal/store"
	"github.com/ayusman/vtrack/internal/tray"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML config file")
		addr       = flag.String("addr", "", "dashboard listen address (overrides config)")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
		withTray   = flag.Bool("tray", false, "show the system tray menu")
		mock       = flag.Bool("mock", false, "use a synthetic camera and a fixed standing pose")
		reset      = flag.Bool("reset", false, "forget the saved tracking and first-run state")
	)
	flag.Parse()

	fmt.Println("vtrack - camera-based virtual trackers")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *withTray {
		cfg.Server.Tray = true
	}

	st, err := openStore(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()
	log.Printf("Using database %s", st.Path())

	if *reset {
		if err := st.Settings().Reset(store.SettingTrackingEnabled, store.SettingFirstRun); err != nil {
			log.Printf("Failed to reset settings: %v", err)
		} else {
			log.Println("Saved settings reset")
		}
	}

	if st.Settings().Bool(store.SettingFirstRun, true) {
		log.Println("First run: stand upright facing the camera and choose Calibrate")
		if err := st.Settings().SetBool(store.SettingFirstRun, false); err != nil {
			log.Printf("Failed to save settings: %v", err)
		}
	}

	appCfg := app.Config{Settings: cfg, Store: st}
	if *mock {
		frames := capture.SyntheticFrames(8, cfg.Camera.Width, cfg.Camera.Height)
		defer func() {
			for _, f := range frames {
				f.Close()
			}
		}()
		det := detector.NewMockDetector()
		det.SetSnapshot(detector.StandingSnapshot(time.Now()))
		appCfg.Camera = capture.NewMockCamera(frames, true)
		appCfg.Detector = det
		log.Println("Running with a synthetic camera")
	}

	a, err := app.New(appCfg)
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}
	if err := a.Start(); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	webDir := cfg.Server.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srv := server.New(server.Config{
		StaticDir:   webDir,
		Calibration: a.Calibration(),
		Calibrator:  a,
		Profiles:    st.Profiles(),
		Tracking:    a,
		Status:      a.Status(),
		Preview:     a.Producer(),
	})
	go func() {
		fmt.Printf("Dashboard on http://%s\n", cfg.Server.Addr)
		if err := srv.ListenAndServe(cfg.Server.Addr); err != nil {
			log.Printf("Server failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Tray {
		runTray(ctx, a, cfg.Server.Addr)
	} else {
		<-ctx.Done()
	}

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping server: %v", err)
	}
	a.Stop()
}

// runTray shows the tray menu on the main goroutine until Quit or ctx ends.
func runTray(ctx context.Context, a *app.App, addr string) {
	t := tray.New(a.IsEnabled())
	t.OnToggle(a.SetEnabled)
	t.OnCalibrate(func() {
		go func() {
			if _, err := a.Calibrate(ctx); err != nil {
				log.Printf("Calibration: %v", err)
			}
		}()
	})
	t.OnDashboard(func() {
		if err := openBrowser("http://" + addr); err != nil {
			log.Printf("Failed to open browser: %v", err)
		}
	})

	followCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go t.Follow(followCtx, a.Status(), time.Second)
	go func() {
		<-ctx.Done()
		t.Quit()
	}()

	t.Run()
}

func openStore(path string) (*store.Store, error) {
	if !filepath.IsAbs(path) {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir := filepath.Join(homeDir, ".vtrack")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		path = filepath.Join(dir, path)
	}
	return store.New(path)
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.vtrack/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".vtrack", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
