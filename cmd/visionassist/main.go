package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/visionassist/internal/api"
	"github.com/banshee-data/visionassist/internal/config"
	"github.com/banshee-data/visionassist/internal/db"
	"github.com/banshee-data/visionassist/internal/detect"
	"github.com/banshee-data/visionassist/internal/dispatch"
	"github.com/banshee-data/visionassist/internal/distance"
	"github.com/banshee-data/visionassist/internal/monitoring"
	"github.com/banshee-data/visionassist/internal/navigation"
	"github.com/banshee-data/visionassist/internal/pipeline"
	"github.com/banshee-data/visionassist/internal/sensor"
	"github.com/banshee-data/visionassist/internal/timeutil"
	"github.com/banshee-data/visionassist/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Run with a simulated proximity sensor")
	listen      = flag.String("listen", ":8080", "Listen address")
	port        = flag.String("port", "/dev/rfcomm0", "Serial port of the proximity sensor (ignored in dev mode)")
	baud        = flag.Int("baud", 9600, "Serial baud rate")
	configPath  = flag.String("config", "", "Path to a navigation tuning JSON file (defaults apply when empty)")
	dbPath      = flag.String("db", "journal.db", "Journal database path (empty disables journaling)")
	labelsPath  = flag.String("labels", "", "Detector label file, one class name per line")
	modelTensor = flag.String("model-tensor", "", "Raw float32 detector output to replay on every frame")
	tensorWidth = flag.Int("tensor-width", 640, "Detector input width in pixels")
	tensorElems = flag.Int("tensor-elements", 8400, "Candidate boxes in the replayed tensor")
	frameEvery  = flag.Duration("frame-interval", 200*time.Millisecond, "Interval between detection frames")
	ttsCmd      = flag.String("tts-cmd", "", "Speech command such as \"espeak -s 160\" (logs utterances when empty)")
	autostart   = flag.Bool("autostart", false, "Start a navigation session at launch")
	diag        = flag.Bool("diag", false, "Enable diagnostic logging")
	trace       = flag.Bool("trace", false, "Enable per-frame trace logging")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

// devSensorLines are replayed by the simulated sensor in dev mode.
var devSensorLines = []string{
	"OBSTACLE_Front_240cm",
	"OBSTACLE_Front_130cm",
	"OBSTACLE_Left_90cm",
	"OBSTACLE_Right_45cm",
	"OBSTACLE_Front_30cm",
}

// logWriters routes ops to stderr and the verbose streams to stdout when
// enabled.
func logWriters(diag, trace bool, stdout, stderr io.Writer) monitoring.LogWriters {
	w := monitoring.LogWriters{Ops: stderr}
	if diag {
		w.Diag = stdout
	}
	if trace {
		w.Trace = stdout
	}
	return w
}

func loadConfig(path string) (*config.NavigationConfig, error) {
	if path == "" {
		return config.EmptyNavigationConfig(), nil
	}
	return config.LoadNavigationConfig(path)
}

func buildSpeaker(cmdline string) (dispatch.Speaker, error) {
	if cmdline == "" {
		return dispatch.LogSpeaker{WordsPerMinute: dispatch.DefaultWordsPerMinute}, nil
	}
	return dispatch.ParseCommandSpeaker(cmdline)
}

// buildPipeline returns nil when no detector output is configured.
func buildPipeline(cfg *config.NavigationConfig, labelsFile, tensorFile string, width, elements int, sink pipeline.ObjectSink) (*pipeline.Pipeline, error) {
	if tensorFile == "" {
		return nil, nil
	}
	if labelsFile == "" {
		return nil, fmt.Errorf("-labels is required with -model-tensor")
	}
	labels, err := detect.LoadLabelsFile(labelsFile)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	tensor, err := pipeline.LoadTensorFile(tensorFile, 4+len(labels), elements)
	if err != nil {
		return nil, fmt.Errorf("load tensor: %w", err)
	}
	stage := pipeline.Stage{
		Name:       "detector",
		Inferencer: pipeline.TensorInferencer{Tensor: tensor},
		Labels:     labels,
		Estimator:  distance.NewEstimator(cfg.EstimatorConfig(width)),
	}
	return pipeline.New(cfg.PipelineConfig(), []pipeline.Stage{stage}, sink)
}

// journaledSink forwards boxes to the controller and the journal.
type journaledSink struct {
	ctrl    *navigation.Controller
	journal *db.Journal
	clock   timeutil.Clock
}

func (s journaledSink) UpdateObjects(objects []detect.DetectedObject) {
	s.ctrl.UpdateObjects(objects)
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordDetections(objects, s.clock.Now()); err != nil {
		log.Printf("failed to record detections: %v", err)
	}
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !*devMode && *port == "" {
		log.Fatal("Serial port is required")
	}
	monitoring.SetLogWriters(logWriters(*diag, *trace, os.Stdout, os.Stderr))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	clock := timeutil.RealClock{}
	store := sensor.NewStore(clock, cfg.GetSensorStaleAfter())

	speaker, err := buildSpeaker(*ttsCmd)
	if err != nil {
		log.Fatalf("failed to configure speech: %v", err)
	}
	queue := dispatch.NewQueue(speaker, dispatch.LogVibrator{}, cfg.QueueConfig(clock))

	var database *db.DB
	var journal *db.Journal
	navCfg := cfg.NavigatorConfig(clock)
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		journal = db.NewJournal(database)
		navCfg.Recorder = journal
	}

	ctrl := navigation.NewController(navCfg, store, queue, sensor.NewAlertTracker(cfg.GetAlertRepeatAfter()))

	linkCfg := sensor.LinkConfig{
		Path:              *port,
		Options:           sensor.PortOptions{BaudRate: *baud},
		ReconnectInterval: cfg.GetReconnectInterval(),
		Clock:             clock,
	}
	if *devMode {
		linkCfg.Path = "simulated"
		linkCfg.Open = sensor.SimulatedOpener(devSensorLines, time.Second)
	}
	link := sensor.NewLink(linkCfg, store)
	link.OnReading(func(r sensor.Reading) {
		ctrl.ObserveReading(r)
		if journal != nil {
			if err := journal.RecordReading(r); err != nil {
				log.Printf("failed to record reading: %v", err)
			}
		}
	})

	var sink pipeline.ObjectSink = ctrl
	if journal != nil {
		sink = journaledSink{ctrl: ctrl, journal: journal, clock: clock}
	}
	pipe, err := buildPipeline(cfg, *labelsPath, *modelTensor, *tensorWidth, *tensorElems, sink)
	if err != nil {
		log.Fatalf("failed to build detection pipeline: %v", err)
	}

	log.Printf("visionassist %s starting", version.String())

	// Create a wait group for the HTTP server, sensor link, and pipeline routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("sensor link stopped: %v", err)
		}
		log.Print("sensor routine terminated")
	}()

	if pipe != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			pipeline.GenerateFrames(ctx, pipe.Slot(), clock, *frameEvery, *tensorWidth, *tensorWidth)
		}()
		go func() {
			defer wg.Done()
			if err := pipe.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("detection pipeline stopped: %v", err)
			}
			log.Print("pipeline routine terminated")
		}()
	}

	if *autostart {
		if reply := ctrl.HandleCommand(ctx, "start navigation"); reply != navigation.StartingMessage {
			log.Printf("autostart: %s", reply)
		}
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		if database != nil {
			// mount the admin debugging routes (accessible only locally or over Tailscale)
			if err := database.AttachAdminRoutes(mux); err != nil {
				log.Printf("admin routes unavailable: %v", err)
			}
		}

		apiServer := api.NewServer(ctx, ctrl, store, queue, database)
		apiServer.SetLink(link)
		if pipe != nil {
			apiServer.SetPipeline(pipe)
		}
		mux.Handle("/api/", apiServer.ServeMux())

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	<-ctx.Done()
	if ctrl.Running() {
		if err := ctrl.Stop(); err != nil {
			log.Printf("failed to stop navigation: %v", err)
		}
	}

	// let the stop announcement finish before closing the queue
	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := queue.Drain(drainCtx); err != nil {
		log.Printf("speech queue not drained: %v", err)
	}
	cancel()
	queue.Close()

	wg.Wait()
	log.Print("graceful shutdown complete")
}
