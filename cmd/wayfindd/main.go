// wayfindd runs the wayfinder pipeline against simulated
// collaborators: a synthetic frame source, detector, tracker and
// verification backends. Real deployments embed the core and supply
// production collaborators instead.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/e7canasta/wayfinder/internal/config"
	"github.com/e7canasta/wayfinder/internal/core"
	"github.com/e7canasta/wayfinder/internal/driftrepair"
	"github.com/e7canasta/wayfinder/internal/emitter"
	"github.com/e7canasta/wayfinder/internal/framefeed"
	"github.com/e7canasta/wayfinder/internal/journal"
	"github.com/e7canasta/wayfinder/internal/lifecycle"
	"github.com/e7canasta/wayfinder/internal/store"
	"github.com/e7canasta/wayfinder/internal/types"
	"github.com/e7canasta/wayfinder/internal/verify"
	"github.com/e7canasta/wayfinder/internal/wshub"
)

const defaultConfigPath = "config/wayfinder.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Optional .env for broker overrides; absence is fine.
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if broker := os.Getenv("WAYFINDER_MQTT_BROKER"); broker != "" && cfg.MQTT != nil {
		cfg.MQTT.Broker = broker
	}

	slog.Info("starting wayfinder",
		"instance_id", cfg.InstanceID,
		"target_make", cfg.Target.Make,
		"target_model", cfg.Target.Model,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	st := store.New(store.Thresholds{
		DupIoU:        cfg.Pipeline.DupIoU,
		DupCenterDist: cfg.Pipeline.DupCenterDist,
	})

	// Simulated collaborators.
	scene := newScene()
	detector := newSimDetector(scene)
	tracker := newSimTracker(scene)
	embedder := newSimEmbedder(scene)
	fastBackend := newSimBackend(cfg.Target, 2, false)
	slowBackend := newSimBackend(cfg.Target, 1, true)

	policy := verify.Policy{
		MaxPrimaryRetries: cfg.Verify.MaxPrimaryRetries,
		MaxSlowRetries:    cfg.Verify.MaxSlowRetries,
	}
	gate := verify.Gate{MinBoxArea: cfg.Verify.MinBoxArea, MaxAspect: cfg.Verify.MaxAspect}
	manager := verify.NewManager(cfg.Verify.CallTimeout(),
		verify.NewFastStrategy(fastBackend, policy, gate, cfg.Target),
		verify.NewSlowStrategy(slowBackend, policy, gate, cfg.Target),
	)

	var sinks []core.PresentationSink
	var listeners []core.PhaseListener
	var outcomeFns []verify.OutcomeFunc

	if cfg.Journal != nil {
		jn, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			slog.Error("failed to open journal", "error", err)
			os.Exit(1)
		}
		defer jn.Close()
		listeners = append(listeners, jn)
		outcomeFns = append(outcomeFns, jn.RecordOutcome)
	}

	if cfg.MQTT != nil {
		em := emitter.New(emitter.Config{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.InstanceID,
			SnapshotsTopic: cfg.MQTT.SnapshotsTopic,
			EventsTopic:    cfg.MQTT.EventsTopic,
			SnapshotQoS:    cfg.MQTT.SnapshotQoS,
			EventQoS:       cfg.MQTT.EventQoS,
		})
		if err := em.Connect(ctx); err != nil {
			slog.Error("mqtt connect failed", "error", err)
			os.Exit(1)
		}
		defer em.Disconnect()
		sinks = append(sinks, em)
		listeners = append(listeners, em)
	}

	if cfg.WebSocket != nil {
		hub := wshub.New()
		go hub.Run()
		defer hub.Close()
		sinks = append(sinks, hub)

		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		srv := &http.Server{Addr: cfg.WebSocket.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("websocket server failed", "error", err)
			}
		}()
		defer srv.Close()
		slog.Info("websocket hub listening", "addr", cfg.WebSocket.Addr)
	}

	verifier := verify.NewService(verify.ServiceConfig{
		GlobalInterval:       cfg.Verify.GlobalInterval(),
		PerCandidateInterval: cfg.Verify.PerCandidateInterval(),
	}, manager, fanOutOutcomes(outcomeFns))

	coordinator := core.New(core.Options{
		Store:    st,
		Detector: detector,
		Tracker:  tracker,
		Lifecycle: lifecycle.New(lifecycle.Config{
			AssocIoU:       cfg.Pipeline.AssocIoU,
			MissThreshold:  cfg.Pipeline.MissThreshold,
			RejectCooldown: cfg.Pipeline.RejectCooldown(),
		}, tracker.StartTrack),
		Repair: driftrepair.New(driftrepair.Config{
			Stride:       cfg.Drift.RepairStride,
			SimThreshold: cfg.Drift.SimThreshold,
		}, embedder),
		Verifier:       verifier,
		Sinks:          sinks,
		PhaseListeners: listeners,
		DetectorFilter: cfg.Pipeline.DetectorFilter,
	})

	feed := framefeed.New()
	source := newSimSource(scene, feed, 30)
	if err := source.Start(ctx); err != nil {
		slog.Error("failed to start frame source", "error", err)
		os.Exit(1)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- coordinator.Run(ctx, feed)
	}()

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			slog.Error("pipeline error", "error", err)
		}
	}

	source.Stop()
	feed.Close()

	// Let in-flight verification calls land before tearing down.
	done := make(chan struct{})
	go func() {
		verifier.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		slog.Warn("shutdown timeout waiting for verifications")
	}

	slog.Info("wayfinder stopped", "stats", coordinator.Stats())
}

// fanOutOutcomes merges outcome observers into one callback.
func fanOutOutcomes(fns []verify.OutcomeFunc) verify.OutcomeFunc {
	if len(fns) == 0 {
		return nil
	}
	return func(id uuid.UUID, kind types.BackendKind, out types.Outcome) {
		for _, fn := range fns {
			fn(id, kind, out)
		}
	}
}
