package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"

	samconfig "github.com/samarth-ai/samarth/config"
	"github.com/samarth-ai/samarth/internal/api"
	"github.com/samarth-ai/samarth/internal/audio"
	"github.com/samarth-ai/samarth/internal/capture"
	"github.com/samarth-ai/samarth/internal/engine"
	"github.com/samarth-ai/samarth/internal/geo"
	"github.com/samarth-ai/samarth/internal/httputil"
	"github.com/samarth-ai/samarth/internal/registry"
	"github.com/samarth-ai/samarth/internal/speech"
	"github.com/samarth-ai/samarth/pkg/alert"
	"github.com/samarth-ai/samarth/pkg/contacts"
	"github.com/samarth-ai/samarth/pkg/events"
	"github.com/samarth-ai/samarth/pkg/pipeline"
	"github.com/samarth-ai/samarth/pkg/prompts"
	"github.com/samarth-ai/samarth/pkg/sms"
	"github.com/samarth-ai/samarth/pkg/urlvalidation"

	// Register backends via init().
	_ "github.com/samarth-ai/samarth/internal/backends/elevenlabs"
	_ "github.com/samarth-ai/samarth/internal/backends/google"
	_ "github.com/samarth-ai/samarth/internal/backends/ollama"
	_ "github.com/samarth-ai/samarth/internal/backends/openai"
	_ "github.com/samarth-ai/samarth/internal/backends/piper"
)

const datastorePool = "__default__pool_name__"

func main() {
	ctx := context.Background()

	// A missing .env file is fine; the environment alone is enough.
	_ = godotenv.Load()

	cfg, err := config.LoadWithOIDC[samconfig.AssistantConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if cfg.ConsoleLog {
		slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.TimeOnly,
		})))
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("samarth"),
		frame.WithRegisterServerOauth2Client(),
		frame.WithDatastore(),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	pub := events.NewPublisher(srv.QueueManager(), "samarth", eventRef)

	// --- Backends ---
	guard := cfg.Guard()
	vision, err := registry.Vision.Create(cfg.VisionBackend, cfg.BackendConfig())
	if err != nil {
		log.Fatalf("creating vision backend %q: %v", cfg.VisionBackend, err)
	}
	defer vision.Close()

	var composerText engine.TextEngine
	if text, err := registry.Text.Create(cfg.TextBackend, cfg.TextConfig()); err != nil {
		slog.WarnContext(ctx, "text backend unavailable, alerts use the fallback message",
			slog.String("backend", cfg.TextBackend), slog.String("error", err.Error()))
	} else {
		defer text.Close()
		composerText = engine.GuardText(cfg.TextBackend, text, guard)
	}

	var tts engine.TTSEngine
	if t, err := registry.TTS.Create(cfg.TTSBackend, cfg.TTSConfig()); err != nil {
		slog.WarnContext(ctx, "speech backend unavailable, results are not spoken",
			slog.String("backend", cfg.TTSBackend), slog.String("error", err.Error()))
	} else {
		tts = engine.GuardTTS(cfg.TTSBackend, t, guard)
	}
	speaker := speech.New(tts, cfg.TTSVoice, time.Duration(cfg.SpeechTimeoutSec)*time.Second)
	defer speaker.Close()

	// --- Devices ---
	camera := capture.NewFFmpegSource(cfg.Capture())
	if err := camera.Start(ctx); err != nil {
		slog.WarnContext(ctx, "camera unavailable",
			slog.String("device", cfg.CaptureDevice), slog.String("error", err.Error()))
	}
	defer camera.Stop()

	var sink audio.Sink
	switch cfg.AudioSink {
	case "aplay":
		sink = audio.NewAplaySink(cfg.AudioBinary)
	case "discard":
		sink = audio.DiscardSink{}
	default:
		sink = audio.NewFFplaySink(cfg.AudioBinary)
	}
	player := audio.NewPlayer(sink)
	defer player.Stop()

	// --- Prompts ---
	catalog := prompts.NewCatalog(cfg.PromptsDir)
	if _, err := catalog.LoadAll(); err != nil {
		slog.WarnContext(ctx, "loading prompts, using defaults", slog.String("error", err.Error()))
	}
	watchDone := make(chan struct{})
	defer close(watchDone)
	if err := catalog.WatchAndReload(watchDone); err != nil {
		slog.WarnContext(ctx, "prompt hot reload disabled", slog.String("error", err.Error()))
	}

	// --- Contacts ---
	store, err := contacts.New(ctx, cfg.Contacts(srv.DatastoreManager().GetPool(ctx, datastorePool)))
	if err != nil {
		log.Fatalf("opening contact store: %v", err)
	}
	defer store.Close()

	// --- SMS ---
	var dispatcher alert.Dispatcher
	var smsSubscriber *sms.Subscriber
	var smsRepo *sms.Repository
	switch cfg.SMSMode {
	case "log":
		dispatcher = sms.LogDispatcher{}
	case "gateway":
		smsRepo = sms.NewRepository(srv.DatastoreManager().GetPool(ctx, datastorePool))
		if err := smsRepo.Migrate(ctx); err != nil {
			log.Fatalf("migrating sms tables: %v", err)
		}
		var validateOpts []urlvalidation.Option
		if cfg.SMSAllowPrivateIPs {
			validateOpts = append(validateOpts, urlvalidation.AllowPrivateIPs())
		}
		smsSubscriber = &sms.Subscriber{
			Deliverer: sms.NewDeliverer(smsRepo, pub, cfg.Deliverer(), validateOpts...),
			Pool:      pool,
		}
		dispatcher = sms.QueueDispatcher{Pub: pub}
	default:
		dispatcher = sms.NewIntentDispatcher(cfg.SMSOpener)
	}

	// --- Core ---
	locator, err := geo.New(cfg.GeoProvider, cfg.GeoStatic, cfg.GeoEndpoint)
	if err != nil {
		log.Fatalf("configuring geolocation: %v", err)
	}

	pipe := pipeline.New(camera, engine.GuardVision(cfg.VisionBackend, vision, guard), speaker, player,
		catalog, pub, pool, cfg.Pipeline())
	defer pipe.Close()

	composer := alert.NewComposer(composerText, time.Duration(cfg.ComposeTimeoutSec)*time.Second)
	alerts := alert.NewCoordinator(locator, composer, store, dispatcher, pub, pool, cfg.Alert())
	defer alerts.Close()

	// --- HTTP ---
	mux := http.NewServeMux()
	api.NewHandler(pipe, alerts, store, catalog, pub).
		WithSMSRepository(smsRepo).
		RegisterRoutes(mux)

	var handler http.Handler = mux
	if cfg.RequireAuth {
		handler = httputil.Authenticated(handler, srv.SecurityManager().GetAuthenticator(ctx))
	}
	handler = httputil.Logging(handler)

	initOpts := []frame.Option{frame.WithHTTPHandler(httputil.H2CHandler(handler))}
	if smsSubscriber != nil {
		initOpts = append(initOpts, frame.WithRegisterSubscriber(eventRef+".sms", eventURL, smsSubscriber))
	}
	srv.Init(ctx, initOpts...)

	slog.InfoContext(ctx, "samarth ready",
		slog.String("vision", cfg.VisionBackend),
		slog.String("tts", cfg.TTSBackend),
		slog.String("contacts", cfg.ContactsBackend),
		slog.String("sms", cfg.SMSMode),
		slog.String("camera", cfg.CaptureFacing))

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
