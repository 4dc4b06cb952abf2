package config

import (
	"strconv"
	"time"

	"github.com/pitabwire/frame/config"

	"github.com/samarth-ai/samarth/internal/capture"
	"github.com/samarth-ai/samarth/internal/engine"
	"github.com/samarth-ai/samarth/pkg/alert"
	"github.com/samarth-ai/samarth/pkg/contacts"
	"github.com/samarth-ai/samarth/pkg/pipeline"
	"github.com/samarth-ai/samarth/pkg/sms"
)

// AssistantConfig holds configuration for the assistant service.
type AssistantConfig struct {
	config.ConfigurationDefault

	ConsoleLog  bool `envDefault:"false" env:"CONSOLE_LOG"`
	RequireAuth bool `envDefault:"false" env:"REQUIRE_AUTH"`

	// Backends
	VisionBackend       string  `envDefault:"gemini"                        env:"VISION_BACKEND"`
	TextBackend         string  `envDefault:"gemini"                        env:"TEXT_BACKEND"`
	TTSBackend          string  `envDefault:"google"                        env:"TTS_BACKEND"`
	VisionSpeedModel    string  `envDefault:""                              env:"VISION_SPEED_MODEL"`
	VisionAccuracyModel string  `envDefault:""                              env:"VISION_ACCURACY_MODEL"`
	VisionTemperature   float64 `envDefault:"0.4"                           env:"VISION_TEMPERATURE"`
	TextModel           string  `envDefault:""                              env:"TEXT_MODEL"`
	TTSModel            string  `envDefault:""                              env:"TTS_MODEL"`
	TTSVoice            string  `envDefault:""                              env:"TTS_VOICE"`
	TTSLanguage         string  `envDefault:"en-US"                         env:"TTS_LANGUAGE"`
	GeminiAPIKey        string  `envDefault:""                              env:"GEMINI_API_KEY"`
	GeminiBaseURL       string  `envDefault:""                              env:"GEMINI_BASE_URL"`
	OpenAIAPIKey        string  `envDefault:""                              env:"OPENAI_API_KEY"`
	OpenAIBaseURL       string  `envDefault:""                              env:"OPENAI_BASE_URL"`
	OllamaBaseURL       string  `envDefault:"http://localhost:11434"        env:"OLLAMA_BASE_URL"`
	GoogleAPIKey        string  `envDefault:""                              env:"GOOGLE_API_KEY"`
	ElevenLabsAPIKey    string  `envDefault:""                              env:"ELEVENLABS_API_KEY"`
	PiperBinaryPath     string  `envDefault:"piper"                         env:"PIPER_BINARY_PATH"`
	PiperModelPath      string  `envDefault:"./models/en_US-amy-medium.onnx" env:"PIPER_MODEL_PATH"`

	BackendFailureThreshold  int `envDefault:"5"  env:"BACKEND_CB_FAILURE_THRESHOLD"`
	BackendResetTimeoutSec   int `envDefault:"30" env:"BACKEND_CB_RESET_TIMEOUT_SEC"`
	BackendRequestsPerMinute int `envDefault:"60" env:"BACKEND_REQUESTS_PER_MINUTE"`

	// Capture and playback
	CaptureBinary          string `envDefault:"ffmpeg"      env:"CAPTURE_BINARY"`
	CaptureInputFormat     string `envDefault:"v4l2"        env:"CAPTURE_INPUT_FORMAT"`
	CaptureDevice          string `envDefault:"/dev/video0" env:"CAPTURE_DEVICE"`
	CaptureFacing          string `envDefault:"environment" env:"CAPTURE_FACING"`
	CaptureFrameRate       int    `envDefault:"5"           env:"CAPTURE_FRAME_RATE"`
	CaptureJPEGQuality     int    `envDefault:"80"          env:"CAPTURE_JPEG_QUALITY"`
	CaptureMaxWidth        int    `envDefault:"1280"        env:"CAPTURE_MAX_WIDTH"`
	CaptureStartTimeoutSec int    `envDefault:"10"          env:"CAPTURE_START_TIMEOUT_SEC"`
	AudioSink              string `envDefault:"ffplay"      env:"AUDIO_SINK"`
	AudioBinary            string `envDefault:""            env:"AUDIO_BINARY"`

	// Pipeline
	PromptsDir         string `envDefault:"./prompts" env:"PROMPTS_DIR"`
	LiveIntervalMs     int    `envDefault:"5000"      env:"LIVE_INTERVAL_MS"`
	VisionTimeoutSec   int    `envDefault:"30"        env:"VISION_TIMEOUT_SEC"`
	SpeechTimeoutSec   int    `envDefault:"20"        env:"SPEECH_TIMEOUT_SEC"`
	PlaybackTimeoutSec int    `envDefault:"120"       env:"PLAYBACK_TIMEOUT_SEC"`

	// Alert
	GeoProvider       string `envDefault:"ip"    env:"GEO_PROVIDER"`
	GeoStatic         string `envDefault:""      env:"GEO_STATIC"`
	GeoEndpoint       string `envDefault:""      env:"GEO_ENDPOINT"`
	GeoTimeoutSec     int    `envDefault:"10"    env:"GEO_TIMEOUT_SEC"`
	AlertCountdown    int    `envDefault:"5"     env:"ALERT_COUNTDOWN"`
	AlertTickMs       int    `envDefault:"1000"  env:"ALERT_TICK_MS"`
	AlertAutoNotify   bool   `envDefault:"false" env:"ALERT_AUTO_NOTIFY"`
	AlertMaxHistory   int    `envDefault:"50"    env:"ALERT_MAX_HISTORY"`
	ComposeTimeoutSec int    `envDefault:"15"    env:"COMPOSE_TIMEOUT_SEC"`

	// Contacts
	ContactsBackend string `envDefault:"sqlite"           env:"CONTACTS_BACKEND"`
	SQLitePath      string `envDefault:"./samarth.db"     env:"CONTACTS_SQLITE_PATH"`
	RedisAddr       string `envDefault:"localhost:6379"   env:"REDIS_ADDR"`
	RedisUsername   string `envDefault:""                 env:"REDIS_USERNAME"`
	RedisPassword   string `envDefault:""                 env:"REDIS_PASSWORD"`
	RedisDB         int    `envDefault:"0"                env:"REDIS_DB"`
	RedisPrefix     string `envDefault:""                 env:"REDIS_PREFIX"`

	// SMS
	SMSMode              string `envDefault:"intent"   env:"SMS_MODE"`
	SMSOpener            string `envDefault:"xdg-open" env:"SMS_OPENER"`
	SMSGatewayURL        string `envDefault:""         env:"SMS_GATEWAY_URL"`
	SMSGatewaySecret     string `envDefault:""         env:"SMS_GATEWAY_SECRET"`
	SMSAllowPrivateIPs   bool   `envDefault:"false"    env:"SMS_ALLOW_PRIVATE_IPS"`
	SMSMaxRetries        int    `envDefault:"3"        env:"SMS_MAX_RETRIES"`
	SMSTimeoutSec        int    `envDefault:"10"       env:"SMS_TIMEOUT_SEC"`
	SMSBackoffInitialSec int    `envDefault:"1"        env:"SMS_BACKOFF_INITIAL_SEC"`
	SMSBackoffMaxSec     int    `envDefault:"30"       env:"SMS_BACKOFF_MAX_SEC"`
	CBFailThreshold      int    `envDefault:"5"        env:"CB_FAILURE_THRESHOLD"`
	CBResetTimeoutSec    int    `envDefault:"60"       env:"CB_RESET_TIMEOUT_SEC"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// BackendConfig is the parameter map handed to every backend factory.
// Empty values fall through to the backend's own defaults.
func (c *AssistantConfig) BackendConfig() map[string]string {
	return map[string]string{
		"gemini_api_key":     c.GeminiAPIKey,
		"gemini_base_url":    c.GeminiBaseURL,
		"openai_api_key":     c.OpenAIAPIKey,
		"openai_base_url":    c.OpenAIBaseURL,
		"ollama_base_url":    c.OllamaBaseURL,
		"google_api_key":     c.GoogleAPIKey,
		"elevenlabs_api_key": c.ElevenLabsAPIKey,
		"piper_binary_path":  c.PiperBinaryPath,
		"piper_model_path":   c.PiperModelPath,
		"speed_model":        c.VisionSpeedModel,
		"accuracy_model":     c.VisionAccuracyModel,
		"temperature":        strconv.FormatFloat(c.VisionTemperature, 'f', -1, 64),
		"language":           c.TTSLanguage,
	}
}

// TextConfig is BackendConfig with the text model applied.
func (c *AssistantConfig) TextConfig() map[string]string {
	m := c.BackendConfig()
	m["model"] = c.TextModel
	return m
}

// TTSConfig is BackendConfig with the speech model and voice applied.
func (c *AssistantConfig) TTSConfig() map[string]string {
	m := c.BackendConfig()
	m["model"] = c.TTSModel
	m["voice"] = c.TTSVoice
	return m
}

// Guard returns the breaker and limiter settings for backend calls.
func (c *AssistantConfig) Guard() engine.GuardConfig {
	return engine.GuardConfig{
		FailureThreshold:  uint32(max(c.BackendFailureThreshold, 0)),
		ResetTimeout:      seconds(c.BackendResetTimeoutSec),
		RequestsPerMinute: c.BackendRequestsPerMinute,
	}
}

// Capture returns the capture device settings.
func (c *AssistantConfig) Capture() capture.Config {
	return capture.Config{
		Binary:       c.CaptureBinary,
		InputFormat:  c.CaptureInputFormat,
		Device:       c.CaptureDevice,
		Facing:       c.CaptureFacing,
		FrameRate:    c.CaptureFrameRate,
		Quality:      c.CaptureJPEGQuality,
		MaxWidth:     c.CaptureMaxWidth,
		StartTimeout: seconds(c.CaptureStartTimeoutSec),
	}
}

// Pipeline returns the analysis pipeline options.
func (c *AssistantConfig) Pipeline() pipeline.Options {
	return pipeline.Options{
		VisionTimeout:   seconds(c.VisionTimeoutSec),
		SpeechTimeout:   seconds(c.SpeechTimeoutSec),
		PlaybackTimeout: seconds(c.PlaybackTimeoutSec),
		LiveInterval:    time.Duration(c.LiveIntervalMs) * time.Millisecond,
	}
}

// Alert returns the alert coordinator options.
func (c *AssistantConfig) Alert() alert.Options {
	return alert.Options{
		Countdown:  c.AlertCountdown,
		Tick:       time.Duration(c.AlertTickMs) * time.Millisecond,
		GeoTimeout: seconds(c.GeoTimeoutSec),
		AutoNotify: c.AlertAutoNotify,
		MaxHistory: c.AlertMaxHistory,
	}
}

// Contacts returns the contact store settings. pool backs the datastore
// backend and may be nil for the others.
func (c *AssistantConfig) Contacts(pool contacts.DBPool) contacts.Config {
	return contacts.Config{
		Backend:       c.ContactsBackend,
		RedisAddr:     c.RedisAddr,
		RedisUsername: c.RedisUsername,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		RedisPrefix:   c.RedisPrefix,
		SQLitePath:    c.SQLitePath,
		Pool:          pool,
	}
}

// Deliverer returns the SMS gateway delivery settings.
func (c *AssistantConfig) Deliverer() sms.DelivererConfig {
	return sms.DelivererConfig{
		GatewayURL:      c.SMSGatewayURL,
		Secret:          c.SMSGatewaySecret,
		MaxRetries:      c.SMSMaxRetries,
		Timeout:         seconds(c.SMSTimeoutSec),
		BackoffInitial:  seconds(c.SMSBackoffInitialSec),
		BackoffMax:      seconds(c.SMSBackoffMaxSec),
		CBFailThreshold: uint32(max(c.CBFailThreshold, 0)),
		CBResetTimeout:  seconds(c.CBResetTimeoutSec),
	}
}
