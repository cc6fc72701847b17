package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Application config structure
type AppConfig struct {
	Name        string `mapstructure:"service_name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Host        string `mapstructure:"host" validate:"required"`
	Port        int    `mapstructure:"http_port" validate:"required,gt=0"`
	LogLevel    string `mapstructure:"log_level" validate:"required"`
	LogPath     string `mapstructure:"log_path"`

	// Session admission and lifecycle
	MaxConcurrentSessions int `mapstructure:"max_concurrent_sessions" validate:"gt=0"`
	IdleTimeoutSec        int `mapstructure:"idle_timeout_sec" validate:"gt=0"`

	// Video pipeline
	ConfidenceThreshold  float64 `mapstructure:"confidence_threshold" validate:"gte=0,lte=1"`
	MaxFrameWidth        int     `mapstructure:"max_frame_width" validate:"gt=0"`
	MaxFrameHeight       int     `mapstructure:"max_frame_height" validate:"gt=0"`
	MaxFrameSizeBytes    int64   `mapstructure:"max_frame_size_bytes" validate:"gt=0"`
	BlurWarningThreshold float64 `mapstructure:"blur_warning_threshold" validate:"gte=0"`
	VideoSampleFPS       int     `mapstructure:"video_sample_fps" validate:"gte=0"`

	// Inference backends
	InferenceRemoteURL        string   `mapstructure:"inference_remote_url"`
	InferenceRemoteKey        string   `mapstructure:"inference_remote_key"`
	InferenceRemoteTimeoutSec int      `mapstructure:"inference_remote_timeout_sec" validate:"gt=0"`
	InferenceLocalEnabled     bool     `mapstructure:"inference_local_enabled"`
	InferenceLocalWeightsPath string   `mapstructure:"inference_local_weights_path"`
	InferenceLocalClasses     []string `mapstructure:"inference_local_classes"`
	OnnxRuntimeLibPath        string   `mapstructure:"onnx_runtime_lib_path"`
	DemoMode                  bool     `mapstructure:"demo_mode"`

	// Acoustic pipeline
	AudioWindowSeconds float64 `mapstructure:"audio_window_seconds" validate:"gt=0"`
	AudioBatchSize     int     `mapstructure:"audio_batch_size" validate:"gt=0"`
	AudioSampleRate    int     `mapstructure:"audio_sample_rate" validate:"gt=0"`
	EmotionModelPath   string  `mapstructure:"emotion_model_path"`
	VadModelPath       string  `mapstructure:"vad_model_path"`

	// Event fan-out (best-effort HTTP forwarding of emitted events)
	EventForwardURL string `mapstructure:"event_forward_url"`
	EventForwardKey string `mapstructure:"event_forward_key"`

	// WebRTC
	StunServers []string `mapstructure:"stun_servers" validate:"min=1"`
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env varaibles.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	// keeping watch on https://github.com/spf13/viper/issues/188

	v.SetDefault("SERVICE_NAME", "triage-api")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PATH", "")

	v.SetDefault("MAX_CONCURRENT_SESSIONS", 10)
	v.SetDefault("IDLE_TIMEOUT_SEC", 30)

	v.SetDefault("CONFIDENCE_THRESHOLD", 0.5)
	v.SetDefault("MAX_FRAME_WIDTH", 1280)
	v.SetDefault("MAX_FRAME_HEIGHT", 720)
	v.SetDefault("MAX_FRAME_SIZE_BYTES", 10*1024*1024)
	v.SetDefault("BLUR_WARNING_THRESHOLD", 100.0)
	v.SetDefault("VIDEO_SAMPLE_FPS", 0)

	v.SetDefault("INFERENCE_REMOTE_URL", "")
	v.SetDefault("INFERENCE_REMOTE_KEY", "")
	v.SetDefault("INFERENCE_REMOTE_TIMEOUT_SEC", 10)
	v.SetDefault("INFERENCE_LOCAL_ENABLED", false)
	v.SetDefault("INFERENCE_LOCAL_WEIGHTS_PATH", "")
	v.SetDefault("INFERENCE_LOCAL_CLASSES", "abrasion,bruise,burn,cut,laceration,puncture,ulcer")
	v.SetDefault("ONNX_RUNTIME_LIB_PATH", "")
	v.SetDefault("DEMO_MODE", false)

	v.SetDefault("AUDIO_WINDOW_SECONDS", 1.0)
	v.SetDefault("AUDIO_BATCH_SIZE", 10)
	v.SetDefault("AUDIO_SAMPLE_RATE", 48000)
	v.SetDefault("EMOTION_MODEL_PATH", "")
	v.SetDefault("VAD_MODEL_PATH", "")

	v.SetDefault("EVENT_FORWARD_URL", "")
	v.SetDefault("EVENT_FORWARD_KEY", "")

	v.SetDefault("STUN_SERVERS", "stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302")
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}

// RemoteInferenceConfigured reports whether the remote wound-detection
// backend is usable: both the URL and the credential must be present.
func (c *AppConfig) RemoteInferenceConfigured() bool {
	return strings.TrimSpace(c.InferenceRemoteURL) != "" && strings.TrimSpace(c.InferenceRemoteKey) != ""
}

// IdleTimeout returns the session idle timeout as a duration.
func (c *AppConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}

// RemoteInferenceTimeout returns the remote backend request timeout.
func (c *AppConfig) RemoteInferenceTimeout() time.Duration {
	return time.Duration(c.InferenceRemoteTimeoutSec) * time.Second
}

// MaxResolution renders the frame ceiling as "WxH" for the session_started
// config block.
func (c *AppConfig) MaxResolution() string {
	return fmt.Sprintf("%dx%d", c.MaxFrameWidth, c.MaxFrameHeight)
}
