// Package conf loads and validates the audio core configuration using
// viper, with defaults, an optional YAML config file and INTONE_
// environment variable overrides.
package conf

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/mandersson1024/intonation-toy-sub003/internal/errors"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// INTONE_PIPELINE_TARGETLATENCYMS=40.
const EnvPrefix = "INTONE"

// Settings holds the full configuration surface of the audio core.
type Settings struct {
	Audio    AudioSettings    `mapstructure:"audio"`
	Pipeline PipelineSettings `mapstructure:"pipeline"`
	Pitch    PitchSettings    `mapstructure:"pitch"`
	Events   EventSettings    `mapstructure:"events"`
	Log      LogSettings      `mapstructure:"log"`
	Metrics  MetricsSettings  `mapstructure:"metrics"`
	Monitor  MonitorSettings  `mapstructure:"monitor"`
}

// AudioSettings configures the capture format and the buffer pool.
type AudioSettings struct {
	SampleRate       uint32 `mapstructure:"samplerate"`       // capture sample rate in Hz
	Channels         uint8  `mapstructure:"channels"`         // capture channel count
	BufferSize       int    `mapstructure:"buffersize"`       // frames per analysis buffer
	PoolMaxActive    int    `mapstructure:"poolmaxactive"`    // max buffers out of the pool at once
	PoolCeilingBytes int64  `mapstructure:"poolceilingbytes"` // free-list memory ceiling
	FramerRingQuanta int    `mapstructure:"framerringquanta"` // capture quanta the framer ring can hold
}

// PipelineSettings configures the coordinator and the latency budget.
type PipelineSettings struct {
	TargetLatencyMs     float32 `mapstructure:"targetlatencyms"`     // end-to-end budget
	EscalationThreshold int     `mapstructure:"escalationthreshold"` // consecutive over-budget ticks before a High alert
	AlertSuppressionSec int     `mapstructure:"alertsuppressionsec"` // TTL for repeated High alerts per stage
	LatencyWindowSize   int     `mapstructure:"latencywindowsize"`   // per-stage rolling window length
}

// PitchSettings configures the detection engine.
type PitchSettings struct {
	Algorithm           string  `mapstructure:"algorithm"`           // autocorrelation | yin | auto
	ConfidenceThreshold float32 `mapstructure:"confidencethreshold"` // inclusive pass threshold in [0,1]
	MinFrequency        float64 `mapstructure:"minfrequency"`        // Hz
	MaxFrequency        float64 `mapstructure:"maxfrequency"`        // Hz
	HistorySize         int     `mapstructure:"historysize"`         // rolling results kept per algorithm for Auto
}

// EventSettings configures the priority event bus.
type EventSettings struct {
	QueueCapacityPerLane int `mapstructure:"queuecapacityperlane"` // bounded capacity of each non-critical lane
	HandlerBudgetMs      int `mapstructure:"handlerbudgetms"`      // time budget per queued handler invocation
}

// LogSettings configures structured logging.
type LogSettings struct {
	Level      string `mapstructure:"level"` // debug | info | warn | error
	File       string `mapstructure:"file"`  // optional JSON log file, rotated
	MaxSizeMB  int    `mapstructure:"maxsizemb"`
	MaxBackups int    `mapstructure:"maxbackups"`
	MaxAgeDays int    `mapstructure:"maxagedays"`
}

// MetricsSettings configures the optional prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"` // host:port for the /metrics listener
}

// MonitorSettings configures the host resource monitor.
type MonitorSettings struct {
	Enabled     bool    `mapstructure:"enabled"`
	IntervalSec int     `mapstructure:"intervalsec"`
	CPUWarnPct  float64 `mapstructure:"cpuwarnpct"`
	MemWarnPct  float64 `mapstructure:"memwarnpct"`
}

// setDefaults registers the default value for every recognized option.
func setDefaults(v *viper.Viper) {
	v.SetDefault("audio.samplerate", 44100)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.buffersize", 1024)
	v.SetDefault("audio.poolmaxactive", 64)
	v.SetDefault("audio.poolceilingbytes", 8*1024*1024)
	v.SetDefault("audio.framerringquanta", 16)

	v.SetDefault("pipeline.targetlatencyms", 50.0)
	v.SetDefault("pipeline.escalationthreshold", 3)
	v.SetDefault("pipeline.alertsuppressionsec", 30)
	v.SetDefault("pipeline.latencywindowsize", 128)

	v.SetDefault("pitch.algorithm", "auto")
	v.SetDefault("pitch.confidencethreshold", 0.6)
	v.SetDefault("pitch.minfrequency", 60.0)
	v.SetDefault("pitch.maxfrequency", 1600.0)
	v.SetDefault("pitch.historysize", 16)

	v.SetDefault("events.queuecapacityperlane", 64)
	v.SetDefault("events.handlerbudgetms", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxsizemb", 100)
	v.SetDefault("log.maxbackups", 3)
	v.SetDefault("log.maxagedays", 28)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "localhost:9090")

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.intervalsec", 10)
	v.SetDefault("monitor.cpuwarnpct", 85.0)
	v.SetDefault("monitor.memwarnpct", 90.0)
}

// Load reads the configuration from defaults, an optional YAML config file
// and environment overrides, then validates it. configPath may be empty, in
// which case config.yaml is searched in the working directory and
// $HOME/.config/intone; a missing file is not an error.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("config_path", configPath).
				Build()
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := homeConfigDir(); err == nil {
			v.AddConfigPath(home)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.New(err).
					Component("conf").
					Category(errors.CategoryConfiguration).
					Build()
			}
			// No config file is fine, defaults apply.
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}

// Default returns the built-in settings without touching files or the
// environment. Used by tests and as the CLI fallback.
func Default() *Settings {
	v := viper.New()
	setDefaults(v)
	settings := &Settings{}
	// Unmarshal of pure defaults cannot fail.
	if err := v.Unmarshal(settings); err != nil {
		panic(fmt.Sprintf("conf: default settings unmarshal: %v", err))
	}
	return settings
}
