package conf

import (
	"os"
	"path/filepath"

	"github.com/mandersson1024/intonation-toy-sub003/internal/errors"
)

// validAlgorithms are the recognized pitch.algorithm values.
var validAlgorithms = map[string]bool{
	"autocorrelation": true,
	"yin":             true,
	"auto":            true,
}

func configError(msg string, key string, value any) error {
	return errors.Newf("%s", msg).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("key", key).
		Context("value", value).
		Build()
}

// Validate rejects invalid settings synchronously. Values are never
// clamped: a bad value is an error, not a silent adjustment.
func (s *Settings) Validate() error {
	if s.Audio.SampleRate == 0 {
		return configError("sample rate must be positive", "audio.samplerate", s.Audio.SampleRate)
	}
	if s.Audio.Channels == 0 {
		return configError("channel count must be positive", "audio.channels", s.Audio.Channels)
	}
	if s.Audio.BufferSize <= 0 {
		return configError("buffer size must be positive", "audio.buffersize", s.Audio.BufferSize)
	}
	if s.Audio.PoolMaxActive <= 0 {
		return configError("pool active limit must be positive", "audio.poolmaxactive", s.Audio.PoolMaxActive)
	}
	if s.Audio.PoolCeilingBytes < 0 {
		return configError("pool memory ceiling must not be negative", "audio.poolceilingbytes", s.Audio.PoolCeilingBytes)
	}
	if s.Audio.FramerRingQuanta <= 0 {
		return configError("framer ring size must be positive", "audio.framerringquanta", s.Audio.FramerRingQuanta)
	}

	if s.Pipeline.TargetLatencyMs <= 0 {
		return configError("target latency must be positive", "pipeline.targetlatencyms", s.Pipeline.TargetLatencyMs)
	}
	if s.Pipeline.EscalationThreshold <= 0 {
		return configError("escalation threshold must be positive", "pipeline.escalationthreshold", s.Pipeline.EscalationThreshold)
	}
	if s.Pipeline.LatencyWindowSize <= 0 {
		return configError("latency window size must be positive", "pipeline.latencywindowsize", s.Pipeline.LatencyWindowSize)
	}

	if !validAlgorithms[s.Pitch.Algorithm] {
		return configError("unknown pitch algorithm", "pitch.algorithm", s.Pitch.Algorithm)
	}
	if s.Pitch.ConfidenceThreshold < 0 || s.Pitch.ConfidenceThreshold > 1 {
		return configError("confidence threshold must be in [0,1]", "pitch.confidencethreshold", s.Pitch.ConfidenceThreshold)
	}
	if s.Pitch.MinFrequency <= 0 {
		return configError("minimum frequency must be positive", "pitch.minfrequency", s.Pitch.MinFrequency)
	}
	if s.Pitch.MaxFrequency <= s.Pitch.MinFrequency {
		return configError("maximum frequency must exceed minimum frequency", "pitch.maxfrequency", s.Pitch.MaxFrequency)
	}
	if s.Pitch.HistorySize <= 0 {
		return configError("history size must be positive", "pitch.historysize", s.Pitch.HistorySize)
	}

	if s.Events.QueueCapacityPerLane <= 0 {
		return configError("queue capacity per lane must be positive", "events.queuecapacityperlane", s.Events.QueueCapacityPerLane)
	}
	if s.Events.HandlerBudgetMs < 0 {
		return configError("handler budget must not be negative", "events.handlerbudgetms", s.Events.HandlerBudgetMs)
	}

	switch s.Log.Level {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return configError("unknown log level", "log.level", s.Log.Level)
	}

	if s.Monitor.Enabled && s.Monitor.IntervalSec <= 0 {
		return configError("monitor interval must be positive", "monitor.intervalsec", s.Monitor.IntervalSec)
	}

	return nil
}

// homeConfigDir returns the per-user config directory for the application.
func homeConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "intone"), nil
}
