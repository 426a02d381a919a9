package config

const (
	defaultConfigPath     = "~/.config/lrcforge/config.toml"
	defaultLogDir         = "~/.local/share/lrcforge/logs"
	defaultModelDir       = "~/.local/share/lrcforge/models"
	defaultAPIBind        = "127.0.0.1:8765"
	defaultModel          = "large-v3-turbo"
	defaultLanguage       = "zh"
	defaultPrompt         = "歌词 简体中文"
	defaultThreads        = 8
	defaultWhisperBinary  = "whisper-cli"
	defaultFFmpegBinary   = "ffmpeg"
	defaultHistorySize    = 2000
	defaultOutboxSize     = 2000
	defaultPollIntervalMS = 100
	defaultPhase2Workers  = 2
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"

	minHistorySize    = 2000
	minOutboxSize     = 2000
	maxPollIntervalMS = 100
	maxPhase2Workers  = 16
)

// SupportedModels lists the whisper model names accepted for transcription.model.
var SupportedModels = []string{
	"tiny", "tiny.en",
	"base", "base.en",
	"small", "small.en",
	"medium", "medium.en",
	"large-v1", "large-v2", "large-v3",
	"large-v3-turbo",
}

// IsSupportedModel reports whether name is one of SupportedModels.
func IsSupportedModel(name string) bool {
	for _, m := range SupportedModels {
		if m == name {
			return true
		}
	}
	return false
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:   defaultLogDir,
			ModelDir: defaultModelDir,
		},
		Server: Server{
			APIBind: defaultAPIBind,
		},
		Transcription: Transcription{
			Model:         defaultModel,
			Language:      defaultLanguage,
			Prompt:        defaultPrompt,
			Threads:       defaultThreads,
			WhisperBinary: defaultWhisperBinary,
			FFmpegBinary:  defaultFFmpegBinary,
		},
		Engine: Engine{
			HistorySize:    defaultHistorySize,
			OutboxSize:     defaultOutboxSize,
			PollIntervalMS: defaultPollIntervalMS,
			Phase2Workers:  defaultPhase2Workers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
