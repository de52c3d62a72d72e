package config

const (
	defaultConfigPath     = "~/.config/camsync/config.toml"
	defaultDataDir        = "~/captures"
	defaultWorkDir        = "~/.local/share/camsync"
	defaultOutputDir      = "~/camsync/frames"
	defaultLogDir         = "~/.local/share/camsync/logs"
	defaultCameraFilter   = "cam"
	defaultLogExtension   = ".txt"
	defaultVideoExtension = ".mp4"
	defaultThreshold      = 50000
	defaultImageFormat    = "png"
	defaultFFmpegBinary   = "ffmpeg"
	defaultExtractTimeout = 120
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Dataset: Dataset{
			CameraFilter:   defaultCameraFilter,
			LogExtension:   defaultLogExtension,
			VideoExtension: defaultVideoExtension,
		},
		Sync: Sync{
			Threshold: defaultThreshold,
		},
		Extract: Extract{
			Enabled:        true,
			ImageFormat:    defaultImageFormat,
			FFmpegBinary:   defaultFFmpegBinary,
			TimeoutSeconds: defaultExtractTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
