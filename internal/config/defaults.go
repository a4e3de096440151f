package config

const (
	defaultOutputDir      = "~/audiosift/extracted"
	defaultLogDir         = "~/.local/share/audiosift/logs"
	defaultHistoryDB      = "~/.local/share/audiosift/history.db"
	defaultThreads        = 16
	defaultClassification = ClassificationDuration
	defaultScanWindowKiB  = 512
	defaultMinFileBytes   = 10
	defaultFFmpegBinary   = "ffmpeg"
	defaultFFprobeBinary  = "ffprobe"
	defaultProbeTimeout   = 15
	defaultConvertTimeout = 120
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Classification mode values accepted by extract.classification.
const (
	ClassificationSize     = "size"
	ClassificationDuration = "duration"
)

// Thread count bounds enforced by Validate.
const (
	MinThreads = 1
	MaxThreads = 128
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			HistoryDB: defaultHistoryDB,
		},
		Extract: Extract{
			Threads:        defaultThreads,
			Classification: defaultClassification,
			ScanWindowKiB:  defaultScanWindowKiB,
			MinFileBytes:   defaultMinFileBytes,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			ProbeTimeout:   defaultProbeTimeout,
			ConvertTimeout: defaultConvertTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
