package config

type MainArchiverConfig struct {
	General  GeneralConfig  `yaml:"archiver"`
	Archives ArchivesConfig `yaml:"archives"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Sentry   SentryConfig   `yaml:"sentry"`
}

func NewDefaultMainConfig() MainArchiverConfig {
	return MainArchiverConfig{
		General: GeneralConfig{
			LogDirectory: "logs",
			LogColors:    false,
			JsonLogs:     false,
			LogLevel:     "info",
		},
		Archives: ArchivesConfig{
			ChunkSize:              3,
			CompressionLevel:       6,
			MaxConsecutiveFailures: 0, // disabled: skip failed files and keep going
		},
		Fetch: FetchConfig{
			MaxSizeBytes:        104857600, // 100mb
			FailureCacheMinutes: 15,
			UserAgent:           "eventpix-media-archiver",
		},
		Metrics: MetricsConfig{
			Enabled:     false,
			BindAddress: "localhost",
			Port:        9000,
		},
		Sentry: SentryConfig{
			Enabled:     false,
			Dsn:         "not supplied",
			Environment: "",
			Debug:       false,
		},
	}
}
