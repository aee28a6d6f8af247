package config

type GeneralConfig struct {
	LogDirectory string `yaml:"logDirectory"`
	LogColors    bool   `yaml:"logColors"`
	JsonLogs     bool   `yaml:"jsonLogs"`
	LogLevel     string `yaml:"logLevel"`
}

type ArchivesConfig struct {
	ChunkSize              int `yaml:"chunkSize"`
	CompressionLevel       int `yaml:"compressionLevel"`
	MaxConsecutiveFailures int `yaml:"maxConsecutiveFailures"`
}

type FetchConfig struct {
	MaxSizeBytes        int64  `yaml:"maxSizeBytes"`
	FailureCacheMinutes int    `yaml:"failureCacheMinutes"`
	UserAgent           string `yaml:"userAgent"`
}

type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bindAddress"`
	Port        int    `yaml:"port"`
}

type SentryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dsn         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
	Debug       bool   `yaml:"debug"`
}
