package config

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Etherscan EtherscanConfig `yaml:"etherscan"`
	Crawl     CrawlConfig     `yaml:"crawl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// EtherscanConfig holds upstream ledger API settings.
type EtherscanConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	ChainID        int    `yaml:"chain_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxAttempts    int    `yaml:"max_attempts"`
}

// CrawlConfig bounds the segmented-crawl engine.
type CrawlConfig struct {
	QueryCap          int   `yaml:"query_cap"`
	MinWindowBlocks   int64 `yaml:"min_window_blocks"`
	MaxWindowBlocks   int64 `yaml:"max_window_blocks"`
	SafetyMaxSegments int   `yaml:"safety_max_segments"`
	DefaultPageSize   int   `yaml:"default_page_size"`
	JobRetention      int   `yaml:"job_retention"`
	ResultRetention   int   `yaml:"result_retention"`
	PreviewLimit      int   `yaml:"preview_limit"`
}
