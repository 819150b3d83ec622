package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Etherscan.ChainID == 0 {
		cfg.Etherscan.ChainID = 1
	}
	if cfg.Etherscan.TimeoutSeconds == 0 {
		cfg.Etherscan.TimeoutSeconds = 60
	}
	if cfg.Etherscan.MaxAttempts == 0 {
		cfg.Etherscan.MaxAttempts = 3
	}
	if cfg.Crawl.QueryCap == 0 {
		cfg.Crawl.QueryCap = 10000
	}
	if cfg.Crawl.MinWindowBlocks == 0 {
		cfg.Crawl.MinWindowBlocks = 1
	}
	if cfg.Crawl.MaxWindowBlocks == 0 {
		cfg.Crawl.MaxWindowBlocks = 200000
	}
	if cfg.Crawl.SafetyMaxSegments == 0 {
		cfg.Crawl.SafetyMaxSegments = 5000
	}
	if cfg.Crawl.DefaultPageSize == 0 {
		cfg.Crawl.DefaultPageSize = 200
	}
	if cfg.Crawl.JobRetention == 0 {
		cfg.Crawl.JobRetention = 20
	}
	if cfg.Crawl.ResultRetention == 0 {
		cfg.Crawl.ResultRetention = 10
	}
	if cfg.Crawl.PreviewLimit == 0 {
		cfg.Crawl.PreviewLimit = 200
	}

	return &cfg, nil
}
