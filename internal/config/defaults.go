package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/suggest/data/db/scenarios.db"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/suggest/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 128
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "ivf"
	}
	if cfg.Index.NumLists == 0 {
		cfg.Index.NumLists = 100
	}
	if cfg.Index.NumProbes == 0 {
		cfg.Index.NumProbes = min(8, cfg.Index.NumLists)
	}
	if cfg.Index.TrainSampleSize == 0 {
		cfg.Index.TrainSampleSize = 5000
	}
	if cfg.Index.Seed == 0 {
		cfg.Index.Seed = 42
	}
	if cfg.Sync.Channel == "" {
		cfg.Sync.Channel = "scenario_changes"
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 200
	}
	if cfg.Sync.PollInterval == 0 {
		cfg.Sync.PollInterval = time.Second
	}
	if cfg.Sync.PollRate == 0 {
		cfg.Sync.PollRate = 20
	}
	if cfg.Sync.RetryInitial == 0 {
		cfg.Sync.RetryInitial = 500 * time.Millisecond
	}
	if cfg.Sync.RetryMax == 0 {
		cfg.Sync.RetryMax = 30 * time.Second
	}
	if cfg.Sync.RetryAttempts == 0 {
		cfg.Sync.RetryAttempts = 5
	}
	if cfg.Sync.PruneSchedule == "" {
		cfg.Sync.PruneSchedule = "@hourly"
	}
	if cfg.Sync.ChangeRetention == 0 {
		cfg.Sync.ChangeRetention = 24 * time.Hour
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 5
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 50
	}
}
