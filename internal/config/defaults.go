package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:   "~/.frontdesk",
			LogLevel:  "info",
			LogFormat: "text",
		},
		Server: ServerConfig{
			Host:                   "127.0.0.1",
			Port:                   8080,
			APIPrefix:              "/api/v1",
			RequestTimeoutSeconds:  30,
			ShutdownTimeoutSeconds: 10,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "~/.frontdesk/frontdesk.db",
		},
		Dedupe: DedupeConfig{
			Backend:  "memory",
			TTLHours: 24,
			Redis: RedisConfig{
				Addr:      "127.0.0.1:6379",
				KeyPrefix: "frontdesk:dedupe:",
			},
		},
		Channels: ChannelsConfig{
			WhatsApp:  WhatsAppConfig{ChannelConfig: ChannelConfig{Enabled: true}},
			Instagram: ChannelConfig{Enabled: true},
			Email:     ChannelConfig{Enabled: true},
			Review:    ChannelConfig{Enabled: true},
		},
		Feed: FeedConfig{
			Enabled:     true,
			HistorySize: 1000,
			QueueSize:   256,
		},
		Escalation: EscalationConfig{
			MinPriority: "critical",
		},
		Publish: PublishConfig{
			Group: "frontdesk",
			Topic: "frontdesk-routed",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			ServiceName: "frontdesk",
			SampleRatio: 1,
		},
	}
}
