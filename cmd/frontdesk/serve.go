package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"frontdesk/internal/bus"
	"frontdesk/internal/config"
	"frontdesk/internal/dedupe"
	"frontdesk/internal/delivery"
	"frontdesk/internal/domain"
	"frontdesk/internal/feed"
	"frontdesk/internal/gateway"
	"frontdesk/internal/metrics"
	"frontdesk/internal/notify"
	"frontdesk/internal/publish"
	"frontdesk/internal/routing"
	"frontdesk/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook and REST server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig(false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", "err", err)
		}
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	dd, closeDedupe, err := newDedupe(ctx, cfg.Dedupe)
	if err != nil {
		return err
	}
	defer closeDedupe()

	events := bus.NewEventBus(logger, cfg.Feed.HistorySize)

	var m *metrics.Metrics
	pcfg := routing.Config{
		Dedupe:    dd,
		Persister: st,
		Events:    events,
		Logger:    logger,
	}
	var outbound delivery.OutboundRecorder
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Runtime)
		pcfg.Metrics = m
		outbound = m
	}
	pipeline := routing.New(pcfg)

	wa := delivery.NewWhatsApp(delivery.WhatsAppConfig{
		AccessToken:   cfg.Channels.WhatsApp.AccessToken,
		PhoneNumberID: cfg.Channels.WhatsApp.PhoneNumberID,
		BaseURL:       cfg.Channels.WhatsApp.BaseURL,
		Logger:        logger,
	})
	dispatcher := delivery.NewDispatcher(events, outbound, logger)
	dispatcher.Register(wa)

	// Slow subscribers run behind their own queue so Emit never blocks ingestion.
	var queues []*bus.Queue
	subscribe := func(name string, h bus.EventHandler) {
		q := bus.NewQueue(name, cfg.Feed.QueueSize, h, logger)
		events.On(bus.EventMessageRouted, q.Enqueue)
		go q.Run(ctx)
		queues = append(queues, q)
	}
	defer func() {
		for _, q := range queues {
			q.Close()
		}
	}()

	srvCfg := gateway.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		APIPrefix:       cfg.Server.APIPrefix,
		RequestTimeout:  time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		Channels:        channelAuth(cfg.Channels),
		Pipeline:        pipeline,
		Store:           st,
		Dispatcher:      dispatcher,
		WhatsApp:        wa,
		MetricsPath:     cfg.Metrics.Path,
		Version:         version,
		Logger:          logger,
	}

	if cfg.Feed.Enabled {
		fcfg := feed.Config{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			History:        events,
			Logger:         logger,
		}
		if m != nil {
			fcfg.Metrics = m
		}
		hub := feed.NewHub(fcfg)
		defer hub.Close()
		subscribe("feed", hub.Broadcast)
		srvCfg.Feed = hub
	}

	if cfg.Escalation.Enabled {
		minPriority, _ := domain.ParsePriority(cfg.Escalation.MinPriority)
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:       cfg.Escalation.Token,
			ChatIDs:     cfg.Escalation.ChatIDs,
			MinPriority: minPriority,
			ParseMode:   cfg.Escalation.ParseMode,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("escalation: %w", err)
		}
		subscribe("escalation", tg.Notify)
		logger.Info("escalation enabled", "chats", len(cfg.Escalation.ChatIDs), "min_priority", minPriority)
	}

	if cfg.Publish.Enabled {
		pub, err := publish.NewRocketMQ(publish.RocketMQConfig{
			NameServers: cfg.Publish.NameServers,
			Group:       cfg.Publish.Group,
			Topic:       cfg.Publish.Topic,
			AccessKey:   cfg.Publish.AccessKey,
			SecretKey:   cfg.Publish.SecretKey,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		defer pub.Close()
		subscribe("publish", pub.Handle)
		logger.Info("publishing routed messages", "topic", cfg.Publish.Topic)
	}

	if m != nil {
		srvCfg.Metrics = m.Handler()
	}

	logger.Info("frontdesk starting",
		"version", version,
		"storage", st.Driver(),
		"dedupe", cfg.Dedupe.Backend,
		"whatsapp_simulated", wa.Simulated(),
	)
	return gateway.New(srvCfg).Run(ctx)
}

// newDedupe returns nil (not a typed nil) when dedupe is off.
func newDedupe(ctx context.Context, cfg config.DedupeConfig) (dedupe.Store, func(), error) {
	ttl := time.Duration(cfg.TTLHours) * time.Hour
	switch cfg.Backend {
	case "off":
		logger.Warn("dedupe disabled: redelivered webhooks will be stored twice")
		return nil, func() {}, nil
	case "redis":
		rs, err := dedupe.NewRedis(dedupe.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       ttl,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := rs.Ping(ctx); err != nil {
			logger.Warn("redis unreachable at startup, dedupe fails open until it recovers", "addr", cfg.Redis.Addr, "err", err)
		}
		return rs, func() { rs.Close() }, nil
	default:
		return dedupe.NewMemory(ttl), func() {}, nil
	}
}

func channelAuth(c config.ChannelsConfig) map[domain.Channel]gateway.ChannelAuth {
	out := make(map[domain.Channel]gateway.ChannelAuth, len(domain.Channels()))
	for _, ch := range domain.Channels() {
		cc, ok := c.Get(ch.String())
		if !ok {
			continue
		}
		out[ch] = gateway.ChannelAuth{
			Enabled:     cc.Enabled,
			VerifyToken: cc.VerifyToken,
			AppSecret:   cc.AppSecret,
		}
	}
	return out
}
