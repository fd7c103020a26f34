package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"frontdesk/internal/config"
	"frontdesk/internal/dedupe"
	"frontdesk/internal/domain"
	"frontdesk/internal/publish"
	"frontdesk/internal/store"
)

type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	fmt.Printf("  [PASS] %-22s %s\n", check, detail)
	r.passed++
}

func (r *doctorReport) fail(check, detail string) {
	fmt.Printf("  [FAIL] %-22s %s\n", check, detail)
	r.failed++
}

func (r *doctorReport) warn(check, detail string) {
	fmt.Printf("  [WARN] %-22s %s\n", check, detail)
	r.warned++
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the frontdesk installation",
		Long: `Verifies that the configuration, database, dedupe backend, channel
credentials and listen port are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("frontdesk doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			r := &doctorReport{}
			if _, err := os.Stat(cfgPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'frontdesk init' to create a default configuration.\n")
				return nil
			}
			r.pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.finish()
			}
			r.pass("Config validation", "valid")

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			checkStorage(ctx, r, cfg)
			checkDedupe(ctx, r, cfg.Dedupe)
			checkChannels(r, cfg.Channels)
			checkOutbound(r, cfg)

			addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
			if err := checkPort(addr); err != nil {
				r.warn("Listen address", fmt.Sprintf("%s may be in use: %v", addr, err))
			} else {
				r.pass("Listen address", addr+" available")
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			return r.finish()
		},
	}
}

func (r *doctorReport) finish() error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		fmt.Printf("\nPlease fix the failed checks before running frontdesk.\n")
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned > 0 {
		fmt.Printf("\nfrontdesk should work but consider fixing the warnings.\n")
	} else {
		fmt.Printf("\nAll checks passed! frontdesk is ready to serve.\n")
	}
	return nil
}

func checkStorage(ctx context.Context, r *doctorReport, cfg *config.Config) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		r.fail("Database", err.Error())
		return
	}
	defer st.Close()

	if err := st.Ping(ctx); err != nil {
		r.fail("Database", fmt.Sprintf("cannot ping: %v", err))
		return
	}
	v, err := store.SchemaVersion(ctx, st.DB())
	if err != nil {
		r.fail("Database schema", err.Error())
		return
	}
	where := cfg.Storage.Path
	if st.Driver() == store.DriverMySQL {
		where = config.Sanitize(cfg).Storage.DSN
	}
	r.pass("Database", fmt.Sprintf("%s %s (schema v%d)", st.Driver(), where, v))
}

func checkDedupe(ctx context.Context, r *doctorReport, cfg config.DedupeConfig) {
	switch cfg.Backend {
	case "off":
		r.warn("Dedupe", "disabled: redelivered webhooks are stored twice")
	case "redis":
		rs, err := dedupe.NewRedis(dedupe.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			r.fail("Dedupe (redis)", err.Error())
			return
		}
		defer rs.Close()
		if err := rs.Ping(ctx); err != nil {
			r.fail("Dedupe (redis)", fmt.Sprintf("%s unreachable: %v", cfg.Redis.Addr, err))
			return
		}
		r.pass("Dedupe (redis)", cfg.Redis.Addr)
	default:
		r.pass("Dedupe", fmt.Sprintf("in-memory, %dh window", cfg.TTLHours))
	}
}

func checkChannels(r *doctorReport, c config.ChannelsConfig) {
	for _, ch := range domain.Channels() {
		cc, _ := c.Get(ch.String())
		name := "Channel: " + ch.String()
		switch {
		case !cc.Enabled:
			r.pass(name, "disabled")
		case cc.VerifyToken == "" && ch != domain.ChannelEmail && ch != domain.ChannelReview:
			r.warn(name, "no verifyToken: subscription handshakes will be refused")
		case cc.AppSecret == "":
			r.warn(name, "no appSecret: webhook signatures are not checked")
		default:
			r.pass(name, "verify token and signature secret set")
		}
	}
}

func checkOutbound(r *doctorReport, cfg *config.Config) {
	wa := cfg.Channels.WhatsApp
	if wa.AccessToken == "" || wa.PhoneNumberID == "" {
		r.warn("WhatsApp sender", "no accessToken/phoneNumberId: sends are simulated")
	} else {
		r.pass("WhatsApp sender", "phone number "+wa.PhoneNumberID)
	}

	if cfg.Escalation.Enabled {
		r.pass("Escalation", fmt.Sprintf("%d chat(s), %s and above", len(cfg.Escalation.ChatIDs), cfg.Escalation.MinPriority))
	}

	if cfg.Publish.Enabled {
		pc := publish.RocketMQConfig{
			NameServers: cfg.Publish.NameServers,
			Group:       cfg.Publish.Group,
			Topic:       cfg.Publish.Topic,
		}
		if err := pc.Validate(); err != nil {
			r.fail("Publish (rocketmq)", err.Error())
			return
		}
		for _, ns := range cfg.Publish.NameServers {
			conn, err := net.DialTimeout("tcp", ns, 3*time.Second)
			if err != nil {
				r.warn("Publish (rocketmq)", fmt.Sprintf("name server %s unreachable: %v", ns, err))
				continue
			}
			conn.Close()
			r.pass("Publish (rocketmq)", ns)
		}
	}
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
