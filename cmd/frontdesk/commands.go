package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"frontdesk/internal/config"
	"frontdesk/internal/delivery"
	"frontdesk/internal/domain"
	"frontdesk/internal/intent"
	"frontdesk/internal/routing"
	"frontdesk/internal/store"
)

type classifyOutput struct {
	domain.ClassificationResult
	Description string          `json:"description"`
	Priority    domain.Priority `json:"priority"`
}

func classifyCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify a message by intent (reads stdin when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = strings.TrimSpace(string(data))
			}
			res := intent.Classify(text, lang)
			return printJSON(classifyOutput{
				ClassificationResult: res,
				Description:          intent.Describe(res.Intent),
				Priority:             routing.ResolvePriority(res.Intent),
			})
		},
	}
	cmd.Flags().StringVar(&lang, "lang", intent.HintAuto, "language hint: auto, zh or en")
	return cmd
}

func rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the intent keyword rules in evaluation order",
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INTENT\tRANK\tPRIORITY\tDESCRIPTION\tKEYWORDS")
			for _, r := range intent.Rules() {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					r.Intent, r.Rank, routing.ResolvePriority(r.Intent), intent.Describe(r.Intent), strings.Join(r.Keywords, ", "))
			}
			w.Flush()
		},
	}
}

func ingestCmd() *cobra.Command {
	var (
		channel string
		file    string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run a webhook payload from a file through the pipeline",
		Long:  "Normalize, classify and route a raw webhook body. With --dry-run nothing is stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := domain.ParseChannel(channel)
			if err != nil {
				return err
			}
			raw, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			cfg, closeLog, err := loadConfig(true)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx := cmd.Context()
			pcfg := routing.Config{Logger: logger}
			if !dryRun {
				st, err := openStore(ctx, cfg)
				if err != nil {
					return err
				}
				defer st.Close()
				pcfg.Persister = st
			}

			res, err := routing.New(pcfg).Ingest(ctx, ch, raw)
			if res != nil {
				if perr := printJSON(res); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel: whatsapp, instagram, email or review")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "payload file, - for stdin")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "classify and route without persisting")
	cmd.MarkFlagRequired("channel")
	return cmd
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "" || file == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and print the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig(true)
			if err != nil {
				return err
			}
			defer closeLog()

			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			v, err := store.SchemaVersion(cmd.Context(), st.DB())
			if err != nil {
				return err
			}
			fmt.Printf("%s schema version %d\n", st.Driver(), v)
			return nil
		},
	}
}

func sendCmd() *cobra.Command {
	var (
		to          string
		message     string
		contentType string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an outbound WhatsApp message",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig(true)
			if err != nil {
				return err
			}
			defer closeLog()

			wa := cfg.Channels.WhatsApp
			disp := delivery.NewDispatcher(nil, nil, logger)
			disp.Register(delivery.NewWhatsApp(delivery.WhatsAppConfig{
				AccessToken:   wa.AccessToken,
				PhoneNumberID: wa.PhoneNumberID,
				BaseURL:       wa.BaseURL,
				Logger:        logger,
			}))

			res := disp.Send(cmd.Context(), domain.ChannelWhatsApp, to, message, contentType)
			if err := printJSON(res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("send failed: %s", res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient phone number")
	cmd.Flags().StringVar(&message, "message", "", "message text")
	cmd.Flags().StringVar(&contentType, "type", "text", "content type")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("message")
	return cmd
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg.Storage.Driver != store.DriverMySQL {
		if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	st, err := store.Open(ctx, store.Config{
		Driver:       cfg.Storage.Driver,
		Path:         cfg.Storage.Path,
		DSN:          cfg.Storage.DSN,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		MachineID:    cfg.Storage.MachineID,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}
