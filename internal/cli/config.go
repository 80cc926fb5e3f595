package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"invitation-app/internal/config"
)

func newConfigCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(newConfigShowCommand(opts))
	return cmd
}

// settings is the effective configuration without secrets.
type settings struct {
	DataDir         string         `json:"data_dir"`
	EventsDir       string         `json:"events_dir"`
	ContactsFile    string         `json:"contacts_file"`
	UploadsDir      string         `json:"uploads_dir"`
	TemplatesDir    string         `json:"templates_dir"`
	PublicDomain    string         `json:"public_domain"`
	PublicAddr      string         `json:"public_addr"`
	EmailEnabled    bool           `json:"email_enabled"`
	SMTPHost        string         `json:"smtp_host"`
	SMTPFrom        string         `json:"smtp_from"`
	AdminEmail      string         `json:"admin_email"`
	WhatsAppEnabled bool           `json:"whatsapp_enabled"`
	RateLimit       string         `json:"rate_limit"`
	App             map[string]any `json:"app"`
}

func newConfigShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings and the application config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				appConfig, err := config.LoadAppConfig(a.store, a.cfg.AppConfigFile)
				if err != nil {
					return err
				}
				s := settings{
					DataDir:         a.cfg.DataDir,
					EventsDir:       a.cfg.EventsDir,
					ContactsFile:    a.cfg.ContactsFile,
					UploadsDir:      a.cfg.UploadsDir,
					TemplatesDir:    a.cfg.TemplatesDir,
					PublicDomain:    a.cfg.PublicDomain,
					PublicAddr:      a.cfg.PublicAddr,
					EmailEnabled:    a.cfg.SMTP.Enabled(),
					SMTPHost:        a.cfg.SMTP.Host,
					SMTPFrom:        a.cfg.SMTP.From,
					AdminEmail:      a.cfg.AdminEmail,
					WhatsAppEnabled: a.cfg.WhatsApp.Enabled,
					RateLimit:       fmt.Sprintf("%d per %s", a.cfg.RateLimitMax, a.cfg.RateLimitWindow),
					App:             appConfig,
				}
				return a.out.Success(s, func(w io.Writer) {
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					_ = enc.Encode(s)
				})
			})
		},
	}
}
