package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"invitation-app/internal/config"
	"invitation-app/internal/contacts"
	"invitation-app/internal/delivery"
	"invitation-app/internal/events"
	"invitation-app/internal/ids"
	"invitation-app/internal/logging"
	"invitation-app/internal/storage"
	"invitation-app/internal/whatsapp"
)

var errInvalidPhoto = errors.New("photo must be a png, jpg, jpeg, gif or webp file")

var photoExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// app is the wiring shared by the commands.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *storage.Store
	contacts *contacts.Repository
	events   *events.Repository
	renderer *delivery.Renderer
	mailer   delivery.Mailer
	notifier *delivery.Notifier
	out      *OutputFormatter

	closers []io.Closer
}

func newApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	// Logs go to stderr so stdout stays parseable in JSON mode.
	log, closer, err := logging.New(logging.Options{
		Level:   level,
		File:    cfg.LogFile,
		Console: true,
		Stdout:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log level", err)
	}

	if err := cfg.EnsureDirs(); err != nil {
		closer.Close()
		return nil, err
	}

	store := storage.New(log)
	eventsRepo, err := events.NewRepository(store, cfg.EventsDir, log)
	if err != nil {
		closer.Close()
		return nil, err
	}

	var mailer delivery.Mailer
	if cfg.SMTP.Enabled() {
		mailer = delivery.NewSMTPMailer(delivery.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, log)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		contacts: contacts.NewRepository(store, cfg.ContactsFile, log),
		events:   eventsRepo,
		renderer: delivery.NewRenderer(cfg.TemplatesDir, log),
		mailer:   mailer,
		notifier: delivery.NewNotifier(mailer, cfg.AdminEmail, log),
		out:      newFormatter(opts, cmd),
		closers:  []io.Closer{closer},
	}, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// whatsApp connects the WhatsApp client when it is enabled. It returns nil
// otherwise. The pairing QR code, if needed, is printed to qrOut.
func (a *app) whatsApp(ctx context.Context, qrOut io.Writer) (*whatsapp.Service, error) {
	if !a.cfg.WhatsApp.Enabled {
		return nil, nil
	}
	svc, err := whatsapp.NewService(ctx, whatsapp.Config{DataDir: a.cfg.WhatsApp.DataDir}, a.log)
	if err != nil {
		return nil, err
	}
	if err := svc.Connect(ctx, qrOut); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closerFunc(svc.Disconnect))
	return svc, nil
}

func (a *app) dispatcher(texter delivery.Texter) *delivery.Dispatcher {
	return delivery.NewDispatcher(a.events, a.renderer, a.mailer, texter, delivery.DispatcherConfig{
		BaseURL:     a.cfg.PublicURL(""),
		UploadsDir:  a.cfg.UploadsDir,
		Concurrency: a.cfg.SendConcurrency,
		Attempts:    a.cfg.SendAttempts,
	}, a.log)
}

// savePhoto copies an image into the uploads directory under a fresh name
// and returns that name.
func (a *app) savePhoto(src string) (string, error) {
	ext := strings.ToLower(filepath.Ext(src))
	if !slices.Contains(photoExtensions, ext) {
		return "", fmt.Errorf("%s: %w", src, errInvalidPhoto)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open photo: %w", err)
	}
	defer in.Close()

	name := ids.NewID() + ext
	dst := filepath.Join(a.cfg.UploadsDir, name)
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create photo: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("copy photo: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("copy photo: %w", err)
	}
	a.log.Info().Str("photo", name).Msg("photo saved")
	return name, nil
}

// withApp builds the app for a command and closes it afterwards.
func withApp(opts *RootOptions, cmd *cobra.Command, run func(a *app) error) error {
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return run(a)
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
