// Package whatsapp delivers text invitations and receives RSVP replies
// through a linked WhatsApp device.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
)

var ErrNotOnWhatsApp = errors.New("number is not registered on WhatsApp")

// MessageHandler is called for every inbound message not sent by us.
type MessageHandler func(*events.Message) error

type Config struct {
	DataDir string
}

type Service struct {
	client         *whatsmeow.Client
	cfg            Config
	log            zerolog.Logger
	messageHandler MessageHandler
}

// NewService opens the device store in cfg.DataDir.
func NewService(ctx context.Context, cfg Config, log zerolog.Logger) (*Service, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create whatsapp data dir: %w", err)
	}
	address := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(cfg.DataDir, "whatsmeow.db"))
	container, err := sqlstore.New(ctx, "sqlite3", address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	service := &Service{
		client: whatsmeow.NewClient(deviceStore, nil),
		cfg:    cfg,
		log:    log.With().Str("component", "whatsapp").Logger(),
	}
	service.client.AddEventHandler(service.eventHandler)
	return service, nil
}

// Connect connects to WhatsApp. An unpaired device prints a pairing QR code
// to qrOut and returns once pairing has finished.
func (s *Service) Connect(ctx context.Context, qrOut io.Writer) error {
	if s.client.Store.ID != nil {
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pairing channel: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			s.log.Info().Str("event", evt.Event).Msg("pairing event")
			continue
		}
		q, err := qrcode.New(evt.Code, qrcode.Medium)
		if err != nil {
			fmt.Fprintf(qrOut, "QR code: %s\n", evt.Code)
			continue
		}
		fmt.Fprintln(qrOut, "\n"+q.ToSmallString(false))
		fmt.Fprintln(qrOut, "Scan the code in WhatsApp under Settings > Linked Devices > Link a Device.")
	}
	return nil
}

func (s *Service) Disconnect() {
	s.client.Disconnect()
}

// SendText sends body to an E.164 phone number after checking that it is
// registered on WhatsApp.
func (s *Service) SendText(ctx context.Context, phone, body string) error {
	phone = "+" + strings.TrimPrefix(phone, "+")

	resp, err := s.client.IsOnWhatsApp(ctx, []string{phone})
	if err != nil {
		return fmt.Errorf("failed to verify number on WhatsApp: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return fmt.Errorf("%w: %s", ErrNotOnWhatsApp, phone)
	}
	jid := resp[0].JID

	sent, err := s.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: &body})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", jid.String(), err)
	}
	s.log.Debug().Str("jid", jid.String()).Str("message_id", sent.ID).Msg("message sent")
	return nil
}

// SetMessageHandler sets the handler for inbound messages.
func (s *Service) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

func (s *Service) eventHandler(evt any) {
	switch evt := evt.(type) {
	case *events.Message:
		s.handleMessage(evt)
	case *events.Connected:
		s.log.Info().Msg("connected to WhatsApp")
	case *events.Disconnected:
		s.log.Info().Msg("disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Warn().Msg("logged out from WhatsApp")
	}
}

func (s *Service) handleMessage(msg *events.Message) {
	if msg.Info.IsFromMe || s.messageHandler == nil {
		return
	}
	if err := s.messageHandler(msg); err != nil {
		s.log.Error().Err(err).Str("sender", msg.Info.Sender.User).Msg("error handling message")
	}
}
