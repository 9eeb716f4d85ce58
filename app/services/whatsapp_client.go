package services

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"

	"github.com/darzihub/darzi-notify/config"
)

// WhatsAppClient wraps a whatsmeow session behind the transport interface the
// dispatch pipeline consumes. The session credentials live in a local sqlite
// store, so login via QR scan happens once and survives restarts.
type WhatsAppClient struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	logger    *log.Logger
}

func NewWhatsAppClient(ctx context.Context, cfg config.WhatsAppConfig, logger *log.Logger) (*WhatsAppClient, error) {
	dbLog := waLog.Stdout("Database", "ERROR", true)
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", cfg.SessionDBPath), dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to open whatsapp session store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load whatsapp device: %w", err)
	}
	client := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "ERROR", true))

	w := &WhatsAppClient{client: client, container: container, logger: logger}
	if err := w.connect(ctx, cfg.ShowQR); err != nil {
		return nil, err
	}
	return w, nil
}

// connect logs in, printing a QR code to the terminal when no stored session
// exists yet.
func (w *WhatsAppClient) connect(ctx context.Context, showQR bool) error {
	if w.client.Store.ID == nil {
		qrChan, err := w.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		if err := w.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect whatsapp client: %w", err)
		}
		for evt := range qrChan {
			switch evt.Event {
			case "code":
				if showQR {
					w.logger.Println("scan this QR code with the shop's WhatsApp to log in:")
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
				}
			case "success":
				w.logger.Println("whatsapp login successful")
				return nil
			default:
				return fmt.Errorf("whatsapp login failed: %s", evt.Event)
			}
		}
		return fmt.Errorf("whatsapp QR channel closed before login completed")
	}
	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect whatsapp client: %w", err)
	}
	w.logger.Println("whatsapp session restored")
	return nil
}

// SendText delivers one plain text message and returns the WhatsApp message ID.
func (w *WhatsAppClient) SendText(ctx context.Context, phone, body string) (string, error) {
	jid := types.NewJID(phone, types.DefaultUserServer)
	msgID := w.client.GenerateMessageID()
	resp, err := w.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	}, whatsmeow.SendRequestExtra{ID: msgID})
	if err != nil {
		return "", fmt.Errorf("failed to send whatsapp message: %w", err)
	}
	return string(resp.ID), nil
}

func (w *WhatsAppClient) Connected() bool {
	return w.client.IsConnected()
}

func (w *WhatsAppClient) Close() error {
	w.client.Disconnect()
	return w.container.Close()
}
