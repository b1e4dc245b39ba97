// Package meow implements the upstream contract over whatsmeow, the
// WhatsApp Web multi-device client library. Credentials live in a
// per-tenant SQLite store under the session directory; erasing that
// directory is how a session forgets its registration.
package meow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/upstream"
)

const credentialDBName = "whatsapp.db"

// Dialer creates whatsmeow-backed sockets
type Dialer struct {
	logger zerolog.Logger
}

// NewDialer creates the production dialer
func NewDialer(logger zerolog.Logger) *Dialer {
	return &Dialer{logger: logger}
}

// HasCredentials reports whether the session directory holds a
// credential store from a previous pairing.
func (d *Dialer) HasCredentials(sessionPath string) bool {
	_, err := os.Stat(filepath.Join(sessionPath, credentialDBName))
	return err == nil
}

// Dial opens the credential store under sessionPath, creates a client,
// and connects. Events flow to handler on the client's event goroutine.
// When the device is not paired yet, QR codes are surfaced as
// ConnectionUpdate events until pairing succeeds or the QR channel
// closes.
func (d *Dialer) Dial(ctx context.Context, sessionPath string, handler func(upstream.Event)) (upstream.Client, error) {
	if err := os.MkdirAll(sessionPath, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(sessionPath, credentialDBName))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	cli := whatsmeow.NewClient(device, waLog.Noop)
	c := &client{
		cli:       cli,
		container: container,
		handler:   handler,
		logger:    d.logger,
	}
	cli.AddEventHandler(c.handleEvent)

	if cli.Store.ID == nil {
		// Not paired: surface QR codes until the user scans one. The QR
		// channel must be requested before Connect.
		qrChan, err := cli.GetQRChannel(ctx)
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("request qr channel: %w", err)
		}
		if err := cli.Connect(); err != nil {
			container.Close()
			return nil, fmt.Errorf("connect: %w", err)
		}
		go func() {
			for item := range qrChan {
				if item.Event == "code" {
					handler(upstream.ConnectionUpdate{QR: item.Code})
				}
			}
		}()
		return c, nil
	}

	if err := cli.Connect(); err != nil {
		container.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	return c, nil
}
