// Sentinel is a personal WhatsApp bot that captures ephemeral content:
// deleted messages, view-once media, and disappearing statuses.
package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/mdp/qrterminal"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"whatsapp-sentinel/internal/bot"
	"whatsapp-sentinel/internal/capture"
	"whatsapp-sentinel/internal/settings"
	"whatsapp-sentinel/internal/statestore"
	"whatsapp-sentinel/internal/surveil"
	"whatsapp-sentinel/internal/wa"
)

const version = "1.0.0"

var (
	apiPort  int
	storeDir string
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "WhatsApp bot that captures deleted and view-once content",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sentinel v%s\n", version)
	},
}

func init() {
	rootCmd.Flags().IntVar(&apiPort, "port", 8080, "Port for the REST status API")
	rootCmd.Flags().StringVar(&storeDir, "store-dir", "store", "Directory for session and state databases")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// Optional; config also works from real environment variables.
	godotenv.Load()

	logger := waLog.Stdout("Sentinel", "INFO", true)
	dbLog := waLog.Stdout("Database", "INFO", true)

	color.Cyan("Sentinel v%s starting...", version)

	if err := os.MkdirAll(storeDir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	// Session credentials live in their own database, separate from bot state.
	sessionDSN := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(storeDir, "session.db"))
	container, err := sqlstore.New(context.Background(), "sqlite3", sessionDSN, dbLog)
	if err != nil {
		return fmt.Errorf("failed to open session database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(context.Background())
	if err != nil {
		if err == sql.ErrNoRows {
			deviceStore = container.NewDevice()
			logger.Infof("Created new device")
		} else {
			return fmt.Errorf("failed to get device: %w", err)
		}
	}

	client := whatsmeow.NewClient(deviceStore, logger)
	if client == nil {
		return fmt.Errorf("failed to create WhatsApp client")
	}

	store, err := statestore.Open(storeDir, waLog.Stdout("State", "INFO", true))
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()

	checkpointStop := make(chan struct{})
	defer close(checkpointStop)
	store.StartCheckpointDaemon(checkpointStop)

	cfg := settings.New(store, logger)

	gateway := wa.NewGateway(client, waLog.Stdout("Gateway", "INFO", true))
	session := wa.NewSession(client, waLog.Stdout("Session", "INFO", true))

	captureLog := waLog.Stdout("Capture", "INFO", true)
	interceptor := capture.NewInterceptor(cfg, gateway, captureLog)
	replayer := capture.NewEngine(gateway, gateway, gateway.Operator, captureLog)
	correlator := capture.NewCorrelator(cfg, interceptor, replayer, store, captureLog)
	tracker := surveil.NewTracker()

	b := bot.New(client, gateway, session, cfg, interceptor, correlator, replayer, tracker, store,
		waLog.Stdout("Bot", "INFO", true))
	client.AddEventHandler(b.HandleEvent)

	qr := &wa.QRState{}

	// When the phone unlinks the device, the stored credentials are dead:
	// wipe them and offer a fresh QR code.
	b.SetLoggedOutHandler(func() {
		logger.Infof("Re-pairing after logout...")
		time.Sleep(1 * time.Second)

		client.Disconnect()
		time.Sleep(500 * time.Millisecond)

		if err := client.Store.Delete(context.Background()); err != nil {
			logger.Errorf("Failed to delete device from store: %v", err)
		}

		qrChan, _ := client.GetQRChannel(context.Background())
		if err := client.Connect(); err != nil {
			logger.Errorf("Failed to reconnect after logout: %v", err)
			return
		}
		for evt := range qrChan {
			switch evt.Event {
			case "code":
				publishQR(evt.Code, qr, logger)
			case "success":
				qr.Clear()
				session.MarkConnected()
				logger.Infof("Re-authenticated after logout")
				return
			}
		}
	})

	// The API comes up before authentication so the QR code is reachable
	// remotely during first pairing.
	b.StartAPI(apiPort, qr)

	connected := make(chan bool, 1)

	if client.Store.ID == nil {
		// Fresh install: drive QR pairing with automatic batch regeneration
		// until a phone scans one.
		go func() {
			for {
				qrChan, _ := client.GetQRChannel(context.Background())

				if !client.IsConnected() {
					if err := client.Connect(); err != nil {
						logger.Errorf("Failed to connect for QR: %v", err)
						time.Sleep(5 * time.Second)
						continue
					}
				}

				qrExpired := false
				for evt := range qrChan {
					switch evt.Event {
					case "code":
						fmt.Println("\nScan this QR code with your WhatsApp app:")
						qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
						publishQR(evt.Code, qr, logger)
					case "success":
						qr.Clear()
						connected <- true
						logger.Infof("QR code authentication successful")
						return
					case "timeout":
						logger.Infof("QR code batch expired, regenerating...")
						qrExpired = true
					}
				}

				if qrExpired {
					client.Disconnect()
					time.Sleep(2 * time.Second)
					continue
				}

				if client.IsLoggedIn() {
					connected <- true
					return
				}

				logger.Warnf("QR channel closed unexpectedly, retrying...")
				time.Sleep(5 * time.Second)
			}
		}()

		select {
		case <-connected:
			color.Green("Successfully paired and authenticated!")
		case <-time.After(60 * time.Minute):
			// Keep the process alive; the QR stays reachable over the API.
			logger.Warnf("QR code not scanned for 60 minutes - server continues running")
		}
	} else {
		if err := client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
	}

	time.Sleep(2 * time.Second)
	if !client.IsConnected() {
		return fmt.Errorf("failed to establish stable connection")
	}
	session.MarkConnected()

	keepaliveStop := make(chan struct{})
	defer close(keepaliveStop)
	go session.StartKeepalive(keepaliveStop)

	color.Green("✓ Connected to WhatsApp")
	color.White("Send .help from the paired account to list commands.")
	logger.Infof("REST API listening on port %d", apiPort)

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	<-exit

	fmt.Println("Disconnecting...")
	client.Disconnect()
	return nil
}

// publishQR mirrors the pairing code into the API as a base64 PNG.
func publishQR(code string, qr *wa.QRState, logger waLog.Logger) {
	qrPNG, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		logger.Warnf("Failed to encode QR code: %v", err)
		return
	}
	qr.Set(base64.StdEncoding.EncodeToString(qrPNG))
	logger.Infof("QR code updated")
}
