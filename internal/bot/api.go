package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"whatsapp-sentinel/internal/wa"
)

// StartAPI exposes a small operational REST surface: health, capture stats,
// the pairing QR code, and logout. The health endpoint skips auth so
// container health checks keep working.
func (b *Bot) StartAPI(port int, qr *wa.QRState) {
	secret := os.Getenv("SENTINEL_API_SECRET")
	if secret == "" {
		b.log.Warnf("SENTINEL_API_SECRET not set - API endpoints are unprotected")
	}

	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error": "Bearer token required"}`, http.StatusUnauthorized)
				return
			}
			if strings.TrimPrefix(header, "Bearer ") != secret {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error": "Invalid API secret"}`, http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		health := b.session.Snapshot()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":             "healthy",
			"connected":          b.client.IsConnected(),
			"authenticated":      b.client.IsLoggedIn(),
			"needs_reauth":       health.NeedsReauth,
			"is_reconnecting":    health.IsReconnecting,
			"reconnect_attempts": health.ReconnectAttempts,
			"session_age_sec":    health.SessionAgeSec,
			"last_activity_sec":  health.LastActivitySec,
		})
	})

	mux.HandleFunc("/api/stats", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"capture":          b.CaptureStats(),
			"tracked_subjects": b.tracker.Len(),
			"watched_subjects": len(b.tracker.WatchList()),
		})
	}))

	mux.HandleFunc("/api/qr-code", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if b.client.IsLoggedIn() && !b.session.NeedsReauth() {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"qr_code": nil,
				"message": "Already authenticated",
			})
			return
		}
		if code := qr.Get(); code != "" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"qr_code": code,
				"message": "Scan QR code with WhatsApp",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"qr_code": nil,
			"message": "QR code not available yet",
		})
	}))

	mux.HandleFunc("/api/logout", auth(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if !b.client.IsLoggedIn() {
			json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "message": "Already logged out"})
			return
		}
		if err := b.client.Logout(context.Background()); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": err.Error()})
			return
		}
		qr.Clear()
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "message": "Device unpaired"})
	}))

	addr := fmt.Sprintf(":%d", port)
	b.log.Infof("Starting REST API server on %s", addr)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			b.log.Errorf("REST API server error: %v", err)
		}
	}()
}
