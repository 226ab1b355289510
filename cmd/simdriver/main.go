package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"truckvoice-backend/internal/client"
	"truckvoice-backend/internal/engine"
	"truckvoice-backend/internal/geo"
	"truckvoice-backend/internal/presence"

	"github.com/joho/godotenv"
)

// simdriver logs in as a seeded driver, runs the driving-session engine
// against the backend's record store, and drives a loop around Seoul
// while reacting to call suggestions. Useful for exercising the whole
// stack without a phone.
func main() {
	_ = godotenv.Load()

	serverURL := flag.String("server", envOr("SERVER_URL", "http://localhost:8080"), "backend base URL")
	email := flag.String("email", envOr("SIM_EMAIL", "driver1@truckvoice.kr"), "login email")
	password := flag.String("password", envOr("SIM_PASSWORD", "driver123"), "login password")
	speedKmh := flag.Float64("speed", 60, "simulated speed in km/h")
	flag.Parse()

	token, userID, nickname, err := login(*serverURL, *email, *password)
	if err != nil {
		log.Fatalf("❌ Login failed: %v", err)
	}
	log.Printf("✅ Logged in as %s (%s)", nickname, userID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := engine.New(engine.Config{
		DriverID: userID,
		Store:    engine.NewHTTPStore(*serverURL, token),
	})
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		eng.Run(ctx)
	}()

	var (
		peersMu sync.Mutex
		peers   []presence.Peer
	)
	suggester := client.NewSuggester()

	conn, err := client.Dial(*serverURL, token, nickname, client.Events{
		OnPeerList: func(p []presence.Peer) {
			peersMu.Lock()
			peers = p
			peersMu.Unlock()
			log.Printf("👥 %d peers visible", len(p))
		},
		OnNearby: func(p []presence.Peer) {
			peersMu.Lock()
			peers = p
			peersMu.Unlock()
		},
		OnIncomingRequest: func(req client.IncomingRequest) {
			log.Printf("📞 Incoming call from %s (emergency=%v)", req.FromNickname, req.IsEmergency)
		},
		OnAccepted: func(peerID string) { log.Printf("✅ Call active with %s", peerID) },
		OnRejected: func(peerID string) {
			log.Printf("📞 %s rejected the call", peerID)
			suggester.Dismiss(peerID, time.Now())
		},
		OnBusy:     func(peerID string) { log.Printf("📞 %s is busy", peerID) },
		OnSleeping: func(peerID string) { log.Printf("📞 %s is sleeping", peerID) },
		OnEnded: func(peerID string) {
			log.Printf("📞 Call with %s ended", peerID)
			suggester.Dismiss(peerID, time.Now())
		},
	})
	if err != nil {
		log.Fatalf("❌ WebSocket connect failed: %v", err)
	}
	go func() {
		if err := conn.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("⚠️ Connection lost: %v", err)
			stop()
		}
	}()

	go func() {
		for alert := range eng.Alerts() {
			switch alert.Kind {
			case engine.AlertPre:
				log.Printf("🔔 Pre-alert: %d min driven, plan a rest stop", alert.DrivingSeconds/60)
			case engine.AlertMain:
				log.Printf("🚨 Rest alert: %d min driven, rest now", alert.DrivingSeconds/60)
			}
		}
	}()

	// Drive a circle around Seoul city hall.
	const centerLat, centerLng, radiusKm = 37.5665, 126.9780, 3.0
	angle := 0.0
	lastState := ""

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			<-engineDone // wait for the teardown flush
			log.Println("👋 simdriver shut down")
			return

		case now := <-ticker.C:
			// Advance along the circle at the configured speed.
			circumference := 2 * math.Pi * radiusKm
			angle += (*speedKmh / 3600) / circumference * 2 * math.Pi
			pos := geo.Position{
				Lat: centerLat + radiusKm/111.0*math.Sin(angle),
				Lng: centerLng + radiusKm/88.0*math.Cos(angle),
			}

			eng.UpdatePosition(pos)
			if err := conn.SendPos(pos); err != nil {
				log.Printf("⚠️ pos send failed: %v", err)
			}

			snap := eng.Snapshot()
			if string(snap.State) != lastState {
				lastState = string(snap.State)
				conn.SendStatus(lastState)
				log.Printf("🔀 Now %s (driving=%dm rest=%dm)", snap.State, snap.DrivingSeconds/60, snap.RestSeconds/60)
			}

			suggester.Tick(now)
			peersMu.Lock()
			visible := peers
			peersMu.Unlock()
			if sug := suggester.Scan(visible, "", now); sug != nil {
				log.Printf("💡 Suggesting a call to %s (%.2f km away)", sug.Peer.Nickname, sug.Peer.DistanceKm)
				if err := conn.Request(sug.Peer.ID, false); err == nil {
					suggester.Take()
				}
			}
		}
	}
}

func login(serverURL, email, password string) (token, userID, nickname string, err error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(serverURL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", "", err
	}
	defer resp.Body.Close()

	var result struct {
		OK    bool   `json:"ok"`
		Token string `json:"token"`
		User  *struct {
			ID       string `json:"id"`
			Nickname string `json:"nickname"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", "", err
	}
	if !result.OK || result.User == nil {
		return "", "", "", fmt.Errorf("login rejected (status %d)", resp.StatusCode)
	}
	return result.Token, result.User.ID, result.User.Nickname, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
