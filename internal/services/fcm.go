package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/jmoiron/sqlx"
	"google.golang.org/api/option"
)

// FCMService handles Firebase Cloud Messaging
type FCMService struct {
	client *messaging.Client
}

// NewFCMService creates a new FCM service instance from a credentials file
func NewFCMService(credentialsFile string) (*FCMService, error) {
	ctx := context.Background()

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client}, nil
}

// NewFCMServiceFromBase64 creates a new FCM service instance from base64-encoded credentials
// This is useful for cloud deployments (Railway, Fly.io, Render) where you can't upload files easily
func NewFCMServiceFromBase64(credentialsBase64 string) (*FCMService, error) {
	ctx := context.Background()

	credentialsJSON, err := base64.StdEncoding.DecodeString(credentialsBase64)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
	}

	opt := option.WithCredentialsJSON(credentialsJSON)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client}, nil
}

// SendEmergencyCallNotification pushes an emergency call request to all of
// a driver's devices. This is the wake-the-phone path for sleeping drivers
// whose app is backgrounded; the websocket message carries the actual
// negotiation.
func (s *FCMService) SendEmergencyCallNotification(db *sqlx.DB, driverID, callerNickname string) error {
	tokens, err := tokensForUser(db, driverID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	return s.sendMulticast(tokens, "🚨 긴급 통화 요청", fmt.Sprintf("%s 님의 긴급 통화 요청입니다", callerNickname), map[string]string{
		"type": "emergency_call",
	})
}

// SendRestAlertNotification pushes a driving-time alert to a driver.
func (s *FCMService) SendRestAlertNotification(db *sqlx.DB, driverID, body string) error {
	tokens, err := tokensForUser(db, driverID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	return s.sendMulticast(tokens, "휴식 알림", body, map[string]string{
		"type": "rest_alert",
	})
}

func (s *FCMService) sendMulticast(tokens []string, title, body string, data map[string]string) error {
	ctx := context.Background()

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}

	response, err := s.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending multicast message: %w", err)
	}

	log.Printf("✅ Multicast sent: %d success, %d failures", response.SuccessCount, response.FailureCount)
	return nil
}

func tokensForUser(db *sqlx.DB, userID string) ([]string, error) {
	var tokens []string
	if err := db.Select(&tokens, "SELECT token FROM fcm_tokens WHERE user_id = $1", userID); err != nil {
		return nil, fmt.Errorf("error loading fcm tokens: %w", err)
	}
	return tokens, nil
}
