package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"egharbari/api/internal/config"
	"egharbari/api/internal/utils"
	"github.com/redis/go-redis/v9"
)

const mockEmailTTL = 5 * time.Minute

// RedisSender implements the Sender interface by storing emails in Redis.
// Used with MOCK_SERVICES so end-to-end checks can read what would have been sent.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

// NewRedisSender creates a new RedisSender
func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{
		client: client,
		cfg:    cfg,
	}
}

// MockEmailKey is the Redis key under which the last email of a kind to a recipient is stored.
func MockEmailKey(to, tag string) string {
	return fmt.Sprintf("mockemail:%s:%s", strings.ToLower(to), tag)
}

// Send stores a representation of the email in Redis instead of sending it via SMTP.
func (s *RedisSender) Send(ctx context.Context, msg Message) error {
	primaryTo := ""
	if len(msg.To) > 0 {
		primaryTo = msg.To[0]
	}

	emailData := map[string]interface{}{
		"to":      strings.Join(msg.To, ", "),
		"from":    s.cfg.SmtpFromAddress,
		"subject": msg.Subject,
		"body":    msg.Body,
		"tag":     msg.Tag,
		"sent_at": time.Now().UTC().Format(time.RFC3339Nano),
	}

	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := MockEmailKey(primaryTo, msg.Tag)
	if err := s.client.Set(ctx, key, jsonData, mockEmailTTL).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}

	utils.Logger.Infof("Mock email stored in Redis key '%s' (TTL: %v, Subject: %s)", key, mockEmailTTL, msg.Subject)
	return nil
}
