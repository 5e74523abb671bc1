package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/njfio/taubot/ingest"
)

const (
	defaultTelegramBaseURL = "https://api.telegram.org"
	defaultDiscordBaseURL  = "https://discord.com/api/v10"
	defaultWhatsAppBaseURL = "https://graph.facebook.com/v19.0"
)

type ProviderConfig struct {
	TelegramBaseURL  string
	TelegramBotToken string

	DiscordBaseURL  string
	DiscordBotToken string

	WhatsAppBaseURL     string
	WhatsAppAccessToken string
	WhatsAppPhoneID     string

	MaxChars int
}

// ProviderDeliverer posts replies to the transport HTTP APIs, one endpoint
// shape per transport. Error strings never carry tokens or response
// bodies; callers log them as-is.
type ProviderDeliverer struct {
	http *http.Client
	cfg  ProviderConfig
}

func NewProviderDeliverer(httpClient *http.Client, cfg ProviderConfig) *ProviderDeliverer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.TelegramBaseURL = normalizeBaseURL(cfg.TelegramBaseURL, defaultTelegramBaseURL)
	cfg.DiscordBaseURL = normalizeBaseURL(cfg.DiscordBaseURL, defaultDiscordBaseURL)
	cfg.WhatsAppBaseURL = normalizeBaseURL(cfg.WhatsAppBaseURL, defaultWhatsAppBaseURL)
	return &ProviderDeliverer{http: httpClient, cfg: cfg}
}

func normalizeBaseURL(raw, fallback string) string {
	raw = strings.TrimSpace(strings.TrimRight(raw, "/"))
	if raw == "" {
		return fallback
	}
	return raw
}

func (p *ProviderDeliverer) Deliver(ctx context.Context, msg OutboundMessage) ([]Receipt, error) {
	if p == nil || p.http == nil {
		return nil, fmt.Errorf("provider deliverer is not initialized")
	}
	chunks := ChunkText(msg.Text, p.cfg.MaxChars)
	receipts := make([]Receipt, 0, len(chunks))
	for i, chunk := range chunks {
		var err error
		switch msg.Transport {
		case ingest.TransportTelegram:
			err = p.sendTelegram(ctx, msg.ConversationID, chunk)
		case ingest.TransportDiscord:
			err = p.sendDiscord(ctx, msg.ConversationID, chunk)
		case ingest.TransportWhatsApp:
			err = p.sendWhatsApp(ctx, msg.ConversationID, chunk)
		default:
			return nil, fmt.Errorf("unknown transport: %q", msg.Transport)
		}
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, Receipt{
			ReceiptID:      uuid.NewString(),
			Transport:      msg.Transport,
			ConversationID: msg.ConversationID,
			ChunkIndex:     i,
			Status:         ReceiptSent,
		})
	}
	return receipts, nil
}

func (p *ProviderDeliverer) sendTelegram(ctx context.Context, chatID, text string) error {
	token := strings.TrimSpace(p.cfg.TelegramBotToken)
	if token == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	payload := map[string]any{"chat_id": chatID, "text": text}
	url := fmt.Sprintf("%s/bot%s/sendMessage", p.cfg.TelegramBaseURL, token)
	return p.post(ctx, "telegram", url, payload, nil)
}

func (p *ProviderDeliverer) sendDiscord(ctx context.Context, channelID, text string) error {
	token := strings.TrimSpace(p.cfg.DiscordBotToken)
	if token == "" {
		return fmt.Errorf("discord bot token is required")
	}
	payload := map[string]any{"content": text}
	url := fmt.Sprintf("%s/channels/%s/messages", p.cfg.DiscordBaseURL, channelID)
	return p.post(ctx, "discord", url, payload, map[string]string{
		"Authorization": "Bot " + token,
	})
}

func (p *ProviderDeliverer) sendWhatsApp(ctx context.Context, to, text string) error {
	token := strings.TrimSpace(p.cfg.WhatsAppAccessToken)
	if token == "" {
		return fmt.Errorf("whatsapp access token is required")
	}
	phoneID := strings.TrimSpace(p.cfg.WhatsAppPhoneID)
	if phoneID == "" {
		return fmt.Errorf("whatsapp phone id is required")
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": text},
	}
	url := fmt.Sprintf("%s/%s/messages", p.cfg.WhatsAppBaseURL, phoneID)
	return p.post(ctx, "whatsapp", url, payload, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

func (p *ProviderDeliverer) post(ctx context.Context, transport, url string, payload any, headers map[string]string) error {
	bodyRaw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", transport, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyRaw))
	if err != nil {
		return fmt.Errorf("%s request: %w", transport, ErrTransient)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s send: %w", transport, ErrTransient)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%s send http %d: %w", transport, resp.StatusCode, ErrTransient)
	default:
		// Terminal; status only, body and URL stay out of the message so
		// tokens cannot leak into logs.
		return fmt.Errorf("%s send rejected with http %d", transport, resp.StatusCode)
	}
}
