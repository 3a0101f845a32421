package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wadatrip/farewatch/internal/store"
)

const (
	colorPriceFound = 0x2ecc71
	colorExpired    = 0x95a5a6
)

// DefaultWebhookHosts are the hosts a contact-supplied webhook may point at.
var DefaultWebhookHosts = []string{"discord.com", "discordapp.com"}

// ErrWebhookNotAllowed is returned for contact webhooks outside the allowed hosts.
var ErrWebhookNotAllowed = errors.New("webhook url not allowed")

// CheckWebhookURL accepts https URLs whose host is, or is a subdomain of,
// one of allowedHosts.
func CheckWebhookURL(raw string, allowedHosts []string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookNotAllowed, err)
	}
	if u.Scheme != "https" || u.User != nil {
		return fmt.Errorf("%w: https without credentials required", ErrWebhookNotAllowed)
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range allowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed != "" && (host == allowed || strings.HasSuffix(host, "."+allowed)) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q", ErrWebhookNotAllowed, host)
}

// WebhookNotifier posts Discord-compatible JSON. The contact's own webhook
// wins over DefaultURL when its host is in AllowedHosts; with neither set
// the alert is skipped. DefaultURL is operator configuration and is trusted.
type WebhookNotifier struct {
	DefaultURL   string
	AllowedHosts []string
	Client       *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier with a bounded HTTP client.
func NewWebhookNotifier(defaultURL string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		DefaultURL:   defaultURL,
		AllowedHosts: DefaultWebhookHosts,
		Client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type webhookPayload struct {
	Username string         `json:"username"`
	Content  string         `json:"content"`
	Embeds   []webhookEmbed `json:"embeds"`
}

type webhookEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []webhookField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, contact store.Contact, title, body string, meta map[string]any) error {
	target := strings.TrimSpace(contact.WebhookURL)
	if target != "" {
		if err := CheckWebhookURL(target, n.AllowedHosts); err != nil {
			return err
		}
	} else {
		target = n.DefaultURL
	}
	if target == "" {
		return nil
	}

	color := colorPriceFound
	if stringMeta(meta, "kind") == store.AlertExpired {
		color = colorExpired
	}
	embed := webhookEmbed{
		Title:       title,
		Description: body,
		Color:       color,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if origin, dest := stringMeta(meta, "origin"), stringMeta(meta, "destination"); origin != "" || dest != "" {
		embed.Fields = append(embed.Fields, webhookField{Name: "Route", Value: origin + " → " + dest, Inline: true})
	}
	if p, ok := meta["price"].(int); ok && p > 0 {
		embed.Fields = append(embed.Fields, webhookField{Name: "Price", Value: fmt.Sprintf("$%d", p), Inline: true})
	}
	if id := stringMeta(meta, "monitor_id"); id != "" {
		embed.Fields = append(embed.Fields, webhookField{Name: "Monitor", Value: id})
	}

	payload := webhookPayload{Username: "farewatch", Content: title, Embeds: []webhookEmbed{embed}}
	if contact.Name != "" {
		payload.Content = fmt.Sprintf("%s, %s", contact.Name, strings.ToLower(title))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
