package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/logger"
)

const (
	telegramAPIBaseURL = "https://api.telegram.org/bot"
	telegramTimeout    = 10 * time.Second

	// maxMessageRunes is the Bot API limit for one message.
	maxMessageRunes = 4096
)

// TelegramNotifier posts a digest of new events to a Telegram chat.
type TelegramNotifier struct {
	botToken   string
	chatID     string
	baseURL    string
	httpClient *http.Client
}

// NewTelegramNotifier creates a notifier from TELEGRAM_BOT_TOKEN and
// TELEGRAM_CHAT_ID.
func NewTelegramNotifier() (*TelegramNotifier, error) {
	return newTelegramNotifier(os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_CHAT_ID"), telegramAPIBaseURL, nil)
}

func newTelegramNotifier(botToken, chatID, baseURL string, httpClient *http.Client) (*TelegramNotifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if chatID == "" {
		return nil, fmt.Errorf("chat ID is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: telegramTimeout}
	}
	return &TelegramNotifier{botToken: botToken, chatID: chatID, baseURL: baseURL, httpClient: httpClient}, nil
}

// Notify sends the events as one digest, split into several messages when
// it exceeds the message size limit.
func (n *TelegramNotifier) Notify(ctx context.Context, events []event.StoredEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, msg := range splitMessage(formatDigest(events), maxMessageRunes) {
		if err := n.sendMessage(ctx, msg); err != nil {
			return err
		}
		logger.IncrCounter("notifier.telegram_messages")
	}
	logger.Debug("Posted digest", logger.Fields{"events": len(events), "chat_id": n.chatID})
	return nil
}

func (n *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	url := fmt.Sprintf("%s%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram API error: %s", result.Description)
	}
	return nil
}

// formatDigest renders events grouped by source as Telegram HTML.
func formatDigest(events []event.StoredEvent) string {
	bySource := make(map[string][]*event.StoredEvent)
	for i := range events {
		evt := &events[i]
		bySource[evt.Source] = append(bySource[evt.Source], evt)
	}
	sources := make([]string, 0, len(bySource))
	for src := range bySource {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	var msg strings.Builder
	fmt.Fprintf(&msg, "📬 <b>New in Boulder</b> • %d event%s\n\n", len(events), pluralize(len(events)))
	for _, src := range sources {
		list := bySource[src]
		fmt.Fprintf(&msg, "📍 <b>%s</b> (%d)\n", html.EscapeString(src), len(list))
		for _, evt := range list {
			title := html.EscapeString(evt.Title)
			if evt.URL != "" {
				title = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(evt.URL), title)
			}
			fmt.Fprintf(&msg, "  • %s (%s)", title, when(evt))
			if evt.Location != "" {
				fmt.Fprintf(&msg, " - %s", html.EscapeString(evt.Location))
			}
			msg.WriteString("\n")
		}
		msg.WriteString("\n")
	}
	return strings.TrimRight(msg.String(), "\n")
}

// splitMessage breaks text at line boundaries into chunks of at most limit
// runes. A single longer line is cut.
func splitMessage(text string, limit int) []string {
	var (
		chunks []string
		cur    strings.Builder
		size   int
	)
	flush := func() {
		if size > 0 {
			chunks = append(chunks, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			size = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		r := []rune(line)
		for len(r) > limit {
			flush()
			chunks = append(chunks, string(r[:limit]))
			r = r[limit:]
		}
		if size+len(r) > limit {
			flush()
		}
		cur.WriteString(string(r))
		size += len(r)
	}
	flush()
	return chunks
}

func pluralize(count int) string {
	if count == 1 {
		return ""
	}
	return "s"
}
