package notifier

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/logger"
	"github.com/dghubble/go-twitter/twitter" //nolint:staticcheck // Using stable v1.1 API
	"github.com/dghubble/oauth1"
)

// tweetInterval spaces out consecutive posts.
const tweetInterval = 2 * time.Second

// TwitterNotifier posts events to Twitter
type TwitterNotifier struct {
	client   *twitter.Client
	interval time.Duration
}

// NewTwitterNotifier creates a new Twitter notifier using environment variables
// Required environment variables:
// - TWITTER_API_KEY
// - TWITTER_API_SECRET
// - TWITTER_ACCESS_TOKEN
// - TWITTER_ACCESS_SECRET
func NewTwitterNotifier() (*TwitterNotifier, error) {
	apiKey := os.Getenv("TWITTER_API_KEY")
	apiSecret := os.Getenv("TWITTER_API_SECRET")
	accessToken := os.Getenv("TWITTER_ACCESS_TOKEN")
	accessSecret := os.Getenv("TWITTER_ACCESS_SECRET")

	if apiKey == "" || apiSecret == "" || accessToken == "" || accessSecret == "" {
		return nil, fmt.Errorf("missing required Twitter credentials in environment variables")
	}

	config := oauth1.NewConfig(apiKey, apiSecret)
	token := oauth1.NewToken(accessToken, accessSecret)
	httpClient := config.Client(oauth1.NoContext, token)

	return newTwitterNotifier(httpClient, tweetInterval), nil
}

func newTwitterNotifier(httpClient *http.Client, interval time.Duration) *TwitterNotifier {
	return &TwitterNotifier{client: twitter.NewClient(httpClient), interval: interval}
}

// Notify posts one tweet per event, stopping at the first failure.
func (n *TwitterNotifier) Notify(ctx context.Context, events []event.StoredEvent) error {
	for i := range events {
		evt := &events[i]
		tweet := formatTweet(evt)

		if _, _, err := n.client.Statuses.Update(tweet, nil); err != nil {
			return fmt.Errorf("failed to post tweet for event %d: %w", evt.ID, err)
		}
		logger.IncrCounter("notifier.tweets")
		logger.Debug("Posted tweet", logger.Fields{"event_id": evt.ID, "source": evt.Source})

		// Rate limiting: wait between tweets
		if i < len(events)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.interval):
			}
		}
	}
	return nil
}
