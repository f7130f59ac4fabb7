// Package slack implements the notify Adapter for Slack using the Web
// API.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/scanmark/scanmark/internal/notify"
	slackapi "github.com/slack-go/slack"
)

// maxRetries is the max number of retries for rate-limited API calls.
const maxRetries = 3

// slackClient abstracts the Slack API methods we use, enabling test
// mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Adapter implements notify.Adapter for Slack.
type Adapter struct {
	client    slackClient
	channelID string
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // channel to post to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}

	a := &Adapter{channelID: opts.ChannelID}
	if opts.Client != nil {
		a.client = opts.Client
	} else {
		a.client = slackapi.New(opts.BotToken)
	}
	return a, nil
}

// Post delivers one event as an attachment message.
func (a *Adapter) Post(ctx context.Context, ev notify.Event) error {
	att := slackapi.Attachment{
		Title:    ev.Title,
		Text:     ev.Body,
		Color:    severityColor(ev.Severity),
		Fallback: ev.Title,
	}
	for _, f := range ev.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}

	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := a.client.PostMessage(a.channelID, slackapi.MsgOptionAttachments(att))
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Close is a no-op; the Web API client holds no connection.
func (a *Adapter) Close() error { return nil }

func severityColor(severity string) string {
	switch severity {
	case "success":
		return "#36a64f"
	case "warning":
		return "#f2c744"
	default:
		return "#439fe0"
	}
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate
// limit errors. It respects context cancellation and the RetryAfter
// duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
