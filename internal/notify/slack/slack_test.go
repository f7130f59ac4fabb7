package slack

import (
	"context"
	"fmt"
	"testing"

	"github.com/scanmark/scanmark/internal/notify"
	slackapi "github.com/slack-go/slack"
)

// mockClient records PostMessage calls and optionally fails.
type mockClient struct {
	channels []string
	err      error
}

func (m *mockClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	if m.err != nil {
		return "", "", m.err
	}
	m.channels = append(m.channels, channelID)
	return channelID, "1234.5678", nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(AdapterOpts{ChannelID: "C123"}); err == nil {
		t.Error("New without token or client succeeded")
	}
	if _, err := New(AdapterOpts{Client: &mockClient{}}); err == nil {
		t.Error("New without channel succeeded")
	}
	if _, err := New(AdapterOpts{Client: &mockClient{}, ChannelID: "C123"}); err != nil {
		t.Errorf("New with mock client: %v", err)
	}
}

func TestPost(t *testing.T) {
	client := &mockClient{}
	a, err := New(AdapterOpts{Client: client, ChannelID: "C123"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = a.Post(context.Background(), notify.Event{
		Title:    "Bundle pushed",
		Severity: "success",
		Fields:   []notify.Field{{Name: "Papers", Value: "3", Short: true}},
	})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(client.channels) != 1 || client.channels[0] != "C123" {
		t.Errorf("posted channels = %v", client.channels)
	}
}

func TestPost_Error(t *testing.T) {
	client := &mockClient{err: fmt.Errorf("channel_not_found")}
	a, err := New(AdapterOpts{Client: client, ChannelID: "C123"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.Post(context.Background(), notify.Event{Title: "x"}); err == nil {
		t.Error("Post with failing client succeeded")
	}
}

func TestSeverityColor(t *testing.T) {
	if severityColor("success") == severityColor("warning") {
		t.Error("success and warning share a color")
	}
	if severityColor("info") != severityColor("anything-else") {
		t.Error("unknown severity should fall back to the info color")
	}
}
