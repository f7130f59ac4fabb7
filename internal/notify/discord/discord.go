// Package discord implements the notify Adapter for Discord.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/scanmark/scanmark/internal/notify"
)

// session abstracts the discordgo.Session methods we use, enabling
// test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Adapter implements notify.Adapter for Discord.
type Adapter struct {
	sess      session
	channelID string
	opened    bool
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken  string // Discord bot token
	ChannelID string // channel to post to
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel id is required")
	}

	a := &Adapter{channelID: opts.ChannelID}
	if opts.Session != nil {
		a.sess = opts.Session
	} else {
		s, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		a.sess = s
	}
	return a, nil
}

// Post delivers one event as an embed. The gateway connection is opened
// lazily on first post.
func (a *Adapter) Post(ctx context.Context, ev notify.Event) error {
	if !a.opened {
		if err := a.sess.Open(); err != nil {
			return fmt.Errorf("discord: open session: %w", err)
		}
		a.opened = true
	}

	embed := &discordgo.MessageEmbed{
		Title:       ev.Title,
		Description: ev.Body,
		Color:       severityColor(ev.Severity),
	}
	for _, f := range ev.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}

	if _, err := a.sess.ChannelMessageSendEmbed(a.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send embed: %w", err)
	}
	return nil
}

// Close shuts down the gateway connection if one was opened.
func (a *Adapter) Close() error {
	if !a.opened {
		return nil
	}
	a.opened = false
	return a.sess.Close()
}

func severityColor(severity string) int {
	switch severity {
	case "success":
		return 0x36a64f
	case "warning":
		return 0xf2c744
	default:
		return 0x439fe0
	}
}
