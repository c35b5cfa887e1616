// Package telegram reads announcements from a public Telegram channel.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"github.com/scipunch/editorhub/config"
	"github.com/scipunch/editorhub/feed"
)

const (
	defaultMessageLimit = 50
	titleLength         = 100
)

var hashtagRe = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// Source fetches announcements from a Telegram channel
type Source struct {
	channelURL string
	configDir  string
	mediaDir   string
	priority   int
	creds      config.TelegramCredentials
}

// NewSource creates a channel source. The session file lives in configDir
// and photo thumbnails are stored in mediaDir; an empty mediaDir skips
// downloads.
func NewSource(channelURL, configDir, mediaDir string, priority int, creds config.TelegramCredentials) *Source {
	if priority == 0 {
		priority = feed.DefaultPriority
	}
	return &Source{
		channelURL: channelURL,
		configDir:  configDir,
		mediaDir:   mediaDir,
		priority:   priority,
		creds:      creds,
	}
}

func (s *Source) Name() string {
	return s.channelURL
}

// Fetch retrieves the latest channel posts as announcements
func (s *Source) Fetch(ctx context.Context) (feed.Feed[feed.Announcement], error) {
	var f feed.Feed[feed.Announcement]

	username, err := parseChannelURL(s.channelURL)
	if err != nil {
		return f, fmt.Errorf("invalid channel URL: %w", err)
	}

	err = RunWithAuth(ctx, s.configDir, s.creds, func(ctx context.Context, client *telegram.Client) error {
		api := client.API()

		resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
			Username: username,
		})
		if err != nil {
			return fmt.Errorf("failed to resolve channel @%s: %w", username, err)
		}

		var channel *tg.Channel
		for _, chat := range resolved.Chats {
			if ch, ok := chat.(*tg.Channel); ok {
				channel = ch
				break
			}
		}
		if channel == nil {
			return fmt.Errorf("channel @%s not found in resolved peers", username)
		}
		if !channel.Broadcast {
			return fmt.Errorf("@%s is a group, not a channel", username)
		}

		messagesData, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer: &tg.InputPeerChannel{
				ChannelID:  channel.ID,
				AccessHash: channel.AccessHash,
			},
			Limit: defaultMessageLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to fetch messages from @%s: %w", username, err)
		}

		var messages []tg.MessageClass
		switch m := messagesData.(type) {
		case *tg.MessagesMessages:
			messages = m.Messages
		case *tg.MessagesMessagesSlice:
			messages = m.Messages
		case *tg.MessagesChannelMessages:
			messages = m.Messages
		case *tg.MessagesMessagesNotModified:
			slog.Warn("messages not modified", "channel", username)
			return nil
		default:
			return fmt.Errorf("unexpected messages type: %T", messagesData)
		}

		f.Items = make([]feed.Announcement, 0, len(messages))
		for _, msgClass := range messages {
			msg, ok := msgClass.(*tg.Message)
			if !ok {
				continue // service message
			}
			a, ok := toAnnouncement(username, msg, s.priority)
			if !ok {
				continue
			}
			if s.mediaDir != "" {
				if path, err := thumbnailFromMessage(ctx, client, msg, a.ID, s.mediaDir); err != nil {
					slog.Warn("failed to download thumbnail", "error", err, "message_id", msg.ID)
				} else if path != "" {
					a.ThumbnailURL = "file://" + path
				}
			}
			f.Items = append(f.Items, a)
		}

		slog.Info("fetched Telegram channel", "channel", username, "announcements", len(f.Items))
		return nil
	})
	if err != nil {
		return f, err
	}

	f.Version = "telegram"
	f.LastUpdated = feed.NewTime(time.Now())
	if !f.IsValid() {
		return f, fmt.Errorf("channel @%s has no usable posts", username)
	}
	return f, nil
}

// toAnnouncement maps a channel post. Empty posts are skipped.
func toAnnouncement(username string, msg *tg.Message, priority int) (feed.Announcement, bool) {
	text := strings.TrimSpace(msg.Message)
	if text == "" {
		return feed.Announcement{}, false
	}

	title, _, _ := strings.Cut(text, "\n")
	var tags []string
	for _, m := range hashtagRe.FindAllStringSubmatch(text, -1) {
		tags = append(tags, strings.ToLower(m[1]))
	}

	return feed.Announcement{
		ID:          fmt.Sprintf("tg-%s-%d", username, msg.ID),
		Type:        "telegram",
		Title:       truncateText(title, titleLength),
		Description: text,
		URL:         fmt.Sprintf("https://t.me/%s/%d", username, msg.ID),
		Date:        feed.NewTime(time.Unix(int64(msg.Date), 0)),
		Priority:    priority,
		Tags:        tags,
	}, true
}

// parseChannelURL extracts the channel username from various URL formats
// Supports:
//   - https://t.me/channelname
//   - http://t.me/channelname
//   - t.me/channelname
//   - @channelname
//   - channelname
func parseChannelURL(url string) (string, error) {
	url = strings.TrimSpace(url)
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "t.me/")
	url = strings.TrimPrefix(url, "@")
	url = strings.TrimSuffix(url, "/")

	if url == "" {
		return "", fmt.Errorf("empty channel username")
	}

	// No deep links
	if strings.Contains(url, "/") {
		return "", fmt.Errorf("invalid channel URL format: %s", url)
	}

	return url, nil
}

// truncateText truncates text to maxLen bytes, adding "..." if truncated
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}

	truncated := strings.ToValidUTF8(text[:maxLen], "")
	if idx := strings.LastIndex(truncated, " "); idx > maxLen/2 {
		truncated = truncated[:idx]
	}

	return truncated + "..."
}
