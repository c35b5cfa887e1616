package fetcher

import (
	"fmt"

	"github.com/scipunch/editorhub/config"
	"github.com/scipunch/editorhub/feed"
	"github.com/scipunch/editorhub/fetcher/telegram"
)

// Env carries what sources need beyond their own config entry.
type Env struct {
	Options   Options
	ConfigDir string
	MediaDir  string

	// Telegram resolves channel credentials on first use.
	Telegram func() (config.TelegramCredentials, error)
}

// OptionsFromConfig converts the [fetch] section.
func OptionsFromConfig(cfg config.FetchConfig) Options {
	opts := DefaultOptions()
	opts.Timeout = config.Duration(cfg.Timeout, opts.Timeout)
	opts.RetryDelay = config.Duration(cfg.RetryDelay, opts.RetryDelay)
	opts.MaxRetries = cfg.MaxRetries
	return opts
}

// PolicyFromConfig converts the [fetch] section.
func PolicyFromConfig(cfg config.FetchConfig) Policy {
	return Policy{
		RequireAllSources: cfg.RequireAllSources,
		Deduplicate:       cfg.Deduplicate,
	}
}

// NewAnnouncementSources builds the announcement sources in configured order
func NewAnnouncementSources(cfg config.ContentConfig, env Env) ([]Source[feed.Announcement], error) {
	var sources []Source[feed.Announcement]

	for _, sc := range cfg.EnabledSources() {
		priority := sc.Priority
		if priority == 0 {
			priority = feed.DefaultPriority
		}

		switch sc.FormatOrDefault() {
		case config.JSON:
			sources = append(sources, NewHTTPSource[feed.Announcement](sc.URL, env.Options))
		case config.RSS:
			sources = append(sources, NewRSSSource(sc.URL, AnnouncementFromRSS(priority), env.Options))
		case config.Telegram:
			if env.Telegram == nil {
				return nil, fmt.Errorf("telegram source %s configured without credentials", sc.URL)
			}
			creds, err := env.Telegram()
			if err != nil {
				return nil, fmt.Errorf("failed to load telegram credentials with %w", err)
			}
			sources = append(sources, telegram.NewSource(sc.URL, env.ConfigDir, env.MediaDir, priority, creds))
		default:
			return nil, fmt.Errorf("unknown source format: %s", sc.Format)
		}
	}

	return sources, nil
}

// NewChangelogSources builds the changelog sources in configured order
func NewChangelogSources(cfg config.ContentConfig, env Env) ([]Source[feed.Changelog], error) {
	var sources []Source[feed.Changelog]

	for _, sc := range cfg.EnabledSources() {
		switch sc.FormatOrDefault() {
		case config.JSON:
			sources = append(sources, NewHTTPSource[feed.Changelog](sc.URL, env.Options))
		case config.RSS:
			sources = append(sources, NewRSSSource(sc.URL, ChangelogFromRSS(), env.Options))
		default:
			return nil, fmt.Errorf("unsupported changelog source format: %s", sc.Format)
		}
	}

	return sources, nil
}
