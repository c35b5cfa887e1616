package event

// Event kinds published by editorhub components.
const (
	KindFetchStarted   Kind = "content.fetch.started"
	KindContentUpdated Kind = "content.updated"
	KindFetchFailed    Kind = "content.fetch.failed"
	KindCacheCorrupted Kind = "content.cache.corrupted"
	KindSignedIn       Kind = "auth.signed_in"
	KindSignedOut      Kind = "auth.signed_out"
	KindConfigChanged  Kind = "config.changed"
)

// FetchStarted is published when a service starts a remote fetch.
type FetchStarted struct {
	Content string
	Forced  bool
}

func (FetchStarted) Kind() Kind { return KindFetchStarted }

// ContentUpdated is published when a service serves content.
type ContentUpdated struct {
	Content   string
	Items     int
	FromCache bool
}

func (ContentUpdated) Kind() Kind { return KindContentUpdated }

// FetchFailed is published when a remote fetch fails.
type FetchFailed struct {
	Content string
	Err     error
}

func (FetchFailed) Kind() Kind { return KindFetchFailed }

// CacheCorrupted is published when a stored feed fails validation and is
// removed.
type CacheCorrupted struct {
	Content string
	Reason  string
}

func (CacheCorrupted) Kind() Kind { return KindCacheCorrupted }

// SignedIn is published after the OAuth redirect delivered an API key.
type SignedIn struct {
	Name  string
	Email string
}

func (SignedIn) Kind() Kind { return KindSignedIn }

// SignedOut is published when stored credentials are cleared.
type SignedOut struct{}

func (SignedOut) Kind() Kind { return KindSignedOut }

// ConfigChanged is published when the configuration file is rewritten.
type ConfigChanged struct {
	Path string
}

func (ConfigChanged) Kind() Kind { return KindConfigChanged }
