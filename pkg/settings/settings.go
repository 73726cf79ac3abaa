package settings

import (
	"time"

	"github.com/go-go-golems/samarth/pkg/client"
	"github.com/go-go-golems/samarth/pkg/dispatcher"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	DefaultServerURL      = "http://localhost:8000"
	DefaultRequestTimeout = 60 * time.Second
	DefaultTranscriptFile = "samarth-transcript.yaml"
	DefaultMarkdownStyle  = "auto"
	DefaultRetryMode      = string(dispatcher.RetryLastMessage)
)

// Settings is the client configuration, read from flags, SAMARTH_* environment
// variables and the config file.
type Settings struct {
	ServerURL string `mapstructure:"server-url"`
	// RequestTimeout bounds each query. Zero disables the bound.
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	RetryMode      string        `mapstructure:"retry-mode"`
	// AllowInsecure permits plain http and loopback/private server addresses.
	AllowInsecure  bool   `mapstructure:"allow-insecure"`
	TranscriptFile string `mapstructure:"transcript-file"`
	MarkdownStyle  string `mapstructure:"markdown-style"`
	UserAgent      string `mapstructure:"user-agent"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("server-url", DefaultServerURL)
	v.SetDefault("request-timeout", DefaultRequestTimeout)
	v.SetDefault("retry-mode", DefaultRetryMode)
	v.SetDefault("allow-insecure", true)
	v.SetDefault("transcript-file", DefaultTranscriptFile)
	v.SetDefault("markdown-style", DefaultMarkdownStyle)
	v.SetDefault("user-agent", "samarth")
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Settings, error) {
	ret := &Settings{}
	if err := v.Unmarshal(ret); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Settings) URLOptions() client.URLOptions {
	if s.AllowInsecure {
		return client.LocalDevelopment
	}
	return client.URLOptions{}
}

func (s *Settings) Validate() error {
	if s.RequestTimeout < 0 {
		return errors.Errorf("request-timeout must not be negative, got %s", s.RequestTimeout)
	}
	if _, err := dispatcher.ParseRetryMode(s.RetryMode); err != nil {
		return errors.Wrap(err, "invalid retry-mode")
	}
	normalized, err := client.NormalizeBaseURL(s.ServerURL, s.URLOptions())
	if err != nil {
		return errors.Wrap(err, "invalid server-url")
	}
	s.ServerURL = normalized
	return nil
}

func (s *Settings) NewClient() (*client.Client, error) {
	options := []client.Option{client.WithTimeout(s.RequestTimeout)}
	if s.UserAgent != "" {
		options = append(options, client.WithUserAgent(s.UserAgent))
	}
	return client.New(s.ServerURL, s.URLOptions(), options...)
}

func (s *Settings) DispatcherOptions() []dispatcher.Option {
	// Validate has already checked the mode
	mode, _ := dispatcher.ParseRetryMode(s.RetryMode)
	return []dispatcher.Option{
		dispatcher.WithTimeout(s.RequestTimeout),
		dispatcher.WithRetryMode(mode),
	}
}
