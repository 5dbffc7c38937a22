package config_test

import (
	"testing"

	"github.com/MrWong99/resonate/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			Realtime: config.ProviderEntry{Name: "openai", APIKey: "sk"},
		},
		Session: config.SessionConfig{Strategy: config.StrategyNative, QueueSize: 64},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	d := config.Diff(baseConfig(), baseConfig())
	if d.LogLevelChanged || d.SessionChanged || d.RestartRequired {
		t.Errorf("identical configs should produce an empty diff; got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()

	newCfg := baseConfig()
	newCfg.Server.LogLevel = config.LogDebug

	d := config.Diff(baseConfig(), newCfg)
	if !d.LogLevelChanged {
		t.Fatal("log level change not detected")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("new log level = %q; want debug", d.NewLogLevel)
	}
	if d.RestartRequired {
		t.Error("log level changes are hot-reloadable")
	}
}

func TestDiff_Session(t *testing.T) {
	t.Parallel()

	newCfg := baseConfig()
	newCfg.Session.QueueSize = 128

	d := config.Diff(baseConfig(), newCfg)
	if !d.SessionChanged {
		t.Fatal("session tuning change not detected")
	}
	if d.NewSession.QueueSize != 128 {
		t.Errorf("new queue size = %d; want 128", d.NewSession.QueueSize)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9090" }},
		{"provider key", func(c *config.Config) { c.Providers.Realtime.APIKey = "sk-new" }},
		{"transcript dsn", func(c *config.Config) { c.Transcript.PostgresDSN = "postgres://db" }},
		{"ffmpeg path", func(c *config.Config) { c.Audio.FFmpegPath = "/opt/ffmpeg" }},
		{"tls added", func(c *config.Config) {
			c.Server.TLS = &config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			newCfg := baseConfig()
			tc.mutate(newCfg)
			if d := config.Diff(baseConfig(), newCfg); !d.RestartRequired {
				t.Error("change should require a restart")
			}
		})
	}
}
