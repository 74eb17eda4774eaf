package config

import "reflect"

// ConfigDiff describes what changed between two configs. The log level, the
// generation breaker limits and the attempt idle timeout are applied to the
// running service; every other tracked change needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	BreakerChanged bool
	Breaker        BreakerConfig

	AttemptsChanged bool
	Attempts        AttemptsConfig

	// RestartRequired lists the sections whose changes take effect only
	// after a restart, e.g. "providers.llm" or "store".
	RestartRequired []string
}

// Empty reports whether nothing tracked changed.
func (d ConfigDiff) Empty() bool {
	return !d.Live() && len(d.RestartRequired) == 0
}

// Live reports whether d holds a change that can be applied without a restart.
func (d ConfigDiff) Live() bool {
	return d.LogLevelChanged || d.BreakerChanged || d.AttemptsChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{
		NewLogLevel: new.Server.LogLevel,
		Breaker:     new.Generation.Breaker,
		Attempts:    new.Attempts,
	}
	d.LogLevelChanged = old.Server.LogLevel != new.Server.LogLevel
	d.BreakerChanged = old.Generation.Breaker != new.Generation.Breaker
	d.AttemptsChanged = old.Attempts != new.Attempts

	restart := func(section string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, section)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.tls", !reflect.DeepEqual(old.Server.TLS, new.Server.TLS))
	restart("server.allowed_origins", !reflect.DeepEqual(old.Server.AllowedOrigins, new.Server.AllowedOrigins))
	restart("providers.llm", !sameEntry(old.Providers.LLM, new.Providers.LLM))
	restart("providers.stt", !sameEntry(old.Providers.STT, new.Providers.STT))
	restart("store", old.Store != new.Store)
	restart("auth", old.Auth != new.Auth)
	restart("mcp", old.MCP != new.MCP)

	return d
}

func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && reflect.DeepEqual(a.Options, b.Options)
}
