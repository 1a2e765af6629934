//go:build !production

package meta

// sandboxCode routes events to the sandbox view outside production.
func sandboxCode(cfg Config) string {
	if cfg.Environment == "production" {
		return ""
	}
	return cfg.TestEventCode
}
