//go:build production

package meta

// Production builds never attach a test event code.
func sandboxCode(Config) string { return "" }
