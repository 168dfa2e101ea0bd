package config

// Version is overridden at build time with -ldflags "-X ...config.Version=".
var Version = "0.1.0"

// UserAgent identifies the gateway on outbound requests.
func UserAgent() string {
	return "seo-gateway/" + Version
}
