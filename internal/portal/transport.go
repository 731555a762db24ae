package portal

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"co2-bank-monitor/config"
)

// NewTransport builds the round tripper shared by the authenticator and the data client.
func NewTransport(cfg config.PortalConfig, logger *slog.Logger) http.RoundTripper {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = 10 * time.Second
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logger.Warn("invalid proxy URL; portal requests will not use a proxy", "proxy", cfg.HTTPProxy, "error", err)
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return transport
}
