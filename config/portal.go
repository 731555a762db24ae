package config

// Vendor endpoints. These are deployment constants; override them in the YAML file
// only when the vendor moves them.
const (
	DefaultAuthURL      = "https://authentication.dfs.linde.com/auth/realms/digital-family/protocol/openid-connect/auth"
	DefaultTokenURL     = "https://authentication.dfs.linde.com/auth/realms/digital-family/protocol/openid-connect/token"
	DefaultDataURL      = "https://digitalmanifold.be.dfs.linde.com/api/v1/csv/digitalmanifolddetails/download?country=826"
	DefaultDashboardURL = "https://dfs.linde.com/main/dashboard"
)

// DefaultHeaders returns the header set the data endpoint expects from a browser session.
// Accept-Encoding and Host are left to net/http so that gzip is decoded transparently.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":             "application/json, text/plain, */*",
		"Accept-Language":    "en-GB,en;q=0.9,it-IT;q=0.8,it;q=0.7,en-US;q=0.6,fr;q=0.5",
		"Connection":         "keep-alive",
		"Content-Type":       "application/json",
		"Origin":             "https://dfs.linde.com",
		"Referer":            "https://dfs.linde.com/",
		"Sec-Ch-Ua":          `"Google Chrome";v="117", "Not;A=Brand";v="8", "Chromium";v="117"`,
		"Sec-Ch-Ua-Mobile":   "?0",
		"Sec-Ch-Ua-Platform": "Linux",
		"Sec-Fetch-Dest":     "empty",
		"Sec-Fetch-Mode":     "cors",
		"Sec-Fetch-Site":     "same-site",
		"User-Agent":         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	}
}
