package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"co2-bank-monitor/config"
	"co2-bank-monitor/internal/clock"
)

const (
	maxPageBytes  = 4 << 20
	maxTokenBytes = 1 << 20
	maxRedirects  = 10
)

// Token is a bearer token for the data endpoint.
type Token struct {
	Value      string
	ObtainedAt time.Time
}

// Expired reports whether the token has reached maxAge at now.
func (t *Token) Expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(t.ObtainedAt) >= maxAge
}

// String keeps the token value out of logs.
func (t *Token) String() string {
	return "token obtained at " + t.ObtainedAt.Format(time.RFC3339)
}

// Authenticator emulates the browser login against the vendor identity provider.
type Authenticator struct {
	cfg       config.PortalConfig
	creds     *config.Credentials
	transport http.RoundTripper
	clock     clock.Clock
	logger    *slog.Logger
}

// NewAuthenticator creates an Authenticator. A nil transport uses http.DefaultTransport.
func NewAuthenticator(cfg config.PortalConfig, creds *config.Credentials, transport http.RoundTripper, clk clock.Clock, logger *slog.Logger) *Authenticator {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Authenticator{
		cfg:       cfg,
		creds:     creds,
		transport: transport,
		clock:     clk,
		logger:    logger,
	}
}

type loginForm struct {
	action *url.URL
	fields url.Values
}

// Authenticate runs one complete login attempt with a fresh cookie jar.
// There is no retry; the caller decides when to try again.
func (a *Authenticator) Authenticate(ctx context.Context) (*Token, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, &AuthError{State: StateUnauthenticated, Cause: err}
	}
	client := &http.Client{
		Transport: a.transport,
		Timeout:   a.cfg.Timeout,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			// The redirect target is the single-page app; the code is all we need.
			if req.URL.Query().Get("code") != "" {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	form, err := a.fetchLoginForm(ctx, client)
	if err != nil {
		return nil, &AuthError{State: StateUnauthenticated, Cause: err}
	}
	a.logger.Debug("login form fetched", "action", form.action.String())

	code, err := a.submitLogin(ctx, client, form)
	if err != nil {
		return nil, &AuthError{State: StateFormFetched, Cause: err}
	}
	a.logger.Debug("authorization code obtained")

	token, err := a.exchangeCode(ctx, client, code)
	if err != nil {
		return nil, &AuthError{State: StateCodeObtained, Cause: err}
	}
	a.logger.Info("portal login succeeded")
	return token, nil
}

func (a *Authenticator) authorizeURL() (string, error) {
	u, err := url.Parse(a.cfg.AuthURL)
	if err != nil {
		return "", fmt.Errorf("parse auth url: %w", err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", a.creds.ClientID)
	q.Set("state", "")
	q.Set("redirect_uri", a.creds.RedirectURI)
	q.Set("scope", "openid profile email")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *Authenticator) fetchLoginForm(ctx context.Context, client *http.Client) (*loginForm, error) {
	target, err := a.authorizeURL()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create login page request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get login page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse login page: %w", err)
	}
	sel := doc.Find("form").First()
	if sel.Length() == 0 {
		return nil, ErrLoginFormNotFound
	}

	action, _ := sel.Attr("action")
	actionURL, err := resp.Request.URL.Parse(strings.TrimSpace(action))
	if err != nil {
		return nil, fmt.Errorf("resolve form action %q: %w", action, err)
	}

	fields := url.Values{}
	sel.Find("input").Each(func(_ int, in *goquery.Selection) {
		if !strings.EqualFold(in.AttrOr("type", ""), "hidden") {
			return
		}
		name, ok := in.Attr("name")
		if !ok || name == "" {
			return
		}
		fields.Set(name, in.AttrOr("value", ""))
	})

	return &loginForm{action: actionURL, fields: fields}, nil
}

func (a *Authenticator) submitLogin(ctx context.Context, client *http.Client, form *loginForm) (string, error) {
	payload := url.Values{}
	for k, v := range form.fields {
		payload[k] = v
	}
	payload.Set("username", a.creds.Username)
	payload.Set("password", a.creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, form.action.String(), strings.NewReader(payload.Encode()))
	if err != nil {
		return "", fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit login form: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))

	final := resp.Request.URL
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if loc, err := resp.Location(); err == nil {
			final = loc
		}
	}
	code := final.Query().Get("code")
	if code == "" {
		return "", fmt.Errorf("%w (status %d at %s)", ErrNoAuthorizationCode, resp.StatusCode, final.Redacted())
	}
	return code, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (a *Authenticator) exchangeCode(ctx context.Context, client *http.Client, code string) (*Token, error) {
	payload := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {a.creds.RedirectURI},
		"client_id":     {a.creds.ClientID},
		"client_secret": {a.creds.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL, strings.NewReader(payload.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBytes))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TokenExchangeError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}
	return &Token{Value: tr.AccessToken, ObtainedAt: a.clock.Now()}, nil
}

var _ TokenSource = (*Authenticator)(nil)

// IsAuthError reports whether err came from a login attempt.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
