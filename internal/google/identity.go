package google

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	jwtBearerGrant  = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionTTL    = time.Hour
	expirySkew      = 60 * time.Second
	exchangeTimeout = 30 * time.Second
)

var DefaultScopes = []string{
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/spreadsheets",
}

var ErrMissingClientEmail = errors.New("service account client email is required")

type ServiceAccountOptions struct {
	ClientEmail string
	// PrivateKey is inline PEM or a path to a PEM file.
	PrivateKey string
	TokenURL   string
	Scopes     []string
	HTTPClient *http.Client
	Now        func() time.Time
}

// ServiceAccountTokenSource exchanges a signed service-account assertion for
// a bearer token and caches it until shortly before expiry. Concurrent
// refreshes are collapsed into one exchange.
type ServiceAccountTokenSource struct {
	clientEmail string
	signer      crypto.Signer
	tokenURL    string
	scope       string
	httpClient  *http.Client
	now         func() time.Time

	group  singleflight.Group
	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewServiceAccountTokenSource(opts ServiceAccountOptions) (*ServiceAccountTokenSource, error) {
	email := strings.TrimSpace(opts.ClientEmail)
	if email == "" {
		return nil, ErrMissingClientEmail
	}
	signer, err := ParsePrivateKey(opts.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("service account key: %w", err)
	}
	tokenURL := strings.TrimSpace(opts.TokenURL)
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ServiceAccountTokenSource{
		clientEmail: email,
		signer:      signer,
		tokenURL:    tokenURL,
		scope:       strings.Join(scopes, " "),
		httpClient:  httpClient,
		now:         now,
	}, nil
}

func (s *ServiceAccountTokenSource) Token(ctx context.Context) (string, error) {
	if token, ok := s.cached(); ok {
		return token, nil
	}
	v, err, _ := s.group.Do("token", func() (any, error) {
		if token, ok := s.cached(); ok {
			return token, nil
		}
		// Collapsed callers share this exchange, so it must not end with
		// the first caller's context.
		exchangeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exchangeTimeout)
		defer cancel()
		token, expiry, err := s.exchange(exchangeCtx)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.token = token
		s.expiry = expiry
		s.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *ServiceAccountTokenSource) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || !s.now().Add(expirySkew).Before(s.expiry) {
		return "", false
	}
	return s.token, true
}

func (s *ServiceAccountTokenSource) assertion(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":   s.clientEmail,
		"scope": s.scope,
		"aud":   s.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.signer)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (s *ServiceAccountTokenSource) exchange(ctx context.Context) (string, time.Time, error) {
	now := s.now()
	assertion, err := s.assertion(now)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign assertion: %w", err)
	}
	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()
	if err := checkResponse("token", resp); err != nil {
		return "", time.Time{}, err
	}
	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token response has no access_token")
	}
	lifetime := assertionTTL
	if parsed.ExpiresIn > 0 {
		lifetime = time.Duration(parsed.ExpiresIn) * time.Second
	}
	return parsed.AccessToken, now.Add(lifetime), nil
}
