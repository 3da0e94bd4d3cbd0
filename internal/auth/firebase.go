package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/interviewprep/interviewprep/internal/model"
)

// GoogleCertsURL serves the x509 certificates that sign Firebase ID tokens.
const GoogleCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

const defaultCertTTL = time.Hour

// minForcedRefresh spaces out cert fetches triggered by an unknown kid.
const minForcedRefresh = time.Minute

// FirebaseVerifier checks RS256 Firebase ID tokens for one project.
type FirebaseVerifier struct {
	projectID string
	certsURL  string
	client    *http.Client
	admins    []string
	now       func() time.Time

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	expires   time.Time
	refreshed time.Time
}

var _ Verifier = (*FirebaseVerifier)(nil)

// FirebaseOption configures a FirebaseVerifier.
type FirebaseOption func(*FirebaseVerifier)

// WithCertsURL overrides the certificate endpoint.
func WithCertsURL(u string) FirebaseOption {
	return func(v *FirebaseVerifier) { v.certsURL = u }
}

// WithHTTPClient sets the client used to fetch certificates.
func WithHTTPClient(c *http.Client) FirebaseOption {
	return func(v *FirebaseVerifier) { v.client = c }
}

// WithNow sets the clock used for token time checks and cert expiry.
func WithNow(now func() time.Time) FirebaseOption {
	return func(v *FirebaseVerifier) { v.now = now }
}

func NewFirebaseVerifier(projectID string, admins []string, opts ...FirebaseOption) *FirebaseVerifier {
	v := &FirebaseVerifier{
		projectID: projectID,
		certsURL:  GoogleCertsURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		admins:    admins,
		now:       time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

func (v *FirebaseVerifier) Verify(ctx context.Context, tokenString string) (*model.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("missing kid")
		}
		return v.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer("https://securetoken.google.com/"+v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims.identity(v.admins)
}

// key returns the public key for kid, refreshing the cache when it has
// expired or does not know kid. Refreshes for an unknown kid happen at most
// once per minForcedRefresh.
func (v *FirebaseVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	fresh := now.Before(v.expires)
	if k, ok := v.keys[kid]; ok && fresh {
		return k, nil
	}
	if fresh && now.Sub(v.refreshed) < minForcedRefresh {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	if err := v.refresh(ctx); err != nil {
		return nil, err
	}
	k, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return k, nil
}

func (v *FirebaseVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch certs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch certs: status %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&certs); err != nil {
		return fmt.Errorf("decode certs: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pemText := range certs {
		k, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemText))
		if err != nil {
			slog.Warn("skipping unparseable signing cert", "kid", kid, "error", err)
			continue
		}
		keys[kid] = k
	}
	v.keys = keys
	v.refreshed = v.now()
	v.expires = v.refreshed.Add(maxAge(resp.Header.Get("Cache-Control")))
	slog.Debug("refreshed token signing certs", "count", len(keys), "expires", v.expires)
	return nil
}

func maxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultCertTTL
}
