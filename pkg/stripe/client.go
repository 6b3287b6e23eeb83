package stripe

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/tradepost-backend/pkg/config"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

// Mode separates test-mode keys from live ones. A key from the other mode
// is refused at boot instead of failing on the first charge.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

var keyPrefixes = map[Mode][]string{
	ModeTest: {"sk_test_", "rk_test_"},
	ModeLive: {"sk_live_", "rk_live_"},
}

var errSecretRequired = errors.New("stripe webhook secret is required")

// Client owns the Stripe API client plus the webhook signing secret. The key
// lives on the API client only; the package-level stripe.Key is never set.
type Client struct {
	api           *stripe.Client
	mode          Mode
	signingSecret string
	returnURL     string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := Mode(cfg.Environment())
	prefixes, known := keyPrefixes[mode]
	if !known {
		return nil, fmt.Errorf("stripe environment must be %q or %q, got %q", ModeTest, ModeLive, mode)
	}

	key := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	returnURL := strings.TrimSpace(cfg.ReturnURL)
	switch {
	case key == "":
		return nil, errors.New("stripe api key is required")
	case secret == "":
		return nil, errSecretRequired
	case returnURL == "":
		return nil, errors.New("stripe return url is required")
	case !slices.ContainsFunc(prefixes, func(p string) bool { return strings.HasPrefix(key, p) }):
		return nil, fmt.Errorf("stripe %s mode needs a key starting with %s", mode, strings.Join(prefixes, " or "))
	}

	if logg != nil {
		stripe.DefaultLeveledLogger = leveledLogger{logg: logg}
		logg.Info(logg.WithField(ctx, "stripe_mode", string(mode)), "stripe client initialized")
	}
	return &Client{
		api:           stripe.NewClient(key),
		mode:          mode,
		signingSecret: secret,
		returnURL:     returnURL,
	}, nil
}

// API returns the keyed Stripe client used for v1 resource calls.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return string(c.mode)
}

// ReturnURL is where Stripe redirects the buyer after confirming a payment.
func (c *Client) ReturnURL() string {
	if c == nil {
		return ""
	}
	return c.returnURL
}

// VerifyEvent checks the Stripe-Signature header and decodes the event.
func (c *Client) VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	if c == nil || c.signingSecret == "" {
		return stripe.Event{}, errSecretRequired
	}
	return webhook.ConstructEvent(payload, signatureHeader, c.signingSecret)
}

// leveledLogger routes stripe-go's internal logging through the service logger.
type leveledLogger struct {
	logg *logger.Logger
}

func (l leveledLogger) ctx() context.Context {
	return l.logg.WithField(context.Background(), "component", "stripe")
}

func (l leveledLogger) Debugf(format string, v ...any) { l.logg.Debug(l.ctx(), fmt.Sprintf(format, v...)) }
func (l leveledLogger) Infof(format string, v ...any)  { l.logg.Info(l.ctx(), fmt.Sprintf(format, v...)) }
func (l leveledLogger) Warnf(format string, v ...any)  { l.logg.Warn(l.ctx(), fmt.Sprintf(format, v...)) }

func (l leveledLogger) Errorf(format string, v ...any) {
	l.logg.Error(l.ctx(), "stripe.error", fmt.Errorf(format, v...))
}
