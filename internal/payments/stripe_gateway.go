package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/tradepost-backend/internal/accounts"
	pkgstripe "github.com/angelmondragon/tradepost-backend/pkg/stripe"
)

// stripeAPI is the subset of Stripe resources the gateway calls.
type stripeAPI interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error)
	RetrieveAccount(ctx context.Context, id string, params *stripe.AccountRetrieveParams) (*stripe.Account, error)
}

// v1Resources calls the v1 services of a keyed client.
type v1Resources struct {
	sc *stripe.Client
}

func (r v1Resources) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
	return r.sc.V1PaymentIntents.Create(ctx, params)
}

func (r v1Resources) RetrievePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error) {
	return r.sc.V1PaymentIntents.Retrieve(ctx, id, params)
}

func (r v1Resources) RetrieveAccount(ctx context.Context, id string, params *stripe.AccountRetrieveParams) (*stripe.Account, error) {
	return r.sc.V1Accounts.GetByID(ctx, id, params)
}

// StripeGateway holds marketplace charges on the platform balance. Funds are
// grouped per listing so the escrow release can transfer them to the seller.
type StripeGateway struct {
	api stripeAPI
}

// NewStripeGateway calls Stripe through the keyed API client of client.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	sc := client.API()
	if sc == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return newStripeGateway(v1Resources{sc: sc}), nil
}

func newStripeGateway(api stripeAPI) *StripeGateway {
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if err := req.Split.Validate(); err != nil {
		return nil, err
	}
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(req.Split.Gross),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		TransferGroup: stripe.String(transferGroup(req)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for key, value := range encodeMetadata(req) {
		params.AddMetadata(key, value)
	}
	if req.OfferID != nil {
		params.SetIdempotencyKey("offer:" + req.OfferID.String())
	}

	pi, err := g.api.CreatePaymentIntent(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}, nil
}

func (g *StripeGateway) GetIntentMetadata(ctx context.Context, intentID string) (*IntentMetadata, error) {
	pi, err := g.api.RetrievePaymentIntent(ctx, intentID, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}
	md, err := parseMetadata(pi.Metadata)
	if err != nil {
		return nil, err
	}
	md.IntentID = pi.ID
	md.Status = string(pi.Status)
	md.AmountCharged = pi.AmountReceived
	if md.AmountCharged == 0 {
		md.AmountCharged = pi.Amount
	}
	md.Currency = string(pi.Currency)
	return &md, nil
}

func (g *StripeGateway) FetchAccount(ctx context.Context, accountID string) (accounts.Snapshot, error) {
	acct, err := g.api.RetrieveAccount(ctx, accountID, &stripe.AccountRetrieveParams{})
	if err != nil {
		return accounts.Snapshot{}, fmt.Errorf("get stripe account: %w", err)
	}
	return SnapshotFromAccount(acct), nil
}

// SnapshotFromAccount reads the payout capability flags of a connected account.
func SnapshotFromAccount(acct *stripe.Account) accounts.Snapshot {
	if acct == nil {
		return accounts.Snapshot{}
	}
	return accounts.Snapshot{
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
}

func transferGroup(req IntentRequest) string {
	return "listing_" + req.ListingID.String()
}
