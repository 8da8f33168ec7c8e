package payment

import (
	"context"
	"errors"
	"net/http"
	"rallysphere/internal/apperr"
	"rallysphere/internal/logger"
	"rallysphere/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

type fakeSessions struct {
	got *stripe.CheckoutSessionParams
	err error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.got = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
}

type fakeRefunds struct {
	got *stripe.RefundParams
	err error
}

func (f *fakeRefunds) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	f.got = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.Refund{ID: "re_1", Amount: *params.Amount, Currency: stripe.CurrencyUSD, Status: stripe.RefundStatusSucceeded}, nil
}

func testGateway(s sessionClient, r refundClient) *StripeGateway {
	return &StripeGateway{
		sessions:   s,
		refunds:    r,
		successURL: "rallysphere://checkout/success",
		cancelURL:  "rallysphere://checkout/cancel",
		currency:   "usd",
		log:        logger.Nop(),
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	sessions := &fakeSessions{}
	g := testGateway(sessions, &fakeRefunds{})

	sess, err := g.CreateCheckoutSession(context.Background(), models.CheckoutRequest{
		Purpose:     models.PurposeEventTicket,
		ReferenceID: "evt-1",
		UserID:      "user-1",
		Description: "Trail run",
		Amount:      12.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_test_1", sess.CheckoutURL)

	p := sessions.got
	require.NotNil(t, p)
	assert.Equal(t, "payment", *p.Mode)
	assert.Equal(t, "evt-1", *p.ClientReferenceID)
	require.Len(t, p.LineItems, 1)
	assert.Equal(t, int64(1250), *p.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "usd", *p.LineItems[0].PriceData.Currency)
	assert.Equal(t, int64(1), *p.LineItems[0].Quantity)
	assert.Equal(t, models.PurposeEventTicket, p.Metadata[MetaPurpose])
	assert.Equal(t, "user-1", p.PaymentIntentData.Metadata[MetaUserID])
}

func TestCreateCheckoutSessionErrors(t *testing.T) {
	g := testGateway(&fakeSessions{err: errors.New("card_declined")}, &fakeRefunds{})

	_, err := g.CreateCheckoutSession(context.Background(), models.CheckoutRequest{Amount: 5, ReferenceID: "x"})
	assert.Equal(t, http.StatusBadGateway, apperr.Status(err))

	_, err = g.CreateCheckoutSession(context.Background(), models.CheckoutRequest{Amount: 0})
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))
}

func TestRefund(t *testing.T) {
	refunds := &fakeRefunds{}
	g := testGateway(&fakeSessions{}, refunds)

	r, err := g.Refund(context.Background(), RefundRequest{OrderID: "o1", ClubID: "c1", PaymentIntentID: "pi_1", Amount: 30, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, "re_1", r.ID)
	assert.Equal(t, 30.0, r.RefundAmount)
	assert.Equal(t, "succeeded", r.Status)
	assert.Equal(t, "pi_1", *refunds.got.PaymentIntent)
	assert.Equal(t, "o1", refunds.got.Metadata["order_id"])
}

func TestRefundErrors(t *testing.T) {
	g := testGateway(&fakeSessions{}, &fakeRefunds{err: errors.New("charge_already_refunded")})

	_, err := g.Refund(context.Background(), RefundRequest{OrderID: "o1", PaymentIntentID: "pi_1", Amount: 1})
	var ext *apperr.ExternalFailure
	assert.ErrorAs(t, err, &ext)

	_, err = g.Refund(context.Background(), RefundRequest{OrderID: "o1"})
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1999), ToMinorUnits(19.99, "usd"))
	assert.Equal(t, int64(500), ToMinorUnits(500, "JPY"))
	assert.Equal(t, 19.99, FromMinorUnits(1999, "eur"))
	assert.Equal(t, 500.0, FromMinorUnits(500, "jpy"))
}

func TestNewStripeGatewayNeedsKey(t *testing.T) {
	_, err := NewStripeGateway(configWithKey(""), logger.Nop())
	assert.ErrorIs(t, err, ErrStripeClientInitFailed)

	g, err := NewStripeGateway(configWithKey("sk_test_123"), logger.Nop())
	require.NoError(t, err)
	assert.NotNil(t, g.sessions)
}

func TestDisabledGateway(t *testing.T) {
	_, err := Disabled{}.CreateCheckoutSession(context.Background(), models.CheckoutRequest{Amount: 10})
	assert.ErrorIs(t, err, ErrStripeClientInitFailed)
	assert.Equal(t, http.StatusBadGateway, apperr.Status(err))

	_, err = Disabled{}.Refund(context.Background(), RefundRequest{PaymentIntentID: "pi_1"})
	assert.ErrorIs(t, err, ErrStripeClientInitFailed)
}
