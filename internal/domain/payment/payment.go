package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a PIX charge.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusPaid     Status = "PAID"
	StatusCanceled Status = "CANCELED"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCanceled
}

// Customer identifies the payer to the PIX provider.
type Customer struct {
	Name      string `json:"name"`
	Cellphone string `json:"cellphone"`
	Email     string `json:"email"`
	TaxID     string `json:"taxId"`
}

// Address is the delivery address attached to a charge.
type Address struct {
	ZipCode      string `json:"zipCode"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

// Amount is a charge value in cents.
type Amount struct {
	Amount int64 `json:"amount"`
}

// PixRequest creates a PIX QR code charge.
type PixRequest struct {
	Payment     Amount   `json:"payment"`
	ExpiresIn   int      `json:"expiresIn"`
	Description string   `json:"description"`
	Customer    Customer `json:"customer"`
	Address     Address  `json:"address"`
}

// QRCode is a created PIX charge.
type QRCode struct {
	ID           string    `json:"id"`
	Amount       int64     `json:"amount"`
	Status       Status    `json:"status"`
	DevMode      bool      `json:"devMode"`
	BRCode       string    `json:"brCode"`
	BRCodeBase64 string    `json:"brCodeBase64"`
	PlatformFee  int64     `json:"platformFee"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ProviderError is a refusal reported by the payment provider.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider: %s", e.Message)
}

// Gateway creates PIX charges and reports their status.
type Gateway interface {
	CreatePix(ctx context.Context, req PixRequest) (*QRCode, error)
	Status(ctx context.Context, id string) (Status, error)
}

var hundred = decimal.NewFromInt(100)

// ToCents converts an amount in reais to whole cents, truncating fractions
// of a cent.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Floor().IntPart()
}
