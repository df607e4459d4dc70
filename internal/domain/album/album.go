package album

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested album or school does not exist.
	ErrNotFound = errors.New("album not found")
	// ErrTypeNotOffered is returned when a sticker type is not part of an album.
	ErrTypeNotOffered = errors.New("sticker type not offered by album")
)

// StickerType enumerates the kinds of sticker an album can hold.
type StickerType string

const (
	// StickerCommon is a regular album slot.
	StickerCommon StickerType = "common"
	// StickerLegend is a highlighted slot.
	StickerLegend StickerType = "legend"
	// StickerA4 is a full-page A4 print.
	StickerA4 StickerType = "a4"
	// StickerFrame is a framed print.
	StickerFrame StickerType = "frame"
)

// UnknownTypeError is returned for sticker types outside the known set.
type UnknownTypeError struct {
	Type StickerType
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown sticker type %q", e.Type)
}

// DefaultPrice returns the catalog price for a sticker type.
func DefaultPrice(t StickerType) (decimal.Decimal, error) {
	switch t {
	case StickerCommon:
		return decimal.RequireFromString("1.00"), nil
	case StickerLegend:
		return decimal.RequireFromString("5.00"), nil
	case StickerA4:
		return decimal.RequireFromString("15.00"), nil
	case StickerFrame:
		return decimal.RequireFromString("29.90"), nil
	default:
		return decimal.Zero, &UnknownTypeError{Type: t}
	}
}

// Prices holds optional per-type price overrides. A zero value means the
// default price applies.
type Prices struct {
	Common decimal.Decimal `json:"common"`
	Legend decimal.Decimal `json:"legend"`
	A4     decimal.Decimal `json:"a4"`
	Frame  decimal.Decimal `json:"frame"`
}

func (p Prices) override(t StickerType) decimal.Decimal {
	switch t {
	case StickerCommon:
		return p.Common
	case StickerLegend:
		return p.Legend
	case StickerA4:
		return p.A4
	case StickerFrame:
		return p.Frame
	default:
		return decimal.Zero
	}
}

// Album is a school-branded sticker book.
type Album struct {
	ID            string `json:"id"`
	SchoolID      string `json:"schoolId"`
	Name          string `json:"name"`
	ReleaseDate   string `json:"releaseDate"`
	CoverImage    string `json:"coverImage"`
	TotalStickers int    `json:"totalStickers"`
	HasCommon     bool   `json:"hasCommon"`
	HasLegend     bool   `json:"hasLegend"`
	HasA4         bool   `json:"hasA4"`
	HasFrame      bool   `json:"hasFrame,omitempty"`
	Prices        Prices `json:"prices"`
}

// Offers reports whether the album sells stickers of type t.
func (a Album) Offers(t StickerType) bool {
	switch t {
	case StickerCommon:
		return a.HasCommon
	case StickerLegend:
		return a.HasLegend
	case StickerA4:
		return a.HasA4
	case StickerFrame:
		return a.HasFrame
	default:
		return false
	}
}

// UnitPrice resolves the price of a sticker type, preferring a non-zero
// album override over the default table.
func (a Album) UnitPrice(t StickerType) (decimal.Decimal, error) {
	def, err := DefaultPrice(t)
	if err != nil {
		return decimal.Zero, err
	}
	if o := a.Prices.override(t); o.IsPositive() {
		return o, nil
	}
	return def, nil
}

// NewSticker builds a priced sticker for this album.
func (a Album) NewSticker(number, name string, t StickerType) (Sticker, error) {
	price, err := a.UnitPrice(t)
	if err != nil {
		return Sticker{}, err
	}
	if !a.Offers(t) {
		return Sticker{}, errors.Wrapf(ErrTypeNotOffered, "album %s, type %s", a.ID, t)
	}
	return Sticker{
		ID:        StickerID(a.ID, number, t),
		AlbumID:   a.ID,
		Number:    number,
		Name:      name,
		Type:      t,
		UnitPrice: price,
	}, nil
}

// Sticker is one purchasable position within an album.
type Sticker struct {
	ID        string          `json:"id"`
	AlbumID   string          `json:"albumId"`
	Number    string          `json:"number"`
	Name      string          `json:"name"`
	Type      StickerType     `json:"type"`
	UnitPrice decimal.Decimal `json:"price"`
}

// StickerID returns the deterministic identity "{albumId}-{number}-{type}".
func StickerID(albumID, number string, t StickerType) string {
	return albumID + "-" + number + "-" + string(t)
}

// School owns one or more albums.
type School struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	City           string `json:"city"`
	State          string `json:"state"`
	Warning        string `json:"warning,omitempty"`
	BgWarningColor string `json:"bgWarningColor,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty"`
}

// Catalog provides read access to schools and albums.
type Catalog interface {
	ListSchools(ctx context.Context) ([]School, error)
	ListAlbums(ctx context.Context, schoolID string) ([]Album, error)
	GetAlbum(ctx context.Context, id string) (*Album, error)
}
