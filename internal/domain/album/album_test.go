package album

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestAlbum_UnitPrice(t *testing.T) {
	plain := Album{ID: "a1", HasCommon: true, HasLegend: true, HasA4: true}
	priced := Album{
		ID:        "a2",
		HasCommon: true,
		HasLegend: true,
		Prices:    Prices{Common: d("2.50"), Legend: decimal.Zero},
	}

	tests := []struct {
		name  string
		album Album
		typ   StickerType
		want  decimal.Decimal
	}{
		{name: "common default", album: plain, typ: StickerCommon, want: d("1.00")},
		{name: "legend default", album: plain, typ: StickerLegend, want: d("5.00")},
		{name: "a4 default", album: plain, typ: StickerA4, want: d("15.00")},
		{name: "frame default", album: plain, typ: StickerFrame, want: d("29.90")},
		{name: "override wins", album: priced, typ: StickerCommon, want: d("2.50")},
		{name: "zero override falls back", album: priced, typ: StickerLegend, want: d("5.00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.album.UnitPrice(tt.typ)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestAlbum_UnitPriceUnknownType(t *testing.T) {
	_, err := Album{}.UnitPrice("hologram")

	var utErr *UnknownTypeError
	require.ErrorAs(t, err, &utErr)
	assert.Equal(t, StickerType("hologram"), utErr.Type)
}

func TestAlbum_NewSticker(t *testing.T) {
	a := Album{ID: "42", HasCommon: true, Prices: Prices{Common: d("3")}}

	s, err := a.NewSticker("07", "Ana", StickerCommon)
	require.NoError(t, err)
	assert.Equal(t, "42-07-common", s.ID)
	assert.Equal(t, "42", s.AlbumID)
	assert.True(t, d("3").Equal(s.UnitPrice))

	_, err = a.NewSticker("07", "Ana", StickerA4)
	assert.True(t, errors.Is(err, ErrTypeNotOffered))
}
