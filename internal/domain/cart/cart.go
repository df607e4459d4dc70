package cart

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/sticker-storefront/internal/domain/album"
)

// Line is a sticker in the cart together with how many copies were picked.
type Line struct {
	album.Sticker
	Quantity int `json:"quantity"`
}

// Key returns the grouping key of the line within its album.
func (l Line) Key() string {
	return LineKey(l.Number, l.Type)
}

// Total returns unit price times quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineKey groups stickers by their physical identity: number and type.
func LineKey(number string, t album.StickerType) string {
	return number + "-" + string(t)
}

// Item is one album in the cart with its lines in insertion order.
type Item struct {
	Album album.Album `json:"album"`
	Lines []Line      `json:"stickers"`
}

func (it *Item) find(key string) int {
	for i := range it.Lines {
		if it.Lines[i].Key() == key {
			return i
		}
	}
	return -1
}

// Total returns the sum of all line totals.
func (it Item) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range it.Lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// Cart is an ordered list of items, at most one per album.
type Cart struct {
	Items []Item `json:"items"`
}

func (c *Cart) find(albumID string) int {
	for i := range c.Items {
		if c.Items[i].Album.ID == albumID {
			return i
		}
	}
	return -1
}

// Subtotal returns the sum of unit price times quantity over every line.
func (c Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.Total())
	}
	return sum
}

// Clone returns a deep copy safe to hand out to callers.
func (c Cart) Clone() Cart {
	out := Cart{Items: make([]Item, len(c.Items))}
	for i, it := range c.Items {
		out.Items[i] = Item{
			Album: it.Album,
			Lines: append([]Line(nil), it.Lines...),
		}
	}
	return out
}

// Aggregate merges picked stickers into existing lines of album a. Picks
// sharing a (number, type) pair with an existing line or an earlier pick
// bump that line's quantity; new pairs are appended with quantity 1 and the
// deterministic "{albumId}-{number}-{type}" id.
func Aggregate(a album.Album, existing []Line, picks []album.Sticker) []Line {
	lines := append(make([]Line, 0, len(existing)+len(picks)), existing...)
	index := make(map[string]int, len(lines))
	for i, l := range lines {
		index[l.Key()] = i
	}

	for _, s := range picks {
		key := LineKey(s.Number, s.Type)
		if i, ok := index[key]; ok {
			lines[i].Quantity++
			continue
		}
		s.AlbumID = a.ID
		s.ID = album.StickerID(a.ID, s.Number, s.Type)
		index[key] = len(lines)
		lines = append(lines, Line{Sticker: s, Quantity: 1})
	}
	return lines
}
