package domain

import "time"

// MicroUnits is the scale between display amounts and on-chain amounts.
const MicroUnits = 1_000_000

// Listing is a fungible-token marketplace listing read from the
// listings-ft map.
type Listing struct {
	ID                   uint64         `json:"id"`
	Maker                string         `json:"maker"`
	Taker                string         `json:"taker,omitempty"`
	AssetContract        string         `json:"assetContract"`
	Amount               uint64         `json:"amount"`
	Price                uint64         `json:"price"`
	PaymentAssetContract string         `json:"paymentAssetContract,omitempty"`
	Expiry               uint64         `json:"expiry"`
	IsUserListing        bool           `json:"isUserListing"`
	Name                 string         `json:"name,omitempty"`
	Symbol               string         `json:"symbol,omitempty"`
	ImageMetadata        map[string]any `json:"imageMetadata,omitempty"`
}

// ActiveAt reports whether the listing is still open at the given tip height.
func (l Listing) ActiveAt(tip uint64) bool {
	return tip < l.Expiry
}

// PaysInSTX reports whether the listing is priced in the native token.
func (l Listing) PaysInSTX() bool {
	return l.PaymentAssetContract == ""
}

// MarketplaceData is the assembled marketplace view for one address.
type MarketplaceData struct {
	Address    string       `json:"address"`
	TipHeight  uint64       `json:"tipHeight"`
	Browse     []Listing    `json:"browse"`
	MyListings []Listing    `json:"myListings"`
	MyApts     []AssetToken `json:"myApts"`
	FetchedAt  time.Time    `json:"fetchedAt"`
}

// EmptyMarketplaceData returns the three empty collections reported when
// aggregation fails.
func EmptyMarketplaceData(address string) MarketplaceData {
	return MarketplaceData{
		Address:    address,
		Browse:     []Listing{},
		MyListings: []Listing{},
		MyApts:     []AssetToken{},
	}
}
