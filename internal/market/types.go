package market

import "time"

// Tile is one stock in the heat map response.
type Tile struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	MarketCapB    float64 `json:"marketCapB"`
	Intensity     float64 `json:"intensity"` // 0..1, saturates at a 5% move
	Direction     string  `json:"direction"` // "up", "down" or "flat"
	Size          string  `json:"size"`      // "xl", "wide", "tall" or "normal"
	Source        string  `json:"source"`
}

// Stats summarises the tiles of a heat map.
type Stats struct {
	Gainers   int     `json:"gainers"`
	Losers    int     `json:"losers"`
	AvgChange float64 `json:"avgChangePercent"`
}

// Heatmap is the full heat map response.
type Heatmap struct {
	AsOf       time.Time `json:"asOf"`
	MarketOpen bool      `json:"marketOpen"`
	NextOpen   time.Time `json:"nextOpen,omitzero"`
	Tiles      []Tile    `json:"tiles"`
	Stats      Stats     `json:"stats"`
}
