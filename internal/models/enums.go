package models

import (
	"fmt"
	"strings"
)

// AssetType classifies the instrument kind a query targets.
type AssetType string

const (
	AssetStock           AssetType = "stock"
	AssetBond            AssetType = "bond"
	AssetETF             AssetType = "etf"
	AssetFund            AssetType = "fund"
	AssetFutures         AssetType = "futures"
	AssetOptions         AssetType = "options"
	AssetForex           AssetType = "forex"
	AssetCrypto          AssetType = "crypto"
	AssetIndex           AssetType = "index"
	AssetCommodity       AssetType = "commodity"
	AssetConvertibleBond AssetType = "convertible_bond"
)

var assetTypes = map[AssetType]bool{
	AssetStock: true, AssetBond: true, AssetETF: true, AssetFund: true,
	AssetFutures: true, AssetOptions: true, AssetForex: true, AssetCrypto: true,
	AssetIndex: true, AssetCommodity: true, AssetConvertibleBond: true,
}

// ParseAssetType converts a user-supplied string into an AssetType.
func ParseAssetType(s string) (AssetType, error) {
	a := AssetType(strings.ToLower(strings.TrimSpace(s)))
	if !assetTypes[a] {
		return "", fmt.Errorf("unknown asset type %q", s)
	}
	return a, nil
}

// MarketType identifies the trading market for a symbol or query.
type MarketType string

const (
	MarketCN     MarketType = "cn"
	MarketUS     MarketType = "us"
	MarketHK     MarketType = "hk"
	MarketEU     MarketType = "eu"
	MarketJP     MarketType = "jp"
	MarketUK     MarketType = "uk"
	MarketAU     MarketType = "au"
	MarketGlobal MarketType = "global"
)

var marketTypes = map[MarketType]bool{
	MarketCN: true, MarketUS: true, MarketHK: true, MarketEU: true,
	MarketJP: true, MarketUK: true, MarketAU: true, MarketGlobal: true,
}

// ParseMarketType converts a user-supplied string into a MarketType.
// Empty input is allowed and means "any market".
func ParseMarketType(s string) (MarketType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	m := MarketType(s)
	if !marketTypes[m] {
		return "", fmt.Errorf("unknown market %q", s)
	}
	return m, nil
}

// Timeframe is the bar interval of requested data.
type Timeframe string

const (
	TimeframeTick Timeframe = "tick"
	Timeframe1m   Timeframe = "1m"
	Timeframe5m   Timeframe = "5m"
	Timeframe15m  Timeframe = "15m"
	Timeframe30m  Timeframe = "30m"
	Timeframe1h   Timeframe = "1h"
	Timeframe4h   Timeframe = "4h"
	Timeframe1d   Timeframe = "1d"
	Timeframe1w   Timeframe = "1w"
	Timeframe1M   Timeframe = "1M"
)

var timeframes = map[Timeframe]bool{
	TimeframeTick: true, Timeframe1m: true, Timeframe5m: true,
	Timeframe15m: true, Timeframe30m: true, Timeframe1h: true,
	Timeframe4h: true, Timeframe1d: true, Timeframe1w: true, Timeframe1M: true,
}

// ParseTimeframe converts a user-supplied string into a Timeframe.
// The monthly interval keeps its uppercase M to stay distinct from minutes.
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	tf := Timeframe(s)
	if !timeframes[tf] {
		tf = Timeframe(strings.ToLower(s))
	}
	if !timeframes[tf] {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// AdjustMode selects the corporate-action adjustment applied to closes.
type AdjustMode string

const (
	AdjustNone     AdjustMode = "none"
	AdjustForward  AdjustMode = "forward"
	AdjustBackward AdjustMode = "backward"
)

// ParseAdjustMode converts a user-supplied string into an AdjustMode.
func ParseAdjustMode(s string) (AdjustMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return AdjustNone, nil
	}
	m := AdjustMode(s)
	switch m {
	case AdjustNone, AdjustForward, AdjustBackward:
		return m, nil
	}
	return "", fmt.Errorf("unknown adjust mode %q", s)
}
