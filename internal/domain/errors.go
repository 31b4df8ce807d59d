package domain

import "github.com/pkg/errors"

var (
	// ErrPriceMissing no daily price is known for the requested asset and date.
	ErrPriceMissing = errors.New("price missing")
	// ErrMalformedRecord raw record does not match the expected shape.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrAssetIncomplete upstream data for the asset could not be fetched.
	ErrAssetIncomplete = errors.New("asset data incomplete")
	// ErrUnknownAsset symbol is not BTC, ETH or LTC.
	ErrUnknownAsset = errors.New("unknown asset")
)
