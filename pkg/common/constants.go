package common

const (
	// RedisKeyLatestResult holds the JSON payload of the most recent scan.
	RedisKeyLatestResult = "screener.result.latest"

	// RedisKeyResultByDate is the prefix for dated scan results (suffix yyyymmdd).
	RedisKeyResultByDate = "screener.result."

	// MarketKOSPI and friends are the supported market segment identifiers.
	MarketKOSPI  = "KOSPI"
	MarketKOSDAQ = "KOSDAQ"
	MarketTSE    = "TSE"
)
