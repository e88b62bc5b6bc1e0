package cache

import "fmt"

// Key layout shared by the broadcaster and the periodic jobs.
const (
	CorridorKeyPattern     = "corridor:*"
	AnchorKeyPattern       = "anchor:*"
	AssetMetricsKeyPattern = "asset_metrics:*"
	AssetHoldersKeyPattern = "asset_holders:*"
)

func CorridorKey(pair string) string {
	return "corridor:" + pair
}

func AnchorKey(id string) string {
	return "anchor:" + id
}

func AssetMetricsKey(code, issuer string) string {
	return fmt.Sprintf("asset_metrics:%s:%s", code, issuer)
}

func AssetHoldersKey(code, issuer string) string {
	return fmt.Sprintf("asset_holders:%s:%s", code, issuer)
}
