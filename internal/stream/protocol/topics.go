package protocol

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	corridorPrefix = "corridor:"
	paymentsPrefix = "payments:"
	anchorPrefix   = "anchor:"

	AlertsTopic = "alerts"
)

var (
	pairPattern     = regexp.MustCompile(`^[A-Za-z0-9]{1,12}-[A-Za-z0-9]{1,12}$`)
	anchorIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)
)

// CorridorPair returns the canonical corridor key of two asset codes: the
// codes sorted and joined with a dash, e.g. USDC-XLM.
func CorridorPair(assetA, assetB string) string {
	if assetA > assetB {
		assetA, assetB = assetB, assetA
	}
	return assetA + "-" + assetB
}

func CorridorTopic(pair string) string {
	return corridorPrefix + pair
}

func PaymentsTopic(pair string) string {
	return paymentsPrefix + pair
}

func AnchorTopic(anchorID string) string {
	return anchorPrefix + anchorID
}

// ValidateTopic checks a channel name sent by a client.
func ValidateTopic(topic string) error {
	switch {
	case topic == AlertsTopic:
		return nil
	case strings.HasPrefix(topic, corridorPrefix):
		return validatePair(topic, strings.TrimPrefix(topic, corridorPrefix))
	case strings.HasPrefix(topic, paymentsPrefix):
		return validatePair(topic, strings.TrimPrefix(topic, paymentsPrefix))
	case strings.HasPrefix(topic, anchorPrefix):
		if !anchorIDPattern.MatchString(strings.TrimPrefix(topic, anchorPrefix)) {
			return fmt.Errorf("invalid anchor channel %q", topic)
		}
		return nil
	}
	return fmt.Errorf("unknown channel %q", topic)
}

func validatePair(topic, pair string) error {
	if !pairPattern.MatchString(pair) {
		return fmt.Errorf("invalid corridor channel %q", topic)
	}
	return nil
}
