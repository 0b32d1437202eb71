// internal/circulation/policy.go
package circulation

import "time"

// LoanDurationForItem maps an item's circulation restriction to the loan
// duration granted at checkout and on each extension. Pure function.
func LoanDurationForItem(item *Item) time.Duration {
	const day = 24 * time.Hour
	switch item.CirculationRestriction {
	case RestrictionOneWeek:
		return 7 * day
	case RestrictionTwoWeeks:
		return 14 * day
	case RestrictionThreeWeeks:
		return 21 * day
	default:
		// NO_RESTRICTION and anything unrecognized
		return 28 * day
	}
}
