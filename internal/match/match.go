// Package match implements the route comparison rules. Both predicates are
// asymmetric subset tests over key-sets, never similarity scores: requiring
// every key of the terser side to appear in the richer side prevents false
// matches on shared vocabulary like "базар".
package match

import "ride_bot/internal/model"

// SubscriptionMatches reports whether a listing satisfies a subscription:
// every subscription key must appear in the listing's corresponding leg, and
// both legs must pass independently.
//
//	sub [базар] vs listing [дордой базар]      -> match
//	sub [ош базар] vs listing [дордой базар]   -> no match (ош missing)
//	sub [ош базар] vs listing [ош базар центр] -> match
func SubscriptionMatches(sub *model.Subscription, listing *model.Listing) bool {
	return subset(sub.KeysFrom, listing.KeysFrom) && subset(sub.KeysTo, listing.KeysTo)
}

// ListingsMatch reports whether two listings describe the same route in the
// same direction. Either listing may be the more general one, but origin is
// only ever compared to origin and destination to destination, so a route
// never matches its own reverse. Callers restrict candidates to opposite
// role, active status and a different author before applying this test.
func ListingsMatch(a, b *model.Listing) bool {
	if subset(a.KeysFrom, b.KeysFrom) && subset(a.KeysTo, b.KeysTo) {
		return true
	}
	return subset(b.KeysFrom, a.KeysFrom) && subset(b.KeysTo, a.KeysTo)
}

// subset reports whether every key in sub occurs in super.
func subset(sub, super []string) bool {
	if len(sub) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(super))
	for _, k := range super {
		set[k] = struct{}{}
	}
	for _, k := range sub {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}
