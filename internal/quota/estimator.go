package quota

// Estimator converts request text into a conservative token estimate before
// the upstream model reports actual usage.
type Estimator struct {
	// OverheadTokens covers system prompt and formatting tokens the raw
	// message length does not account for.
	OverheadTokens int64
	// SearchMultiplier scales estimates for retrieval-augmented requests,
	// which expand the prompt with document context.
	SearchMultiplier int64
	// MinReserveTokens is the floor an admission check reserves even for
	// tiny messages, since responses are never shorter than a few tokens.
	MinReserveTokens int64
}

// NewEstimator applies defaults for any unset field.
func NewEstimator(overhead, searchMultiplier, minReserve int64) Estimator {
	if overhead <= 0 {
		overhead = 20
	}
	if searchMultiplier <= 0 {
		searchMultiplier = 3
	}
	if minReserve <= 0 {
		minReserve = 100
	}
	return Estimator{
		OverheadTokens:   overhead,
		SearchMultiplier: searchMultiplier,
		MinReserveTokens: minReserve,
	}
}

// EstimateTokens approximates token usage as one token per four bytes of
// text, rounded up, plus fixed overhead.
func (e Estimator) EstimateTokens(text string) int64 {
	chars := int64(len(text))
	tokens := (chars + 3) / 4
	return tokens + e.OverheadTokens
}

// EstimateForSearch scales the plain estimate for search-backed requests.
func (e Estimator) EstimateForSearch(text string) int64 {
	return e.EstimateTokens(text) * e.SearchMultiplier
}

// Reserve returns the amount an admission check should hold for the request,
// never less than the configured floor.
func (e Estimator) Reserve(estimate int64) int64 {
	if estimate < e.MinReserveTokens {
		return e.MinReserveTokens
	}
	return estimate
}
