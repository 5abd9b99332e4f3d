package relay

// Usage tracks token consumption for one stream.
//
// Invariant: TotalTokens = InputTokens + OutputTokens when the engine does
// not report a total of its own; engines that do report one are taken at
// their word. Cache counters are zero when the engine does not support
// prompt caching.
type Usage struct {
	InputTokens           int
	OutputTokens          int
	TotalTokens           int
	CacheReadInputTokens  int
	CacheWriteInputTokens int
}
