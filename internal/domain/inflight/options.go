package inflight

// Option applies a configuration option to the guard.
type Option func(*inMemoryGuard)

// WithMaxKeys bounds how many keys can be held at once.
// If maxKeys <= 0 the guard is unbounded.
func WithMaxKeys(maxKeys int) Option {
	return func(g *inMemoryGuard) {
		g.maxKeys = maxKeys
	}
}
