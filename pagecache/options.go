package pagecache

import "go.uber.org/zap"

// Options carries the page cache's construction-time tuning parameters
// (spec.md §4.6: "minimum and maximum entry counts ... are fixed at
// construction"). It carries yaml tags, matching the shape of
// mantisDB's own config structs, so a caller's config loader can embed
// and decode it; this package never reads a file itself — config
// *loading* is out of scope.
type Options struct {
	MinEntries int    `yaml:"min_entries"`
	MaxEntries int    `yaml:"max_entries"`
	Compressor string `yaml:"compressor"`

	Logger *zap.Logger `yaml:"-"`
}

// DefaultOptions returns the tuning parameters spec.md §4.6 gives as its
// example (16 minimum, 16 million maximum), with no compression.
func DefaultOptions() Options {
	return Options{
		MinEntries: 16,
		MaxEntries: 16 * 1024 * 1024,
	}
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
