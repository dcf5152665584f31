package resourcecache

import (
	"net/url"
	"regexp"
	"strings"

	"restaurant_offline/internal/shared"
)

type Strategy int

const (
	StrategyDefault Strategy = iota
	StrategyAppShell
	StrategyImage
	StrategyTile
	StrategyData
)

func (s Strategy) String() string {
	switch s {
	case StrategyAppShell:
		return "app_shell"
	case StrategyImage:
		return "image"
	case StrategyTile:
		return "tile"
	case StrategyData:
		return "data"
	default:
		return "default"
	}
}

// Policy decides, from the URL alone, which strategy, bucket and cache key a
// request maps to.
type Policy struct {
	AppShellRoutes []*regexp.Regexp
	TilePrefix     string
	DataPrefix     string

	StaticBucket string
	ImageBucket  string
	TileBucket   string
}

// Route is the outcome of classifying one request URL.
type Route struct {
	Strategy Strategy
	Bucket   string
	Key      string
}

// imageSuffix matches the size/quality suffix of the last path segment,
// e.g. "-small.jpg" or "-800_large_1x.jpg".
var imageSuffix = regexp.MustCompile(`-[^/-]+\.jpg$`)

// CompileRoutes turns route patterns into regexps, skipping blanks.
func CompileRoutes(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func (p *Policy) Classify(u *url.URL) Route {
	raw := u.String()
	switch {
	case p.DataPrefix != "" && strings.HasPrefix(raw, p.DataPrefix):
		return Route{Strategy: StrategyData, Key: raw}
	case p.TilePrefix != "" && strings.HasPrefix(raw, p.TilePrefix):
		return Route{Strategy: StrategyTile, Bucket: p.TileBucket, Key: NormalizeTileKey(raw)}
	case strings.Contains(u.Path, "/img/"):
		return Route{Strategy: StrategyImage, Bucket: p.ImageBucket, Key: NormalizeImageKey(u)}
	case p.isAppShell(u.Path):
		return Route{Strategy: StrategyAppShell, Bucket: p.StaticBucket, Key: raw}
	default:
		return Route{Strategy: StrategyDefault, Bucket: p.StaticBucket, Key: raw}
	}
}

// Retained lists the bucket names that survive activation.
func (p *Policy) Retained() map[string]struct{} {
	set := make(map[string]struct{}, 3)
	for _, n := range []string{p.StaticBucket, p.ImageBucket, p.TileBucket} {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func (p *Policy) isAppShell(path string) bool {
	for _, re := range p.AppShellRoutes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// NormalizeImageKey drops the query and the trailing "-<suffix>.jpg" so every
// size variant of a photo shares one key: /img/3-small.jpg and
// /img/3-800_large_1x.jpg both become /img/3.
func NormalizeImageKey(u *url.URL) string {
	base := u.Scheme + "://" + u.Host + u.Path
	if u.Scheme == "" {
		base = u.Path
	}
	return imageSuffix.ReplaceAllString(base, "")
}

// NormalizeTileKey cuts the URL at the first ".jpg", discarding format
// suffixes and access-token query strings.
func NormalizeTileKey(raw string) string {
	if i := strings.Index(raw, ".jpg"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// PolicyFromConfig builds the policy for the configured origins and buckets.
func PolicyFromConfig(c shared.Config) (*Policy, error) {
	routes, err := CompileRoutes(c.AppShellRoutes)
	if err != nil {
		return nil, err
	}
	return &Policy{
		AppShellRoutes: routes,
		TilePrefix:     c.TileOrigin,
		DataPrefix:     c.RemoteBase + "/",
		StaticBucket:   c.StaticBucket,
		ImageBucket:    c.ImageBucket,
		TileBucket:     c.TileBucket,
	}, nil
}
