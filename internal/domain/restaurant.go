package domain

import (
	"fmt"
	"strings"
)

// DefaultPhoto is the logical image name used when a restaurant has no photograph.
const DefaultPhoto = "default"

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Restaurant is one directory entry. It is stored locally as a single
// document; reviews live inside it and are persisted with it.
type Restaurant struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	Address        string            `json:"address"`
	CuisineType    string            `json:"cuisine_type"`
	Neighborhood   string            `json:"neighborhood"`
	LatLng         LatLng            `json:"latlng"`
	Photograph     *string           `json:"photograph,omitempty"`
	OperatingHours map[string]string `json:"operating_hours,omitempty"`
	IsFavorite     bool              `json:"is_favorite"`
	CreatedAt      string            `json:"createdAt,omitempty"`
	UpdatedAt      string            `json:"updatedAt,omitempty"`

	// Reviews is nil until reviews were fetched for this restaurant.
	// An empty non-nil slice means "fetched, none exist".
	Reviews []Review `json:"reviews"`

	// FavoritePending marks an is_favorite value the remote has not confirmed.
	FavoritePending bool `json:"favorite_pending,omitempty"`

	// Version is the local optimistic-concurrency token (0 = never stored).
	Version int64 `json:"-"`
}

func (r Restaurant) PhotoName() string {
	if r.Photograph == nil || strings.TrimSpace(*r.Photograph) == "" {
		return DefaultPhoto
	}
	return strings.TrimSuffix(*r.Photograph, ".jpg")
}

// ImageURL returns the site-relative URL of a size variant, e.g. "small"
// yields /img/3-small.jpg.
func (r Restaurant) ImageURL(variant string) string {
	if variant == "" {
		return fmt.Sprintf("/img/%s.jpg", r.PhotoName())
	}
	return fmt.Sprintf("/img/%s-%s.jpg", r.PhotoName(), variant)
}

func (r Restaurant) DetailURL() string {
	return fmt.Sprintf("/restaurant.html?id=%d", r.ID)
}

// Clone returns a deep copy so callers can mutate without aliasing a
// cached or stored value.
func (r Restaurant) Clone() Restaurant {
	out := r
	if r.Photograph != nil {
		p := *r.Photograph
		out.Photograph = &p
	}
	if r.OperatingHours != nil {
		out.OperatingHours = make(map[string]string, len(r.OperatingHours))
		for k, v := range r.OperatingHours {
			out.OperatingHours[k] = v
		}
	}
	if r.Reviews != nil {
		out.Reviews = make([]Review, len(r.Reviews))
		copy(out.Reviews, r.Reviews)
	}
	return out
}

// UnsyncedReviews counts reviews still waiting for remote confirmation.
func (r Restaurant) UnsyncedReviews() int {
	n := 0
	for _, rv := range r.Reviews {
		if !rv.Synced {
			n++
		}
	}
	return n
}
