package app

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"restaurant_offline/internal/domain"
)

/********** alias registries **********/

var restaurantAliases = map[string][]string{
	"name":         {"name", "title"},
	"address":      {"address", "address.line", "full_address"},
	"cuisine":      {"cuisine_type", "cuisineType", "cuisine"},
	"neighborhood": {"neighborhood", "neighbourhood", "borough"},
	"photograph":   {"photograph", "photo", "image"},
	"created":      {"createdAt", "created_at"},
	"updated":      {"updatedAt", "updated_at"},
}

var reviewAliases = map[string][]string{
	"name":     {"name", "author", "reviewer"},
	"comments": {"comments", "comment", "text", "body"},
	"date":     {"date"},
}

/********** tiny helpers **********/

// lookupAny: nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// scalarString renders strings and numbers; anything else is "".
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

func firstString(m map[string]any, aliases map[string][]string, key string) string {
	for _, p := range aliases[key] {
		if s := strings.TrimSpace(scalarString(lookupAny(m, p))); s != "" {
			return s
		}
	}
	return ""
}

// floatFlexible: number from several paths (float64/int/string like "8,0").
func floatFlexible(m map[string]any, paths ...string) (float64, bool) {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func int64Flexible(m map[string]any, paths ...string) int64 {
	if f, ok := floatFlexible(m, paths...); ok {
		return int64(f)
	}
	return 0
}

// boolFlexible accepts JSON booleans and the "true"/"false" strings some
// remote versions send for is_favorite.
func boolFlexible(m map[string]any, paths ...string) bool {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b
			}
		case float64:
			return v != 0
		}
	}
	return false
}

// reviewDate turns a remote timestamp (epoch millis or RFC3339) into the
// display date. Falls back to an explicit "date" field.
func reviewDate(m map[string]any) string {
	for _, k := range []string{"createdAt", "created_at"} {
		switch v := lookupAny(m, k).(type) {
		case float64:
			return domain.FormatReviewDate(time.UnixMilli(int64(v)))
		case string:
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				return domain.FormatReviewDate(ts)
			}
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
				return domain.FormatReviewDate(time.UnixMilli(ms))
			}
		}
	}
	return firstString(m, reviewAliases, "date")
}

/********** mappers **********/

func mapRestaurant(p map[string]any) domain.Restaurant {
	r := domain.Restaurant{
		ID:           int64Flexible(p, "id"),
		Name:         firstString(p, restaurantAliases, "name"),
		Address:      firstString(p, restaurantAliases, "address"),
		CuisineType:  firstString(p, restaurantAliases, "cuisine"),
		Neighborhood: firstString(p, restaurantAliases, "neighborhood"),
		IsFavorite:   boolFlexible(p, "is_favorite", "isFavorite"),
		CreatedAt:    firstString(p, restaurantAliases, "created"),
		UpdatedAt:    firstString(p, restaurantAliases, "updated"),
	}
	if lat, ok := floatFlexible(p, "latlng.lat", "lat", "latitude"); ok {
		r.LatLng.Lat = lat
	}
	if lng, ok := floatFlexible(p, "latlng.lng", "lng", "lon", "longitude"); ok {
		r.LatLng.Lng = lng
	}
	if ph := firstString(p, restaurantAliases, "photograph"); ph != "" {
		r.Photograph = &ph
	}
	if hours, ok := lookupAny(p, "operating_hours").(map[string]any); ok {
		r.OperatingHours = make(map[string]string, len(hours))
		for day, v := range hours {
			r.OperatingHours[day] = scalarString(v)
		}
	}
	if r.ID == 0 {
		log.Warn().Str("context", "mapRestaurant").Str("name", r.Name).Msg("remote restaurant without id")
	}
	return r
}

// mapReview maps a remote review. Anything the remote returns is already
// stored there, hence Synced.
func mapReview(restaurantID int64, m map[string]any) domain.Review {
	rating, _ := floatFlexible(m, "rating", "rate", "score")
	rid := int64Flexible(m, "restaurant_id", "restaurantId")
	if rid == 0 {
		rid = restaurantID
	}
	return domain.Review{
		ID:           int64Flexible(m, "id"),
		RestaurantID: rid,
		Name:         firstString(m, reviewAliases, "name"),
		Rating:       int(rating),
		Comments:     firstString(m, reviewAliases, "comments"),
		Date:         reviewDate(m),
		Synced:       true,
	}
}

func mapReviews(restaurantID int64, in []map[string]any) []domain.Review {
	out := make([]domain.Review, 0, len(in))
	for _, m := range in {
		out = append(out, mapReview(restaurantID, m))
	}
	return out
}
