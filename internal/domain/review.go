package domain

import "time"

// ReviewDateLayout is the display format of Review.Date.
const ReviewDateLayout = "January 2, 2006"

type Review struct {
	ID           int64  `json:"id,omitempty"`
	LocalID      string `json:"local_id,omitempty"`
	RestaurantID int64  `json:"restaurant_id"`
	Name         string `json:"name"`
	Rating       int    `json:"rating"`
	Comments     string `json:"comments"`
	Date         string `json:"date"`
	Synced       bool   `json:"synced"`
}

// ReviewDraft is the user-supplied part of a review.
type ReviewDraft struct {
	Name     string `json:"name"`
	Rating   int    `json:"rating"`
	Comments string `json:"comments"`
}

func FormatReviewDate(t time.Time) string {
	return t.Local().Format(ReviewDateLayout)
}
