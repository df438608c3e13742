package models

import "gorm.io/gorm"

// Rating is left by one ride participant about the other.
type Rating struct {
	gorm.Model
	RideID  uint   `json:"ride_id" gorm:"uniqueIndex:idx_rating_ride_rater"`
	RaterID uint   `json:"rater_id" gorm:"uniqueIndex:idx_rating_ride_rater"` // User.ID
	RateeID uint   `json:"ratee_id" gorm:"index"`                             // User.ID
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}
