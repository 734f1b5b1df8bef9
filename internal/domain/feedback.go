package domain

import "time"

const (
	MinFeedbackRating = 1
	MaxFeedbackRating = 5
	MinFeedbackLength = 20
)

// Feedback 用户反馈
type Feedback struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"userId" gorm:"type:varchar(64);index;not null"`
	Rating    int       `json:"rating"`
	Text      string    `json:"feedback" gorm:"type:text"`
	Path      string    `json:"path" gorm:"type:varchar(512)"`
	UserAgent string    `json:"userAgent" gorm:"type:varchar(512)"`
	CreatedAt time.Time `json:"createdAt"`
}
