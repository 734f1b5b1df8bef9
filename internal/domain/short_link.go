package domain

import "time"

// ShortLink 短链接：短码到目标地址的映射。
type ShortLink struct {
	ID            string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID        string     `json:"userId" gorm:"type:varchar(64);index;not null"`
	Code          string     `json:"shortCode" gorm:"type:varchar(16);uniqueIndex;not null"`
	Destination   string     `json:"destination" gorm:"type:text;not null"`
	Clicks        int64      `json:"clicks"`
	LastClickedAt *time.Time `json:"lastClickedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}
