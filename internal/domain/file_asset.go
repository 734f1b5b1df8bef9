package domain

import (
	"path"
	"strings"
	"time"
)

// FileAsset CDN 文件的元数据，文件内容保存在对象存储中。
type FileAsset struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID      string     `json:"userId" gorm:"type:varchar(64);index;not null"`
	Key         string     `json:"key" gorm:"column:object_key;type:varchar(512);uniqueIndex;not null"`
	Filename    string     `json:"filename" gorm:"type:varchar(255);not null"`
	ContentType string     `json:"contentType" gorm:"type:varchar(127)"`
	Extension   string     `json:"extension" gorm:"type:varchar(32)"`
	Size        int64      `json:"size"`
	Hash        string     `json:"hash,omitempty" gorm:"type:varchar(128)"`
	Deleted     bool       `json:"deleted" gorm:"default:false;index"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
	Views       int64      `json:"views"`
	LastViewed  *time.Time `json:"lastViewed,omitempty"`
	Bandwidth   int64      `json:"bandwidth"`
	UploadedAt  time.Time  `json:"uploadedAt"`
}

// FileKey 生成对象 key：{owner}/{filename}
func FileKey(owner, filename string) string {
	return owner + "/" + filename
}

// FileExtension 返回不带点的小写扩展名。
func FileExtension(filename string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
}

// FileStats 租户的文件用量统计
type FileStats struct {
	TotalSize      int64 `json:"totalSize"`
	TotalBandwidth int64 `json:"totalBandwidth"`
	FileCount      int64 `json:"fileCount"`
}
