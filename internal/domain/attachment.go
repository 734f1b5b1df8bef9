package domain

// Attachment 邮件附件；内容存放在对象存储中，这里只保存引用。
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Key         string `json:"key,omitempty"` // 对象存储中的 key
	URL         string `json:"url,omitempty"`
	Content     []byte `json:"-"` // 入站邮件解析时的原始内容
}
