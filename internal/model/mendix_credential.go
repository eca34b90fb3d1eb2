package model

// MendixCredential Mendix平台API凭据（编排器只读）
type MendixCredential struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   int    `gorm:"not null;index" json:"user_id"`
	Name     string `gorm:"type:varchar(128);not null" json:"name"`
	Username string `gorm:"type:varchar(255);not null" json:"username"`
	// Deploy API v1使用的API key
	APIKey string `gorm:"type:varchar(255);not null" json:"-"`
	// v4接口使用的personal access token（可选）
	PAT       string `gorm:"type:varchar(512)" json:"-"`
	CreatedAt int64  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt int64  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (MendixCredential) TableName() string {
	return "mendix_credentials"
}
