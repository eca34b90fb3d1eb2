package model

// MendixApp 已发现的Mendix应用（凭据维度缓存，编排器只读）
type MendixApp struct {
	BaseModel
	CredentialID int64  `gorm:"not null;uniqueIndex:uk_cred_app" json:"credential_id"`
	AppID        string `gorm:"type:varchar(128);not null;uniqueIndex:uk_cred_app" json:"app_id"`
	ProjectID    string `gorm:"type:varchar(128)" json:"project_id"`
	Name         string `gorm:"type:varchar(255)" json:"name"`
	URL          string `gorm:"type:varchar(512)" json:"url"`
}

// TableName 指定表名
func (MendixApp) TableName() string {
	return "mendix_apps"
}
