package model

import "time"

// DemoSubmission 艺人投递的 demo 信息
type DemoSubmission struct {
	ID          string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	ArtistName  string    `json:"artistName" gorm:"type:varchar(255);not null"`
	Email       string    `json:"email" gorm:"type:varchar(255);not null"`
	Phone       string    `json:"phone,omitempty" gorm:"type:varchar(50)"`
	Location    string    `json:"location,omitempty" gorm:"type:varchar(255)"`
	Genres      string    `json:"genres,omitempty" gorm:"type:varchar(255)"`
	SocialLinks string    `json:"socialLinks,omitempty" gorm:"type:text"`
	Bio         string    `json:"bio" gorm:"type:text;not null"`
	SubmittedAt time.Time `json:"submittedAt" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (DemoSubmission) TableName() string { return "demo_submissions" }

// CollaborationRequest 合作请求
type CollaborationRequest struct {
	ID                string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name              string    `json:"name" gorm:"type:varchar(255);not null"`
	Email             string    `json:"email" gorm:"type:varchar(255);not null"`
	CollaborationType string    `json:"collaborationType" gorm:"type:varchar(100);not null"`
	Message           string    `json:"message" gorm:"type:text;not null"`
	SubmittedAt       time.Time `json:"submittedAt" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (CollaborationRequest) TableName() string { return "collaboration_requests" }

// FieldError describes one invalid field of an inbox request.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validate returns the missing required fields of a demo submission.
func (d *DemoSubmission) Validate() []FieldError {
	var errs []FieldError
	errs = requireField(errs, "artistName", d.ArtistName)
	errs = requireField(errs, "email", d.Email)
	errs = requireField(errs, "bio", d.Bio)
	return errs
}

// Validate returns the missing required fields of a collaboration request.
func (c *CollaborationRequest) Validate() []FieldError {
	var errs []FieldError
	errs = requireField(errs, "name", c.Name)
	errs = requireField(errs, "email", c.Email)
	errs = requireField(errs, "collaborationType", c.CollaborationType)
	errs = requireField(errs, "message", c.Message)
	return errs
}

func requireField(errs []FieldError, field, value string) []FieldError {
	if NormalizeKey(value) == "" {
		return append(errs, FieldError{Field: field, Message: "Required"})
	}
	return errs
}
