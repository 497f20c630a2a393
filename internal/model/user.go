package model

import (
	"time"
)

type UserRole string

const (
	Student UserRole = "student"
	Admin   UserRole = "admin"
)

// swagger:model User
type User struct {
	BaseModel
	Name       string   `gorm:"size:100;not null" json:"Name"`
	Email      string   `gorm:"size:100;unique;not null" json:"Email"`
	Password   string   `gorm:"size:100;not null" json:"-"`
	Role       UserRole `gorm:"size:20;default:'student'" json:"Role"`
	LanguageID *uint    `gorm:"index" json:"LanguageId"`
	Language   *Language
	Disabled   bool      `gorm:"default:false" json:"Disabled"`
	LastLogin  time.Time `gorm:"autoCreateTime" json:"LastLogin"`
	LastSeen   time.Time `gorm:"autoCreateTime" json:"LastSeen"`
}

func (User) TableName() string {
	return "users"
}

// Language 输出语言设置，code "en" 作为默认语言由迁移时播种
type Language struct {
	BaseModel
	Code string `gorm:"size:10;uniqueIndex;not null" json:"Code"`
	Name string `gorm:"size:50;not null" json:"Name"`
}

func (Language) TableName() string {
	return "languages"
}
