package repository

import (
	"study_ai_backend/internal/model"

	"gorm.io/gorm"
)

type LanguageRepository struct {
	DB *gorm.DB
}

func NewLanguageRepository(db *gorm.DB) *LanguageRepository {
	return &LanguageRepository{DB: db}
}

func (r *LanguageRepository) FindByID(id uint) (*model.Language, error) {
	var lang model.Language
	err := r.DB.First(&lang, id).Error
	return &lang, err
}

func (r *LanguageRepository) FindByCode(code string) (*model.Language, error) {
	var lang model.Language
	err := r.DB.Where("code = ?", code).First(&lang).Error
	return &lang, err
}

// Default 默认输出语言。迁移时播种，查不到说明部署环境有问题
func (r *LanguageRepository) Default() (*model.Language, error) {
	return r.FindByCode("en")
}

func (r *LanguageRepository) List() ([]model.Language, error) {
	var langs []model.Language
	err := r.DB.Order("id").Find(&langs).Error
	return langs, err
}
