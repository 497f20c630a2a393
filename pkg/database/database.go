package database

import (
	"fmt"
	"log"

	"study_ai_backend/internal/config"
	"study_ai_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	return db, nil
}

// Migrate 建表并写入种子数据。测试用的sqlite库也走这里
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.Language{},
		&model.Category{},
		&model.DraftLearningGoal{},
		&model.LearningGoal{},
		&model.LearningMainTopic{},
		&model.LearningSubTopic{},
		&model.LectureSession{},
		&model.LectureTopic{},
		&model.LectureProgress{},
		&model.LectureLog{},
		&model.LectureSessionSlice{},
		&model.ExamType{},
		&model.ExamSession{},
		&model.ExamQuestion{},
		&model.ExamAnswer{},
		&model.ExamEvaluation{},
		&model.ExamResult{},
		&model.ExamSessionSlice{},
		&model.StudySession{},
	)
	if err != nil {
		return err
	}

	return seed(db)
}

func seed(db *gorm.DB) error {
	// 默认输出语言，用户未选择时回落到这里
	var langCount int64
	db.Model(&model.Language{}).Count(&langCount)
	if langCount == 0 {
		if err := db.Create(&model.Language{Code: "en", Name: "English"}).Error; err != nil {
			return err
		}
	}

	// 内置考试类型
	var etCount int64
	db.Model(&model.ExamType{}).Count(&etCount)
	if etCount == 0 {
		defaults := []model.ExamType{
			{
				Code:                "sub_topic_mcq",
				Name:                "子主题选择题测验",
				TargetLevel:         model.TargetSubTopic,
				FlowType:            model.FlowBatch,
				ScoringMethod:       model.ScoringBinary,
				DefaultQuestions:    5,
				MaxScorePerQuestion: 1,
				AllowPostChat:       false,
				IsActive:            true,
			},
			{
				Code:                "sub_topic_written",
				Name:                "子主题记述题测验",
				TargetLevel:         model.TargetSubTopic,
				FlowType:            model.FlowPerQuestion,
				ScoringMethod:       model.ScoringRubric,
				DefaultQuestions:    3,
				MaxScorePerQuestion: 20,
				AllowPostChat:       true,
				IsActive:            true,
			},
			{
				Code:                "main_topic_written",
				Name:                "主主题记述题测验",
				TargetLevel:         model.TargetMainTopic,
				FlowType:            model.FlowPerQuestion,
				ScoringMethod:       model.ScoringRubric,
				DefaultQuestions:    3,
				MaxScorePerQuestion: 20,
				AllowPostChat:       true,
				IsActive:            true,
			},
			{
				Code:                "goal_comprehensive",
				Name:                "学习目标综合测试",
				TargetLevel:         model.TargetGoal,
				FlowType:            model.FlowPerQuestion,
				ScoringMethod:       model.ScoringRubricHeavy,
				DefaultQuestions:    1,
				MaxScorePerQuestion: 100,
				AllowPostChat:       true,
				IsActive:            true,
			},
		}
		for _, et := range defaults {
			if err := db.Create(&et).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
