package service

import (
	"errors"

	"study_ai_backend/internal/config"
	"study_ai_backend/internal/model"
	"study_ai_backend/internal/repository"
	"study_ai_backend/internal/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	UserRepo     *repository.UserRepository
	LanguageRepo *repository.LanguageRepository
	Cfg          *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, languageRepo *repository.LanguageRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo:     userRepo,
		LanguageRepo: languageRepo,
		Cfg:          cfg,
	}
}

func (s *AuthService) Register(user *model.User) error {
	_, err := s.UserRepo.FindByEmail(user.Email)
	if err == nil {
		return util.ErrEmailRegistered
	} else if err != gorm.ErrRecordNotFound {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hashedPassword)

	// 未指定语言时落到默认语言
	if user.LanguageID == nil {
		lang, err := s.LanguageRepo.Default()
		if err == nil {
			user.LanguageID = &lang.ID
		}
	}

	return s.UserRepo.Create(user)
}

func (s *AuthService) Login(email, password string) (string, error) {
	user, err := s.UserRepo.FindByEmail(email)
	if err != nil {
		return "", errors.New("invalid credentials")
	}

	if user.Disabled {
		return "", errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}

	if err := s.UserRepo.UpdateLastLogin(user.ID); err != nil {
		return "", err
	}

	return util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
}

func (s *AuthService) GetCurrentUser(c *gin.Context) *model.User {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		return nil
	}

	user, _ := s.UserRepo.FindByID(claims.UserID)
	return user
}

// SetLanguage 修改用户的输出语言
func (s *AuthService) SetLanguage(userID uint, languageCode string) error {
	lang, err := s.LanguageRepo.FindByCode(languageCode)
	if err != nil {
		return err
	}
	return s.UserRepo.UpdateLanguage(userID, lang.ID)
}

// preferredLanguage 用户语言，未设置时回落到默认语言。默认语言缺失按配置错误处理
func preferredLanguage(user *model.User, languageRepo *repository.LanguageRepository) (*model.Language, error) {
	if user.Language != nil {
		return user.Language, nil
	}
	lang, err := languageRepo.Default()
	if err == gorm.ErrRecordNotFound {
		return nil, util.NewConfigurationError("language", "default language is not seeded")
	}
	return lang, err
}
