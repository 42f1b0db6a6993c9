package auth

import (
	"context"

	"github.com/Aarizkhan-lorem/HDNotes/internal/model"

	"gorm.io/gorm"
)

// UserStore 定义认证流程需要的用户存取操作。
//
// 未找到记录时返回 gorm.ErrRecordNotFound。
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uint) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	Save(ctx context.Context, user *model.User) error
}

type dbUserStore struct {
	db *gorm.DB
}

// NewDBUserStore 创建基于 GORM 的用户存储。
func NewDBUserStore(db *gorm.DB) UserStore {
	return dbUserStore{db: db}
}

func (s dbUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s dbUserStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s dbUserStore) Create(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s dbUserStore) Save(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Save(user).Error
}
