package logic

import (
	"fmt"

	"github.com/blues/crowdsync/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserLogic 用户业务逻辑
type UserLogic struct {
	db *gorm.DB
}

// NewUserLogic 创建用户业务逻辑
func NewUserLogic(db *gorm.DB) *UserLogic {
	return &UserLogic{db: db}
}

// EnsureUser 按钱包地址幂等创建用户
// 事件重放路径会反复调用，地址唯一索引保证只落一行
func (u *UserLogic) EnsureUser(address string) error {
	if address == "" {
		return fmt.Errorf("%w: address is required", ErrValidation)
	}

	err := u.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoNothing: true,
	}).Create(&model.UserModel{Address: address}).Error
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// GetUserByAddress 按地址获取用户
func (u *UserLogic) GetUserByAddress(address string) (*model.UserModel, error) {
	var user model.UserModel
	if err := u.db.Where("address = ?", address).First(&user).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &user, nil
}
