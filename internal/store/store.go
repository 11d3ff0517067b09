package store

import (
	"context"
	"errors"
	"fmt"

	"qaboard/internal/model"
	"qaboard/internal/pkg/metrics"

	"gorm.io/gorm"
)

// ErrNotFound 表示目标记录不存在，由处理层映射为 404。
var ErrNotFound = errors.New("record not found")

// Questions 基于 gorm 的提问存储。
type Questions struct {
	db *gorm.DB
}

// NewQuestions 创建提问存储。
func NewQuestions(db *gorm.DB) *Questions {
	return &Questions{db: db}
}

// preloaded 附加读取时需要的关联：提问者、回答及回答者。
//
// 关联关系的权威来源始终是 Answer.QuestionID 外键，
// 这里只是读取时做显式 join，不维护任何冗余的回答列表。
func (s *Questions) preloaded(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("User").
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("answers.created_at ASC")
		}).
		Preload("Answers.User")
}

// ListPublic 返回全部公开提问，按创建时间倒序。
func (s *Questions) ListPublic(ctx context.Context) ([]model.Question, error) {
	questions := []model.Question{}
	if err := s.preloaded(ctx).
		Where("is_public = ?", true).
		Order("created_at DESC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("list public questions: %w", err)
	}
	return questions, nil
}

// ListAll 返回全部提问（含私有），管理员视图。
func (s *Questions) ListAll(ctx context.Context) ([]model.Question, error) {
	questions := []model.Question{}
	if err := s.preloaded(ctx).
		Order("created_at DESC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("list all questions: %w", err)
	}
	return questions, nil
}

// ListByOwner 返回指定用户创建的提问。
func (s *Questions) ListByOwner(ctx context.Context, userID uint) ([]model.Question, error) {
	questions := []model.Question{}
	if err := s.preloaded(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("list questions by owner: %w", err)
	}
	return questions, nil
}

// Get 返回单个提问及其全部回答。
func (s *Questions) Get(ctx context.Context, id uint) (*model.Question, error) {
	var question model.Question
	if err := s.preloaded(ctx).First(&question, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	return &question, nil
}

// Create 创建提问。
func (s *Questions) Create(ctx context.Context, question *model.Question) error {
	if err := s.db.WithContext(ctx).Create(question).Error; err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

// Update 按字段更新提问并返回更新后的完整记录。
func (s *Questions) Update(ctx context.Context, id uint, updates map[string]interface{}) (*model.Question, error) {
	res := s.db.WithContext(ctx).Model(&model.Question{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update question: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// DeleteCascade 在单个事务内删除提问及其全部回答。
//
// 任意一步失败则整体回滚，不允许出现"回答没了提问还在"
// 或"提问没了回答成孤儿"的中间状态。
func (s *Questions) DeleteCascade(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var question model.Question
		if err := tx.First(&question, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Where("question_id = ?", id).Delete(&model.Answer{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Question{}, id).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("cascade delete question: %w", err)
	}
	metrics.QuestionCascadeDeletedTotal.Inc()
	return nil
}

// Answers 基于 gorm 的回答存储。
type Answers struct {
	db *gorm.DB
}

// NewAnswers 创建回答存储。
func NewAnswers(db *gorm.DB) *Answers {
	return &Answers{db: db}
}

// Get 返回单个回答，并带出所属提问（采纳判定需要提问的所有者）。
func (s *Answers) Get(ctx context.Context, id uint) (*model.Answer, error) {
	var answer model.Answer
	if err := s.db.WithContext(ctx).
		Preload("Question").
		Preload("User").
		First(&answer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get answer: %w", err)
	}
	return &answer, nil
}

// Create 在指定提问下创建回答；提问不存在返回 ErrNotFound。
func (s *Answers) Create(ctx context.Context, answer *model.Answer) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var question model.Question
		if err := tx.First(&question, answer.QuestionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		return tx.Create(answer).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("create answer: %w", err)
	}
	return nil
}

// Update 按字段更新回答并返回更新后的记录。
func (s *Answers) Update(ctx context.Context, id uint, updates map[string]interface{}) (*model.Answer, error) {
	res := s.db.WithContext(ctx).Model(&model.Answer{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update answer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete 删除单条回答，所属提问保持不变。
//
// 回答与提问的关联只存在于外键上，删除行即完成脱钩；
// 被采纳的回答被删除后不会自动采纳其他回答。
func (s *Answers) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Answer{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete answer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Accept 采纳指定回答。
//
// 在同一事务内先清空该提问下所有回答的采纳标记，再置位目标回答，
// 保证任意时刻同一提问最多只有一条已采纳回答。
// 两个并发采纳请求谁后提交谁生效，但不会留下双采纳状态。
func (s *Answers) Accept(ctx context.Context, id uint) (*model.Answer, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var answer model.Answer
		if err := tx.First(&answer, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Model(&model.Answer{}).
			Where("question_id = ?", answer.QuestionID).
			Update("is_accepted", false).Error; err != nil {
			return err
		}
		return tx.Model(&model.Answer{}).
			Where("id = ?", id).
			Update("is_accepted", true).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("accept answer: %w", err)
	}
	metrics.AnswerAcceptedTotal.Inc()
	return s.Get(ctx, id)
}
