package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"qaboard/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	if err := db.AutoMigrate(&model.User{}, &model.Question{}, &model.Answer{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string) *model.User {
	t.Helper()
	user := model.User{Name: name, Email: name + "@example.com", Password: "x", Role: "member"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return &user
}

func seedQuestion(t *testing.T, db *gorm.DB, owner *model.User, title string, public bool) *model.Question {
	t.Helper()
	q := model.Question{Title: title, Description: "desc", IsPublic: public, UserID: owner.ID}
	if err := db.Create(&q).Error; err != nil {
		t.Fatalf("seed question: %v", err)
	}
	return &q
}

func seedAnswer(t *testing.T, db *gorm.DB, q *model.Question, author *model.User, content string) *model.Answer {
	t.Helper()
	a := model.Answer{Content: content, QuestionID: q.ID, UserID: author.ID}
	if err := db.Create(&a).Error; err != nil {
		t.Fatalf("seed answer: %v", err)
	}
	return &a
}

func TestQuestions_ListPublicFiltersPrivate(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db, "owner")
	seedQuestion(t, db, owner, "public question", true)
	seedQuestion(t, db, owner, "private question", false)

	questions, err := NewQuestions(db).ListPublic(context.Background())
	if err != nil {
		t.Fatalf("list public: %v", err)
	}
	if len(questions) != 1 {
		t.Fatalf("expected 1 public question, got %d", len(questions))
	}
	if questions[0].Title != "public question" {
		t.Fatalf("unexpected question: %q", questions[0].Title)
	}
}

func TestQuestions_GetPreloadsAnswersWithAuthors(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db, "owner")
	answerer := seedUser(t, db, "helper")
	q := seedQuestion(t, db, owner, "how", true)
	seedAnswer(t, db, q, answerer, "like this")

	got, err := NewQuestions(db).Get(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.User.Name != "owner" {
		t.Fatalf("expected owner preloaded, got %q", got.User.Name)
	}
	if len(got.Answers) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(got.Answers))
	}
	if got.Answers[0].User.Name != "helper" {
		t.Fatalf("expected answer author preloaded, got %q", got.Answers[0].User.Name)
	}
}

func TestQuestions_GetNotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := NewQuestions(db).Get(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQuestions_UpdateNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := NewQuestions(db).Update(context.Background(), 999, map[string]interface{}{"title": "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQuestions_DeleteCascadeRemovesAnswers(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db, "owner")
	helper := seedUser(t, db, "helper")
	q := seedQuestion(t, db, owner, "doomed", true)
	seedAnswer(t, db, q, helper, "a1")
	seedAnswer(t, db, q, helper, "a2")
	other := seedQuestion(t, db, owner, "survivor", true)
	kept := seedAnswer(t, db, other, helper, "keep me")

	if err := NewQuestions(db).DeleteCascade(context.Background(), q.ID); err != nil {
		t.Fatalf("cascade delete: %v", err)
	}

	var questionCount int64
	if err := db.Model(&model.Question{}).Where("id = ?", q.ID).Count(&questionCount).Error; err != nil {
		t.Fatalf("count questions: %v", err)
	}
	if questionCount != 0 {
		t.Fatalf("expected question to be gone")
	}

	var orphanCount int64
	if err := db.Model(&model.Answer{}).Where("question_id = ?", q.ID).Count(&orphanCount).Error; err != nil {
		t.Fatalf("count answers: %v", err)
	}
	if orphanCount != 0 {
		t.Fatalf("expected no orphaned answers, got %d", orphanCount)
	}

	// 其他提问及其回答不受影响
	var keptAnswer model.Answer
	if err := db.First(&keptAnswer, kept.ID).Error; err != nil {
		t.Fatalf("expected unrelated answer to survive: %v", err)
	}
}

func TestQuestions_DeleteCascadeNotFound(t *testing.T) {
	db := newTestDB(t)
	if err := NewQuestions(db).DeleteCascade(context.Background(), 12345); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAnswers_CreateRequiresExistingQuestion(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "helper")

	answer := model.Answer{Content: "orphan", QuestionID: 999, UserID: user.ID}
	if err := NewAnswers(db).Create(context.Background(), &answer); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var count int64
	if err := db.Model(&model.Answer{}).Count(&count).Error; err != nil {
		t.Fatalf("count answers: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected nothing persisted, got %d answers", count)
	}
}

func TestAnswers_DeleteLeavesQuestionIntact(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db, "owner")
	helper := seedUser(t, db, "helper")
	q := seedQuestion(t, db, owner, "still here", true)
	a1 := seedAnswer(t, db, q, helper, "delete me")
	a2 := seedAnswer(t, db, q, helper, "keep me")

	if err := NewAnswers(db).Delete(context.Background(), a1.ID); err != nil {
		t.Fatalf("delete answer: %v", err)
	}

	question, err := NewQuestions(db).Get(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("question should survive: %v", err)
	}
	if len(question.Answers) != 1 || question.Answers[0].ID != a2.ID {
		t.Fatalf("expected only the second answer to remain")
	}
}

func TestAnswers_AcceptIsExclusive(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db, "owner")
	helper := seedUser(t, db, "helper")
	q := seedQuestion(t, db, owner, "pick one", true)
	a1 := seedAnswer(t, db, q, helper, "first")
	a2 := seedAnswer(t, db, q, helper, "second")

	answers := NewAnswers(db)
	ctx := context.Background()

	accepted, err := answers.Accept(ctx, a1.ID)
	if err != nil {
		t.Fatalf("accept a1: %v", err)
	}
	if !accepted.IsAccepted {
		t.Fatalf("expected a1 accepted")
	}
	assertAcceptedCount(t, db, q.ID, 1, a1.ID)

	// 采纳另一条回答，旧的采纳标记必须被清掉
	accepted, err = answers.Accept(ctx, a2.ID)
	if err != nil {
		t.Fatalf("accept a2: %v", err)
	}
	if !accepted.IsAccepted {
		t.Fatalf("expected a2 accepted")
	}
	assertAcceptedCount(t, db, q.ID, 1, a2.ID)
}

func TestAnswers_AcceptDoesNotTouchOtherQuestions(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db, "owner")
	helper := seedUser(t, db, "helper")
	q1 := seedQuestion(t, db, owner, "q1", true)
	q2 := seedQuestion(t, db, owner, "q2", true)
	a1 := seedAnswer(t, db, q1, helper, "q1 answer")
	a2 := seedAnswer(t, db, q2, helper, "q2 answer")

	answers := NewAnswers(db)
	ctx := context.Background()

	if _, err := answers.Accept(ctx, a1.ID); err != nil {
		t.Fatalf("accept a1: %v", err)
	}
	if _, err := answers.Accept(ctx, a2.ID); err != nil {
		t.Fatalf("accept a2: %v", err)
	}

	assertAcceptedCount(t, db, q1.ID, 1, a1.ID)
	assertAcceptedCount(t, db, q2.ID, 1, a2.ID)
}

// TestAnswers_AcceptConcurrentExclusive 并发采纳同一提问下的两条回答。
// 用文件库而不是单连接内存库，让事务真正互相竞争；
// SQLITE_BUSY 导致的个别失败可以接受，最终状态必须恰好一条已采纳。
func TestAnswers_AcceptConcurrentExclusive(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.Join(t.TempDir(), "accept.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	if err := db.AutoMigrate(&model.User{}, &model.Question{}, &model.Answer{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	owner := seedUser(t, db, "owner")
	helper := seedUser(t, db, "helper")
	q := seedQuestion(t, db, owner, "contested", true)
	a1 := seedAnswer(t, db, q, helper, "first")
	a2 := seedAnswer(t, db, q, helper, "second")

	answers := NewAnswers(db)
	targets := []uint{a1.ID, a2.ID}

	var wg sync.WaitGroup
	var succeeded int64
	for i := 0; i < 16; i++ {
		id := targets[i%2]
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			if _, err := answers.Accept(context.Background(), id); err == nil {
				atomic.AddInt64(&succeeded, 1)
			}
		}(id)
	}
	wg.Wait()

	if succeeded == 0 {
		t.Fatalf("expected at least one accept to succeed")
	}

	var count int64
	if err := db.Model(&model.Answer{}).
		Where("question_id = ? AND is_accepted = ?", q.ID, true).
		Count(&count).Error; err != nil {
		t.Fatalf("count accepted: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 accepted answer after %d concurrent accepts, got %d", succeeded, count)
	}

	var accepted model.Answer
	if err := db.Where("question_id = ? AND is_accepted = ?", q.ID, true).First(&accepted).Error; err != nil {
		t.Fatalf("load accepted: %v", err)
	}
	if accepted.ID != a1.ID && accepted.ID != a2.ID {
		t.Fatalf("accepted answer %d is neither contender", accepted.ID)
	}
}

func TestAnswers_AcceptNotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := NewAnswers(db).Accept(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func assertAcceptedCount(t *testing.T, db *gorm.DB, questionID uint, want int64, wantID uint) {
	t.Helper()
	var count int64
	if err := db.Model(&model.Answer{}).
		Where("question_id = ? AND is_accepted = ?", questionID, true).
		Count(&count).Error; err != nil {
		t.Fatalf("count accepted: %v", err)
	}
	if count != want {
		t.Fatalf("expected %d accepted answer(s), got %d", want, count)
	}
	var accepted model.Answer
	if err := db.Where("question_id = ? AND is_accepted = ?", questionID, true).First(&accepted).Error; err != nil {
		t.Fatalf("load accepted: %v", err)
	}
	if accepted.ID != wantID {
		t.Fatalf("expected answer %d accepted, got %d", wantID, accepted.ID)
	}
}
