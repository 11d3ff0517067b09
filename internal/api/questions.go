package api

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"log/slog"

	"qaboard/internal/model"
	"qaboard/internal/store"

	"github.com/gin-gonic/gin"
)

// createQuestionRequest 创建提问的请求参数。
type createQuestionRequest struct {
	Title       string `json:"title" binding:"required,max=100"`
	Description string `json:"description" binding:"required"`
	IsPublic    *bool  `json:"is_public"`
}

// updateQuestionRequest 更新提问的请求参数，全部字段可选。
type updateQuestionRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"is_public"`
}

type questionResponse struct {
	ID          uint             `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	IsPublic    bool             `json:"is_public"`
	UserID      uint             `json:"user_id"`
	UserName    string           `json:"user_name"`
	Answers     []answerResponse `json:"answers"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type answerResponse struct {
	ID         uint      `json:"id"`
	Content    string    `json:"content"`
	QuestionID uint      `json:"question_id"`
	UserID     uint      `json:"user_id"`
	UserName   string    `json:"user_name"`
	IsAccepted bool      `json:"is_accepted"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toAnswerResponse(a *model.Answer) answerResponse {
	return answerResponse{
		ID:         a.ID,
		Content:    a.Content,
		QuestionID: a.QuestionID,
		UserID:     a.UserID,
		UserName:   a.User.Name,
		IsAccepted: a.IsAccepted,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func toQuestionResponse(q *model.Question) questionResponse {
	answers := make([]answerResponse, 0, len(q.Answers))
	for i := range q.Answers {
		answers = append(answers, toAnswerResponse(&q.Answers[i]))
	}
	return questionResponse{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		IsPublic:    q.IsPublic,
		UserID:      q.UserID,
		UserName:    q.User.Name,
		Answers:     answers,
		CreatedAt:   q.CreatedAt,
		UpdatedAt:   q.UpdatedAt,
	}
}

func toQuestionResponses(questions []model.Question) []questionResponse {
	out := make([]questionResponse, 0, len(questions))
	for i := range questions {
		out = append(out, toQuestionResponse(&questions[i]))
	}
	return out
}

// handleListPublicQuestions 返回全部公开提问，无需登录。
//
// GET /questions/public
func (s *Server) handleListPublicQuestions(c *gin.Context) {
	questions, err := s.questions.ListPublic(c.Request.Context())
	if err != nil {
		s.logger.Error("list public questions failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list questions failed"})
		return
	}
	c.JSON(http.StatusOK, toQuestionResponses(questions))
}

// handleListAllQuestions 返回全部提问（含私有），管理员专用。
//
// GET /questions
func (s *Server) handleListAllQuestions(c *gin.Context) {
	questions, err := s.questions.ListAll(c.Request.Context())
	if err != nil {
		s.logger.Error("list all questions failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list questions failed"})
		return
	}
	c.JSON(http.StatusOK, toQuestionResponses(questions))
}

// handleListMyQuestions 返回当前用户自己的提问。
//
// GET /questions/my-questions
func (s *Server) handleListMyQuestions(c *gin.Context) {
	identity := getIdentity(c)
	questions, err := s.questions.ListByOwner(c.Request.Context(), identity.ID)
	if err != nil {
		s.logger.Error("list my questions failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list questions failed"})
		return
	}
	c.JSON(http.StatusOK, toQuestionResponses(questions))
}

// handleGetQuestion 返回单个提问。
//
// GET /questions/:id
func (s *Server) handleGetQuestion(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}

	question, err := s.questions.Get(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	if err != nil {
		s.logger.Error("get question failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get question failed"})
		return
	}

	identity := getIdentity(c)
	if !identity.CanReadQuestion(question.UserID, question.IsPublic) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized to access this question"})
		return
	}

	c.JSON(http.StatusOK, toQuestionResponse(question))
}

// handleCreateQuestion 创建提问。
//
// POST /questions
func (s *Server) handleCreateQuestion(c *gin.Context) {
	identity := getIdentity(c)
	if !identity.CanCreateQuestion() {
		c.JSON(http.StatusForbidden, gin.H{"error": "account blocked, contact admin"})
		return
	}

	var req createQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	question := model.Question{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		IsPublic:    isPublic,
		UserID:      identity.ID,
	}
	if err := s.questions.Create(c.Request.Context(), &question); err != nil {
		s.logger.Error("create question failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create question failed"})
		return
	}

	c.JSON(http.StatusCreated, toQuestionResponse(&question))
}

// handleUpdateQuestion 更新提问的标题/描述/可见性，仅所有者。
//
// PUT /questions/:id
func (s *Server) handleUpdateQuestion(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}

	var req updateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question, err := s.questions.Get(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	if err != nil {
		s.logger.Error("get question failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update question failed"})
		return
	}

	identity := getIdentity(c)
	if !identity.CanUpdateQuestion(question.UserID) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized to update this question"})
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		// 与创建时 binding 的 max=100 一致，按字符数而不是字节数
		if title == "" || utf8.RuneCountInString(title) > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title"})
			return
		}
		updates["title"] = title
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if description == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid description"})
			return
		}
		updates["description"] = description
	}
	if req.IsPublic != nil {
		updates["is_public"] = *req.IsPublic
	}

	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no updates"})
		return
	}

	updated, err := s.questions.Update(c.Request.Context(), id, updates)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	if err != nil {
		s.logger.Error("update question failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update question failed"})
		return
	}

	c.JSON(http.StatusOK, toQuestionResponse(updated))
}

// handleDeleteQuestion 删除提问并级联删除其全部回答，所有者或管理员。
//
// DELETE /questions/:id
func (s *Server) handleDeleteQuestion(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}

	question, err := s.questions.Get(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	if err != nil {
		s.logger.Error("get question failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete question failed"})
		return
	}

	identity := getIdentity(c)
	if !identity.CanDeleteQuestion(question.UserID) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized to delete this question"})
		return
	}

	if err := s.deleteQuestionCascade(c, id); err != nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleForceDeleteQuestion 管理员无条件删除提问，路由层已做 AdminOnly。
//
// DELETE /questions/admin/:id
func (s *Server) handleForceDeleteQuestion(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}

	if err := s.deleteQuestionCascade(c, id); err != nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// deleteQuestionCascade 是两条删除路由共用的级联删除路径。
// 出错时直接写响应并返回非 nil，调用方只需提前返回。
func (s *Server) deleteQuestionCascade(c *gin.Context, id uint) error {
	err := s.questions.DeleteCascade(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return err
	}
	if err != nil {
		s.logger.Error("cascade delete question failed",
			slog.Uint64("question_id", uint64(id)),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to delete question"})
		return err
	}
	return nil
}
