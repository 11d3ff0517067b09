package api

import (
	"errors"
	"net/http"
	"strings"

	"log/slog"

	"qaboard/internal/model"
	"qaboard/internal/store"

	"github.com/gin-gonic/gin"
)

// createAnswerRequest 创建回答的请求参数。
type createAnswerRequest struct {
	Content string `json:"content" binding:"required"`
}

// updateAnswerRequest 更新回答的请求参数。
type updateAnswerRequest struct {
	Content *string `json:"content"`
}

// handleCreateAnswer 在指定提问下创建回答。
//
// 任何未被封禁的登录用户都可以回答任意存在的提问，
// 不要求对提问的所有权或可见性。
//
// POST /answers/:questionId
func (s *Server) handleCreateAnswer(c *gin.Context) {
	identity := getIdentity(c)
	if !identity.CanAnswerQuestion() {
		c.JSON(http.StatusForbidden, gin.H{"error": "account blocked, contact admin"})
		return
	}

	questionID, ok := parseIDParam(c, "questionId")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}

	var req createAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer := model.Answer{
		Content:    strings.TrimSpace(req.Content),
		QuestionID: questionID,
		UserID:     identity.ID,
	}
	err := s.answers.Create(c.Request.Context(), &answer)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	if err != nil {
		s.logger.Error("create answer failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create answer failed"})
		return
	}

	c.JSON(http.StatusCreated, toAnswerResponse(&answer))
}

// handleUpdateAnswer 更新回答内容，管理员专用。
//
// PUT /answers/:id
func (s *Server) handleUpdateAnswer(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "answer not found"})
		return
	}

	var req updateAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Content != nil {
		content := strings.TrimSpace(*req.Content)
		if content == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid content"})
			return
		}
		updates["content"] = content
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no updates"})
		return
	}

	answer, err := s.answers.Update(c.Request.Context(), id, updates)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "answer not found"})
		return
	}
	if err != nil {
		s.logger.Error("update answer failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update answer failed"})
		return
	}

	c.JSON(http.StatusOK, toAnswerResponse(answer))
}

// handleDeleteAnswer 删除回答，管理员专用。所属提问保持不变。
//
// DELETE /answers/:id
func (s *Server) handleDeleteAnswer(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "answer not found"})
		return
	}

	err := s.answers.Delete(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "answer not found"})
		return
	}
	if err != nil {
		s.logger.Error("delete answer failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to delete answer"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleAcceptAnswer 采纳回答，仅提问的所有者。
//
// 同一提问下旧的采纳标记会在同一事务内被清掉，
// 保证任何时刻最多只有一条已采纳回答。
//
// PATCH /answers/:id/accept
func (s *Server) handleAcceptAnswer(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "answer not found"})
		return
	}

	answer, err := s.answers.Get(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "answer not found"})
		return
	}
	if err != nil {
		s.logger.Error("get answer failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "accept answer failed"})
		return
	}

	identity := getIdentity(c)
	if !identity.CanAcceptAnswer(answer.Question.UserID) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized to accept this answer"})
		return
	}

	accepted, err := s.answers.Accept(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "answer not found"})
		return
	}
	if err != nil {
		s.logger.Error("accept answer failed",
			slog.Uint64("answer_id", uint64(id)),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "accept answer failed"})
		return
	}

	c.JSON(http.StatusOK, toAnswerResponse(accepted))
}
