package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"qaboard/internal/model"
	"qaboard/internal/policy"
	"qaboard/internal/store"

	"github.com/gin-gonic/gin"
)

func TestCreateAnswer_Normal(t *testing.T) {
	gin.SetMode(gin.TestMode)

	answers := &mockAnswerStore{
		createFunc: func(ctx context.Context, answer *model.Answer) error {
			answer.ID = 11
			return nil
		},
	}
	s := newTestServer(&mockQuestionStore{}, answers)

	r := gin.New()
	r.POST("/answers/:questionId", asIdentity(policy.Identity{ID: 3, Role: policy.RoleMember}, s.handleCreateAnswer))

	w := doJSON(t, r, http.MethodPost, "/answers/7", map[string]interface{}{
		"content": "try restarting it",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if answers.createCalls != 1 {
		t.Fatalf("expected create to be called")
	}

	var resp answerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.QuestionID != 7 || resp.UserID != 3 || resp.IsAccepted {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateAnswer_QuestionMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)

	answers := &mockAnswerStore{
		createFunc: func(ctx context.Context, answer *model.Answer) error { return store.ErrNotFound },
	}
	s := newTestServer(&mockQuestionStore{}, answers)

	r := gin.New()
	r.POST("/answers/:questionId", asIdentity(policy.Identity{ID: 3, Role: policy.RoleMember}, s.handleCreateAnswer))

	w := doJSON(t, r, http.MethodPost, "/answers/999", map[string]interface{}{
		"content": "into the void",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCreateAnswer_MissingContent(t *testing.T) {
	gin.SetMode(gin.TestMode)

	answers := &mockAnswerStore{
		createFunc: func(ctx context.Context, answer *model.Answer) error { return nil },
	}
	s := newTestServer(&mockQuestionStore{}, answers)

	r := gin.New()
	r.POST("/answers/:questionId", asIdentity(policy.Identity{ID: 3, Role: policy.RoleMember}, s.handleCreateAnswer))

	w := doJSON(t, r, http.MethodPost, "/answers/7", map[string]interface{}{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if answers.createCalls != 0 {
		t.Fatalf("expected nothing persisted on validation error")
	}
}

func TestCreateAnswer_BlockedUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	answers := &mockAnswerStore{
		createFunc: func(ctx context.Context, answer *model.Answer) error { return nil },
	}
	s := newTestServer(&mockQuestionStore{}, answers)

	r := gin.New()
	r.POST("/answers/:questionId", asIdentity(policy.Identity{ID: 3, Role: policy.RoleMember, Blocked: true}, s.handleCreateAnswer))

	w := doJSON(t, r, http.MethodPost, "/answers/7", map[string]interface{}{
		"content": "should not land",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if answers.createCalls != 0 {
		t.Fatalf("expected no create for blocked user")
	}
}

func TestAcceptAnswer_OwnerOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)

	answer := &model.Answer{
		ID:         11,
		Content:    "the one",
		QuestionID: 7,
		UserID:     3,
		Question:   model.Question{ID: 7, Title: "pick", UserID: 1},
	}

	cases := []struct {
		name        string
		identity    policy.Identity
		want        int
		wantAccepts int
	}{
		{"question owner accepts", policy.Identity{ID: 1, Role: policy.RoleMember}, http.StatusOK, 1},
		{"answer author cannot accept", policy.Identity{ID: 3, Role: policy.RoleMember}, http.StatusUnauthorized, 0},
		{"admin cannot accept for others", policy.Identity{ID: 9, Role: policy.RoleAdmin}, http.StatusUnauthorized, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			answers := &mockAnswerStore{
				getFunc: func(ctx context.Context, id uint) (*model.Answer, error) { return answer, nil },
				acceptFunc: func(ctx context.Context, id uint) (*model.Answer, error) {
					accepted := *answer
					accepted.IsAccepted = true
					return &accepted, nil
				},
			}
			s := newTestServer(&mockQuestionStore{}, answers)

			r := gin.New()
			r.PATCH("/answers/:id/accept", asIdentity(tc.identity, s.handleAcceptAnswer))
			w := doJSON(t, r, http.MethodPatch, "/answers/11/accept", nil)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
			if answers.acceptCalls != tc.wantAccepts {
				t.Fatalf("expected %d accept call(s), got %d", tc.wantAccepts, answers.acceptCalls)
			}
			if tc.want == http.StatusOK {
				var resp answerResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshal response: %v", err)
				}
				if !resp.IsAccepted {
					t.Fatalf("expected accepted answer in response")
				}
			}
		})
	}
}

func TestAcceptAnswer_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)

	answers := &mockAnswerStore{
		getFunc: func(ctx context.Context, id uint) (*model.Answer, error) { return nil, store.ErrNotFound },
	}
	s := newTestServer(&mockQuestionStore{}, answers)

	r := gin.New()
	r.PATCH("/answers/:id/accept", asIdentity(policy.Identity{ID: 1, Role: policy.RoleMember}, s.handleAcceptAnswer))

	w := doJSON(t, r, http.MethodPatch, "/answers/404/accept", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestUpdateAnswer_NoUpdates(t *testing.T) {
	gin.SetMode(gin.TestMode)

	s := newTestServer(&mockQuestionStore{}, &mockAnswerStore{})

	r := gin.New()
	r.PUT("/answers/:id", asIdentity(policy.Identity{ID: 9, Role: policy.RoleAdmin}, s.handleUpdateAnswer))

	w := doJSON(t, r, http.MethodPut, "/answers/11", map[string]interface{}{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDeleteAnswer_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)

	deleted := uint(0)
	answers := &mockAnswerStore{
		deleteFunc: func(ctx context.Context, id uint) error {
			deleted = id
			return nil
		},
	}
	s := newTestServer(&mockQuestionStore{}, answers)

	r := gin.New()
	r.DELETE("/answers/:id", asIdentity(policy.Identity{ID: 9, Role: policy.RoleAdmin}, s.handleDeleteAnswer))

	w := doJSON(t, r, http.MethodDelete, "/answers/11", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if deleted != 11 {
		t.Fatalf("expected answer 11 deleted, got %d", deleted)
	}
}
