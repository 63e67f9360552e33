package api

import (
	"time"

	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/service"
)

// SubmitSessionRequest defines the payload for opening a session.
type SubmitSessionRequest struct {
	Reference string `json:"reference" validate:"required,max=2048"`
}

// ProgressRequest defines the payload for recording study progress.
// "completed" archives the session.
type ProgressRequest struct {
	Progress string `json:"progress" validate:"required,oneof=in_progress completed"`
}

// SubmissionResponse is returned when a session is opened.
type SubmissionResponse struct {
	Token   string `json:"token"`
	Status  string `json:"status"`
	Created bool   `json:"created"`
}

// SessionResponse is the status view of a session.
type SessionResponse struct {
	Token             string    `json:"token"`
	Reference         string    `json:"reference"`
	Status            string    `json:"status"`
	StudyProgress     string    `json:"study_progress"`
	Archived          bool      `json:"archived"`
	ContentItemStatus string    `json:"content_item_status,omitempty"`
	Title             string    `json:"title,omitempty"`
	QuestionSetStatus string    `json:"question_set_status,omitempty"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// QuestionSetResponse carries a question set poll result. Questions is set
// once the set is ready, Error once it failed for good.
type QuestionSetResponse struct {
	Kind      string            `json:"kind"`
	Status    string            `json:"status,omitempty"`
	Pending   bool              `json:"pending"`
	Questions []domain.Question `json:"questions,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func submissionToResponse(sub *service.Submission) SubmissionResponse {
	return SubmissionResponse{
		Token:   sub.Session.Token,
		Status:  string(sub.Session.Status),
		Created: sub.Created,
	}
}

func sessionViewToResponse(v *service.SessionView) SessionResponse {
	s := v.Session
	return SessionResponse{
		Token:             s.Token,
		Reference:         s.Reference,
		Status:            string(s.Status),
		StudyProgress:     string(s.StudyProgress),
		Archived:          s.IsArchived(),
		ContentItemStatus: string(v.ContentItemStatus),
		Title:             v.Title,
		QuestionSetStatus: string(v.QuestionSetStatus),
		Error:             v.ErrorSummary,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func questionSetViewToResponse(v *service.QuestionSetView) QuestionSetResponse {
	resp := QuestionSetResponse{
		Kind:    string(v.Kind),
		Status:  string(v.Status),
		Pending: v.Pending(),
		Error:   v.ErrorSummary,
	}
	if v.Payload != nil {
		resp.Questions = v.Payload.Questions
	}
	return resp
}
