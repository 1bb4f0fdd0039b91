package examapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) CreateExam(ctx context.Context, req ExamCreateRequest) (ExamResponse, error) {
	var out ExamResponse
	err := c.do(ctx, "create exam", http.MethodPost, "/exams/create", nil, req, &out)
	return out, err
}

// GetExam returns the exam without answer keys.
func (c *Client) GetExam(ctx context.Context, examID, userID string) (ExamForUser, error) {
	var out ExamForUser
	err := c.do(ctx, "fetch exam", http.MethodGet, "/exams/"+url.PathEscape(examID), userQuery(userID), nil, &out)
	return out, err
}

// GetExamDetails returns the graded exam; only meaningful after finalize.
func (c *Client) GetExamDetails(ctx context.Context, examID, userID string) (ExamDetails, error) {
	var out ExamDetails
	err := c.do(ctx, "fetch exam details", http.MethodGet, "/exams/"+url.PathEscape(examID)+"/details", userQuery(userID), nil, &out)
	return out, err
}

func (c *Client) ListUserExams(ctx context.Context, userID string, opts ListOptions) (UserExamsPage, error) {
	q := url.Values{}
	if opts.Skip != nil {
		q.Set("skip", strconv.Itoa(*opts.Skip))
	}
	if opts.Limit != nil {
		q.Set("limit", strconv.Itoa(*opts.Limit))
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.CreatedAfter != "" {
		q.Set("created_after", opts.CreatedAfter)
	}
	if opts.CreatedBefore != "" {
		q.Set("created_before", opts.CreatedBefore)
	}
	var out UserExamsPage
	err := c.do(ctx, "list user exams", http.MethodGet, "/exams/user/"+url.PathEscape(userID), q, nil, &out)
	return out, err
}

// UpdateAnswer stores one answer. Repeating it with the same letter is a no-op
// on the service side.
func (c *Client) UpdateAnswer(ctx context.Context, examID, userID string, upd ExamAnswerUpdate) (ExamResponse, error) {
	var out ExamResponse
	err := c.do(ctx, "update exam answer", http.MethodPatch, "/exams/"+url.PathEscape(examID)+"/answer", userQuery(userID), upd, &out)
	return out, err
}

func (c *Client) FinalizeExam(ctx context.Context, examID, userID string) (ExamResponse, error) {
	var out ExamResponse
	err := c.do(ctx, "finalize exam", http.MethodPost, "/exams/"+url.PathEscape(examID)+"/finalize", userQuery(userID), nil, &out)
	return out, err
}

func (c *Client) GetUserTotalizers(ctx context.Context, userID string) (ExamTotalizers, error) {
	var out ExamTotalizers
	err := c.do(ctx, "fetch user totalizers", http.MethodGet, "/exams/totalizers/user/"+url.PathEscape(userID), nil, nil, &out)
	return out, err
}

func (c *Client) DeleteExam(ctx context.Context, examID, userID string) (DeleteResponse, error) {
	var out DeleteResponse
	err := c.do(ctx, "delete exam", http.MethodDelete, "/exams/"+url.PathEscape(examID), userQuery(userID), nil, &out)
	return out, err
}
