package examapi

// Exam status values reported by the exam service.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusFinished   = "finished"
)

// MaxQuestionCount is the largest exam the service accepts.
const MaxQuestionCount = 100

type ExamCreateRequest struct {
	UserID        string   `json:"user_id"`
	Topics        []string `json:"topics,omitempty"`
	ExamReplicID  string   `json:"examReplicId,omitempty"` // replicate questions of an existing exam
	Years         []int    `json:"years,omitempty"`
	QuestionCount int      `json:"question_count,omitempty"`
}

type ExamResponse struct {
	ExamID  string `json:"exam_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Alternative struct {
	Letter     string `json:"letter"`
	Text       string `json:"text,omitempty"`
	File       string `json:"file,omitempty"`
	Base64File string `json:"base64File,omitempty"`
}

// QuestionForExam is a question as served during an exam, without its answer.
type QuestionForExam struct {
	ID                       string        `json:"id"`
	Year                     int           `json:"year"`
	Discipline               string        `json:"discipline"`
	Context                  string        `json:"context"`
	AlternativesIntroduction string        `json:"alternatives_introduction,omitempty"`
	Alternatives             []Alternative `json:"alternatives"`
}

// ExamForUser is the ungraded exam.
type ExamForUser struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	TotalQuestions    int               `json:"total_questions"`
	AnsweredQuestions int               `json:"answered_questions"`
	Questions         []QuestionForExam `json:"questions"`
	CreatedAt         string            `json:"created_at"`
}

type ExamQuestion struct {
	QuestionID    string `json:"question_id"`
	UserAnswer    string `json:"user_answer,omitempty"`
	CorrectAnswer string `json:"correct_answer"`
	IsCorrect     *bool  `json:"is_correct,omitempty"`
}

// ExamDetails is the graded exam, available once finalized.
type ExamDetails struct {
	ID                  string         `json:"id"`
	UserID              string         `json:"user_id"`
	TotalQuestions      int            `json:"total_questions"`
	Questions           []ExamQuestion `json:"questions"`
	TotalCorrectAnswers int            `json:"total_correct_answers"`
	TotalWrongAnswers   int            `json:"total_wrong_answers"`
	Status              string         `json:"status"`
	CreatedAt           string         `json:"created_at"`
	UpdatedAt           string         `json:"updated_at"`
	FinishedAt          string         `json:"finished_at,omitempty"`
}

type ExamSummary struct {
	ID                  string `json:"id"`
	UserID              string `json:"user_id"`
	TotalQuestions      int    `json:"total_questions"`
	AnsweredQuestions   int    `json:"answered_questions"`
	TotalCorrectAnswers int    `json:"total_correct_answers"`
	TotalWrongAnswers   int    `json:"total_wrong_answers"`
	Status              string `json:"status"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
	FinishedAt          string `json:"finished_at,omitempty"`
}

type ListOptions struct {
	Skip          *int
	Limit         *int
	Status        string
	CreatedAfter  string
	CreatedBefore string
}

type Pagination struct {
	Skip     int `json:"skip"`
	Limit    int `json:"limit"`
	Total    int `json:"total"`
	Returned int `json:"returned"`
}

type UserExamStats struct {
	TotalExams             int     `json:"total_exams"`
	FinishedExams          int     `json:"finished_exams"`
	TotalQuestionsAnswered int     `json:"total_questions_answered"`
	TotalCorrectAnswers    int     `json:"total_correct_answers"`
	AverageScore           float64 `json:"average_score"`
}

type UserExamsPage struct {
	Exams      []ExamSummary `json:"exams"`
	Pagination Pagination    `json:"pagination"`
	Stats      UserExamStats `json:"stats"`
}

type ExamTotalizers struct {
	TotalExams             int     `json:"total_exams"`
	FinishedExams          int     `json:"finished_exams"`
	InProgressExams        int     `json:"in_progress_exams"`
	NotStartedExams        int     `json:"not_started_exams"`
	TotalQuestionsAnswered int     `json:"total_questions_answered"`
	TotalCorrectAnswers    int     `json:"total_correct_answers"`
	TotalWrongAnswers      int     `json:"total_wrong_answers"`
	AverageScore           float64 `json:"average_score"`
}

type ExamAnswerUpdate struct {
	QuestionID string `json:"question_id"`
	UserAnswer string `json:"user_answer"` // A..E
}

type DeleteResponse struct {
	Message string `json:"message"`
	ExamID  string `json:"exam_id"`
}

// QuestionTopic is one leaf of the topic taxonomy.
type QuestionTopic struct {
	ID               string `json:"id"`
	Field            string `json:"field"`
	FieldCode        string `json:"field_code"`
	Area             string `json:"area"`
	AreaCode         string `json:"area_code"`
	GeneralTopic     string `json:"general_topic"`
	GeneralTopicCode string `json:"general_topic_code"`
	SpecificTopic    string `json:"specific_topic"`
}

// TopicFilter narrows a topic search; empty fields are not sent.
type TopicFilter struct {
	FieldCode        string
	AreaCode         string
	GeneralTopicCode string
	SpecificTopic    string
}

type distinctResponse struct {
	Success bool     `json:"success"`
	Data    []string `json:"data"`
	Total   int      `json:"total"`
}

type topicListResponse struct {
	Success  bool            `json:"success"`
	Data     []QuestionTopic `json:"data"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

type ConversationOpenRequest struct {
	QuestionID       string `json:"question_id"`
	UserID           string `json:"user_id"`
	StructuredOutput bool   `json:"structured_output"`
}

type ConversationOpenResponse struct {
	SessionID       string         `json:"session_id"`
	ConversationID  string         `json:"conversation_id"`
	QuestionDetails map[string]any `json:"question_details,omitempty"`
	AgentResponse   string         `json:"agent_response"`
	SourcesCount    int            `json:"sources_count"`
	CreatedAt       string         `json:"created_at"`
}

type ConversationMessageRequest struct {
	SessionID        string `json:"session_id"`
	UserID           string `json:"user_id"`
	Message          string `json:"message"`
	StructuredOutput bool   `json:"structured_output"`
}

type ConversationMessageResponse struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
	UserMessage    string `json:"user_message"`
	AgentResponse  string `json:"agent_response"`
	Timestamp      string `json:"timestamp"`
}
