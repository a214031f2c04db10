package domain

import "time"

// TimeLayout is the timestamp format used in the leaderboard file and run log.
const TimeLayout = "2006-01-02 15:04:05"

// DefaultDifficulty is assumed when the catalog source has no difficulty column.
const DefaultDifficulty = "medium"

// QuizQuestion is one entry of the ordered quiz catalog. Index doubles as the
// externally visible question ID.
type QuizQuestion struct {
	Index      int    `json:"index"`
	Prompt     string `json:"question"`
	Answer     string `json:"answer"`
	Difficulty string `json:"difficulty"`
}

// Status is the lifecycle state of a submission.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether a submission in this state can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Submission is one leaderboard row, keyed by (Name, Endpoint).
// CorrectRate (0-100), AvgResponseTime (seconds) and JudgeScore stay nil until
// the run completes; CompletedAt is set when the row reaches a terminal state.
type Submission struct {
	Name            string     `json:"name"`
	Endpoint        string     `json:"api_endpoint"`
	CorrectRate     *float64   `json:"correct_answer_rate"`
	AvgResponseTime *float64   `json:"average_response_time"`
	SubmittedAt     time.Time  `json:"submission_time"`
	CompletedAt     *time.Time `json:"completion_time"`
	CurrentIndex    int        `json:"current_question_index"`
	Status          Status     `json:"status"`
	JudgeScore      *float64   `json:"llm_judge_result"`
}

// ResultEntry records one graded question attempt. Entries are append-only and
// never mutated after being written.
type ResultEntry struct {
	Name          string    `json:"name"`
	Endpoint      string    `json:"api_endpoint"`
	QuestionIndex int       `json:"question_index"`
	Question      string    `json:"question"`
	UserAnswer    string    `json:"user_answer"`
	CorrectAnswer string    `json:"correct_answer"`
	ExactMatch    bool      `json:"is_correct"`
	JudgeScore    float64   `json:"judge_score"`
	ResponseTime  float64   `json:"response_time"`
	LoggedAt      time.Time `json:"logged_at"`
}

// ErrorEntry records an orchestration failure for a submission.
type ErrorEntry struct {
	Name     string    `json:"name"`
	Endpoint string    `json:"api_endpoint"`
	Message  string    `json:"message"`
	LoggedAt time.Time `json:"logged_at"`
}
