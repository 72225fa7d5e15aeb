package models

import (
	"time"
)

// Question is a student question pinned to one page of a lecture.
// Acknowledged only ever moves from false to true.
type Question struct {
	ID           int64     `json:"id"`
	LectureCode  string    `json:"lectureCode"`
	PageIndex    int       `json:"pageIndex"`
	Text         string    `json:"text"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Comment is a free-form remark on a page. It has no state machine.
type Comment struct {
	ID          int64     `json:"id"`
	LectureCode string    `json:"lectureCode"`
	PageIndex   int       `json:"pageIndex"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PageThread is the Q&A content of a single page.
type PageThread struct {
	Questions []Question `json:"questions"`
	Comments  []Comment  `json:"comments"`
}

// HasUnanswered reports whether any question on the page is still unacknowledged.
func HasUnanswered(questions []Question) bool {
	for _, q := range questions {
		if !q.Acknowledged {
			return true
		}
	}
	return false
}
