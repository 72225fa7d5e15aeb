package models

import (
	"time"

	"github.com/google/uuid"
)

// Lecture is a shared document reachable by its access code.
type Lecture struct {
	ID           uuid.UUID `json:"id"`
	InstructorID uuid.UUID `json:"instructorId"`
	Title        string    `json:"title"`
	AccessCode   string    `json:"accessCode"`
	DocumentKey  string    `json:"documentKey,omitempty"`
	OriginalName string    `json:"originalName"`
	ContentType  string    `json:"contentType"`
	SizeBytes    int64     `json:"sizeBytes"`
	PageCount    int       `json:"pageCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// LecturePublic is what students see after entering an access code.
type LecturePublic struct {
	Title        string `json:"title"`
	AccessCode   string `json:"accessCode"`
	OriginalName string `json:"originalName"`
	ContentType  string `json:"contentType"`
	PageCount    int    `json:"pageCount"`
}

// ToPublic strips storage and ownership details.
func (l *Lecture) ToPublic() LecturePublic {
	return LecturePublic{
		Title:        l.Title,
		AccessCode:   l.AccessCode,
		OriginalName: l.OriginalName,
		ContentType:  l.ContentType,
		PageCount:    l.PageCount,
	}
}

// ValidPage reports whether page is addressable. PageCount 0 means the count is unknown.
func (l *Lecture) ValidPage(page int) bool {
	if page < 0 {
		return false
	}
	return l.PageCount == 0 || page < l.PageCount
}
