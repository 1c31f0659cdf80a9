package models

import "time"

// Catalog entities are managed by the authoring side of the platform.
// They are mapped here for joins and counts only.

type Subject struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null;size:100"`
	CreatedAt time.Time `json:"created_at"`
}

func (Subject) TableName() string {
	return "subjects"
}

type Question struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	SubjectID    *uint     `json:"subject_id" gorm:"index"`
	QuestionText string    `json:"question_text" gorm:"type:text"`
	Marks        int       `json:"marks" gorm:"default:1"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Question) TableName() string {
	return "questions"
}

type Group struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null;size:100"`
	CreatedAt time.Time `json:"created_at"`
}

func (Group) TableName() string {
	return "user_groups"
}

// GroupMember is one row of a group's student roster
type GroupMember struct {
	GroupID   uint   `json:"group_id" gorm:"primaryKey"`
	StudentID string `json:"student_id" gorm:"primaryKey;size:255;index"`
}

func (GroupMember) TableName() string {
	return "group_students"
}
