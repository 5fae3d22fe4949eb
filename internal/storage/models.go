package storage

import "github.com/pelusa-v/pelusa-relay/internal/chat"

type userModel struct {
	ID           int64  `gorm:"column:id;primaryKey"`
	Username     string `gorm:"column:username;uniqueIndex;not null"`
	Password     string `gorm:"column:password;not null"`
	ProfileImage string `gorm:"column:profileimage"`
	Status       string `gorm:"column:status;not null;default:Offline"`
}

func (userModel) TableName() string { return "users" }

type chatModel struct {
	ID         int64   `gorm:"column:id;primaryKey"`
	SenderID   int64   `gorm:"column:sender_id;not null;index"`
	ReceiverID int64   `gorm:"column:receiver_id;not null;index"`
	Message    string  `gorm:"column:message;not null"`
	Timestamp  string  `gorm:"column:timestamp;not null"`
	UUID       string  `gorm:"column:uuid;uniqueIndex;not null"`
	Image      *string `gorm:"column:image"`
}

func (chatModel) TableName() string { return "chat" }

func chatModelFromRecord(rec chat.ChatRecord) chatModel {
	return chatModel{
		SenderID:   rec.SenderID,
		ReceiverID: rec.ReceiverID,
		Message:    rec.Message,
		Timestamp:  rec.Timestamp,
		UUID:       rec.UUID,
		Image:      rec.Image,
	}
}

func (m chatModel) toRecord() chat.ChatRecord {
	return chat.ChatRecord{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Message:    m.Message,
		Timestamp:  m.Timestamp,
		UUID:       m.UUID,
		Image:      m.Image,
	}
}
