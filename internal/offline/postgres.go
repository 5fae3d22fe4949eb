package offline

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type recordModel struct {
	ReceiverID int64     `gorm:"column:receiver_id;primaryKey"`
	MessageID  string    `gorm:"column:message_id;primaryKey"`
	Payload    []byte    `gorm:"column:payload;not null"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (recordModel) TableName() string { return "offline_records" }

// Postgres stores offline records in the relational database, grouped by receiver_id.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.db.WithContext(ctx).AutoMigrate(&recordModel{}); err != nil {
		return fmt.Errorf("migrate offline_records: %w", err)
	}
	return nil
}

func (p *Postgres) Store(ctx context.Context, receiverID int64, messageID string, payload []byte) error {
	row := recordModel{
		ReceiverID: receiverID,
		MessageID:  messageID,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "receiver_id"}, {Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert offline record %d/%s: %w", receiverID, messageID, err)
	}
	return nil
}

func (p *Postgres) RetrieveAll(ctx context.Context, receiverID int64) (map[string][]byte, error) {
	var rows []recordModel
	err := p.db.WithContext(ctx).
		Where("receiver_id = ?", receiverID).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list offline records %d: %w", receiverID, err)
	}
	out := make(map[string][]byte, len(rows))
	for _, row := range rows {
		out[row.MessageID] = row.Payload
	}
	return out, nil
}

func (p *Postgres) Delete(ctx context.Context, receiverID int64, messageID string) error {
	err := p.db.WithContext(ctx).
		Where("receiver_id = ? AND message_id = ?", receiverID, messageID).
		Delete(&recordModel{}).Error
	if err != nil {
		return fmt.Errorf("delete offline record %d/%s: %w", receiverID, messageID, err)
	}
	return nil
}

// Close is a no-op; the gorm handle is owned by the storage layer.
func (p *Postgres) Close() error { return nil }
