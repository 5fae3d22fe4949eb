package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pelusa-v/pelusa-relay/internal/chat"
)

// Connect opens a gorm handle on dsn and pings it.
func Connect(ctx context.Context, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&userModel{}, &chatModel{}); err != nil {
		return fmt.Errorf("migrate users/chat: %w", err)
	}
	return nil
}

func (r *Repository) MarkStatus(ctx context.Context, userID int64, status chat.Status) (int64, bool, error) {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("id = ?", userID).
		Update("status", string(status))
	if res.Error != nil {
		return 0, false, r.logError("relay_repo_mark_status_failed", res.Error,
			"user_id", userID, "status", string(status))
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	return userID, true, nil
}

// InsertChat stores rec in one transaction. A client resending the same uuid gets the record that
// is already stored.
func (r *Repository) InsertChat(ctx context.Context, rec chat.ChatRecord) (chat.ChatRecord, error) {
	var stored chat.ChatRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := chatModelFromRecord(rec)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		stored = row.toRecord()
		return nil
	})
	if err == nil {
		return stored, nil
	}
	if isUniqueViolation(err) {
		var existing chatModel
		if ferr := r.db.WithContext(ctx).Where("uuid = ?", rec.UUID).First(&existing).Error; ferr == nil {
			return existing.toRecord(), nil
		}
	}
	return chat.ChatRecord{}, r.logError("relay_repo_insert_chat_failed", err,
		"uuid", rec.UUID, "sender_id", rec.SenderID, "receiver_id", rec.ReceiverID)
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+6)
	fields = append(fields,
		"event", event,
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("relay repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ chat.Persistence = (*Repository)(nil)
