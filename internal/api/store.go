package api

import (
	"context"
	"time"

	"github.com/Aarizkhan-lorem/HDNotes/internal/model"

	"gorm.io/gorm"
)

// NoteStore 定义笔记的存取操作。
//
// 所有查询都以 userID 为边界，未找到记录时返回 gorm.ErrRecordNotFound。
type NoteStore interface {
	ListNotes(ctx context.Context, userID uint, search string, limit, offset int) ([]model.Note, error)
	CountNotes(ctx context.Context, userID uint, search string) (int64, error)
	GetNote(ctx context.Context, userID, noteID uint) (*model.Note, error)
	CreateNote(ctx context.Context, note *model.Note) error
	SaveNote(ctx context.Context, note *model.Note) error
	DeleteNote(ctx context.Context, userID, noteID uint) (*model.Note, error)
	CountNotesSince(ctx context.Context, userID uint, since time.Time) (int64, error)
	RecentNotes(ctx context.Context, userID uint, limit int) ([]model.Note, error)
}

type dbNoteStore struct {
	db *gorm.DB
}

// NewDBNoteStore 创建基于 GORM 的笔记存储。
func NewDBNoteStore(db *gorm.DB) NoteStore {
	return dbNoteStore{db: db}
}

func (s dbNoteStore) scoped(ctx context.Context, userID uint) *gorm.DB {
	return s.db.WithContext(ctx).Model(&model.Note{}).Where("user_id = ?", userID)
}

func withSearch(q *gorm.DB, search string) *gorm.DB {
	if search == "" {
		return q
	}
	pattern := "%" + search + "%"
	return q.Where("title LIKE ? OR content LIKE ?", pattern, pattern)
}

func (s dbNoteStore) ListNotes(ctx context.Context, userID uint, search string, limit, offset int) ([]model.Note, error) {
	notes := []model.Note{}
	err := withSearch(s.scoped(ctx, userID), search).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&notes).Error
	if err != nil {
		return nil, err
	}
	return notes, nil
}

func (s dbNoteStore) CountNotes(ctx context.Context, userID uint, search string) (int64, error) {
	var count int64
	if err := withSearch(s.scoped(ctx, userID), search).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s dbNoteStore) GetNote(ctx context.Context, userID, noteID uint) (*model.Note, error) {
	var note model.Note
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", noteID, userID).
		First(&note).Error
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (s dbNoteStore) CreateNote(ctx context.Context, note *model.Note) error {
	return s.db.WithContext(ctx).Create(note).Error
}

func (s dbNoteStore) SaveNote(ctx context.Context, note *model.Note) error {
	return s.db.WithContext(ctx).Save(note).Error
}

func (s dbNoteStore) DeleteNote(ctx context.Context, userID, noteID uint) (*model.Note, error) {
	note, err := s.GetNote(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(note).Error; err != nil {
		return nil, err
	}
	return note, nil
}

func (s dbNoteStore) CountNotesSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var count int64
	if err := s.scoped(ctx, userID).Where("created_at >= ?", since).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s dbNoteStore) RecentNotes(ctx context.Context, userID uint, limit int) ([]model.Note, error) {
	notes := []model.Note{}
	err := s.scoped(ctx, userID).
		Select("id", "title", "created_at").
		Order("created_at DESC").
		Limit(limit).
		Find(&notes).Error
	if err != nil {
		return nil, err
	}
	return notes, nil
}
