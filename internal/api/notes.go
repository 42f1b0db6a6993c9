package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Aarizkhan-lorem/HDNotes/internal/api/auth"
	"github.com/Aarizkhan-lorem/HDNotes/internal/api/response"
	"github.com/Aarizkhan-lorem/HDNotes/internal/model"
	"github.com/Aarizkhan-lorem/HDNotes/internal/pkg/cache"
	"github.com/Aarizkhan-lorem/HDNotes/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	maxTitleLen     = 100
	maxContentLen   = 5000
)

// createNoteRequest 创建笔记的请求参数。
type createNoteRequest struct {
	Title   string `json:"title" binding:"required,max=100"`
	Content string `json:"content" binding:"required,max=5000"`
}

// updateNoteRequest 更新笔记的请求参数，字段缺省表示不修改。
type updateNoteRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type noteResponse struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type paginationResponse struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalNotes  int64 `json:"totalNotes"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// notesStats 笔记统计结果，整体作为 JSON 缓存进 Redis。
type notesStats struct {
	TotalNotes    int64             `json:"totalNotes"`
	NotesThisWeek int64             `json:"notesThisWeek"`
	NotesToday    int64             `json:"notesToday"`
	RecentNotes   []recentNoteEntry `json:"recentNotes"`
}

type recentNoteEntry struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

func toNoteResponse(note *model.Note) noteResponse {
	return noteResponse{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
}

// handleListNotes 返回当前用户的笔记列表，支持分页与搜索。
//
// GET /api/notes?page=1&limit=10&search=...
func (s *Server) handleListNotes(c *gin.Context) {
	user := auth.CurrentUser(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	search := strings.TrimSpace(c.Query("search"))
	offset := (page - 1) * limit

	ctx := c.Request.Context()
	notes, err := s.notes.ListNotes(ctx, user.ID, search, limit, offset)
	if err != nil {
		s.logger.Error("list notes failed", slog.String("error", err.Error()))
		response.Fail(c, http.StatusInternalServerError, "Failed to retrieve notes", s.errorDetail(err))
		return
	}
	total, err := s.notes.CountNotes(ctx, user.ID, search)
	if err != nil {
		s.logger.Error("count notes failed", slog.String("error", err.Error()))
		response.Fail(c, http.StatusInternalServerError, "Failed to retrieve notes", s.errorDetail(err))
		return
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	items := make([]noteResponse, 0, len(notes))
	for i := range notes {
		items = append(items, toNoteResponse(&notes[i]))
	}

	response.OK(c, http.StatusOK, "Notes retrieved successfully", gin.H{
		"notes": items,
		"pagination": paginationResponse{
			CurrentPage: page,
			TotalPages:  totalPages,
			TotalNotes:  total,
			HasNextPage: page < totalPages,
			HasPrevPage: page > 1,
		},
	})
}

// handleGetNote 返回单条笔记。
//
// GET /api/notes/:id
func (s *Server) handleGetNote(c *gin.Context) {
	user := auth.CurrentUser(c)
	noteID, ok := parseNoteID(c)
	if !ok {
		return
	}

	note, err := s.notes.GetNote(c.Request.Context(), user.ID, noteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Fail(c, http.StatusNotFound, "Note not found", "Note does not exist or you do not have permission to access it")
			return
		}
		s.logger.Error("get note failed", slog.String("error", err.Error()))
		response.Fail(c, http.StatusInternalServerError, "Failed to retrieve note", s.errorDetail(err))
		return
	}

	response.OK(c, http.StatusOK, "Note retrieved successfully", gin.H{"note": toNoteResponse(note)})
}

// handleCreateNote 创建笔记。
//
// POST /api/notes
func (s *Server) handleCreateNote(c *gin.Context) {
	user := auth.CurrentUser(c)

	var req createNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "Please provide both title and content", "Missing required fields")
		return
	}

	note := model.Note{
		UserID:  user.ID,
		Title:   strings.TrimSpace(req.Title),
		Content: strings.TrimSpace(req.Content),
	}
	if note.Title == "" || note.Content == "" {
		response.Fail(c, http.StatusBadRequest, "Please provide both title and content", "Missing required fields")
		return
	}

	if err := s.notes.CreateNote(c.Request.Context(), &note); err != nil {
		s.logger.Error("create note failed", slog.String("error", err.Error()))
		response.Fail(c, http.StatusInternalServerError, "Failed to create note", s.errorDetail(err))
		return
	}
	s.invalidateStats(c, user.ID)

	response.OK(c, http.StatusCreated, "Note created successfully", gin.H{"note": toNoteResponse(&note)})
}

// handleUpdateNote 更新笔记，只修改请求中出现的字段。
//
// PUT /api/notes/:id
func (s *Server) handleUpdateNote(c *gin.Context) {
	user := auth.CurrentUser(c)
	noteID, ok := parseNoteID(c)
	if !ok {
		return
	}

	var req updateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	note, err := s.notes.GetNote(c.Request.Context(), user.ID, noteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Fail(c, http.StatusNotFound, "Note not found", "Note does not exist or you do not have permission to access it")
			return
		}
		s.logger.Error("get note failed", slog.String("error", err.Error()))
		response.Fail(c, http.StatusInternalServerError, "Failed to update note", s.errorDetail(err))
		return
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || len(title) > maxTitleLen {
			response.Fail(c, http.StatusBadRequest, "Invalid request body", "Invalid title")
			return
		}
		note.Title = title
	}
	if req.Content != nil {
		content := strings.TrimSpace(*req.Content)
		if content == "" || len(content) > maxContentLen {
			response.Fail(c, http.StatusBadRequest, "Invalid request body", "Invalid content")
			return
		}
		note.Content = content
	}

	if err := s.notes.SaveNote(c.Request.Context(), note); err != nil {
		s.logger.Error("update note failed", slog.String("error", err.Error()))
		response.Fail(c, http.StatusInternalServerError, "Failed to update note", s.errorDetail(err))
		return
	}
	s.invalidateStats(c, user.ID)

	response.OK(c, http.StatusOK, "Note updated successfully", gin.H{"note": toNoteResponse(note)})
}

// handleDeleteNote 删除笔记并返回被删除的内容。
//
// DELETE /api/notes/:id
func (s *Server) handleDeleteNote(c *gin.Context) {
	user := auth.CurrentUser(c)
	noteID, ok := parseNoteID(c)
	if !ok {
		return
	}

	note, err := s.notes.DeleteNote(c.Request.Context(), user.ID, noteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Fail(c, http.StatusNotFound, "Note not found", "Note does not exist or you do not have permission to access it")
			return
		}
		s.logger.Error("delete note failed", slog.String("error", err.Error()))
		response.Fail(c, http.StatusInternalServerError, "Failed to delete note", s.errorDetail(err))
		return
	}
	s.invalidateStats(c, user.ID)

	response.OK(c, http.StatusOK, "Note deleted successfully", gin.H{"deletedNote": toNoteResponse(note)})
}

// handleNotesStats 返回当前用户的笔记统计，结果短暂缓存于 Redis。
//
// GET /api/notes/stats
func (s *Server) handleNotesStats(c *gin.Context) {
	user := auth.CurrentUser(c)
	ctx := c.Request.Context()

	if data, err := s.statsCache.Get(ctx, user.ID); err == nil {
		var stats notesStats
		if err := json.Unmarshal(data, &stats); err == nil {
			metrics.NotesStatsCacheTotal.WithLabelValues("hit").Inc()
			response.OK(c, http.StatusOK, "Notes statistics retrieved successfully", gin.H{"stats": stats})
			return
		}
	} else if err != cache.ErrMiss {
		s.logger.Warn("stats cache read failed", slog.String("error", err.Error()))
	}
	metrics.NotesStatsCacheTotal.WithLabelValues("miss").Inc()

	now := time.Now()
	lastWeek := now.AddDate(0, 0, -7)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	total, err := s.notes.CountNotes(ctx, user.ID, "")
	if err != nil {
		s.logger.Error("count notes failed", slog.String("error", err.Error()))
		response.Fail(c, http.StatusInternalServerError, "Failed to retrieve notes statistics", s.errorDetail(err))
		return
	}
	weekCount, err := s.notes.CountNotesSince(ctx, user.ID, lastWeek)
	if err != nil {
		s.logger.Error("count notes failed", slog.String("error", err.Error()))
		response.Fail(c, http.StatusInternalServerError, "Failed to retrieve notes statistics", s.errorDetail(err))
		return
	}
	todayCount, err := s.notes.CountNotesSince(ctx, user.ID, today)
	if err != nil {
		s.logger.Error("count notes failed", slog.String("error", err.Error()))
		response.Fail(c, http.StatusInternalServerError, "Failed to retrieve notes statistics", s.errorDetail(err))
		return
	}
	recent, err := s.notes.RecentNotes(ctx, user.ID, 5)
	if err != nil {
		s.logger.Error("recent notes failed", slog.String("error", err.Error()))
		response.Fail(c, http.StatusInternalServerError, "Failed to retrieve notes statistics", s.errorDetail(err))
		return
	}

	stats := notesStats{
		TotalNotes:    total,
		NotesThisWeek: weekCount,
		NotesToday:    todayCount,
		RecentNotes:   make([]recentNoteEntry, 0, len(recent)),
	}
	for i := range recent {
		stats.RecentNotes = append(stats.RecentNotes, recentNoteEntry{
			ID:        recent[i].ID,
			Title:     recent[i].Title,
			CreatedAt: recent[i].CreatedAt,
		})
	}

	if data, err := json.Marshal(stats); err == nil {
		if err := s.statsCache.Set(ctx, user.ID, data); err != nil {
			s.logger.Warn("stats cache write failed", slog.String("error", err.Error()))
		}
	}

	response.OK(c, http.StatusOK, "Notes statistics retrieved successfully", gin.H{"stats": stats})
}

func (s *Server) invalidateStats(c *gin.Context, userID uint) {
	if err := s.statsCache.Invalidate(c.Request.Context(), userID); err != nil {
		s.logger.Warn("stats cache invalidate failed", slog.String("error", err.Error()))
	}
}

// errorDetail 控制错误细节的暴露范围：仅非生产环境向调用方透出底层错误。
func (s *Server) errorDetail(err error) string {
	if s.cfg != nil && s.cfg.App.Env != "prod" {
		return err.Error()
	}
	return "Something went wrong"
}

func parseNoteID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "Invalid ID format", "Invalid note id")
		return 0, false
	}
	return uint(id), true
}
