package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/akriventsev/bookshelf/internal/book"
)

type createBookRequest struct {
	ID     string `json:"id"`
	Author string `json:"author"`
}

type addPageRequest struct {
	Content string `json:"content"`
}

// BookResponse представление книги в ответах API
type BookResponse struct {
	ID     string   `json:"id"`
	Author string   `json:"author"`
	Pages  []string `json:"pages"`
}

func newBookResponse(s book.State) BookResponse {
	pages := s.Pages
	if pages == nil {
		pages = []string{}
	}
	return BookResponse{ID: s.ID, Author: s.Author, Pages: pages}
}

func (s *Server) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, core.Wrap(err, core.ErrInvalidArgument, "invalid request body"))
		return
	}
	if req.ID == "" {
		req.ID = book.NewID()
	}

	s.writes.Lock()
	defer s.writes.Unlock()

	ctx := c.Request.Context()
	if _, found, err := s.books.Get(ctx, req.ID); err != nil {
		s.fail(c, err)
		return
	} else if found {
		c.JSON(http.StatusConflict, gin.H{"error": "book " + req.ID + " already exists"})
		return
	}

	b, err := book.New(req.ID, req.Author)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.books.Save(ctx, b); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newBookResponse(b.State()))
}

func (s *Server) addPage(c *gin.Context) {
	var req addPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, core.Wrap(err, core.ErrInvalidArgument, "invalid request body"))
		return
	}

	s.writes.Lock()
	defer s.writes.Unlock()

	ctx := c.Request.Context()
	id := c.Param("id")
	b, found, err := s.books.Load(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !found {
		s.fail(c, core.NewError(core.ErrNotFound, "book "+id+" not found"))
		return
	}

	b.AddPage(req.Content)
	if err := s.books.Save(ctx, b); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookResponse(b.State()))
}

func (s *Server) getBook(c *gin.Context) {
	id := c.Param("id")
	state, found, err := s.books.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !found {
		s.fail(c, core.NewError(core.ErrNotFound, "book "+id+" not found"))
		return
	}
	c.JSON(http.StatusOK, newBookResponse(state))
}

func (s *Server) getProjection(c *gin.Context) {
	id := c.Param("id")
	state, found, err := s.projection.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !found {
		s.fail(c, core.NewError(core.ErrNotFound, "book "+id+" not projected yet"))
		return
	}
	c.JSON(http.StatusOK, newBookResponse(state))
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.Any("error", err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error(), "code": string(core.CodeOf(err))})
}

func statusFor(err error) int {
	switch core.CodeOf(err) {
	case core.ErrInvalidArgument:
		return http.StatusBadRequest
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
