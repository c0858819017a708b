package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/service"
)

// SearchHandler handles query input and search results of a session
type SearchHandler struct {
	sessions      *service.SessionManager
	maxImageBytes int64
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(sessions *service.SessionManager, maxImageBytes int64) *SearchHandler {
	return &SearchHandler{sessions: sessions, maxImageBytes: maxImageBytes}
}

// resultsResponse is the search surface with affordability annotations
type resultsResponse struct {
	Seq              uint64                   `json:"seq"`
	Modality         model.Modality           `json:"modality,omitempty"`
	Query            string                   `json:"query,omitempty"`
	InterpretedQuery string                   `json:"interpreted_query,omitempty"`
	Loading          bool                     `json:"loading"`
	TotalResults     int                      `json:"total_results"`
	Products         []model.AnnotatedProduct `json:"products"`
	Error            *service.ViewError       `json:"error,omitempty"`
}

func results(c *gin.Context, s *service.Session) resultsResponse {
	products, view := s.Annotated(c.Request.Context())
	return resultsResponse{
		Seq:              view.Seq,
		Modality:         view.Modality,
		Query:            view.Query,
		InterpretedQuery: view.InterpretedQuery,
		Loading:          view.Loading,
		TotalResults:     view.TotalResults,
		Products:         products,
		Error:            view.Error,
	}
}

type inputRequest struct {
	Text string `json:"text" validate:"max=500"`
}

// Input handles POST /api/v1/sessions/:id/input - live typing
func (h *SearchHandler) Input(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	var req inputRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	s.Unifier.Type(req.Text)
	c.JSON(http.StatusAccepted, s.Unifier.State())
}

// Suggestions handles GET /api/v1/sessions/:id/suggestions
func (h *SearchHandler) Suggestions(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Unifier.State())
}

type searchRequest struct {
	Query *string `json:"query" validate:"omitempty,max=500"`
}

// Search handles POST /api/v1/sessions/:id/search. Without a query the live
// input is submitted.
func (h *SearchHandler) Search(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	var req searchRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
	}

	var err error
	if req.Query != nil {
		err = s.Unifier.SubmitText(c.Request.Context(), *req.Query)
	} else {
		err = s.Unifier.Submit(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results(c, s))
}

// Results handles GET /api/v1/sessions/:id/results
func (h *SearchHandler) Results(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, results(c, s))
}

// SelectImage handles POST /api/v1/sessions/:id/image - multipart "image"
func (h *SearchHandler) SelectImage(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}

	fh, err := c.FormFile("image")
	if err != nil {
		respondError(c, apperr.Validation("an image file is required"))
		return
	}
	if h.maxImageBytes > 0 && fh.Size > h.maxImageBytes {
		respondError(c, apperr.Validation("image exceeds the upload size limit"))
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, apperr.Internal("failed to read upload", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, fh.Size+1))
	if err != nil {
		respondError(c, apperr.Internal("failed to read upload", err))
		return
	}

	img, err := s.Unifier.SelectImage(service.ImageUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        int64(len(data)),
		Data:        data,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preview": img})
}

// ConfirmImage handles POST /api/v1/sessions/:id/image/confirm
func (h *SearchHandler) ConfirmImage(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	if err := s.Unifier.ConfirmImage(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results(c, s))
}

// ClearImage handles DELETE /api/v1/sessions/:id/image
func (h *SearchHandler) ClearImage(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	s.Unifier.ClearImage()
	c.Status(http.StatusNoContent)
}
