package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"social-export/internal/domain"
	"social-export/internal/domain/model"
	"social-export/internal/infra/logging"
	"social-export/internal/usecase"
)

type enqueueBody struct {
	Format          *string `json:"format"`
	IncludeDM       *bool   `json:"includeDm"`
	IncludeMedia    *bool   `json:"includeMedia"`
	IncludeAllPosts *bool   `json:"includeAllPosts"`
	MaxAttempts     *int    `json:"maxAttempts"`
}

// toInput requires the caller to name at least a format or one content switch.
func (b enqueueBody) toInput() (usecase.EnqueueInput, error) {
	if b.Format == nil && b.IncludeDM == nil && b.IncludeMedia == nil && b.IncludeAllPosts == nil {
		return usecase.EnqueueInput{}, domain.ErrNothingRequested
	}
	in := usecase.EnqueueInput{}
	if b.Format != nil {
		in.Format = *b.Format
	}
	if b.IncludeDM != nil {
		in.Options.IncludeDM = *b.IncludeDM
	}
	if b.IncludeMedia != nil {
		in.Options.IncludeMedia = *b.IncludeMedia
	}
	if b.IncludeAllPosts != nil {
		in.Options.IncludeAllPosts = *b.IncludeAllPosts
	}
	if b.MaxAttempts != nil {
		if *b.MaxAttempts < model.MinMaxAttempts || *b.MaxAttempts > model.MaxMaxAttempts {
			return usecase.EnqueueInput{}, fmt.Errorf("%w: maxAttempts must be between %d and %d",
				domain.ErrInvalidArgument, model.MinMaxAttempts, model.MaxMaxAttempts)
		}
		in.MaxAttempts = *b.MaxAttempts
	}
	return in, nil
}

type retryBody struct {
	ResetAttempts bool `json:"resetAttempts"`
	MaxAttempts   *int `json:"maxAttempts"`
}

// decodeBody treats an empty body as the zero value.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidArgument)
	}
	return nil
}

func (s *Server) enqueueExport(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var body enqueueBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	in, err := body.toInput()
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := s.uc.Enqueue(r.Context(), p.UserID, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

func (s *Server) listExports(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	reqs, err := s.uc.List(r.Context(), p.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reqs))
}

func (s *Server) getExport(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	req, err := s.uc.Get(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) retryExport(w http.ResponseWriter, r *http.Request) {
	var body retryBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	req, err := s.uc.AdminRetry(r.Context(), chi.URLParam(r, "id"), usecase.RetryInput{
		ResetAttempts: body.ResetAttempts,
		MaxAttempts:   body.MaxAttempts,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) listUserExports(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.uc.ListForUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reqs))
}

func (s *Server) processExports(w http.ResponseWriter, r *http.Request) {
	batch := s.cfg.BatchSize
	if v := r.URL.Query().Get("batch"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: batch must be a positive integer", domain.ErrInvalidArgument))
			return
		}
		batch = min(n, s.cfg.BatchSize)
	}
	res, err := s.uc.ProcessQueue(r.Context(), batch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) downloadArtifact(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	body, meta, err := s.uc.OpenArtifact(r.Context(), p.UserID, p.Admin, chi.URLParam(r, "*"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	if meta.CacheControl != "" {
		w.Header().Set("Cache-Control", meta.CacheControl)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _, _ := mapError(err)
	if status >= http.StatusInternalServerError {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, err)
}

func nonNil(reqs []*model.ExportRequest) []*model.ExportRequest {
	if reqs == nil {
		return []*model.ExportRequest{}
	}
	return reqs
}
