package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sambigeara/sadb/pkg/batch"
	"github.com/sambigeara/sadb/pkg/lifecycle"
	"github.com/sambigeara/sadb/pkg/render"
	"github.com/sambigeara/sadb/pkg/sacsv"
	"github.com/sambigeara/sadb/pkg/store"
	"github.com/sambigeara/sadb/pkg/types"
	"github.com/sambigeara/sadb/pkg/validation"
)

type errorBody struct {
	Error      string                 `json:"error"`
	Kind       lifecycle.Kind         `json:"kind"`
	Violations []validation.Violation `json:"violations,omitempty"`
	RequestID  string                 `json:"requestId,omitempty"`
}

type rowResult struct {
	SA    *types.SecurityAssociation `json:"sa,omitempty"`
	Error string                     `json:"error,omitempty"`
	Line  int                        `json:"line"`
	Type  types.FrameType            `json:"type"`
}

type bulkBody struct {
	Op      string      `json:"op"`
	Results []rowResult `json:"results"`
	Failed  int         `json:"failed"`
}

// badRequest marks adapter level input problems (path, query, body shape).
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func badRequestf(format string, args ...any) error {
	return badRequest{fmt.Errorf(format, args...)}
}

func statusFor(kind lifecycle.Kind) int {
	switch kind {
	case lifecycle.KindValidation:
		return http.StatusBadRequest
	case lifecycle.KindNotFound:
		return http.StatusNotFound
	case lifecycle.KindConflict, lifecycle.KindState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error(), Kind: lifecycle.KindOf(err), RequestID: requestIDFrom(r.Context())}

	var br badRequest
	if errors.As(err, &br) {
		body.Kind = lifecycle.KindValidation
	}
	var ve *validation.Error
	if errors.As(err, &ve) {
		body.Violations = ve.Violations
	}

	status := statusFor(body.Kind)
	if status == http.StatusInternalServerError {
		s.log.Errorw("request failed", "request_id", body.RequestID, "err", err)
	}
	writeJSON(w, status, body)
}

func frameTypeParam(r *http.Request) (types.FrameType, error) {
	ft, err := types.ParseFrameType(chi.URLParam(r, "type"))
	if err != nil {
		return 0, badRequest{err}
	}
	return ft, nil
}

func uint16Value(name, raw string) (uint16, error) {
	v, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, badRequestf("%s must be an integer within 0-65535, got %q", name, raw)
	}
	return uint16(v), nil
}

func target(r *http.Request) (types.FrameType, uint16, uint16, error) {
	ft, err := frameTypeParam(r)
	if err != nil {
		return 0, 0, 0, err
	}
	scid, err := uint16Value("scid", chi.URLParam(r, "scid"))
	if err != nil {
		return 0, 0, 0, err
	}
	spi, err := uint16Value("spi", chi.URLParam(r, "spi"))
	if err != nil {
		return 0, 0, 0, err
	}
	return ft, scid, spi, nil
}

func boolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequestf("%s must be a boolean, got %q", name, raw)
	}
	return v, nil
}

// decodeParams checks the body against the request schema before decoding.
func (s *Server) decodeParams(w http.ResponseWriter, r *http.Request) (types.Params, error) {
	var p types.Params

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		return p, badRequestf("read body: %v", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return p, badRequestf("body is not valid JSON: %v", err)
	}
	if err := s.schema.Validate(doc); err != nil {
		return p, badRequestf("body does not match schema: %v", err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, badRequestf("decode body: %v", err)
	}
	return p, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ft, err := frameTypeParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	var f store.Filter
	if raw := q.Get("spi"); raw != "" {
		v, err := uint16Value("spi", raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		f.SPI = &v
	}
	if raw := q.Get("scid"); raw != "" {
		v, err := uint16Value("scid", raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		f.SCID = &v
	}
	if q.Has("active") {
		active, err := boolQuery(r, "active")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		f.State = store.StateInactive
		if active {
			f.State = store.StateActive
		}
	}

	format := render.FormatJSON
	if raw := q.Get("format"); raw != "" {
		if format, err = render.ParseFormat(raw); err != nil || format == render.FormatDescribe {
			s.writeError(w, r, badRequestf("format must be json or csv"))
			return
		}
	}

	sas, err := s.router.List(r.Context(), ft, f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if format == render.FormatCSV {
		w.Header().Set("Content-Type", "text/csv")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	if err := render.Write(w, format, sas); err != nil {
		s.log.Warnw("write list response", "err", err)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ft, scid, spi, err := target(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sa, err := s.router.Get(r.Context(), ft, scid, spi)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sa)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ft, err := frameTypeParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	force, err := boolQuery(r, "force")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.decodeParams(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sa, err := s.router.Create(r.Context(), ft, p, lifecycle.CreateOptions{Overwrite: force})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sa)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ft, scid, spi, err := target(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.decodeParams(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sa, err := s.router.Update(r.Context(), ft, scid, spi, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sa)
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	ft, scid, spi, err := target(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.decodeParams(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sa, err := s.router.Key(r.Context(), ft, scid, spi, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sa)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ft, scid, spi, err := target(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	force, err := boolQuery(r, "force")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.router.Start(r.Context(), ft, scid, spi, force)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sa": res.SA, "stopped": res.Stopped})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	ft, scid, spi, err := target(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sa, err := s.router.Stop(r.Context(), ft, scid, spi)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sa)
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	ft, scid, spi, err := target(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sa, err := s.router.Expire(r.Context(), ft, scid, spi)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sa)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ft, scid, spi, err := target(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.router.Delete(r.Context(), ft, scid, spi); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	ft, err := frameTypeParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	kind, err := batch.ParseKind(r.URL.Query().Get("op"))
	if err != nil {
		s.writeError(w, r, badRequest{err})
		return
	}
	force, err := boolQuery(r, "force")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rows, err := sacsv.Read(http.MaxBytesReader(w, r.Body, maxCSVBody))
	if err != nil {
		s.writeError(w, r, badRequest{err})
		return
	}

	rep := batch.Apply(r.Context(), s.router, rows, kind, batch.Options{Type: ft, Force: force})
	body := bulkBody{Op: kind.String(), Failed: rep.Failed(), Results: make([]rowResult, 0, len(rep.Results))}
	for _, res := range rep.Results {
		rr := rowResult{Line: res.Line, Type: res.Type, SA: res.SA}
		if res.Err != nil {
			rr.Error = res.Err.Error()
		}
		body.Results = append(body.Results, rr)
	}

	status := http.StatusOK
	if body.Failed > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, body)
}
