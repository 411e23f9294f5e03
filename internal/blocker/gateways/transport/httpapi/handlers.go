package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/haukened/dontvisit/internal/blocker/domain"
	"github.com/haukened/dontvisit/internal/blocker/repos/listfile"
	"github.com/haukened/dontvisit/internal/blocker/services/blocker"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as a failed result object with a status derived
// from the error taxonomy.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), domain.Failure(blocker.ErrorText(err)))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateEntry):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMissingEntry):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, domain.Failure("Invalid request body"))
		return false
	}
	return true
}

// handleMessage answers one request of the vocabulary. The HTTP status is
// 200 whenever the body decoded; the result object carries success.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Handle(r.Context(), req))
}

type navigationResult struct {
	Blocked  bool     `json:"blocked"`
	Applied  string   `json:"applied,omitempty"`
	Tried    []string `json:"tried,omitempty"`
	FellBack bool     `json:"fellBack,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	var ev domain.NavigationEvent
	if !decodeJSON(w, r, &ev) {
		return
	}
	if ev.Stage == "" {
		ev.Stage = domain.StageLoading
	}
	out, blocked := s.svc.HandleNavigation(r.Context(), ev)
	res := navigationResult{Blocked: blocked, Applied: out.Applied, Tried: out.Tried, FellBack: out.FellBack}
	if out.Err != nil {
		res.Error = out.Err.Error()
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListEntries(w http.ResponseWriter, _ *http.Request) {
	list, err := s.svc.Entries()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Response{Success: true, Sites: list.Strings()})
}

type entryRequest struct {
	Site string `json:"site"`
	URL  string `json:"url"`
}

// handleAddEntry adds {"site": ...}, or the hostname of {"url": ...}.
func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var (
		list domain.BlockList
		err  error
	)
	if req.Site == "" && req.URL != "" {
		list, err = s.svc.AddEntryFromURL(req.URL)
	} else {
		list, err = s.svc.AddEntry(req.Site)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.Response{Success: true, Sites: list.Strings()})
}

// handleDeleteEntries removes ?site=..., or clears the list with ?all=true.
func (s *Server) handleDeleteEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if all, _ := strconv.ParseBool(q.Get("all")); all {
		if err := s.svc.ClearEntries(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.Response{Success: true, Sites: []string{}})
		return
	}
	site := q.Get("site")
	if site == "" {
		writeJSON(w, http.StatusBadRequest, domain.Failure("Missing site"))
		return
	}
	list, err := s.svc.RemoveEntry(site)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Response{Success: true, Sites: list.Strings()})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.svc.Snapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Response{
		Success:  true,
		Sites:    snap.BlockList.Strings(),
		Enabled:  &snap.Enabled,
		Method:   snap.Method,
		Settings: &snap.Settings,
	})
}

// handleSetEnabled stores {"enabled": bool}; an empty object flips the toggle.
func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	enabled, err := s.svc.SetEnabled(req.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Response{Success: true, Enabled: &enabled})
}

func (s *Server) handleSetMethod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string `json:"method"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := s.svc.SetMethod(req.Method)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedInput) {
			writeJSON(w, http.StatusBadRequest, domain.Failure("Invalid blocking method"))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Response{Success: true, Method: m})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	st, err := s.svc.Settings()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Response{Success: true, Settings: &st})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var st domain.Settings
	if !decodeJSON(w, r, &st) {
		return
	}
	if err := s.svc.UpdateSettings(st); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Response{Success: true, Settings: &st})
}

// handleStatistics serves per-host counts, or per registrable domain with
// ?group=domain.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Statistics()
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("group") == "domain" {
		stats = blocker.GroupByDomain(stats)
	}
	writeJSON(w, http.StatusOK, domain.Response{Success: true, Statistics: &stats})
}

func (s *Server) handleActivity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "activity": s.svc.RecentActivity()})
}

// handleExport serves the list as the JSON export document.
func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	list, err := s.svc.Entries()
	if err != nil {
		writeError(w, err)
		return
	}
	now := s.clock.Now()
	doc, err := listfile.Export(list.Strings(), now)
	if err != nil {
		s.logger.Error(map[string]any{"error": err}, "export failed")
		writeJSON(w, http.StatusInternalServerError, domain.Failure("Export failed"))
		return
	}
	name := fmt.Sprintf("blocked-sites-%s.json", now.UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

type importResult struct {
	Success bool     `json:"success"`
	Added   []string `json:"added"`
	Skipped int      `json:"skipped"`
	Invalid []string `json:"invalid,omitempty"`
	Sites   []string `json:"sites"`
}

// handleImport merges a list document into the block list. The format comes
// from ?format=, then the Content-Type, then a sniff of the body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, domain.Failure("Request body too large"))
		return
	}

	format, err := importFormat(r, data)
	if err != nil {
		writeError(w, err)
		return
	}
	parsed, err := s.lists.Parse(data, format)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.ImportEntries(parsed.Sites)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := s.svc.Entries()
	if err != nil {
		writeError(w, err)
		return
	}

	out := importResult{
		Success: true,
		Added:   res.Added,
		Skipped: res.Skipped,
		Invalid: append(errorStrings(parsed.Invalid), errorStrings(res.Rejected)...),
		Sites:   list.Strings(),
	}
	if out.Added == nil {
		out.Added = []string{}
	}
	s.logger.Info(map[string]any{"added": len(out.Added), "skipped": out.Skipped, "invalid": len(out.Invalid)}, "list imported")
	writeJSON(w, http.StatusOK, out)
}

func importFormat(r *http.Request, data []byte) (listfile.Format, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		return listfile.ParseFormat(f)
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		f, err := listfile.ParseFormat(ct)
		if err == nil && f != listfile.FormatPlain {
			return f, nil
		}
	}
	return listfile.Sniff(data), nil
}

func errorStrings(err error) []string {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
