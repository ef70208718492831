package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/JonMunkholm/PageImport/internal/core"
	"github.com/JonMunkholm/PageImport/internal/logging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
)

var (
	errUnsupportedMedia = errors.New("file is not delimited text")
	errTooLarge         = errors.New("file too large")
)

// multipart parts above this size spill to disk while parsing.
const formMemory = 8 << 20

// importForm holds the optional run settings sent with an upload. Empty
// values fall back to the configured defaults.
type importForm struct {
	Parent     string `validate:"max=1024"`
	Policy     string `validate:"omitempty,oneof=skip create-unique modify"`
	AutoCreate string `validate:"omitempty,boolean"`
	MaxRows    string `validate:"omitempty,number"`
	Delimiter  string `validate:"omitempty,max=3"`
	Quote      string `validate:"omitempty,len=1"`
	Mapping    string `validate:"omitempty,json"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"imports": s.service.LimiterStatus(),
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, core.ListTemplates())
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	info, err := core.DescribeTemplate(chi.URLParam(r, "template"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, info)
}

// handlePreview binds the uploaded file's header and dry-runs its first rows.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	file, name, _, err := s.receiveFile(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer file.Close()

	cfg, overrides, err := s.runConfig(r, chi.URLParam(r, "template"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp, err := s.service.Importer().Preview(r.Context(), file, cfg, overrides)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Debug("preview", "file", name, "columns", len(resp.Columns))
	writeJSON(w, resp)
}

// handleImport queues an import and returns its run ID.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	file, name, size, err := s.receiveFile(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	cfg, overrides, err := s.runConfig(r, chi.URLParam(r, "template"))
	if err != nil {
		file.Close()
		respondError(w, r, err)
		return
	}

	runID, err := s.service.StartImport(r.Context(), core.ImportRequest{
		FileName:  name,
		Source:    file,
		Size:      size,
		Config:    cfg,
		Overrides: overrides,
	})
	if err != nil {
		file.Close()
		respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import queued",
		"run_id", runID, "template", cfg.Template, "parent", cfg.ParentPath, "file", name, "bytes", size)
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"runId": runID})
}

// handleImportProgress streams progress snapshots as Server-Sent Events. The
// stream ends with a "complete" event carrying the final snapshot.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	updates, err := s.service.SubscribeProgress(runID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, errors.New("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var (
		last core.ImportProgress
		seq  int
	)
	for {
		select {
		case p, ok := <-updates:
			if !ok {
				data, _ := json.Marshal(last)
				fmt.Fprintf(w, "id: %d\nevent: complete\ndata: %s\n\n", seq+1, data)
				flusher.Flush()
				return
			}
			last = p
			seq++
			data, _ := json.Marshal(p)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", seq, data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult returns the run result, or 202 with the current progress
// while the run is still going. ?wait=true blocks until it ends.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	progress, err := s.service.GetImportProgress(runID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !progress.Phase.Finished() && !wait {
		writeJSONStatus(w, http.StatusAccepted, progress)
		return
	}

	result, err := s.service.GetImportResult(r.Context(), runID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelImport(chi.URLParam(r, "runID")); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelling"})
}

// runConfig merges the form settings over the configured defaults.
func (s *Server) runConfig(r *http.Request, template string) (core.RunConfig, map[int]string, error) {
	form := importForm{
		Parent:     r.FormValue("parent"),
		Policy:     r.FormValue("policy"),
		AutoCreate: r.FormValue("autoCreate"),
		MaxRows:    r.FormValue("maxRows"),
		Delimiter:  r.FormValue("delimiter"),
		Quote:      r.FormValue("quote"),
		Mapping:    r.FormValue("mapping"),
	}
	if err := s.validate.Struct(form); err != nil {
		return core.RunConfig{}, nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	cfg := s.defaults
	cfg.Template = template
	if form.Parent != "" {
		cfg.ParentPath = form.Parent
	}
	if form.Policy != "" {
		cfg.DuplicatePolicy = core.DuplicatePolicy(form.Policy)
	}
	if form.AutoCreate != "" {
		cfg.AutoCreateReferences, _ = strconv.ParseBool(form.AutoCreate)
	}
	if form.MaxRows != "" {
		n, err := strconv.Atoi(form.MaxRows)
		if err != nil {
			return core.RunConfig{}, nil, fmt.Errorf("%w: maxRows: %v", errBadRequest, err)
		}
		cfg.MaxRows = n
	}
	if form.Delimiter != "" {
		d, err := core.ParseSeparator(form.Delimiter)
		if err != nil {
			return core.RunConfig{}, nil, err
		}
		cfg.Delimiter = d
	}
	if form.Quote != "" {
		cfg.Quote = []rune(form.Quote)[0]
	}

	overrides, err := parseMapping(form.Mapping)
	if err != nil {
		return core.RunConfig{}, nil, err
	}
	return cfg, overrides, nil
}

// parseMapping reads {"<column index>": "<field>"}; an empty field unbinds
// the column.
func parseMapping(raw string) (map[int]string, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("%w: mapping: %v", errBadRequest, err)
	}
	out := make(map[int]string, len(m))
	for k, v := range m {
		col, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || col < 0 {
			return nil, fmt.Errorf("%w: mapping key %q is not a column index", errBadRequest, k)
		}
		out[col] = strings.TrimSpace(v)
	}
	return out, nil
}

// spooledFile is an upload copied to a temp file; Close removes it.
type spooledFile struct {
	*os.File
}

func (f spooledFile) Close() error {
	err := f.File.Close()
	os.Remove(f.Name())
	return err
}

// receiveFile copies the "file" form part to disk so it outlives the request
// and checks that it looks like text.
func (s *Server) receiveFile(w http.ResponseWriter, r *http.Request) (spooledFile, string, int64, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			return spooledFile{}, "", 0, fmt.Errorf("%w: limit is %d bytes", errTooLarge, s.cfg.Import.MaxFileSize)
		}
		return spooledFile{}, "", 0, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		return spooledFile{}, "", 0, fmt.Errorf("%w: no file provided", errBadRequest)
	}
	defer part.Close()

	tmp, err := os.CreateTemp("", "pageimport-*.csv")
	if err != nil {
		return spooledFile{}, "", 0, err
	}
	f := spooledFile{tmp}

	size, err := io.Copy(f, part)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		f.Close()
		return spooledFile{}, "", 0, err
	}

	if size > 0 {
		mt, err := mimetype.DetectReader(f)
		if err == nil {
			_, err = f.Seek(0, io.SeekStart)
		}
		if err != nil {
			f.Close()
			return spooledFile{}, "", 0, err
		}
		if !isText(mt) {
			f.Close()
			return spooledFile{}, "", 0, fmt.Errorf("%w: detected %s", errUnsupportedMedia, mt.String())
		}
	}
	return f, header.Filename, size, nil
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
