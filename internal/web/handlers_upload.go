package web

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/custupload/internal/core"
)

// uploadParams are the options accepted as query parameters or as
// multipart fields sent before the file part.
var uploadParams = map[string]bool{
	"format":    true,
	"delimiter": true,
	"encoding":  true,
	"async":     true,
	"filename":  true,
}

const maxParamSize = 256

// uploadRequest is a parsed upload: the payload stream and how to read it.
type uploadRequest struct {
	body  io.ReadCloser
	opts  core.UploadOptions
	async bool
}

// handleUpload ingests a customer file. Synchronous requests return the
// outcome report (200 when the job completed, 422 when it failed). With
// async=true the payload is spooled to disk and 202 returns the job ID.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	if r.ContentLength > maxSize {
		s.respondError(w, r, core.ErrFileTooLarge, http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	req, err := readUpload(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	defer req.body.Close()

	if req.async {
		s.startAsyncUpload(w, r, req)
		return
	}

	guard := &sizeGuard{r: req.body}
	report, err := s.service.IngestUpload(r.Context(), guard, req.opts)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if guard.exceeded {
		s.respondError(w, r, fmt.Errorf("upload %s: %w", report.JobID, core.ErrFileTooLarge), http.StatusRequestEntityTooLarge)
		return
	}

	status := http.StatusOK
	if report.Status == core.StatusFailed {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}

func (s *Server) startAsyncUpload(w http.ResponseWriter, r *http.Request, req *uploadRequest) {
	spooled, size, err := spool(s.cfg.Upload.SpoolDir, req.body)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	req.opts.Size = size

	jobID, err := s.service.StartUpload(r.Context(), spooled, req.opts)
	if err != nil {
		spooled.Close()
		s.respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Location", "/customers/uploads/"+jobID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(core.StatusRunning),
	})
}

// handleUploadStatus returns a running job's snapshot or a finished job's report.
func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	snap, report, err := s.service.JobStatus(r.Context(), jobID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if snap != nil {
		writeJSON(w, http.StatusOK, snap)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleCancelUpload asks a running job to stop at its next row.
func (s *Server) handleCancelUpload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if err := s.service.CancelUpload(jobID); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": "cancelling",
	})
}

// readUpload locates the payload and its options. Multipart bodies are read
// part by part so the file is never buffered in memory.
func readUpload(r *http.Request) (*uploadRequest, error) {
	params := make(map[string]string)
	for name := range uploadParams {
		if v := r.URL.Query().Get(name); v != "" {
			params[name] = v
		}
	}

	var (
		body        io.ReadCloser
		fileName    string
		contentType string
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		mr, err := r.MultipartReader()
		if err != nil {
			return nil, badRequest(err)
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil, core.ErrNoFile
			}
			if err != nil {
				return nil, readError(err)
			}

			name := part.FormName()
			if name == "file" {
				body = part
				fileName = part.FileName()
				contentType = part.Header.Get("Content-Type")
				break
			}
			if uploadParams[name] {
				v, err := io.ReadAll(io.LimitReader(part, maxParamSize))
				if err != nil {
					part.Close()
					return nil, readError(err)
				}
				params[name] = strings.TrimSpace(string(v))
			}
			part.Close()
		}
	} else {
		body = r.Body
		contentType = mediaType
	}

	if fileName == "" {
		fileName = params["filename"]
	}

	opts, async, err := parseUploadParams(params, fileName, contentType)
	if err != nil {
		body.Close()
		return nil, err
	}

	payload, err := nonEmpty(body)
	if err != nil {
		body.Close()
		return nil, err
	}

	return &uploadRequest{body: payload, opts: opts, async: async}, nil
}

func parseUploadParams(params map[string]string, fileName, contentType string) (core.UploadOptions, bool, error) {
	opts := core.UploadOptions{FileName: fileName, Encoding: params["encoding"]}

	if f := params["format"]; f != "" {
		format, err := core.ParseFormat(f)
		if err != nil {
			return opts, false, badRequest(err)
		}
		opts.Format = format
	} else {
		opts.Format = core.DetectFormat(fileName, contentType)
	}

	delim, err := core.ParseDelimiter(params["delimiter"])
	if err != nil {
		return opts, false, badRequest(err)
	}
	opts.Delimiter = delim

	if err := core.CheckEncoding(opts.Encoding); err != nil {
		return opts, false, badRequest(err)
	}

	var async bool
	if v := params["async"]; v != "" {
		async, err = strconv.ParseBool(v)
		if err != nil {
			return opts, false, badRequest(fmt.Errorf("invalid async value %q", v))
		}
	}
	return opts, async, nil
}

// nonEmpty peeks at body and fails with core.ErrEmptyPayload when it has
// no bytes at all.
func nonEmpty(body io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(body)
	if _, err := br.Peek(1); err != nil {
		if err == io.EOF {
			return nil, core.ErrEmptyPayload
		}
		return nil, readError(err)
	}
	return struct {
		io.Reader
		io.Closer
	}{br, body}, nil
}

func readError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: %w", core.ErrFileTooLarge, err)
	}
	return badRequest(fmt.Errorf("read upload: %w", err))
}

// sizeGuard records whether the request body hit its size limit.
type sizeGuard struct {
	r        io.Reader
	exceeded bool
}

func (g *sizeGuard) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	var maxErr *http.MaxBytesError
	if err != nil && errors.As(err, &maxErr) {
		g.exceeded = true
	}
	return n, err
}

// spoolFile is an upload payload on disk, removed when closed.
type spoolFile struct {
	*os.File
}

func (f *spoolFile) Close() error {
	err := f.File.Close()
	if rmErr := os.Remove(f.Name()); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// spool copies src into a temp file in dir and rewinds it.
func spool(dir string, src io.Reader) (*spoolFile, int64, error) {
	f, err := os.CreateTemp(dir, "custupload-*")
	if err != nil {
		return nil, 0, fmt.Errorf("create spool file: %w", err)
	}
	sf := &spoolFile{File: f}

	n, err := io.Copy(f, src)
	if err != nil {
		sf.Close()
		return nil, 0, readError(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		sf.Close()
		return nil, 0, fmt.Errorf("rewind spool file: %w", err)
	}
	return sf, n, nil
}
