package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"lrcforge/internal/api"
	"lrcforge/internal/library"
	"lrcforge/internal/merge"
)

// defaultMergeOutput is used when a merge request names no output file.
const defaultMergeOutput = "merged.wav"

func (s *apiServer) handleMergeFiles(w http.ResponseWriter, _ *http.Request) {
	files, err := s.daemon.library.MergeFiles()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, files)
}

func (s *apiServer) handleMergeStart(w http.ResponseWriter, r *http.Request) {
	var req api.MergeStartRequest
	if !s.decode(w, r, &req) {
		return
	}
	sources, err := s.daemon.library.MergeSources(req.Files)
	if err != nil {
		s.writeError(w, mergeErrorStatus(err), err.Error())
		return
	}
	output, err := s.mergeOutput(req.Output)
	if err != nil {
		s.writeError(w, mergeErrorStatus(err), err.Error())
		return
	}
	status, err := s.daemon.merger.Start(merge.Request{
		Sources:       sources,
		Output:        output,
		DeleteSources: req.DeleteSources,
	})
	if err != nil {
		s.writeError(w, mergeErrorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromMergeStatus(status))
}

// mergeOutput places a requested file name inside the merge output directory.
func (s *apiServer) mergeOutput(name string) (string, error) {
	cfg := s.daemon.live.Current()
	dir := strings.TrimSpace(cfg.Paths.MergeOutputDir)
	if dir == "" {
		return "", fmt.Errorf("merge output %w", library.ErrNotConfigured)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultMergeOutput
	}
	if !filepath.IsLocal(name) || strings.ContainsRune(name, filepath.Separator) {
		return "", fmt.Errorf("%w: output must be a file name", merge.ErrInvalidInput)
	}
	return merge.OutputPath(filepath.Join(dir, name)), nil
}

func mergeErrorStatus(err error) int {
	switch {
	case errors.Is(err, merge.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, merge.ErrInvalidInput), errors.Is(err, library.ErrNotConfigured):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) handleMergeCancel(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.SuccessResponse{Success: s.daemon.merger.Cancel()})
}

func (s *apiServer) handleMergeStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.FromMergeStatus(s.daemon.merger.Status()))
}

func (s *apiServer) handleMergeStream(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, s.daemon.merger)
}
