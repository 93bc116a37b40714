package server

import (
	"errors"
	"io"
	"net/http"

	"FlowCash/logger"
	"FlowCash/storage"

	"github.com/gorilla/mux"
)

// UploadContentHandler POST /api/content/{audio|cover}
// 上传音频或封面，返回内容哈希（CID），供铸造曲目时引用
func (s *Server) UploadContentHandler(w http.ResponseWriter, r *http.Request) {
	if s.content == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "content storage is not configured")
		return
	}
	kind, err := storage.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.ContentLength > s.maxUpload {
		writeErrorMessage(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeErrorMessage(w, http.StatusBadRequest, "missing multipart field \"file\"")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if len(data) == 0 {
		writeErrorMessage(w, http.StatusBadRequest, "empty file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	hash, err := s.content.Put(r.Context(), kind, data, contentType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.Info("[Content] 上传完成",
		logger.String("kind", string(kind)),
		logger.String("hash", hash),
		logger.String("uploader", caller(r)),
		logger.Int("size", len(data)))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"kind":        kind,
		"hash":        hash,
		"size":        len(data),
		"contentType": contentType,
	})
}
