package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/atinyakov/SiteKeeper/internal/middleware"
	"github.com/atinyakov/SiteKeeper/internal/objectstore"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxUploadSize bounds a single object upload.
const maxUploadSize = 256 << 20

// ObjectStore defines the object operations required by the StorageHandler.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*objectstore.Object, error)
	Remove(ctx context.Context, key string) error
}

// StorageHandler serves /storage/v1/object/*. Keys are scoped to the
// authenticated user.
type StorageHandler struct {
	Objects ObjectStore
	Log     *zap.Logger
}

// Put stores the request body under the key in the URL.
func (h *StorageHandler) Put(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	body := http.MaxBytesReader(w, r.Body, maxUploadSize)
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := h.Objects.Put(r.Context(), key, body, r.ContentLength, contentType); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "object too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.Log.Error("object upload failed", zap.String("key", key), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": chi.URLParam(r, "*")})
}

// Get streams the object stored under the key in the URL.
func (h *StorageHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	obj, err := h.Objects.Get(r.Context(), key)
	if errors.Is(err, objectstore.ErrNotFound) {
		http.Error(w, "object not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.Log.Error("object download failed", zap.String("key", key), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer obj.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	if _, err := io.Copy(w, obj); err != nil {
		h.Log.Warn("object stream interrupted", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes the object stored under the key in the URL. Removing a
// missing object succeeds.
func (h *StorageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	if err := h.Objects.Remove(r.Context(), key); err != nil {
		h.Log.Error("object delete failed", zap.String("key", key), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StorageHandler) key(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := objectstore.ObjectKey(middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "*"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return key, true
}
