// Package handler provides the HTTP handlers for the treestore server.
package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/schema"
	"github.com/stevemurr/treestore/storage"
	"github.com/stevemurr/treestore/value"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler holds the server dependencies and registers routes.
type Handler struct {
	docs    storage.DocumentStorage
	blobs   storage.BinaryStorage
	schemas *schema.Registry
	router  *mux.Router
	log     *logrus.Entry
}

// New creates a Handler and wires up all routes. A nil log uses the logrus
// standard logger.
func New(docs storage.DocumentStorage, blobs storage.BinaryStorage, schemas *schema.Registry, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	h := &Handler{
		docs:    docs,
		blobs:   blobs,
		schemas: schemas,
		router:  mux.NewRouter().UseEncodedPath(),
		log:     log,
	}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	// Health / status
	h.router.Handle("/", handlers.MethodHandler{"GET": http.HandlerFunc(h.root)})
	h.router.Handle("/health", handlers.MethodHandler{"GET": http.HandlerFunc(h.health)})
	h.router.Handle("/metrics", handlers.MethodHandler{"GET": promhttp.Handler()})

	// --- Documents ---
	h.router.Handle("/docs/{path:.+}", handlers.MethodHandler{
		"GET":    http.HandlerFunc(h.getDoc),
		"PUT":    h.mutating(h.putDoc),
		"PATCH":  h.mutating(h.patchDoc),
		"POST":   h.mutating(h.appendDoc),
		"DELETE": h.mutating(h.deleteDoc),
	})
	h.router.Handle("/watch/{path:.+}", handlers.MethodHandler{"GET": http.HandlerFunc(h.watch)})

	// --- Blobs ---
	h.router.Handle("/blobs/{path:.+}", handlers.MethodHandler{
		"GET":    http.HandlerFunc(h.getBlob),
		"PUT":    http.HandlerFunc(h.putBlob),
		"DELETE": http.HandlerFunc(h.deleteBlob),
	})

	// --- Schema endpoints ---
	h.router.Handle("/schemas", handlers.MethodHandler{"GET": http.HandlerFunc(h.listSchemas)})
	h.router.Handle("/schemas/{bucket}", handlers.MethodHandler{
		"GET":    http.HandlerFunc(h.getSchema),
		"PUT":    http.HandlerFunc(h.putSchema),
		"DELETE": http.HandlerFunc(h.deleteSchema),
	})
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeStorageError maps the storage error taxonomy onto status codes.
func (h *Handler) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, keypath.ErrInvalidPath), errors.Is(err, storage.ErrNotContainer),
		errors.Is(err, storage.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, schema.ErrInvalid):
		writeError(w, http.StatusUnprocessableEntity, "schema validation failed: "+err.Error())
	case errors.Is(err, storage.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		h.log.WithError(err).WithField("url", r.URL.String()).Error("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func readValue(r *http.Request) (value.Value, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return value.Value{}, err
	}
	return value.ParseJSON(data)
}

// pathVar parses the escaped {path} route variable.
func pathVar(r *http.Request) (keypath.Path, error) {
	return keypath.Parse(mux.Vars(r)["path"])
}

// bucketVar unescapes the {bucket} route variable.
func bucketVar(r *http.Request) (string, error) {
	return url.PathUnescape(mux.Vars(r)["bucket"])
}

func flag(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

// mutating refuses document writes into the schema bucket, which is managed
// through /schemas so that schemas are checked before they are stored.
func (h *Handler) mutating(fn func(http.ResponseWriter, *http.Request, keypath.Path)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := pathVar(r)
		if err != nil {
			h.writeStorageError(w, r, err)
			return
		}
		if p.Bucket() == schema.Bucket {
			writeError(w, http.StatusForbidden, fmt.Sprintf("bucket %q is managed through /schemas", schema.Bucket))
			return
		}
		fn(w, r, p)
	})
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "treestore",
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---------- documents ----------

// getDoc returns the value at the path. ?shallow=true lists child keys and
// ?collection=true lists child values instead; neither ever 404s.
func (h *Handler) getDoc(w http.ResponseWriter, r *http.Request) {
	p, err := pathVar(r)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	ctx := r.Context()
	switch {
	case flag(r, "shallow"):
		keys, err := storage.ChildKeys(ctx, h.docs, p)
		if err != nil {
			h.writeStorageError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, storage.Collect(keys))
	case flag(r, "collection"):
		items, err := h.docs.GetCollection(ctx, p)
		if err != nil {
			h.writeStorageError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, storage.Collect(items))
	default:
		v, err := h.docs.Get(ctx, p)
		if err != nil {
			h.writeStorageError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (h *Handler) putDoc(w http.ResponseWriter, r *http.Request, p keypath.Path) {
	v, err := readValue(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.docs.Write(r.Context(), p, v); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// patchDoc merges the body and responds with the resulting value, or null
// when the merge left nothing readable at the path.
func (h *Handler) patchDoc(w http.ResponseWriter, r *http.Request, p keypath.Path) {
	v, err := readValue(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.docs.Merge(r.Context(), p, v); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	merged, _, err := storage.LiftDocument(r.Context(), h.docs, p)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

func (h *Handler) appendDoc(w http.ResponseWriter, r *http.Request, p keypath.Path) {
	v, err := readValue(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	key, err := h.docs.Append(r.Context(), p, v)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	w.Header().Set("Location", "/docs/"+p.Child(key).String())
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (h *Handler) deleteDoc(w http.ResponseWriter, r *http.Request, p keypath.Path) {
	if err := h.docs.Delete(r.Context(), p); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "path": p.String()})
}

// ---------- blobs ----------

func (h *Handler) getBlob(w http.ResponseWriter, r *http.Request) {
	p, err := pathVar(r)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	rc, err := h.blobs.Get(r.Context(), p)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.WithError(err).WithField("path", p.String()).Warn("blob stream interrupted")
	}
}

func (h *Handler) putBlob(w http.ResponseWriter, r *http.Request) {
	p, err := pathVar(r)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	defer r.Body.Close()
	if err := h.blobs.Write(r.Context(), p, r.Body); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteBlob(w http.ResponseWriter, r *http.Request) {
	p, err := pathVar(r)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	if err := h.blobs.Delete(r.Context(), p); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------- schema endpoints ----------

func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.schemas.List(r.Context())
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schemas)
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	bucket, err := bucketVar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, ok, err := h.schemas.Get(r.Context(), bucket)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no schema for bucket %q", bucket))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) putSchema(w http.ResponseWriter, r *http.Request) {
	bucket, err := bucketVar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := readValue(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.schemas.Put(r.Context(), bucket, s); err != nil {
		if errors.Is(err, schema.ErrInvalid) {
			writeError(w, http.StatusBadRequest, "invalid schema: "+err.Error())
			return
		}
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) deleteSchema(w http.ResponseWriter, r *http.Request) {
	bucket, err := bucketVar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	existed, err := h.schemas.Delete(r.Context(), bucket)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no schema for bucket %q", bucket))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "bucket": bucket})
}
