package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/sticker-storefront/internal/domain/album"
)

func (h *Handler) listSchools(w http.ResponseWriter, r *http.Request) {
	schools, err := h.catalog.ListSchools(r.Context())
	if err != nil {
		h.writeError(w, r, upstream(err))
		return
	}
	if schools == nil {
		schools = []album.School{}
	}
	writeJSON(w, http.StatusOK, schools)
}

func (h *Handler) listAlbums(w http.ResponseWriter, r *http.Request) {
	h.writeAlbums(w, r, "")
}

func (h *Handler) listSchoolAlbums(w http.ResponseWriter, r *http.Request) {
	h.writeAlbums(w, r, r.PathValue("id"))
}

func (h *Handler) writeAlbums(w http.ResponseWriter, r *http.Request, schoolID string) {
	albums, err := h.catalog.ListAlbums(r.Context(), schoolID)
	if err != nil {
		h.writeError(w, r, upstream(err))
		return
	}
	if albums == nil {
		albums = []album.Album{}
	}
	writeJSON(w, http.StatusOK, albums)
}

func (h *Handler) getAlbum(w http.ResponseWriter, r *http.Request) {
	a, err := h.album(r, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) album(r *http.Request, id string) (*album.Album, error) {
	a, err := h.catalog.GetAlbum(r.Context(), id)
	switch {
	case errors.Is(err, album.ErrNotFound):
		return nil, err
	case err != nil:
		return nil, upstream(err)
	default:
		return a, nil
	}
}
