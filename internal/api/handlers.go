package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/comicshelf/internal/library"
)

const maxBody = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *library.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *library.Service) *Handler {
	return &Handler{svc: svc}
}

// comicID extracts the comic identifier from the URL. Identifiers contain
// '/', so clients send it encoded (e.g. Author%2FTitle).
func comicID(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

func queryBool(q url.Values, key string) bool {
	v, _ := strconv.ParseBool(q.Get(key))
	return v
}

// ListComics handles GET /api/comics.
//
//	@Summary		List comics with filtering, ordering and pagination
//	@Tags			comics
//	@Produce		json
//	@Param			tag				query		string	false	"Filter by tag"
//	@Param			loved			query		bool	false	"Only loved comics"
//	@Param			hide_disliked	query		bool	false	"Drop disliked comics"
//	@Param			q				query		string	false	"Match title or author"
//	@Param			sort			query		string	false	"Sort field"	Enums(title, author, category, random, added)
//	@Param			desc			query		bool	false	"Reverse order"
//	@Param			limit			query		int		false	"Page size"
//	@Param			offset			query		int		false	"Page offset"
//	@Success		200				{object}	ComicListResponse
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/comics [get]
func (h *Handler) ListComics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.List(r.Context(), library.ListOptions{
		Tag:          q.Get("tag"),
		LovedOnly:    queryBool(q, "loved"),
		HideDisliked: queryBool(q, "hide_disliked"),
		Query:        q.Get("q"),
		Sort:         q.Get("sort"),
		Desc:         queryBool(q, "desc"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		writeError(w, "list comics", err)
		return
	}
	writeJSON(w, http.StatusOK, ComicListResponse{Comics: items, Total: total})
}

// GetComic handles GET /api/comics/{id}.
//
//	@Summary		Get a single comic
//	@Tags			comics
//	@Produce		json
//	@Param			id	path		string	true	"Comic identifier"
//	@Success		200	{object}	ComicDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/comics/{id} [get]
func (h *Handler) GetComic(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), comicID(r))
	if err != nil {
		writeError(w, "get comic", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SetTags handles PUT /api/comics/{id}/tags.
//
//	@Summary		Replace a comic's tags
//	@Tags			comics
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Comic identifier"
//	@Param			body	body		TagsRequest	true	"New tag set"
//	@Success		200		{object}	ComicDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/comics/{id}/tags [put]
func (h *Handler) SetTags(w http.ResponseWriter, r *http.Request) {
	var req TagsRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.SetTags(r.Context(), comicID(r), req.Tags)
	if err != nil {
		writeError(w, "set tags", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SetLoved handles PUT /api/comics/{id}/loved.
//
//	@Summary		Mark or unmark a comic as loved
//	@Tags			comics
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Comic identifier"
//	@Param			body	body		FlagRequest	true	"Flag value"
//	@Success		200		{object}	ComicDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/comics/{id}/loved [put]
func (h *Handler) SetLoved(w http.ResponseWriter, r *http.Request) {
	var req FlagRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.SetLoved(r.Context(), comicID(r), req.Value)
	if err != nil {
		writeError(w, "set loved", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SetDisliked handles PUT /api/comics/{id}/disliked.
//
//	@Summary		Mark or unmark a comic as disliked
//	@Tags			comics
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Comic identifier"
//	@Param			body	body		FlagRequest	true	"Flag value"
//	@Success		200		{object}	ComicDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/comics/{id}/disliked [put]
func (h *Handler) SetDisliked(w http.ResponseWriter, r *http.Request) {
	var req FlagRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.SetDisliked(r.Context(), comicID(r), req.Value)
	if err != nil {
		writeError(w, "set disliked", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SetOverrides handles PUT /api/comics/{id}/overrides.
//
//	@Summary		Override display title, author, category or thumbnail
//	@Tags			comics
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Comic identifier"
//	@Param			body	body		Overrides	true	"Fields to change; empty string clears"
//	@Success		200		{object}	ComicDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/comics/{id}/overrides [put]
func (h *Handler) SetOverrides(w http.ResponseWriter, r *http.Request) {
	var req Overrides
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.SetOverrides(r.Context(), comicID(r), req)
	if err != nil {
		writeError(w, "set overrides", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetProgress handles GET /api/comics/{id}/progress.
//
//	@Summary		Get reading progress
//	@Tags			comics
//	@Produce		json
//	@Param			id	path		string	true	"Comic identifier"
//	@Success		200	{object}	ProgressBody
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/comics/{id}/progress [get]
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Progress(r.Context(), comicID(r))
	if err != nil {
		writeError(w, "get progress", err)
		return
	}
	writeJSON(w, http.StatusOK, ProgressBody{Progress: p})
}

// SetProgress handles PUT /api/comics/{id}/progress.
//
//	@Summary		Record reading progress
//	@Tags			comics
//	@Accept			json
//	@Param			id		path	string			true	"Comic identifier"
//	@Param			body	body	ProgressBody	true	"Page index"
//	@Success		204		"Progress stored"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/comics/{id}/progress [put]
func (h *Handler) SetProgress(w http.ResponseWriter, r *http.Request) {
	var req ProgressBody
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.SetProgress(r.Context(), comicID(r), req.Progress); err != nil {
		writeError(w, "set progress", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Command handles GET /api/comics/{id}/command.
//
//	@Summary		Show the launch command for a comic
//	@Tags			launch
//	@Produce		json
//	@Param			id	path		string	true	"Comic identifier"
//	@Success		200	{object}	CommandResponse
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/comics/{id}/command [get]
func (h *Handler) Command(w http.ResponseWriter, r *http.Request) {
	args, err := h.svc.Command(r.Context(), comicID(r))
	if err != nil {
		writeError(w, "command", err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Args: args})
}

// Launch handles POST /api/comics/{id}/launch.
//
//	@Summary		Open a comic in the configured program
//	@Tags			launch
//	@Produce		json
//	@Param			id	path		string	true	"Comic identifier"
//	@Success		202	{object}	CommandResponse
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/comics/{id}/launch [post]
func (h *Handler) Launch(w http.ResponseWriter, r *http.Request) {
	args, err := h.svc.Launch(r.Context(), comicID(r))
	if err != nil {
		writeError(w, "launch", err)
		return
	}
	writeJSON(w, http.StatusAccepted, CommandResponse{Args: args})
}

// Thumbnail handles GET /api/comics/{id}/thumbnail.
//
//	@Summary		Get a comic's thumbnail image
//	@Tags			comics
//	@Produce		octet-stream
//	@Param			id	path	string	true	"Comic identifier"
//	@Success		200	"Image bytes"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/comics/{id}/thumbnail [get]
func (h *Handler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.Thumbnail(r.Context(), comicID(r))
	if err != nil {
		writeError(w, "thumbnail", err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Tokenize handles POST /api/tokenize.
//
//	@Summary		Expand an execution string
//	@Tags			launch
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TokenizeRequest	true	"Format and optional comic"
//	@Success		200		{object}	CommandResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tokenize [post]
func (h *Handler) Tokenize(w http.ResponseWriter, r *http.Request) {
	var req TokenizeRequest
	if !decode(w, r, &req) {
		return
	}
	args, err := h.svc.Tokenize(r.Context(), req.Format, req.ID)
	if err != nil {
		writeError(w, "tokenize", err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Args: args})
}

// Rescan handles POST /api/rescan.
//
//	@Summary		Scan the library roots and reconcile
//	@Tags			library
//	@Produce		json
//	@Success		200	{object}	RescanResponse
//	@Security		BearerAuth
//	@Router			/rescan [post]
func (h *Handler) Rescan(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Rescan(r.Context())
	if err != nil {
		writeError(w, "rescan", err)
		return
	}
	resp := RescanResponse{
		ScanID:    res.ScanID.String(),
		Added:     make([]string, 0, len(res.Additions)),
		Removed:   make([]string, 0, len(res.Removals)),
		Unchanged: res.Unchanged,
	}
	for _, c := range res.Additions {
		resp.Added = append(resp.Added, c.ID().String())
	}
	for _, c := range res.Removals {
		resp.Removed = append(resp.Removed, c.ID().String())
	}
	writeJSON(w, http.StatusOK, resp)
}

// Shuffle handles POST /api/shuffle.
//
//	@Summary		Reshuffle the random ordering
//	@Tags			library
//	@Success		204	"Shuffled"
//	@Security		BearerAuth
//	@Router			/shuffle [post]
func (h *Handler) Shuffle(w http.ResponseWriter, r *http.Request) {
	h.svc.Shuffle(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Tags handles GET /api/tags.
//
//	@Summary		List tags with usage counts
//	@Tags			library
//	@Produce		json
//	@Success		200	{object}	TagListResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.Tags(r.Context())
	if err != nil {
		writeError(w, "tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagListResponse{Tags: tags})
}

// RunExtension handles POST /api/extensions/{name}.
//
//	@Summary		Run an extension over selected comics
//	@Tags			extensions
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string				true	"Extension name"
//	@Param			body	body		ExtensionRequest	false	"Comic identifiers; empty runs over all"
//	@Success		200		{object}	ExtensionResponse
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/extensions/{name} [post]
func (h *Handler) RunExtension(w http.ResponseWriter, r *http.Request) {
	var req ExtensionRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	status, err := h.svc.RunExtension(r.Context(), chi.URLParam(r, "name"), req.IDs)
	if err != nil {
		writeError(w, "run extension", err)
		return
	}
	writeJSON(w, http.StatusOK, ExtensionResponse{Status: status})
}

// Extensions handles GET /api/extensions.
//
//	@Summary		List configured extensions
//	@Tags			extensions
//	@Produce		json
//	@Success		200	{array}	string
//	@Security		BearerAuth
//	@Router			/extensions [get]
func (h *Handler) Extensions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Extensions())
}
