package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/keyfob-io/keyfob/internal/api/dto"
	apierrors "github.com/keyfob-io/keyfob/internal/api/errors"
	"github.com/keyfob-io/keyfob/internal/metrics"
	"github.com/keyfob-io/keyfob/pkg/bind"
	"github.com/keyfob-io/keyfob/pkg/keyring"
	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

// KeyHandler handles key-related HTTP requests. All operations go
// through the bind surface, the same table the CLI consumes.
type KeyHandler struct {
	surface *bind.Surface
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(surface *bind.Surface) *KeyHandler {
	return &KeyHandler{surface: surface}
}

// Parse handles POST /api/v1/keys.
func (h *KeyHandler) Parse(w http.ResponseWriter, r *http.Request) {
	var req dto.KeyParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Invalid JSON request body"))
		return
	}

	keyBytes, err := req.Key.Decode()
	if err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest(err.Error()))
		return
	}

	args := bind.Args{
		Data: keyBytes,
		Role: req.Role,
	}
	if req.Passphrase != "" {
		args.Passphrase = []byte(req.Passphrase)
	}

	result, err := h.surface.Call(r.Context(), "parse", args)
	if err != nil {
		respondMappedError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, keyResponse(result.(*bind.KeyInfo)))
}

// Generate handles POST /api/v1/keys/generate.
func (h *KeyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req dto.KeyGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Invalid JSON request body"))
		return
	}
	if req.Algorithm == "" {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("algorithm is required"))
		return
	}

	result, err := h.surface.Call(r.Context(), "generate", bind.Args{
		Algorithm: req.Algorithm,
		Bits:      req.Bits,
		Comment:   req.Comment,
	})
	if err != nil {
		respondMappedError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, keyResponse(result.(*bind.KeyInfo)))
}

// List handles GET /api/v1/keys.
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.surface.Call(r.Context(), "list", bind.Args{})
	if err != nil {
		respondMappedError(w, err)
		return
	}

	infos := result.([]bind.KeyInfo)
	resp := dto.KeyListResponse{
		Keys:  make([]dto.KeyResponse, 0, len(infos)),
		Count: len(infos),
	}
	for i := range infos {
		resp.Keys = append(resp.Keys, keyResponse(&infos[i]))
	}

	respondJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/keys/{id}.
func (h *KeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	result, err := h.surface.Call(r.Context(), "list", bind.Args{})
	if err != nil {
		respondMappedError(w, err)
		return
	}

	for _, info := range result.([]bind.KeyInfo) {
		if info.Handle == handle {
			respondJSON(w, http.StatusOK, keyResponse(&info))
			return
		}
	}
	respondMappedError(w, keyring.ErrHandleReleased)
}

// Release handles DELETE /api/v1/keys/{id}. Releasing an unknown or
// already-released handle succeeds: the end state is the same.
func (h *KeyHandler) Release(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	if _, err := h.surface.Call(r.Context(), "release", bind.Args{Handle: handle}); err != nil {
		respondMappedError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Public handles GET /api/v1/keys/{id}/public?format=.
func (h *KeyHandler) Public(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = string(sshkey.FormatAuthorizedKey)
	}
	f, err := sshkey.ParseFormat(format)
	if err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest(err.Error()))
		return
	}
	// Private material never leaves over HTTP.
	if f.IsPrivate() {
		respondError(w, http.StatusBadRequest,
			apierrors.NewBadRequest("private key formats are not served; only public formats are available here"))
		return
	}

	result, err := h.surface.Call(r.Context(), "serialize", bind.Args{
		Handle: handle,
		Format: string(f),
	})
	if err != nil {
		respondMappedError(w, err)
		return
	}

	data := result.([]byte)
	resp := dto.PublicKeyResponse{Format: string(f)}
	if f == sshkey.FormatWire {
		resp.PublicKey = dto.NewBase64(data)
	} else {
		resp.PublicKey = dto.NewText(data)
	}

	respondJSON(w, http.StatusOK, resp)
}

// Fingerprint handles GET /api/v1/keys/{id}/fingerprint?hash=.
func (h *KeyHandler) Fingerprint(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	result, err := h.surface.Call(r.Context(), "fingerprint", bind.Args{
		Handle: handle,
		Hash:   r.URL.Query().Get("hash"),
	})
	if err != nil {
		respondMappedError(w, err)
		return
	}

	fp := result.(*sshkey.Fingerprint)
	respondJSON(w, http.StatusOK, dto.FingerprintResponse{
		Fingerprint: fp.String(),
		Hash:        string(fp.Hash),
	})
}

// Sign handles POST /api/v1/keys/{id}/sign.
func (h *KeyHandler) Sign(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	var req dto.SignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Invalid JSON request body"))
		return
	}

	message, err := req.Message.Decode()
	if err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest(err.Error()))
		return
	}

	result, err := h.surface.Call(r.Context(), "sign", bind.Args{
		Handle:    handle,
		Message:   message,
		Namespace: req.Namespace,
	})
	if err != nil {
		respondMappedError(w, err)
		return
	}
	metrics.SignOperationsTotal.Inc()

	resp := dto.SignResponse{Namespace: req.Namespace}
	switch sig := result.(type) {
	case *sshkey.Signature:
		resp.Signature = &dto.SignatureData{
			Format: sig.Format,
			Blob:   base64.StdEncoding.EncodeToString(sig.Blob),
		}
	case []byte:
		resp.Armored = string(sig)
	}

	respondJSON(w, http.StatusOK, resp)
}

// keyResponse converts a surface KeyInfo to its DTO.
func keyResponse(info *bind.KeyInfo) dto.KeyResponse {
	return dto.KeyResponse{
		Handle:      info.Handle,
		Algorithm:   info.Algorithm,
		Role:        info.Role,
		Comment:     info.Comment,
		Fingerprint: info.Fingerprint,
		Bits:        info.Bits,
	}
}

// handleParam parses the {id} route parameter. A non-numeric id is a
// 400; the zero value reports failure after responding.
func handleParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	handle, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("key handle must be a number"))
		return 0, false
	}
	return handle, true
}
