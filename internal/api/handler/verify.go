package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/keyfob-io/keyfob/internal/api/dto"
	apierrors "github.com/keyfob-io/keyfob/internal/api/errors"
	"github.com/keyfob-io/keyfob/pkg/bind"
	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

// VerifyHandler handles signature verification requests.
type VerifyHandler struct {
	surface *bind.Surface
}

// NewVerifyHandler creates a new VerifyHandler.
func NewVerifyHandler(surface *bind.Surface) *VerifyHandler {
	return &VerifyHandler{surface: surface}
}

// Verify handles POST /api/v1/verify. A signature that does not match
// is a 200 with valid=false; only malformed input is an error.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Invalid JSON request body"))
		return
	}

	message, err := req.Message.Decode()
	if err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest(err.Error()))
		return
	}

	args := bind.Args{
		Message:   message,
		Handle:    req.Handle,
		Namespace: req.Namespace,
	}
	if req.Key != nil {
		keyBytes, err := req.Key.Decode()
		if err != nil {
			respondError(w, http.StatusBadRequest, apierrors.NewBadRequest(err.Error()))
			return
		}
		args.Data = keyBytes
	}
	if req.Armored != "" {
		args.Armored = []byte(req.Armored)
	}
	if req.Signature != nil {
		blob, err := base64.StdEncoding.DecodeString(req.Signature.Blob)
		if err != nil {
			respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("signature blob is not valid base64"))
			return
		}
		args.Signature = &sshkey.Signature{
			Format: req.Signature.Format,
			Blob:   blob,
		}
	}

	result, err := h.surface.Call(r.Context(), "verify", args)
	if err != nil {
		respondMappedError(w, err)
		return
	}

	res := result.(*bind.VerifyResult)
	respondJSON(w, http.StatusOK, dto.VerifyResponse{
		Valid:       res.Valid,
		Algorithm:   res.Algorithm,
		Fingerprint: res.Fingerprint,
		Comment:     res.Comment,
	})
}
