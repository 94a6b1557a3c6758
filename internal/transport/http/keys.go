package http

import (
	"log/slog"
	"net/http"

	"dmcore/internal/dto"
	"dmcore/internal/service"
)

func (a *api) provisionKeys(w http.ResponseWriter, r *http.Request) {
	var req dto.ProvisionKeysRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "provision keys", err)
		return
	}
	rec, err := a.svc.ProvisionKeys(r.Context(), service.ProvisionRequest{
		UserID:            caller(r),
		PublicKey:         req.PublicKey,
		WrappedPrivateKey: req.EncryptedPrivateKey,
	})
	if err != nil {
		writeError(w, r, "provision keys", err)
		return
	}
	slog.Info("keys provisioned", logAttrs(r, "key_version", rec.KeyVersion)...)
	writeJSON(w, http.StatusCreated, keyRecordResponse(*rec))
}

func (a *api) ownKeys(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.GetOwnKeys(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, "get own keys", err)
		return
	}
	writeJSON(w, http.StatusOK, keyRecordResponse(*rec))
}

func (a *api) publicKey(w http.ResponseWriter, r *http.Request) {
	target, err := uuidParam(r, "userId")
	if err != nil {
		writeError(w, r, "get public key", err)
		return
	}
	pub, err := a.svc.GetPublicKey(r.Context(), target)
	if err != nil {
		writeError(w, r, "get public key", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.PublicKeyResponse{UserID: target.String(), PublicKey: pub})
}
