package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"deckmerge/internal/merge"
)

// maxPayloadBytes bounds the request body: 70 card descriptors plus one
// base64 inline image fit comfortably under this.
const maxPayloadBytes = 32 * 1024 * 1024

type validationResponse struct {
	Message string        `json:"message"`
	Code    string        `json:"code"`
	Detail  []merge.Issue `json:"detail"`
}

type provisionResponse struct {
	Message string `json:"message"`
	Source  string `json:"source"`
	Code    string `json:"code"`
}

// MergeDeck handles POST /merge. On success the composed sheet is the
// response body and the merge metadata travels base64url-encoded in the
// X-Merge-Metadata header.
func (a *App) MergeDeck(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"message": "failed to read request body"})
		return
	}
	if !json.Valid(body) {
		a.json(w, http.StatusBadRequest, map[string]string{"message": "Invalid JSON payload"})
		return
	}

	result, err := a.Merge.MergeDeck(r.Context(), body)
	if err != nil {
		a.mergeError(w, r, err)
		return
	}

	header, err := merge.EncodeMetadataHeader(result.Metadata)
	if err != nil {
		a.Logger.Error().Err(err).Msg("failed to encode merge metadata header")
		a.json(w, http.StatusInternalServerError, map[string]string{"message": "internal server error"})
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "tts-merge."+result.Metadata.Output.Format))
	w.Header().Set("X-Merge-Metadata", header)
	w.Header().Set("X-Merge-Metadata-Encoding", "base64url")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Buffer)
}

func (a *App) mergeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *merge.ValidationError
	if errors.As(err, &validationErr) {
		a.Logger.Warn().Int("issues", len(validationErr.Issues)).Msg("merge validation failed")
		a.json(w, http.StatusUnprocessableEntity, validationResponse{
			Message: "Request validation failed",
			Code:    merge.CodeRequestInvalid,
			Detail:  validationErr.Issues,
		})
		return
	}

	var provisionErr *merge.ProvisionError
	if errors.As(err, &provisionErr) {
		status := provisionErr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		source := "image_fetch"
		if strings.Contains(provisionErr.Code, "cache") {
			source = "image_cache"
		}
		a.Logger.Error().Err(err).Str("code", provisionErr.Code).Int("status", status).
			Msg("merge provisioning failed")
		a.json(w, status, provisionResponse{
			Message: provisionErr.Error(),
			Source:  source,
			Code:    provisionErr.Code,
		})
		return
	}

	a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("merge failed unexpectedly")
	a.json(w, http.StatusInternalServerError, map[string]string{"message": "internal server error"})
}
