// Package common holds helpers shared by the HTTP handlers.
package common

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatservice "github.com/yyc3/yunshu/backend/internal/service/chat"
	"github.com/yyc3/yunshu/backend/internal/service/dialog"
	"github.com/yyc3/yunshu/backend/internal/service/voice"
	"github.com/yyc3/yunshu/backend/pkg/utils"
)

// DialogParam is the chi URL parameter carrying the dialog id.
const DialogParam = "dialogID"

// DialogPath is the route prefix for a single dialog.
const DialogPath = "/dialogs/{" + DialogParam + "}"

// Dialogs looks dialogs up by id.
type Dialogs interface {
	Get(ctx context.Context, id string) (*dialog.Dialog, error)
}

// LoadDialog resolves the dialog named in the URL, writing an error response
// when it does not exist.
func LoadDialog(w http.ResponseWriter, r *http.Request, dialogs Dialogs) (*dialog.Dialog, bool) {
	id := chi.URLParam(r, DialogParam)
	if id == "" {
		utils.RespondError(w, http.StatusBadRequest, "dialog id is required")
		return nil, false
	}
	d, err := dialogs.Get(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err)
		return nil, false
	}
	return d, true
}

// StatusFor maps service errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatservice.ErrDialogNotFound):
		return http.StatusNotFound
	case errors.Is(err, dialog.ErrEmptyInput), errors.Is(err, dialog.ErrEmptyRecording):
		return http.StatusBadRequest
	case errors.Is(err, dialog.ErrBusy), errors.Is(err, dialog.ErrClosed), errors.Is(err, dialog.ErrNotRecording):
		return http.StatusConflict
	}

	var verr *voice.Error
	if errors.As(err, &verr) {
		switch verr.Kind {
		case voice.KindUnsupported, voice.KindServiceUnavailable:
			return http.StatusServiceUnavailable
		case voice.KindPermissionDenied:
			return http.StatusForbidden
		case voice.KindNetwork:
			return http.StatusBadGateway
		case voice.KindNoSpeech, voice.KindDeviceUnavailable, voice.KindLanguageUnsupported:
			return http.StatusUnprocessableEntity
		case voice.KindCancelled:
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

// RespondServiceError writes err with its mapped status. Voice failures carry
// the user-facing message and their kind.
func RespondServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)

	var verr *voice.Error
	if errors.As(err, &verr) {
		utils.RespondJSON(w, status, map[string]string{
			"error": verr.Message(),
			"kind":  string(verr.Kind),
		})
		return
	}
	utils.RespondError(w, status, err.Error())
}
