package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/gophusers/internal/common"
	"github.com/dmitrijs2005/gophusers/internal/server/avatars"
)

const (
	maxBodyBytes = 1 << 20

	detailCredentials  = "Could not validate credentials"
	detailAssertion    = "Invalid identity assertion"
	detailProvisioning = "User provisioning failed"
	detailNotFound     = "Not found"
	detailInternal     = "Internal server error"
)

var errBadBody = errors.New("malformed request body")

type detailResponse struct {
	Detail string `json:"detail"`
}

// validationItem follows the usual {loc, msg, type} shape of 422 bodies.
type validationItem struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

type validationResponse struct {
	Detail []validationItem `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailResponse{Detail: detail})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, detailCredentials)
}

// writeError maps service errors to HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	var fe common.FieldErrors
	switch {
	case errors.As(err, &fe):
		items := make([]validationItem, 0, len(fe))
		for _, e := range fe {
			items = append(items, validationItem{Loc: []string{"body", e.Field}, Msg: e.Message, Type: "value_error"})
		}
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Detail: items})
	case errors.Is(err, errBadBody):
		writeDetail(w, http.StatusBadRequest, errBadBody.Error())
	case errors.Is(err, common.ErrInvalidAssertion):
		writeDetail(w, http.StatusUnauthorized, detailAssertion)
	case errors.Is(err, common.ErrorUnauthorized):
		writeUnauthorized(w)
	case errors.Is(err, common.ErrProvisioning):
		writeDetail(w, http.StatusServiceUnavailable, detailProvisioning)
	case errors.Is(err, avatars.ErrDisabled):
		writeDetail(w, http.StatusNotFound, avatars.ErrDisabled.Error())
	case errors.Is(err, common.ErrorNotFound):
		writeDetail(w, http.StatusNotFound, detailNotFound)
	default:
		writeDetail(w, http.StatusInternalServerError, detailInternal)
	}
}

// decodeJSON reads a JSON object from the request body. An empty body
// decodes as the zero value. A well-formed body with a wrongly typed field
// is a validation error on that field; anything else unreadable is errBadBody.
func decodeJSON(r *http.Request, w http.ResponseWriter, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) && te.Field != "" {
		return common.FieldErrors{{Field: te.Field, Message: "invalid type"}}
	}
	return errBadBody
}
