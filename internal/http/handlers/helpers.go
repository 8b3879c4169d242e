package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"mandoob-dispatch-services/internal/domain"
	"mandoob-dispatch-services/pkg/response"

	"github.com/go-chi/chi/v5"
)

func readPathString(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

func readPathInt64(r *http.Request, key string) (int64, error) {
	value := readPathString(r, key)
	if value == "" {
		return 0, errMissingParam
	}
	var out int64
	_, err := fmt.Sscan(value, &out)
	return out, err
}

var errMissingParam = errors.New("missing param")

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func jsonRaw(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return string(raw)
	}
	return out
}

// writeDomainError maps a typed failure to the JSON envelope, keeping
// the machine code and details the engines attached.
func writeDomainError(w http.ResponseWriter, derr *domain.Error) {
	response.ErrorDetails(w, derr.StatusCode, derr.Code, derr.Message, derr.Details)
}
