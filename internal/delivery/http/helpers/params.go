package helpers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"communityevents/internal/domain"
)

// PathUUID returns the named path value when it parses as a UUID. Otherwise it writes a
// 400 response and returns false.
func PathUUID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("%s must be a UUID", name))
		return "", false
	}
	return id.String(), true
}

// ScopeFromQuery builds the capacity pool scope of eventID from the optional subgroup_id query parameter.
func ScopeFromQuery(r *http.Request, eventID string) domain.Scope {
	return domain.SubgroupScope(eventID, strings.TrimSpace(r.URL.Query().Get("subgroup_id")))
}
