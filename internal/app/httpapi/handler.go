package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	app "github.com/luggez/groupsystem/internal/app"
	domain "github.com/luggez/groupsystem/internal/app/domain/membership"
	"github.com/luggez/groupsystem/internal/app/services/directory"
	membershipsvc "github.com/luggez/groupsystem/internal/app/services/membership"
	"github.com/luggez/groupsystem/internal/app/storage"
	"github.com/luggez/groupsystem/internal/duration"
	"github.com/luggez/groupsystem/internal/render"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the administrative REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/groups", h.groups)
	mux.HandleFunc("/groups/", h.groupResources)
	mux.HandleFunc("/users/", h.userResources)
	mux.HandleFunc("/render", h.render)
	mux.HandleFunc("/healthz", h.healthz)
	mux.HandleFunc("/motd", h.motd)
	return mux
}

type groupResponse struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Prefix      string   `json:"prefix"`
	Permissions []string `json:"permissions,omitempty"`
}

func (h *handler) groups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		groups := h.app.Directory.List()
		out := make([]groupResponse, 0, len(groups))
		for _, g := range groups {
			out = append(out, groupResponse{ID: g.ID, Name: g.Name, Prefix: g.Prefix, Permissions: g.Permissions})
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var payload struct {
			Name   string `json:"name"`
			Prefix string `json:"prefix"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		g, err := h.app.Directory.Create(payload.Name, payload.Prefix).Wait(r.Context())
		if err != nil {
			if errors.Is(err, storage.ErrDuplicateName) {
				writeMessage(w, http.StatusConflict, h.app.Messages.Get("group.exists", "group", payload.Name))
				return
			}
			writeError(w, h.statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			groupResponse
			Message string `json:"message"`
		}{
			groupResponse{ID: g.ID, Name: g.Name, Prefix: g.Prefix, Permissions: g.Permissions},
			h.app.Messages.Get("group.created", "group", g.Name),
		})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) groupResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/groups"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	name := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			g, ok := h.app.Directory.Get(name)
			if !ok {
				writeMessage(w, http.StatusNotFound, h.app.Messages.Get("group.not-found", "group", name))
				return
			}
			writeJSON(w, http.StatusOK, groupResponse{ID: g.ID, Name: g.Name, Prefix: g.Prefix, Permissions: g.Permissions})
		case http.MethodDelete:
			h.deleteGroup(w, r, name)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if parts[1] != "permissions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch len(parts) {
	case 2:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			Permission string `json:"permission"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		g, err := h.app.Directory.Grant(name, payload.Permission).Wait(r.Context())
		if err != nil {
			writeError(w, h.statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, groupResponse{ID: g.ID, Name: g.Name, Prefix: g.Prefix, Permissions: g.Permissions})
	case 3:
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g, err := h.app.Directory.Revoke(name, parts[2]).Wait(r.Context())
		if err != nil {
			writeError(w, h.statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, groupResponse{ID: g.ID, Name: g.Name, Prefix: g.Prefix, Permissions: g.Permissions})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// deleteGroup removes the group, then reassigns every user that was in it to
// the default group. A reassignment failure is reported but does not undo
// the delete; the sweep and the next connect converge those users.
func (h *handler) deleteGroup(w http.ResponseWriter, r *http.Request, name string) {
	affected, err := h.app.Directory.Delete(name).Wait(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrProtectedGroup):
			writeMessage(w, http.StatusConflict, h.app.Messages.Get("group.protected"))
		case errors.Is(err, storage.ErrNotFound):
			writeMessage(w, http.StatusNotFound, h.app.Messages.Get("group.not-found", "group", name))
		default:
			writeError(w, h.statusFor(err), err)
		}
		return
	}

	reassigned := 0
	for _, userID := range affected {
		if _, err := h.app.Memberships.ResetToDefault(userID).Wait(r.Context()); err != nil {
			writeError(w, h.statusFor(err), fmt.Errorf("reassign %s: %w", userID, err))
			return
		}
		reassigned++
	}

	writeJSON(w, http.StatusOK, struct {
		Group      string `json:"group"`
		Reassigned int    `json:"reassigned"`
		Message    string `json:"message"`
	}{
		name, reassigned,
		h.app.Messages.Get("group.deleted", "group", name, "count", fmt.Sprintf("%d", reassigned)),
	})
}

func (h *handler) userResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/users"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	userID, err := uuid.Parse(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid user id: %w", err))
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.userInfo(w, r, userID)
		return
	}

	switch parts[1] {
	case "group":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.assignGroup(w, r, userID)
	case "session":
		h.userSession(w, r, userID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) userInfo(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	rec, err := h.app.Memberships.Lookup(userID).Wait(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusOK, h.userInfoResponse(userID, domain.Record{GroupName: h.app.Memberships.CurrentGroup(userID)}))
			return
		}
		writeError(w, h.statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, h.userInfoResponse(userID, rec))
}

func (h *handler) userInfoResponse(userID uuid.UUID, rec domain.Record) any {
	now := time.Now()
	resp := struct {
		User        string   `json:"user"`
		Group       string   `json:"group"`
		Prefix      string   `json:"prefix"`
		Online      bool     `json:"online"`
		Permanent   bool     `json:"permanent"`
		ExpiresAt   *string  `json:"expires_at,omitempty"`
		Remaining   string   `json:"remaining,omitempty"`
		Permissions []string `json:"permissions,omitempty"`
		Message     string   `json:"message"`
	}{
		User:      userID.String(),
		Group:     rec.GroupName,
		Online:    h.app.Memberships.Loaded(userID),
		Permanent: !rec.Temporary(),
	}

	if g, ok := h.app.Directory.Get(rec.GroupName); ok {
		resp.Prefix = g.Prefix
	}
	if resp.Online {
		resp.Permissions = h.app.Memberships.ResolvePermissions(userID)
	}

	switch {
	case !rec.Temporary():
		resp.Message = h.app.Messages.Get("userinfo.permanent")
	case rec.Expired(now):
		resp.Message = h.app.Messages.Get("userinfo.expired")
	default:
		expires := rec.ExpiresAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &expires
		resp.Remaining = duration.Format(rec.Remaining(now))
		resp.Message = h.app.Messages.Get("userinfo.remaining", "duration", resp.Remaining)
	}
	return resp
}

func (h *handler) assignGroup(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	var payload struct {
		Group    string `json:"group"`
		Duration string `json:"duration"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	d, err := duration.Parse(payload.Duration)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, h.app.Messages.Get("assign.invalid-expiry", "error", err.Error()))
		return
	}
	var expiresAt time.Time
	if d > 0 {
		expiresAt = time.Now().Add(d)
	}

	rec, err := h.app.Memberships.Assign(userID, payload.Group, expiresAt).Wait(r.Context())
	if err != nil {
		if errors.Is(err, membershipsvc.ErrUnknownGroup) {
			writeMessage(w, http.StatusNotFound, h.app.Messages.Get("group.not-found", "group", payload.Group))
			return
		}
		writeError(w, h.statusFor(err), err)
		return
	}

	msg := h.app.Messages.Get("assign.success", "user", userID.String(), "group", rec.GroupName)
	if rec.Temporary() {
		msg += " " + h.app.Messages.Get("assign.temporary", "duration", duration.Format(rec.Remaining(time.Now())))
	} else {
		msg += " " + h.app.Messages.Get("assign.permanent")
	}
	writeJSON(w, http.StatusOK, struct {
		User      string `json:"user"`
		Group     string `json:"group"`
		Permanent bool   `json:"permanent"`
		Message   string `json:"message"`
	}{userID.String(), rec.GroupName, !rec.Temporary(), msg})
}

func (h *handler) userSession(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	switch r.Method {
	case http.MethodPost:
		key, err := h.app.Memberships.LoadUser(userID).Wait(r.Context())
		if err != nil {
			if errors.Is(err, storage.ErrUnavailable) {
				writeMessage(w, http.StatusServiceUnavailable, h.app.Messages.Get("store.unavailable"))
				return
			}
			writeError(w, h.statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			User   string `json:"user"`
			Group  string `json:"group"`
			Prefix string `json:"prefix"`
		}{userID.String(), key, h.app.Memberships.ResolvePrefix(userID)})

	case http.MethodDelete:
		h.app.Memberships.Unload(userID)
		h.app.Applier.Clear(userID)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// prefixLookup resolves display names to group prefixes for placeholder
// rendering. Only names the caller maps to a currently loaded user resolve.
type prefixLookup struct {
	members *membershipsvc.Service
	byName  map[string]uuid.UUID
}

func (l prefixLookup) PrefixFor(name string) (string, bool) {
	id, ok := l.byName[name]
	if !ok || !l.members.Loaded(id) {
		return "", false
	}
	return l.members.ResolvePrefix(id), true
}

func (h *handler) render(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Text  string            `json:"text"`
		Users map[string]string `json:"users"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	lookup := prefixLookup{members: h.app.Memberships, byName: make(map[string]uuid.UUID, len(payload.Users))}
	for name, raw := range payload.Users {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid user id for %q: %w", name, err))
			return
		}
		lookup.byName[name] = id
	}

	writeJSON(w, http.StatusOK, struct {
		Text string `json:"text"`
	}{render.Placeholders(payload.Text, lookup)})
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		Groups int    `json:"groups"`
		Users  int    `json:"users"`
	}{"ok", len(h.app.Directory.List()), h.app.Memberships.CacheSize()})
}

func (h *handler) motd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		MOTD string `json:"motd"`
	}{h.app.MOTD})
}

func (h *handler) statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, directory.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
