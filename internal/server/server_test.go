package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"famcal/internal/auth"
	"famcal/internal/storage"
	"famcal/pkg/logx"
)

const (
	testBotToken = "123456:TEST"
	testSecret   = "session-secret"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.Open(storage.Config{Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	verifier := auth.NewVerifier(testBotToken, false, logx.Nop())
	codec := auth.NewTokenCodec(testSecret, nil)
	return New(":0", store, verifier, codec, logx.Nop())
}

func signedInitData(t *testing.T, user string) string {
	t.Helper()
	fields := map[string]string{
		"auth_date": "1700000000",
		"user":      user,
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+fields[k])
	}

	derive := hmac.New(sha256.New, []byte("WebAppData"))
	derive.Write([]byte(testBotToken))
	mac := hmac.New(sha256.New, derive.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))

	vals := url.Values{}
	for k, v := range fields {
		vals.Set(k, v)
	}
	vals.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return vals.Encode()
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func loginAs(t *testing.T, h http.Handler, id int64, username string) string {
	t.Helper()
	user := fmt.Sprintf(`{"id":%d,"first_name":"U%d","username":%q}`, id, id, username)
	rec := doJSON(t, h, http.MethodPost, "/auth/verify", "",
		map[string]string{"init_data": signedInitData(t, user)})
	if rec.Code != http.StatusOK {
		t.Fatalf("auth verify status = %d body = %s", rec.Code, rec.Body.String())
	}
	return decode[map[string]string](t, rec)["token"]
}

func TestAuthVerifyIssuesWorkingToken(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	token := loginAs(t, h, 42, "ada")

	rec := doJSON(t, h, http.MethodGet, "/users/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	me := decode[storage.User](t, rec)
	if me.ID != 42 || me.Username == nil || *me.Username != "ada" {
		t.Fatalf("me = %+v", me)
	}
	if !me.NotificationsEnabled {
		t.Fatal("new user should have notifications enabled")
	}
}

func TestAuthVerifyRejectsBadCredential(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, http.MethodPost, "/auth/verify", "",
		map[string]string{"init_data": "auth_date=1&hash=deadbeef"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["error"] != "unauthorized" {
		t.Fatalf("body = %v, want uniform unauthorized", body)
	}
}

func TestProtectedRoutesRejectUniformly(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	tests := []struct {
		name  string
		token string
	}{
		{name: "no token", token: ""},
		{name: "garbage token", token: "zzz"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := doJSON(t, h, http.MethodGet, "/tasks?start=2026-03-01&end=2026-03-02", tt.token, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if body := decode[map[string]string](t, rec); body["error"] != "unauthorized" {
				t.Fatalf("body = %v, want uniform unauthorized", body)
			}
		})
	}
}

func TestTaskCRUD(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	token := loginAs(t, h, 42, "ada")

	rec := doJSON(t, h, http.MethodPost, "/tasks", token, map[string]any{
		"title":               "dentist",
		"date":                "2026-03-02",
		"start_time":          "14:00",
		"notify_before_hours": 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	created := decode[storage.Task](t, rec)
	if created.ID == 0 || created.OwnerID != 42 || created.Scope != storage.ScopePersonal {
		t.Fatalf("created = %+v", created)
	}

	rec = doJSON(t, h, http.MethodGet, "/tasks?start=2026-03-01&end=2026-03-03", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if tasks := decode[[]storage.Task](t, rec); len(tasks) != 1 || tasks[0].Title != "dentist" {
		t.Fatalf("list = %+v", tasks)
	}

	rec = doJSON(t, h, http.MethodPatch, fmt.Sprintf("/tasks/%d", created.ID), token,
		map[string]any{"title": "dentist (moved)", "date": "2026-03-03"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d body = %s", rec.Code, rec.Body.String())
	}
	patched := decode[storage.Task](t, rec)
	if patched.Title != "dentist (moved)" || patched.Date != "2026-03-03" {
		t.Fatalf("patched = %+v", patched)
	}
	if patched.StartTime == nil || *patched.StartTime != "14:00" {
		t.Fatalf("untouched field lost: %+v", patched)
	}

	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/tasks/%d", created.ID), token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/tasks?start=2026-03-01&end=2026-03-05", token, nil)
	if tasks := decode[[]storage.Task](t, rec); len(tasks) != 0 {
		t.Fatalf("list after delete = %+v", tasks)
	}
}

func TestTaskValidation(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	token := loginAs(t, h, 42, "ada")

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "no title", body: map[string]any{"date": "2026-03-02"}},
		{name: "bad date", body: map[string]any{"title": "x", "date": "03/02/2026"}},
		{name: "bad time", body: map[string]any{"title": "x", "date": "2026-03-02", "start_time": "2pm"}},
		{name: "bad scope", body: map[string]any{"title": "x", "date": "2026-03-02", "scope": "global"}},
		{name: "family without id", body: map[string]any{"title": "x", "date": "2026-03-02", "scope": "family"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := doJSON(t, h, http.MethodPost, "/tasks", token, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTaskOwnership(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	owner := loginAs(t, h, 1, "owner")
	other := loginAs(t, h, 2, "other")

	rec := doJSON(t, h, http.MethodPost, "/tasks", owner, map[string]any{
		"title": "private", "date": "2026-03-02",
	})
	created := decode[storage.Task](t, rec)

	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/tasks/%d", created.ID), other, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger delete status = %d, want 403", rec.Code)
	}
}

func TestFamilyFlow(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	owner := loginAs(t, h, 1, "owner")
	member := loginAs(t, h, 2, "member")

	rec := doJSON(t, h, http.MethodPost, "/families", owner, map[string]string{"name": "The Lovelaces"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create family status = %d body = %s", rec.Code, rec.Body.String())
	}
	fam := decode[storage.Family](t, rec)
	if fam.InviteCode == "" || fam.OwnerID != 1 {
		t.Fatalf("family = %+v", fam)
	}

	rec = doJSON(t, h, http.MethodPost, "/families/join", member,
		map[string]string{"invite_code": fam.InviteCode})
	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/families", member, nil)
	if fams := decode[[]storage.Family](t, rec); len(fams) != 1 || fams[0].ID != fam.ID {
		t.Fatalf("member families = %+v", fams)
	}

	// The member can now post to the family calendar.
	rec = doJSON(t, h, http.MethodPost, "/tasks", member, map[string]any{
		"title": "groceries", "date": "2026-03-02", "scope": "family", "family_id": fam.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("family task status = %d body = %s", rec.Code, rec.Body.String())
	}

	// Family tasks are visible to other members via the family scope.
	path := fmt.Sprintf("/tasks?start=2026-03-01&end=2026-03-03&scope=family&family_id=%d", fam.ID)
	rec = doJSON(t, h, http.MethodGet, path, owner, nil)
	if tasks := decode[[]storage.Task](t, rec); len(tasks) != 1 || tasks[0].Title != "groceries" {
		t.Fatalf("family list = %+v", tasks)
	}

	// Strangers are not.
	stranger := loginAs(t, h, 3, "stranger")
	rec = doJSON(t, h, http.MethodGet, path, stranger, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger list status = %d, want 403", rec.Code)
	}

	// Only the owner removes other members.
	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/families/%d/members/%d", fam.ID, 2), stranger, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger remove status = %d, want 403", rec.Code)
	}
	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/families/%d/members/%d", fam.ID, 2), owner, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("owner remove status = %d", rec.Code)
	}
}

func TestNotificationToggle(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	token := loginAs(t, h, 42, "ada")

	rec := doJSON(t, h, http.MethodPatch, "/users/me", token,
		map[string]any{"notifications_enabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d body = %s", rec.Code, rec.Body.String())
	}
	if me := decode[storage.User](t, rec); me.NotificationsEnabled {
		t.Fatalf("me = %+v, want notifications off", me)
	}

	// The flag survives the next login.
	loginAs(t, h, 42, "ada")
	rec = doJSON(t, h, http.MethodGet, "/users/me", token, nil)
	if me := decode[storage.User](t, rec); me.NotificationsEnabled {
		t.Fatal("login upsert reset the notifications flag")
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
