package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecheck/internal/events"
	"github.com/codecheck/pkg/models"
)

const pushPayload = `{
  "object_kind": "push",
  "ref": "refs/heads/main",
  "checkout_sha": "bbb222",
  "user_name": "Pusher",
  "project_id": 15,
  "project": {"id": 15, "name": "shop", "web_url": "https://gitlab.example.com/team/shop"},
  "repository": {"name": "shop", "url": "git@gitlab.example.com:team/shop.git"},
  "commits": [
    {"id": "aaa111", "message": "fix price rounding\n", "author": {"name": "Alice"}},
    {"id": "bbb222", "message": "Merge branch 'fix' into 'main'", "author": {"name": "Bob"}}
  ]
}`

const mergeRequestPayload = `{
  "object_kind": "merge_request",
  "user": {"id": 1, "name": "Carol", "username": "carol"},
  "project": {"id": 15, "name": "shop", "web_url": "https://gitlab.example.com/team/shop"},
  "object_attributes": {
    "iid": 42,
    "title": "Checkout rework",
    "action": "open",
    "last_commit": {"id": "ccc333", "message": "rework checkout"}
  }
}`

type recorder struct {
	mu          sync.Mutex
	submissions []models.Submission
}

func (r *recorder) handler() events.Handler {
	return events.HandlerFunc{HandlerName: "recorder", Fn: func(ctx context.Context, s models.Submission) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.submissions = append(r.submissions, s)
		return nil
	}}
}

func newTestServer(t *testing.T, options ServerOptions) (*Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	registry := events.NewRegistry()
	registry.Add(rec.handler())
	server := NewServer(registry, options)
	t.Cleanup(server.Close)
	return server, rec
}

func post(server *Server, path, event, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if event != "" {
		req.Header.Set("X-Gitlab-Event", event)
	}
	if token != "" {
		req.Header.Set("X-Gitlab-Token", token)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_PushCreatesOneSubmissionPerCommit(t *testing.T) {
	server, rec := newTestServer(t, ServerOptions{})

	resp := post(server, DefaultWebhookPath, EventPush, "", pushPayload)
	server.Wait()

	require.Equal(t, http.StatusOK, resp.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "received", body["status"])
	assert.Equal(t, float64(2), body["submissions"])

	require.Len(t, rec.submissions, 2)
	first := rec.submissions[0]
	assert.Equal(t, int64(15), first.ProjectID)
	assert.Equal(t, "shop", first.ProjectName)
	assert.Equal(t, "git@gitlab.example.com:team/shop.git", first.RepositoryURL)
	assert.Equal(t, "aaa111", first.CommitID)
	assert.Equal(t, "Alice", first.Author)
	assert.Equal(t, "fix price rounding\n", first.Message)
	assert.Equal(t, models.SubmissionPush, first.Type)
	assert.Equal(t, "bbb222", rec.submissions[1].CommitID)
}

func TestWebhook_MergeRequest(t *testing.T) {
	server, rec := newTestServer(t, ServerOptions{})

	resp := post(server, DefaultWebhookPath, EventMergeRequest, "", mergeRequestPayload)
	server.Wait()

	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, rec.submissions, 1)
	mr := rec.submissions[0]
	assert.Equal(t, models.SubmissionMergeRequest, mr.Type)
	assert.Equal(t, int64(42), mr.MergeRequestIID)
	assert.Equal(t, "Checkout rework", mr.Title)
	assert.Equal(t, "ccc333", mr.CommitID)
	assert.Equal(t, "Carol", mr.Author)
	assert.Equal(t, "https://gitlab.example.com/team/shop", mr.RepositoryURL)
}

func TestWebhook_MergeRequestCloseIgnored(t *testing.T) {
	server, rec := newTestServer(t, ServerOptions{})

	body := strings.Replace(mergeRequestPayload, `"action": "open"`, `"action": "close"`, 1)
	resp := post(server, DefaultWebhookPath, EventMergeRequest, "", body)
	server.Wait()

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, rec.submissions)
}

func TestWebhook_TagPush(t *testing.T) {
	server, rec := newTestServer(t, ServerOptions{})

	body := `{"ref": "refs/tags/v1.2.0", "checkout_sha": "ddd444", "user_name": "Dan", "project_id": 15, "project": {"name": "shop"}, "commits": []}`
	resp := post(server, DefaultWebhookPath, EventTagPush, "", body)
	server.Wait()

	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, rec.submissions, 1)
	assert.Equal(t, models.SubmissionTag, rec.submissions[0].Type)
	assert.Equal(t, "v1.2.0", rec.submissions[0].Message)
	assert.Equal(t, "ddd444", rec.submissions[0].CommitID)
}

func TestWebhook_UnknownEventIgnored(t *testing.T) {
	server, rec := newTestServer(t, ServerOptions{})

	resp := post(server, DefaultWebhookPath, "Note Hook", "", `{"object_kind": "note"}`)
	server.Wait()

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "ignored")
	assert.Empty(t, rec.submissions)
}

func TestWebhook_InvalidPayload(t *testing.T) {
	server, _ := newTestServer(t, ServerOptions{})

	resp := post(server, DefaultWebhookPath, EventPush, "", `{"commits": "nope"`)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestWebhook_Secret(t *testing.T) {
	server, rec := newTestServer(t, ServerOptions{Secret: "s3cret", WebhookPath: "/hooks"})

	resp := post(server, "/hooks", EventPush, "wrong", pushPayload)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = post(server, "/hooks", EventPush, "", pushPayload)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = post(server, "/hooks", EventPush, "s3cret", pushPayload)
	server.Wait()
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, rec.submissions, 2)
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, ServerOptions{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "healthy"}`, rec.Body.String())
}
