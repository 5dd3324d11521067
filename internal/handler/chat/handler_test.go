package chat

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yyc3/yunshu/backend/internal/logger"
	"github.com/yyc3/yunshu/backend/internal/model/chat"
	chatservice "github.com/yyc3/yunshu/backend/internal/service/chat"
	"github.com/yyc3/yunshu/backend/internal/service/dialog"
)

func setupRouter(t *testing.T) (*chi.Mux, *chatservice.Service) {
	t.Helper()
	chatSvc := chatservice.NewService(dialog.Options{
		ThinkingDelay:  time.Millisecond,
		RevealInterval: time.Millisecond,
		Logger:         logger.Nop(),
	})
	t.Cleanup(chatSvc.Shutdown)

	r := chi.NewRouter()
	New(chatSvc, logger.Nop()).RegisterRoutes(r)
	return r, chatSvc
}

func do(r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createDialog(t *testing.T, r http.Handler) createResponse {
	t.Helper()
	resp := do(r, http.MethodPost, "/dialogs", nil)
	require.Equal(t, http.StatusCreated, resp.Code)

	var created createResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	return created
}

func waitIdle(t *testing.T, svc *chatservice.Service, id string) {
	t.Helper()
	d, err := svc.Get(t.Context(), id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s := d.Snapshot()
		return s.Status == chat.StatusIdle && s.Typing == ""
	}, 5*time.Second, time.Millisecond)
}

func TestCreateDialogOpensIt(t *testing.T) {
	r, _ := setupRouter(t)
	created := createDialog(t, r)

	assert.True(t, created.Snapshot.Open)
	assert.Equal(t, chat.StatusResponding, created.Snapshot.Status)
}

func TestSnapshotUnknownDialog(t *testing.T) {
	r, _ := setupRouter(t)
	resp := do(r, http.MethodGet, "/dialogs/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSubmitMessage(t *testing.T) {
	r, svc := setupRouter(t)
	created := createDialog(t, r)
	waitIdle(t, svc, created.ID)

	resp := do(r, http.MethodPost, "/dialogs/"+created.ID+"/messages", map[string]string{"text": "  帮我翻译  "})
	require.Equal(t, http.StatusAccepted, resp.Code)

	var msg chat.Message
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &msg))
	assert.Equal(t, chat.RoleUser, msg.Role)
	assert.Equal(t, "帮我翻译", msg.Text)

	waitIdle(t, svc, created.ID)
	resp = do(r, http.MethodGet, "/dialogs/"+created.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var listed struct {
		Results []struct {
			Message chat.Message `json:"message"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &listed))
	require.Len(t, listed.Results, 3)
	assert.Equal(t, chat.RoleAssistant, listed.Results[2].Message.Role)
}

func TestSubmitRejections(t *testing.T) {
	r, svc := setupRouter(t)
	created := createDialog(t, r)
	target := "/dialogs/" + created.ID + "/messages"

	// 欢迎语仍在输出
	resp := do(r, http.MethodPost, target, map[string]string{"text": "你好"})
	assert.Equal(t, http.StatusConflict, resp.Code)

	waitIdle(t, svc, created.ID)
	resp = do(r, http.MethodPost, target, map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(r, http.MethodPost, "/dialogs/"+created.ID+"/close", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	resp = do(r, http.MethodPost, target, map[string]string{"text": "你好"})
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestSearchMessages(t *testing.T) {
	r, svc := setupRouter(t)
	created := createDialog(t, r)
	waitIdle(t, svc, created.ID)

	resp := do(r, http.MethodGet, "/dialogs/"+created.ID+"/messages?q=AI", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"highlights"`)

	resp = do(r, http.MethodGet, "/dialogs/"+created.ID+"/messages?q=zzz", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"results":[]`)
}

func TestDeleteDialog(t *testing.T) {
	r, svc := setupRouter(t)
	created := createDialog(t, r)

	resp := do(r, http.MethodDelete, "/dialogs/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, 0, svc.Len())

	resp = do(r, http.MethodDelete, "/dialogs/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAttachFile(t *testing.T) {
	r, _ := setupRouter(t)
	created := createDialog(t, r)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("%PDF"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/dialogs/"+created.ID+"/attachments", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.Contains(resp.Body.String(), "已上传文件：report.pdf"))
}
