package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBotAPI struct {
	mu       sync.Mutex
	getMe    int
	forms    []map[string]string
	sendCode int
	sendDesc string
}

func (f *fakeBotAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			f.getMe++
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"alerts","username":"alerts_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			assert.NoError(t, r.ParseForm())
			form := map[string]string{}
			for key := range r.PostForm {
				form[key] = r.PostForm.Get(key)
			}
			f.forms = append(f.forms, form)
			if f.sendCode != 0 {
				w.WriteHeader(f.sendCode)
				fmt.Fprintf(w, `{"ok":false,"error_code":%d,"description":%q}`, f.sendCode, f.sendDesc)
				return
			}
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":123,"type":"private"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}
}

func newFakeBotServer(t *testing.T, f *fakeBotAPI) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_SendMessage(t *testing.T) {
	fake := &fakeBotAPI{}
	srv := newFakeBotServer(t, fake)
	client := NewClient("TOKEN", srv.URL+"/bot%s/%s")

	require.NoError(t, client.SendMessage(context.Background(), "123", "<b>hi</b>", "HTML"))
	require.NoError(t, client.SendMessage(context.Background(), "@ai_news", "second", "HTML"))

	assert.Equal(t, 1, fake.getMe, "bot should be created once")
	require.Len(t, fake.forms, 2)
	assert.Equal(t, "123", fake.forms[0]["chat_id"])
	assert.Equal(t, "<b>hi</b>", fake.forms[0]["text"])
	assert.Equal(t, "HTML", fake.forms[0]["parse_mode"])
	assert.Equal(t, "true", fake.forms[0]["disable_web_page_preview"])
	assert.Equal(t, "@ai_news", fake.forms[1]["chat_id"])
}

func TestClient_SendMessageAPIError(t *testing.T) {
	fake := &fakeBotAPI{sendCode: http.StatusForbidden, sendDesc: "Forbidden: bot was blocked by the user"}
	srv := newFakeBotServer(t, fake)
	client := NewClient("TOKEN", srv.URL+"/bot%s/%s")

	err := client.SendMessage(context.Background(), "123", "hi", "HTML")
	require.Error(t, err)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusForbidden, transportErr.Code)
	assert.False(t, transportErr.Retryable())
	assert.Contains(t, err.Error(), "bot was blocked")
}

func TestClient_SendMessageNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL + "/bot%s/%s"
	srv.Close()

	err := NewClient("TOKEN", endpoint).SendMessage(context.Background(), "123", "hi", "HTML")

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Zero(t, transportErr.Code)
	assert.True(t, transportErr.Retryable())
}

func TestClient_InvalidChatID(t *testing.T) {
	fake := &fakeBotAPI{}
	srv := newFakeBotServer(t, fake)

	err := NewClient("TOKEN", srv.URL+"/bot%s/%s").SendMessage(context.Background(), "not-a-chat", "hi", "HTML")
	assert.ErrorIs(t, err, ErrInvalidChatID)
	assert.Zero(t, fake.getMe)
}

func TestClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewClient("TOKEN", "http://127.0.0.1:0/bot%s/%s").SendMessage(ctx, "123", "hi", "HTML")
	assert.ErrorIs(t, err, context.Canceled)
}
