package push

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/notification"
)

const testIcon = "/ce871213-1168-48f7-b65f-4681ac5f7386.jpg"

var testConfig = Config{
	Title:       "Estoca.AI",
	DefaultBody: "Nova notificação do Estoca.AI",
	Icon:        testIcon,
	DefaultURL:  "/",
}

type recordingOpener struct {
	urls []string
	err  error
}

func (o *recordingOpener) OpenWindow(_ context.Context, url string) error {
	o.urls = append(o.urls, url)
	return o.err
}

func newTestHandler(t *testing.T) (*Handler, *notification.Service, *recordingOpener) {
	t.Helper()
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	svc := notification.NewService(&notification.ServiceConfig{Log: log})
	opener := &recordingOpener{}
	h := NewHandler(testConfig, svc, opener, nil, log)
	h.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return h, svc, opener
}

func TestDescriptor_Fields(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestHandler(t)

	n := h.Descriptor([]byte("Estoque atualizado"))

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "Estoca.AI", n.Title)
	assert.Equal(t, "Estoque atualizado", n.Body)
	assert.Equal(t, testIcon, n.Icon)
	assert.Equal(t, testIcon, n.Badge)
	assert.Equal(t, []int{200, 100, 200}, n.Vibrate)
	assert.Equal(t, map[string]any{"url": "/", "timestamp": int64(1700000000000)}, n.Data)
	assert.Equal(t, []notification.Action{
		{Action: "open", Title: "Abrir App", Icon: testIcon},
		{Action: "close", Title: "Fechar"},
	}, n.Actions)
}

func TestDescriptor_Body(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		payload   string
		wantTitle string
		wantBody  string
	}{
		{name: "empty payload", payload: "", wantTitle: "Estoca.AI", wantBody: "Nova notificação do Estoca.AI"},
		{name: "whitespace payload", payload: "  \n", wantTitle: "Estoca.AI", wantBody: "Nova notificação do Estoca.AI"},
		{name: "plain text", payload: "Venda registrada", wantTitle: "Estoca.AI", wantBody: "Venda registrada"},
		{name: "json title and body", payload: `{"title":"Estoque baixo","body":"Produto A"}`, wantTitle: "Estoque baixo", wantBody: "Produto A"},
		{name: "json without body keeps text", payload: `{"title":"Alerta"}`, wantTitle: "Alerta", wantBody: `{"title":"Alerta"}`},
		{name: "json empty body", payload: `{"body":""}`, wantTitle: "Estoca.AI", wantBody: "Nova notificação do Estoca.AI"},
		{name: "json array is text", payload: `[1,2]`, wantTitle: "Estoca.AI", wantBody: "[1,2]"},
		{name: "html body", payload: "<p>Pedido <b>#42</b> enviado</p>", wantTitle: "Estoca.AI", wantBody: "Pedido #42 enviado"},
		{name: "comparison signs are text", payload: "estoque < 10 e > 5", wantTitle: "Estoca.AI", wantBody: "estoque < 10 e > 5"},
		{name: "decomposed accents", payload: "notificac\u0327a\u0303o", wantTitle: "Estoca.AI", wantBody: "notifica\u00e7\u00e3o"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, _, _ := newTestHandler(t)
			n := h.Descriptor([]byte(tt.payload))
			assert.Equal(t, tt.wantTitle, n.Title)
			assert.Equal(t, tt.wantBody, n.Body)
		})
	}
}

func TestDescriptor_FreshPerPush(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestHandler(t)
	a := h.Descriptor(nil)
	b := h.Descriptor(nil)
	assert.NotEqual(t, a.ID, b.ID)
	a.Vibrate[0] = 0
	assert.Equal(t, 200, b.Vibrate[0])
}

func TestHandlePush_ShowsNotification(t *testing.T) {
	t.Parallel()
	h, svc, _ := newTestHandler(t)

	n, err := h.HandlePush(t.Context(), []byte("hello"), TransportHTTP)
	require.NoError(t, err)

	list := svc.List()
	require.Len(t, list, 1)
	assert.Equal(t, n.ID, list[0].ID)
	assert.Equal(t, "hello", list[0].Body)
}

func TestHandleClick(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		action    string
		wantOpens []string
	}{
		{name: "default action opens root", action: "", wantOpens: []string{"/"}},
		{name: "open action opens root", action: "open", wantOpens: []string{"/"}},
		{name: "close action only closes", action: "close", wantOpens: nil},
		{name: "unknown action only closes", action: "snooze", wantOpens: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, svc, opener := newTestHandler(t)
			n, err := h.HandlePush(t.Context(), nil, TransportHTTP)
			require.NoError(t, err)

			require.NoError(t, h.HandleClick(t.Context(), n.ID, tt.action))

			assert.Empty(t, svc.List(), "notification is closed")
			assert.Equal(t, tt.wantOpens, opener.urls)
		})
	}
}

func TestHandleClick_UnknownNotification(t *testing.T) {
	t.Parallel()
	h, _, opener := newTestHandler(t)
	err := h.HandleClick(t.Context(), "missing", "open")
	require.ErrorIs(t, err, notification.ErrNotFound)
	assert.Empty(t, opener.urls)
}

func TestHandleClick_OpenFailure(t *testing.T) {
	t.Parallel()
	h, _, opener := newTestHandler(t)
	opener.err = errors.New("no window")
	n, err := h.HandlePush(t.Context(), nil, TransportMQTT)
	require.NoError(t, err)

	require.Error(t, h.HandleClick(t.Context(), n.ID, "open"))
}
