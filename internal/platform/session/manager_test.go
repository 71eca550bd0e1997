package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

var hashKey = []byte("0123456789abcdef0123456789abcdef")

func TestManagerRoundTrip(t *testing.T) {
	mgr, err := NewManager(Config{HashKey: hashKey, BlockKey: []byte("abcdef0123456789")})
	require.NoError(t, err)

	sess := mgr.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, sess.DeviceID())
	require.True(t, sess.Dirty())
	sess.SetToken("  token-1 ")

	rec := httptest.NewRecorder()
	require.NoError(t, mgr.Save(rec, sess))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	restored := mgr.Load(req)
	require.Equal(t, sess.DeviceID(), restored.DeviceID())
	require.Equal(t, "token-1", restored.Token())
	require.False(t, restored.Dirty())

	rec = httptest.NewRecorder()
	require.NoError(t, mgr.Save(rec, restored))
	require.Empty(t, rec.Result().Cookies())
}

func TestManagerRejectsTamperedCookie(t *testing.T) {
	mgr, err := NewManager(Config{HashKey: hashKey})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: defaultCookieName, Value: "forged"})
	sess := mgr.Load(req)
	require.NotEmpty(t, sess.DeviceID())
	require.Empty(t, sess.Token())
	require.True(t, sess.Dirty())
}

func TestNewManagerValidatesKeys(t *testing.T) {
	_, err := NewManager(Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewManager(Config{HashKey: hashKey, BlockKey: []byte("short")})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
