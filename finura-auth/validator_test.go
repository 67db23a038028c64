package finuraauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tj/assert"
)

func withAuthority(t *testing.T, handler http.HandlerFunc, callback func(client *Client)) {
	server := httptest.NewServer(handler)
	defer server.Close()
	callback(New(server.URL + "/api/"))
}

func TestClient_Validate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		withAuthority(t, func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, "/api/auth/me", req.URL.Path)
			assert.Equal(t, "Bearer good", req.Header.Get("Authorization"))
			assert.Equal(t, "", req.URL.Query().Get("heartbeat"))
			_, _ = w.Write([]byte(`{"success":true,"user":{"id":"42","username":"ada","roles":["user"]}}`))
		}, func(client *Client) {
			user, err := client.Validate(context.Background(), "good", false)
			assert.Nil(t, err)
			assert.Equal(t, "42", user.Identity())
			assert.Equal(t, "ada", user.DisplayName())
			assert.Equal(t, []string{"user"}, user.Roles)
		})
	})

	t.Run("heartbeat flag", func(t *testing.T) {
		withAuthority(t, func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "true", req.URL.Query().Get("heartbeat"))
			_, _ = w.Write([]byte(`{"success":true,"user":{"user_id":"u-7"}}`))
		}, func(client *Client) {
			user, err := client.Validate(context.Background(), "good", true)
			assert.Nil(t, err)
			assert.Equal(t, "u-7", user.Identity())
		})
	})

	t.Run("numeric id", func(t *testing.T) {
		withAuthority(t, func(w http.ResponseWriter, req *http.Request) {
			_, _ = w.Write([]byte(`{"success":true,"user":{"id":42,"user_id":"u-42"}}`))
		}, func(client *Client) {
			user, err := client.Validate(context.Background(), "good", false)
			assert.Nil(t, err)
			assert.Equal(t, "42", user.Identity())
		})
	})

	cases := map[string]struct {
		handler http.HandlerFunc
		kind    Kind
	}{
		"success false": {
			handler: func(w http.ResponseWriter, req *http.Request) {
				_, _ = w.Write([]byte(`{"success":false}`))
			},
			kind: KindRejected,
		},
		"unauthorized status": {
			handler: func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"success":false,"error":"AUTH_MISSING_HEADER"}`))
			},
			kind: KindRejected,
		},
		"bad gateway": {
			handler: func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			kind: KindUnavailable,
		},
		"service unavailable": {
			handler: func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			kind: KindUnavailable,
		},
		"malformed body": {
			handler: func(w http.ResponseWriter, req *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			kind: KindMalformed,
		},
		"missing identity": {
			handler: func(w http.ResponseWriter, req *http.Request) {
				_, _ = w.Write([]byte(`{"success":true,"user":{"username":"ghost"}}`))
			},
			kind: KindMalformed,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			withAuthority(t, tc.handler, func(client *Client) {
				user, err := client.Validate(context.Background(), "bad", false)
				assert.Nil(t, user)
				assert.True(t, errors.Is(err, ErrInvalidSession))

				var ve *ValidationError
				assert.True(t, errors.As(err, &ve))
				assert.Equal(t, tc.kind, ve.Kind)
			})
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := New(url).Validate(context.Background(), "good", false)
		assert.True(t, errors.Is(err, ErrInvalidSession))
		assert.True(t, IsUnavailable(err))
	})

	t.Run("timeout", func(t *testing.T) {
		withAuthority(t, func(w http.ResponseWriter, req *http.Request) {
			select {
			case <-req.Context().Done():
			case <-time.After(time.Second):
			}
		}, func(client *Client) {
			client.Timeout = 20 * time.Millisecond
			_, err := client.Validate(context.Background(), "good", false)
			assert.True(t, IsUnavailable(err))
		})
	})
}

func TestUserRecord_JSON(t *testing.T) {
	t.Run("echo only known fields", func(t *testing.T) {
		var user UserRecord
		assert.Nil(t, json.Unmarshal([]byte(`{"id":"42"}`), &user))
		data, err := json.Marshal(user)
		assert.Nil(t, err)
		assert.JSONEq(t, `{"id":"42","is_active":false}`, string(data))
	})

	t.Run("inactive flag is echoed", func(t *testing.T) {
		var user UserRecord
		assert.Nil(t, json.Unmarshal([]byte(`{"id":"42","is_active":false}`), &user))
		data, err := json.Marshal(user)
		assert.Nil(t, err)

		var echoed map[string]interface{}
		assert.Nil(t, json.Unmarshal(data, &echoed))
		active, ok := echoed["is_active"]
		assert.True(t, ok)
		assert.Equal(t, false, active)
	})

	t.Run("display name fallbacks", func(t *testing.T) {
		assert.Equal(t, "Ada Lovelace", UserRecord{ID: "1", Firstname: "Ada", Lastname: "Lovelace"}.DisplayName())
		assert.Equal(t, "1", UserRecord{ID: "1"}.DisplayName())
	})
}
