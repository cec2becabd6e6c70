package orderapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/atelier/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method  string
	path    string
	auth    string
	payload domain.OrderPayload
}

func newServer(t *testing.T, status int, body string, got *captured) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got.payload)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSaveOrder_Routes(t *testing.T) {
	id := int64(42)
	tests := []struct {
		name     string
		req      domain.SaveRequest
		method   string
		path     string
		status   int
		orderNum bool
		response string
	}{
		{"create", domain.SaveRequest{}, http.MethodPost, "/api/order/save", http.StatusCreated, true,
			`{"message":"Order saved successfully!","order_id":42,"orderNumber":"240105-001"}`},
		{"create temporary", domain.SaveRequest{Temporary: true}, http.MethodPost, "/api/temp/order/save", http.StatusCreated, false,
			`{"message":"Order saved successfully!","order_id":42,"orderNumber":null}`},
		{"update", domain.SaveRequest{OrderID: &id}, http.MethodPut, "/api/order/save/42", http.StatusOK, false,
			`{"message":"Order updated successfully!","order_id":42}`},
		{"update temporary", domain.SaveRequest{OrderID: &id, Temporary: true}, http.MethodPut, "/api/temp/order/save/42", http.StatusOK, false,
			`{"message":"Order updated successfully!","order_id":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got captured
			server := newServer(t, tt.status, tt.response, &got)
			client := NewClient(Config{BaseURL: server.URL + "/api"}, zerolog.Nop()).WithToken("tok")

			tt.req.Payload = domain.OrderPayload{GroomName: "Kim", TotalPrice: 1500000}
			result, err := client.SaveOrder(context.Background(), tt.req)
			require.NoError(t, err)

			assert.Equal(t, tt.method, got.method)
			assert.Equal(t, tt.path, got.path)
			assert.Equal(t, "Bearer tok", got.auth)
			assert.Equal(t, "Kim", got.payload.GroomName)
			assert.Equal(t, int64(1500000), got.payload.TotalPrice)

			assert.Equal(t, int64(42), result.OrderID)
			if tt.orderNum {
				require.NotNil(t, result.OrderNumber)
				assert.Equal(t, "240105-001", *result.OrderNumber)
			} else {
				assert.Nil(t, result.OrderNumber)
			}
		})
	}
}

func TestSaveOrder_RejectedIsPersistenceError(t *testing.T) {
	var got captured
	server := newServer(t, http.StatusInternalServerError, `{"error":"db locked"}`, &got)
	client := NewClient(Config{BaseURL: server.URL}, zerolog.Nop())

	_, err := client.SaveOrder(context.Background(), domain.SaveRequest{})
	require.Error(t, err)

	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "order could not be saved, please try again", perr.Message)
	assert.Contains(t, perr.Err.Error(), "500")
	assert.Empty(t, got.auth)
}

func TestSaveOrder_UnreachableIsPersistenceError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: url}, zerolog.Nop())

	_, err := client.SaveOrder(context.Background(), domain.SaveRequest{})
	var perr *domain.PersistenceError
	assert.ErrorAs(t, err, &perr)
}

func TestWithTokenDoesNotMutateOriginal(t *testing.T) {
	base := NewClient(Config{BaseURL: "http://example.invalid", Token: "a"}, zerolog.Nop())
	other := base.WithToken("b")

	assert.Equal(t, "a", base.token)
	assert.Equal(t, "b", other.token)
	assert.Same(t, base.client, other.client)
}
