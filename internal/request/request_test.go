/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package request_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blnkfinance/commissions/internal/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertBody struct {
	Event string `json:"event"`
	Data  struct {
		PostingID string `json:"posting_id"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

func TestToJsonReqEncodesPayload(t *testing.T) {
	buf, err := request.ToJsonReq(map[string]interface{}{"posting_id": "pst_1", "amount": 1000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"posting_id":"pst_1","amount":1000}`, buf.String())

	_, err = request.ToJsonReq(map[string]interface{}{"bad": func() {}})
	assert.Error(t, err)
}

func TestPostJSONSendsHeadersAndBody(t *testing.T) {
	var got alertBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Signature"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	defer server.Close()

	payload := map[string]interface{}{
		"event": "commission.earned",
		"data":  map[string]interface{}{"posting_id": "pst_1", "amount": 1000},
	}
	var ack struct {
		Received bool `json:"received"`
	}
	resp, err := request.PostJSON(context.Background(), server.URL, map[string]string{"X-Signature": "secret"}, payload, &ack)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, ack.Received)
	assert.Equal(t, "commission.earned", got.Event)
	assert.Equal(t, "pst_1", got.Data.PostingID)
	assert.Equal(t, int64(1000), got.Data.Amount)
}

func TestPostJSONEmptyBodyIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var ack map[string]interface{}
	_, err := request.PostJSON(context.Background(), server.URL, nil, map[string]string{"event": "wallet.debited"}, &ack)
	assert.NoError(t, err)
	assert.Nil(t, ack)
}

func TestPostJSONRejectsNon2xx(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusBadGateway} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		resp, err := request.PostJSON(context.Background(), server.URL, nil, map[string]string{}, nil)
		assert.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, status, resp.StatusCode)
		server.Close()
	}
}

func TestCallRejectsMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"received":`))
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	var ack map[string]interface{}
	_, err = request.Call(req, &ack)
	assert.Error(t, err)
}

func TestPostJSONHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := request.PostJSON(ctx, server.URL, nil, map[string]string{}, nil)
	assert.Error(t, err)
}
