package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

var owner = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(server.Close)
	client, err := NewClient(Config{
		BaseURL:  server.URL + "/api/v2.2",
		APIKey:   testAPIKey,
		Chain:    "goerli",
		PageSize: 2,
	})
	require.NoError(t, err)
	return client
}

func TestClientWalksCursorPages(t *testing.T) {
	t.Parallel()

	pages := map[string]nftResponse{
		"": {Cursor: "c1", Result: []nftRecord{
			{TokenAddress: "0x1111111111111111111111111111111111111111", TokenID: "1", Name: "One", Symbol: "ONE", OwnerOf: owner.Hex()},
			{TokenAddress: "0x1111111111111111111111111111111111111111", TokenID: "2", Name: "One", Symbol: "ONE", OwnerOf: owner.Hex()},
		}},
		"c1": {Cursor: "", Result: []nftRecord{
			{TokenAddress: "0x2222222222222222222222222222222222222222", TokenID: "115792089237316195423570985008687907853269984665640564039457584007913129639935", Name: "Big"},
		}},
	}

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2.2/"+owner.Hex()+"/nft", r.URL.Path)
		require.Equal(t, testAPIKey, r.Header.Get("X-API-Key"))
		require.Equal(t, "goerli", r.URL.Query().Get("chain"))
		require.Equal(t, "2", r.URL.Query().Get("limit"))
		resp, ok := pages[r.URL.Query().Get("cursor")]
		if !ok {
			http.Error(w, "bad cursor", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	page, err := client.WalletNFTs(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, page.Result, 2)
	require.Equal(t, "One", page.Result[0].Name)
	require.Equal(t, owner, page.Result[0].Owner)
	require.True(t, page.HasNext())

	page, err = page.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Result, 1)
	require.Equal(t, 256, page.Result[0].TokenID.BitLen())
	require.False(t, page.HasNext())

	_, err = page.Next(context.Background())
	require.ErrorIs(t, err, ErrNoMorePages)
}

func TestClientReportsStatusErrors(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	})

	_, err := client.WalletNFTs(context.Background(), owner)
	require.ErrorIs(t, err, ErrRequestFailed)
	require.ErrorContains(t, err, "invalid key")
}

func TestClientRejectsMalformedEntries(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[{"token_address":"0x1111111111111111111111111111111111111111","token_id":"abc"}]}`))
	})

	_, err := client.WalletNFTs(context.Background(), owner)
	require.ErrorContains(t, err, "invalid token id")
}

func TestClientVersionProbe(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/web3/version"))
		_, _ = w.Write([]byte(`{"version":"v2.2"}`))
	})

	version, err := client.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v2.2", version)
}

func TestNewClientValidates(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Chain: "goerli"})
	require.Error(t, err)
	_, err = NewClient(Config{BaseURL: "not a url", Chain: "goerli"})
	require.Error(t, err)
	_, err = NewClient(Config{BaseURL: "https://example.test"})
	require.Error(t, err)
}

func TestClientHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[]}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.WalletNFTs(ctx, owner)
	require.True(t, errors.Is(err, context.Canceled), "got %v", err)
}
