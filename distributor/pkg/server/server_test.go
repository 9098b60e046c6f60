package server_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/merkledrop/distributor/pkg/custody"
	"github.com/malbeclabs/merkledrop/distributor/pkg/distributor"
	"github.com/malbeclabs/merkledrop/distributor/pkg/drop"
	"github.com/malbeclabs/merkledrop/distributor/pkg/ledger"
	"github.com/malbeclabs/merkledrop/distributor/pkg/merkle"
	"github.com/malbeclabs/merkledrop/distributor/pkg/server"
	"github.com/malbeclabs/merkledrop/distributor/pkg/store/memory"
	droptesting "github.com/malbeclabs/merkledrop/utils/pkg/testing"
)

// fixture wires a full engine behind an httptest server, with wallets
// the tests sign requests with and a fake clock shared by the engine and
// the signature freshness check.
type fixture struct {
	ts    *httptest.Server
	clock *clockwork.FakeClock
	bank  *custody.MemoryBank

	creator  *solana.Wallet
	operator *solana.Wallet
	asset    solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memory.New()
	bank := custody.NewMemoryBank()
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))

	led, err := ledger.New(ledger.Config{
		Logger: droptesting.NewLogger(),
		Store:  st,
		Clock:  clock,
	})
	require.NoError(t, err)

	eng, err := distributor.New(distributor.Config{
		Logger: droptesting.NewLogger(),
		Store:  st,
		Ledger: led,
		Bank:   bank,
		Clock:  clock,
	})
	require.NoError(t, err)

	srv, err := server.New(server.Config{
		Logger:     droptesting.NewLogger(),
		Engine:     eng,
		Clock:      clock,
		ListenAddr: "127.0.0.1:0",
		RateLimit:  rate.Inf,
		RateBurst:  1,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	asset := solana.NewWallet().PublicKey()
	return &fixture{
		ts:       ts,
		clock:    clock,
		bank:     bank,
		creator:  solana.NewWallet(),
		operator: solana.NewWallet(),
		asset:    asset,
	}
}

func signRequest(t *testing.T, req *http.Request, wallet *solana.Wallet, body []byte, ts int64) {
	t.Helper()

	message := server.SigningMessage(req.Method, req.URL.Path, body, ts)
	sig, err := wallet.PrivateKey.Sign(message)
	require.NoError(t, err)

	req.Header.Set(server.HeaderSigner, wallet.PublicKey().String())
	req.Header.Set(server.HeaderSignature, sig.String())
	req.Header.Set(server.HeaderTimestamp, strconv.FormatInt(ts, 10))
}

// do sends a request, signing it with signWith unless nil, and returns
// the status code and body.
func (f *fixture) do(t *testing.T, method, path string, body any, signWith *solana.Wallet) (int, []byte) {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, f.ts.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if signWith != nil {
		signRequest(t, req, signWith, payload, f.clock.Now().Unix())
	}

	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func (f *fixture) errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var resp server.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp.Error
}

// open funds the creator and opens a distribution over HTTP.
func (f *fixture) open(t *testing.T, poolAmount uint64) server.DistributionResponse {
	t.Helper()

	require.NoError(t, f.bank.Mint(t.Context(), f.creator.PublicKey(), f.asset, poolAmount))
	status, raw := f.do(t, http.MethodPost, "/api/v1/distributions", server.OpenRequest{
		Operator:   f.operator.PublicKey().String(),
		Asset:      f.asset.String(),
		PoolAmount: poolAmount,
	}, f.creator)
	require.Equal(t, http.StatusCreated, status, "body: %s", raw)

	var dist server.DistributionResponse
	require.NoError(t, json.Unmarshal(raw, &dist))
	return dist
}

// activate publishes a commitment over entries and schedules the window
// to start one second from now, then advances the clock to the start.
func (f *fixture) activate(t *testing.T, dist server.DistributionResponse, entries []merkle.Entry) *merkle.Tree {
	t.Helper()

	tree, err := merkle.NewTree(entries)
	require.NoError(t, err)
	root := tree.Root()

	status, raw := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/commitment",
		server.SetCommitmentRequest{Root: hex.EncodeToString(root[:])}, f.operator)
	require.Equal(t, http.StatusOK, status, "body: %s", raw)

	status, raw = f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/window",
		server.SetWindowRequest{StartTS: f.clock.Now().Unix() + 1}, f.operator)
	require.Equal(t, http.StatusOK, status, "body: %s", raw)

	f.clock.Advance(time.Second)
	return tree
}

func (f *fixture) claim(t *testing.T, dist server.DistributionResponse, recipient *solana.Wallet, ceiling uint64, proof [][32]byte) (int, []byte) {
	t.Helper()

	hexProof := make([]string, len(proof))
	for i, node := range proof {
		hexProof[i] = hex.EncodeToString(node[:])
	}
	return f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/claims",
		server.ClaimRequest{Ceiling: ceiling, Proof: hexProof}, recipient)
}

func (f *fixture) proof(t *testing.T, tree *merkle.Tree, i int) [][32]byte {
	t.Helper()
	proof, err := tree.Proof(i)
	require.NoError(t, err)
	return proof
}

func (f *fixture) balance(t *testing.T, account solana.PublicKey) uint64 {
	t.Helper()
	balance, err := f.bank.Balance(t.Context(), account)
	require.NoError(t, err)
	return balance
}

func TestMerkleDrop_Server_Config(t *testing.T) {
	t.Parallel()

	st := memory.New()
	led, err := ledger.New(ledger.Config{Logger: droptesting.NewLogger(), Store: st})
	require.NoError(t, err)
	eng, err := distributor.New(distributor.Config{
		Logger: droptesting.NewLogger(),
		Store:  st,
		Ledger: led,
		Bank:   custody.NewMemoryBank(),
	})
	require.NoError(t, err)

	_, err = server.New(server.Config{Engine: eng, ListenAddr: ":0"})
	require.Error(t, err)
	_, err = server.New(server.Config{Logger: droptesting.NewLogger(), ListenAddr: ":0"})
	require.Error(t, err)
	_, err = server.New(server.Config{Logger: droptesting.NewLogger(), Engine: eng})
	require.Error(t, err)

	srv, err := server.New(server.Config{Logger: droptesting.NewLogger(), Engine: eng, ListenAddr: ":0"})
	require.NoError(t, err)
	require.NotNil(t, srv.Handler())
}

func TestMerkleDrop_Server_Health(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	status, raw := f.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok\n", string(raw))

	status, _ = f.do(t, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, status)

	status, raw = f.do(t, http.MethodGet, "/version", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var version server.VersionInfo
	require.NoError(t, json.Unmarshal(raw, &version))
}

func TestMerkleDrop_Server_Readyz_NotReady(t *testing.T) {
	t.Parallel()

	st := memory.New()
	led, err := ledger.New(ledger.Config{Logger: droptesting.NewLogger(), Store: st})
	require.NoError(t, err)
	eng, err := distributor.New(distributor.Config{
		Logger: droptesting.NewLogger(),
		Store:  st,
		Ledger: led,
		Bank:   custody.NewMemoryBank(),
	})
	require.NoError(t, err)

	ready := false
	srv, err := server.New(server.Config{
		Logger:     droptesting.NewLogger(),
		Engine:     eng,
		ListenAddr: ":0",
		Ready:      func() bool { return ready },
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := ts.Client().Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ready = true
	resp, err = ts.Client().Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMerkleDrop_Server_Open(t *testing.T) {
	t.Parallel()

	t.Run("creates a funded distribution", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		dist := f.open(t, 10_000)

		require.Equal(t, f.creator.PublicKey().String(), dist.Creator)
		require.Equal(t, f.operator.PublicKey().String(), dist.Operator)
		require.Equal(t, f.asset.String(), dist.Asset)
		require.Equal(t, uint32(1), dist.Seq)
		require.Equal(t, uint64(10_000), dist.InitialPoolAmount)
		require.Zero(t, dist.Released)
		require.Empty(t, dist.Root)
		require.Equal(t, uint64(10_000), f.balance(t, solana.MustPublicKeyFromBase58(dist.Pool)))
	})

	t.Run("zero pool amount is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions", server.OpenRequest{
			Operator: f.operator.PublicKey().String(),
			Asset:    f.asset.String(),
		}, f.creator)
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "invalid_amount", f.errorCode(t, raw))
	})

	t.Run("missing operator is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions", server.OpenRequest{
			Asset:      f.asset.String(),
			PoolAmount: 100,
		}, f.creator)
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "invalid_operator", f.errorCode(t, raw))
	})

	t.Run("unknown funding account is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions", server.OpenRequest{
			Operator:   f.operator.PublicKey().String(),
			Asset:      f.asset.String(),
			PoolAmount: 100,
		}, f.creator)
		require.Equal(t, http.StatusNotFound, status)
		require.Equal(t, "not_found", f.errorCode(t, raw))
	})

	t.Run("underfunded creator is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		require.NoError(t, f.bank.Mint(t.Context(), f.creator.PublicKey(), f.asset, 50))

		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions", server.OpenRequest{
			Operator:   f.operator.PublicKey().String(),
			Asset:      f.asset.String(),
			PoolAmount: 100,
		}, f.creator)
		require.Equal(t, http.StatusConflict, status)
		require.Equal(t, "insufficient_funds", f.errorCode(t, raw))
		require.Equal(t, uint64(50), f.balance(t, f.creator.PublicKey()))
	})

	t.Run("malformed JSON body is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		payload := []byte("{not json")
		req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/api/v1/distributions", bytes.NewReader(payload))
		require.NoError(t, err)
		signRequest(t, req, f.creator, payload, f.clock.Now().Unix())

		resp, err := f.ts.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestMerkleDrop_Server_Get(t *testing.T) {
	t.Parallel()

	t.Run("returns the distribution", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		dist := f.open(t, 5_000)

		status, raw := f.do(t, http.MethodGet, "/api/v1/distributions/"+dist.Address, nil, nil)
		require.Equal(t, http.StatusOK, status)

		var got server.DistributionResponse
		require.NoError(t, json.Unmarshal(raw, &got))
		require.Equal(t, dist, got)
	})

	t.Run("unknown address is a 404", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		status, raw := f.do(t, http.MethodGet, "/api/v1/distributions/"+solana.NewWallet().PublicKey().String(), nil, nil)
		require.Equal(t, http.StatusNotFound, status)
		require.Equal(t, "not_found", f.errorCode(t, raw))
	})

	t.Run("malformed address is a 400", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		status, raw := f.do(t, http.MethodGet, "/api/v1/distributions/not-base58", nil, nil)
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "invalid_request", f.errorCode(t, raw))
	})
}

func TestMerkleDrop_Server_SetWindow(t *testing.T) {
	t.Parallel()

	t.Run("schedules the fixed-length window", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		dist := f.open(t, 1_000)
		startTS := f.clock.Now().Unix() + 3600

		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/window",
			server.SetWindowRequest{StartTS: startTS}, f.operator)
		require.Equal(t, http.StatusOK, status)

		var resp server.SetWindowResponse
		require.NoError(t, json.Unmarshal(raw, &resp))
		require.Equal(t, startTS, resp.StartTS)
		require.Equal(t, startTS+drop.WindowDuration, resp.EndTS)
	})

	t.Run("only the operator may schedule", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		dist := f.open(t, 1_000)

		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/window",
			server.SetWindowRequest{StartTS: f.clock.Now().Unix() + 3600}, f.creator)
		require.Equal(t, http.StatusForbidden, status)
		require.Equal(t, "not_operator", f.errorCode(t, raw))
	})

	t.Run("start in the past is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		dist := f.open(t, 1_000)

		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/window",
			server.SetWindowRequest{StartTS: f.clock.Now().Unix()}, f.operator)
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "invalid_start_time", f.errorCode(t, raw))
	})

	t.Run("start too far ahead is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		dist := f.open(t, 1_000)

		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/window",
			server.SetWindowRequest{StartTS: f.clock.Now().Unix() + drop.MaxStartAhead + 1}, f.operator)
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "start_time_too_far", f.errorCode(t, raw))
	})

	t.Run("rescheduling after start is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		dist := f.open(t, 1_000)

		status, _ := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/window",
			server.SetWindowRequest{StartTS: f.clock.Now().Unix() + 1}, f.operator)
		require.Equal(t, http.StatusOK, status)
		f.clock.Advance(time.Second)

		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/window",
			server.SetWindowRequest{StartTS: f.clock.Now().Unix() + 3600}, f.operator)
		require.Equal(t, http.StatusConflict, status)
		require.Equal(t, "already_started", f.errorCode(t, raw))
	})
}

func TestMerkleDrop_Server_SetCommitment(t *testing.T) {
	t.Parallel()

	t.Run("publishes the root", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		dist := f.open(t, 1_000)

		tree, err := merkle.NewTree([]merkle.Entry{{Recipient: solana.NewWallet().PublicKey(), Ceiling: 100}})
		require.NoError(t, err)
		root := tree.Root()

		status, _ := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/commitment",
			server.SetCommitmentRequest{Root: hex.EncodeToString(root[:])}, f.operator)
		require.Equal(t, http.StatusOK, status)

		status, raw := f.do(t, http.MethodGet, "/api/v1/distributions/"+dist.Address, nil, nil)
		require.Equal(t, http.StatusOK, status)
		var got server.DistributionResponse
		require.NoError(t, json.Unmarshal(raw, &got))
		require.Equal(t, hex.EncodeToString(root[:]), got.Root)
	})

	t.Run("all-zero root is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		dist := f.open(t, 1_000)

		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/commitment",
			server.SetCommitmentRequest{Root: hex.EncodeToString(make([]byte, 32))}, f.operator)
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "invalid_commitment", f.errorCode(t, raw))
	})

	t.Run("malformed root is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		dist := f.open(t, 1_000)

		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/commitment",
			server.SetCommitmentRequest{Root: "zz"}, f.operator)
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "invalid_request", f.errorCode(t, raw))
	})

	t.Run("only the operator may publish", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		dist := f.open(t, 1_000)

		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/commitment",
			server.SetCommitmentRequest{Root: hex.EncodeToString(bytes.Repeat([]byte{1}, 32))}, f.creator)
		require.Equal(t, http.StatusForbidden, status)
		require.Equal(t, "not_operator", f.errorCode(t, raw))
	})
}

func TestMerkleDrop_Server_Claim(t *testing.T) {
	t.Parallel()

	t.Run("releases the pending amount to the signer", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		recipient := solana.NewWallet()
		dist := f.open(t, 10_000)
		tree := f.activate(t, dist, []merkle.Entry{
			{Recipient: recipient.PublicKey(), Ceiling: 1_000},
			{Recipient: solana.NewWallet().PublicKey(), Ceiling: 2_000},
		})

		status, raw := f.claim(t, dist, recipient, 1_000, f.proof(t, tree, 0))
		require.Equal(t, http.StatusOK, status, "body: %s", raw)

		var resp server.ClaimResponse
		require.NoError(t, json.Unmarshal(raw, &resp))
		require.Equal(t, uint64(1_000), resp.Amount)
		require.Equal(t, uint64(1_000), f.balance(t, recipient.PublicKey()))
	})

	t.Run("repeat claim at the same ceiling is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		recipient := solana.NewWallet()
		dist := f.open(t, 10_000)
		tree := f.activate(t, dist, []merkle.Entry{
			{Recipient: recipient.PublicKey(), Ceiling: 1_000},
			{Recipient: solana.NewWallet().PublicKey(), Ceiling: 2_000},
		})

		status, _ := f.claim(t, dist, recipient, 1_000, f.proof(t, tree, 0))
		require.Equal(t, http.StatusOK, status)

		status, raw := f.claim(t, dist, recipient, 1_000, f.proof(t, tree, 0))
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "nothing_to_claim", f.errorCode(t, raw))
	})

	t.Run("proof for another recipient is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		recipient := solana.NewWallet()
		other := solana.NewWallet()
		dist := f.open(t, 10_000)
		tree := f.activate(t, dist, []merkle.Entry{
			{Recipient: recipient.PublicKey(), Ceiling: 1_000},
			{Recipient: other.PublicKey(), Ceiling: 2_000},
		})

		status, raw := f.claim(t, dist, recipient, 2_000, f.proof(t, tree, 1))
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "invalid_proof", f.errorCode(t, raw))
	})

	t.Run("claim before the window opens is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		recipient := solana.NewWallet()
		dist := f.open(t, 10_000)

		tree, err := merkle.NewTree([]merkle.Entry{{Recipient: recipient.PublicKey(), Ceiling: 1_000}})
		require.NoError(t, err)
		root := tree.Root()

		status, _ := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/commitment",
			server.SetCommitmentRequest{Root: hex.EncodeToString(root[:])}, f.operator)
		require.Equal(t, http.StatusOK, status)
		status, _ = f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/window",
			server.SetWindowRequest{StartTS: f.clock.Now().Unix() + 3600}, f.operator)
		require.Equal(t, http.StatusOK, status)

		status, raw := f.claim(t, dist, recipient, 1_000, f.proof(t, tree, 0))
		require.Equal(t, http.StatusConflict, status)
		require.Equal(t, "not_started", f.errorCode(t, raw))
	})

	t.Run("claim after the window ends is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		recipient := solana.NewWallet()
		dist := f.open(t, 10_000)
		tree := f.activate(t, dist, []merkle.Entry{
			{Recipient: recipient.PublicKey(), Ceiling: 1_000},
			{Recipient: solana.NewWallet().PublicKey(), Ceiling: 2_000},
		})

		f.clock.Advance(time.Duration(drop.WindowDuration+1) * time.Second)

		status, raw := f.claim(t, dist, recipient, 1_000, f.proof(t, tree, 0))
		require.Equal(t, http.StatusConflict, status)
		require.Equal(t, "ended", f.errorCode(t, raw))
	})
}

func TestMerkleDrop_Server_Withdraw(t *testing.T) {
	t.Parallel()

	t.Run("before the window ends is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		recipient := solana.NewWallet()
		dist := f.open(t, 10_000)
		f.activate(t, dist, []merkle.Entry{{Recipient: recipient.PublicKey(), Ceiling: 1_000}})

		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/withdraw", nil, f.creator)
		require.Equal(t, http.StatusConflict, status)
		require.Equal(t, "not_ended", f.errorCode(t, raw))
	})

	t.Run("only the creator may withdraw", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		dist := f.open(t, 10_000)

		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/withdraw", nil, f.operator)
		require.Equal(t, http.StatusForbidden, status)
		require.Equal(t, "not_creator", f.errorCode(t, raw))
	})

	t.Run("returns the remainder and deletes the record", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		dist := f.open(t, 10_000)

		// Never-scheduled windows can be withdrawn immediately.
		status, raw := f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/withdraw", nil, f.creator)
		require.Equal(t, http.StatusOK, status, "body: %s", raw)

		var resp server.WithdrawResponse
		require.NoError(t, json.Unmarshal(raw, &resp))
		require.Equal(t, uint64(10_000), resp.Remainder)
		require.Equal(t, uint64(10_000), f.balance(t, f.creator.PublicKey()))

		status, _ = f.do(t, http.MethodGet, "/api/v1/distributions/"+dist.Address, nil, nil)
		require.Equal(t, http.StatusNotFound, status)
	})
}

// TestMerkleDrop_Server_Lifecycle drives the whole campaign over HTTP:
// open with a 10,000 pool, entitle A at 1,000 and B at 2,000, A claims
// 1,000, the operator raises A's ceiling to 1,500, A claims the 500
// difference, and after the window the creator withdraws the remaining
// 8,500.
func TestMerkleDrop_Server_Lifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := solana.NewWallet()
	b := solana.NewWallet()

	dist := f.open(t, 10_000)
	tree := f.activate(t, dist, []merkle.Entry{
		{Recipient: a.PublicKey(), Ceiling: 1_000},
		{Recipient: b.PublicKey(), Ceiling: 2_000},
	})

	status, raw := f.claim(t, dist, a, 1_000, f.proof(t, tree, 0))
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	var claimed server.ClaimResponse
	require.NoError(t, json.Unmarshal(raw, &claimed))
	require.Equal(t, uint64(1_000), claimed.Amount)

	// Publish a raised ceiling for A mid-window.
	raised, err := merkle.NewTree([]merkle.Entry{
		{Recipient: a.PublicKey(), Ceiling: 1_500},
		{Recipient: b.PublicKey(), Ceiling: 2_000},
	})
	require.NoError(t, err)
	root := raised.Root()
	status, _ = f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/commitment",
		server.SetCommitmentRequest{Root: hex.EncodeToString(root[:])}, f.operator)
	require.Equal(t, http.StatusOK, status)

	status, raw = f.claim(t, dist, a, 1_500, f.proof(t, raised, 0))
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	require.NoError(t, json.Unmarshal(raw, &claimed))
	require.Equal(t, uint64(500), claimed.Amount)
	require.Equal(t, uint64(1_500), f.balance(t, a.PublicKey()))

	f.clock.Advance(time.Duration(drop.WindowDuration+1) * time.Second)

	status, raw = f.do(t, http.MethodPost, "/api/v1/distributions/"+dist.Address+"/withdraw", nil, f.creator)
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	var withdrawn server.WithdrawResponse
	require.NoError(t, json.Unmarshal(raw, &withdrawn))
	require.Equal(t, uint64(8_500), withdrawn.Remainder)

	// A's claim record survives teardown and is closed by A.
	status, raw = f.do(t, http.MethodDelete, "/api/v1/distributions/"+dist.Address+"/claims/"+a.PublicKey().String(), nil, a)
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	var closed server.CloseClaimResponse
	require.NoError(t, json.Unmarshal(raw, &closed))
	require.Equal(t, drop.ClaimRecordRent, closed.Reclaimed)

	status, raw = f.do(t, http.MethodDelete, "/api/v1/distributions/"+dist.Address+"/claims/"+a.PublicKey().String(), nil, a)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", f.errorCode(t, raw))
}

func TestMerkleDrop_Server_CloseClaim_SignerMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := solana.NewWallet()
	b := solana.NewWallet()

	dist := f.open(t, 10_000)
	tree := f.activate(t, dist, []merkle.Entry{
		{Recipient: a.PublicKey(), Ceiling: 1_000},
		{Recipient: b.PublicKey(), Ceiling: 2_000},
	})

	status, _ := f.claim(t, dist, a, 1_000, f.proof(t, tree, 0))
	require.Equal(t, http.StatusOK, status)

	status, raw := f.do(t, http.MethodDelete, "/api/v1/distributions/"+dist.Address+"/claims/"+a.PublicKey().String(), nil, b)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "signer_mismatch", f.errorCode(t, raw))
}
