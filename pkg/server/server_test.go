package server

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/statechain-entity/pkg/config"
	"github.com/certen/statechain-entity/pkg/deposit"
	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/statelock"
	"github.com/certen/statechain-entity/pkg/store/memstore"
	"github.com/certen/statechain-entity/pkg/transfer"
	"github.com/certen/statechain-entity/pkg/transferbatch"
	"github.com/certen/statechain-entity/pkg/withdraw"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := memstore.New()
	ecdsaEngine := ecdsa2p.NewEngine(s)
	depositEngine := deposit.NewEngine(s, ecdsaEngine, config.NetworkRegtest)
	lock := statelock.New()
	transferEngine := transfer.NewEngine(s, lock)
	batchEngine := transferbatch.NewEngine(s, transferEngine)
	withdrawEngine := withdraw.NewEngine(s, ecdsaEngine, lock, config.NetworkRegtest, "bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080", 300)
	cfg := &config.Config{
		Network:         config.NetworkRegtest,
		FeeAddress:      "bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080",
		FeeDepositSats:  500,
		FeeWithdrawSats: 300,
	}
	return New(s, cfg, ecdsaEngine, depositEngine, transferEngine, batchEngine, withdrawEngine, nil, nil)
}

func doRequest(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestServer_Readyz(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_InfoFee(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/info/fee", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Address  string `json:"address"`
		Deposit  int64  `json:"deposit"`
		Withdraw int64  `json:"withdraw"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Address != "bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080" || resp.Deposit != 500 || resp.Withdraw != 300 {
		t.Fatalf("unexpected fee info: %+v", resp)
	}
}

func TestServer_GetStateChainNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/statechain/00000000-0000-0000-0000-000000000000", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if resp.Error.Code == "" {
		t.Fatalf("expected a non-empty error code in the envelope, got %+v", resp)
	}
}

func buildTxPaying(t *testing.T, addr string, amount int64) []byte {
	t.Helper()
	params := &chaincfg.RegressionNetParams
	target, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	script, err := txscript.PayToAddrScript(target)
	if err != nil {
		t.Fatalf("build script: %v", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(amount, script))
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("serialize tx: %v", err)
	}
	return buf.Bytes()
}

// TestServer_DepositFlow drives /deposit/init then /prepare-sign with
// protocol=BACKUP through the HTTP façade, seeding a completed ecdsa2p
// session directly (the full 4-message keygen handshake is exercised
// in pkg/ecdsa2p's own tests, not re-run here).
func TestServer_DepositFlow(t *testing.T) {
	srv := newTestServer(t)

	proofPriv, err := ecdsa.GenerateKey(gethcrypto.S256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate proof key: %v", err)
	}
	proofPub := &ecdsa2p.Point{X: proofPriv.X, Y: proofPriv.Y}

	initRec := doRequest(t, srv.Router(), http.MethodPost, "/deposit/init", map[string]interface{}{
		"proof_key": proofPub.Compressed(),
	})
	if initRec.Code != http.StatusOK {
		t.Fatalf("deposit init: expected 200, got %d: %s", initRec.Code, initRec.Body.String())
	}
	var initResp struct {
		UserID string `json:"user_id"`
		Auth   string `json:"auth"`
	}
	if err := json.Unmarshal(initRec.Body.Bytes(), &initResp); err != nil {
		t.Fatalf("decode deposit init response: %v", err)
	}
	if initResp.UserID == "" || initResp.Auth == "" {
		t.Fatalf("expected user_id and auth in response, got %+v", initResp)
	}

	x1, err := ecdsa2p.RandomScalar()
	if err != nil {
		t.Fatalf("random scalar: %v", err)
	}
	o1, err := ecdsa2p.RandomScalar()
	if err != nil {
		t.Fatalf("random scalar: %v", err)
	}
	if err := srv.Store.PutEcdsaSession(&ecdsa2p.Session{
		UserID:       initResp.UserID,
		X1:           x1,
		Party2Public: ecdsa2p.ScalarBaseMul(o1),
		Complete:     true,
	}); err != nil {
		t.Fatalf("seed ecdsa session: %v", err)
	}

	q, err := srv.Ecdsa.SharedPublicKey(initResp.UserID)
	if err != nil {
		t.Fatalf("shared public key: %v", err)
	}
	hash := btcutil.Hash160(q.Compressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("derive address: %v", err)
	}
	rawTx := buildTxPaying(t, addr.EncodeAddress(), 50000)

	prepRec := doRequest(t, srv.Router(), http.MethodPost, "/prepare-sign", map[string]interface{}{
		"user_id":  initResp.UserID,
		"protocol": "BACKUP",
		"tx":       rawTx,
		"amount":   50000,
	})
	if prepRec.Code != http.StatusOK {
		t.Fatalf("prepare-sign: expected 200, got %d: %s", prepRec.Code, prepRec.Body.String())
	}
}

func TestServer_PrepareSignRejectsUnknownProtocol(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodPost, "/prepare-sign", map[string]interface{}{
		"user_id":  "00000000-0000-0000-0000-000000000000",
		"protocol": "NOT_A_REAL_PROTOCOL",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_BatchStatusRequiresValidID(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodGet, "/transfer/batch/status?batch_id=not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
