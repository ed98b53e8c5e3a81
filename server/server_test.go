package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"docanchor.dev/docanchor/compliance"
	"docanchor.dev/docanchor/issuance"
	"docanchor.dev/docanchor/journal"
	"docanchor.dev/docanchor/keys"
	"docanchor.dev/docanchor/model"
	"docanchor.dev/docanchor/registry"
	"docanchor.dev/docanchor/registry/memledger"
	"docanchor.dev/docanchor/storage"
	"docanchor.dev/docanchor/storage/memcas"
	"docanchor.dev/docanchor/verification"
)

const recipient = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"

type testServer struct {
	*httptest.Server
	ledger *memledger.Ledger
}

func newTestServer(t *testing.T, withJournal bool, maxUpload int64) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	store := storage.NewClient(memcas.New(), log)
	ledger := memledger.New()
	client := registry.NewSerialized(ledger)

	icfg := issuance.Config{Store: store, Ledger: client, Log: log}
	var history History
	if withJournal {
		db, err := journal.OpenWithMigrations(filepath.Join(t.TempDir(), "journal.db"), log)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		j := journal.New(db, log)
		icfg.Journal = j
		history = j
	}
	srv := New(Config{
		Issuer:         issuance.New(icfg),
		Verifier:       verification.New(verification.Config{Store: store, Ledger: client, Mode: compliance.Permissive, Log: log}),
		History:        history,
		MaxUploadBytes: maxUpload,
		Log:            log,
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, ledger: ledger}
}

func (ts *testServer) postForm(t *testing.T, path, fileField string, content []byte, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if content != nil {
		fw, err := mw.CreateFormFile(fileField, "cert.pdf")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	resp, err := http.Post(ts.URL+path, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func standardFields() map[string]string {
	return map[string]string{
		"userAddress":  recipient,
		"title":        "Bachelor of Science",
		"student_name": "Alice",
		"program":      "Computer Science",
		"issuer_name":  "Uni",
	}
}

func TestMintThenVerify(t *testing.T) {
	ts := newTestServer(t, false, 0)

	resp := ts.postForm(t, "/api/mint", "certificateFile", []byte("diploma"), standardFields())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mint := decode[model.MintResponse](t, resp)
	assert.True(t, mint.Success)
	assert.Equal(t, "1", mint.TokenID)
	assert.True(t, strings.HasPrefix(mint.TokenURI, "ipfs://"))
	assert.NotEmpty(t, mint.TxHash)

	resp = ts.postForm(t, "/api/verify", "verifyFile", []byte("diploma"), map[string]string{"claimerAddress": strings.ToLower(recipient)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v := decode[model.VerifyResponse](t, resp)
	assert.True(t, v.Verified)
	assert.Equal(t, "1", v.TokenID)
	assert.Equal(t, recipient, v.CurrentOwner)
	require.NotNil(t, v.IsYourCert)
	assert.True(t, *v.IsYourCert)
	require.NotNil(t, v.Descriptor)
	assert.Equal(t, "Bachelor of Science - Alice", v.Descriptor.Name)
	assert.Equal(t, mint.CertificateHash, v.CertificateHash)

	resp = ts.postForm(t, "/api/verify", "verifyFile", []byte("forged"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v = decode[model.VerifyResponse](t, resp)
	assert.False(t, v.Verified)
	assert.Empty(t, v.TokenID)
}

func TestMintLegacyFieldNames(t *testing.T) {
	ts := newTestServer(t, false, 0)
	resp := ts.postForm(t, "/api/mint", "certificateFile", []byte("legacy-form"), map[string]string{
		"userAddress": recipient,
		"name":        "Alice",
		"course":      "Physics",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tok := decode[model.TokenResponse](t, ts.get(t, "/api/tokens/1"))
	require.NotNil(t, tok.Descriptor)
	program, ok := tok.Descriptor.Attr("program")
	assert.True(t, ok)
	assert.Equal(t, "Physics", program)
}

func TestMintDuplicateIsConflict(t *testing.T) {
	ts := newTestServer(t, false, 0)
	require.Equal(t, http.StatusOK, ts.postForm(t, "/api/mint", "certificateFile", []byte("once"), standardFields()).StatusCode)

	resp := ts.postForm(t, "/api/mint", "certificateFile", []byte("once"), standardFields())
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[model.ErrorResponse](t, resp)
	assert.False(t, body.Success)
	assert.Equal(t, model.ErrAlreadyRegistered, body.Error.Code)
	assert.Equal(t, uint64(1), body.Error.ExistingID)
	assert.Equal(t, string(issuance.StageHashChecked), body.Error.Stage)
	assert.Equal(t, resp.Header.Get(RequestIDHeader), body.Error.RequestID)
}

func TestMintInputErrors(t *testing.T) {
	ts := newTestServer(t, false, 0)

	resp := ts.postForm(t, "/api/mint", "certificateFile", nil, standardFields())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[model.ErrorResponse](t, resp)
	assert.Equal(t, model.ErrInvalidRequest, body.Error.Code)
	assert.True(t, strings.HasPrefix(resp.Header.Get(RequestIDHeader), "req_"))

	fields := standardFields()
	fields["userAddress"] = "not-an-address"
	resp = ts.postForm(t, "/api/mint", "certificateFile", []byte("x"), fields)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	fields = standardFields()
	fields["variant"] = "joint"
	resp = ts.postForm(t, "/api/mint", "certificateFile", []byte("x"), fields)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	fields = standardFields()
	fields["encrypt"] = "true"
	resp = ts.postForm(t, "/api/mint", "certificateFile", []byte("x"), fields)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	fields = standardFields()
	fields["variant"] = "voucher"
	fields["currency"] = "EUR"
	resp = ts.postForm(t, "/api/mint", "certificateFile", []byte("x"), fields)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "voucher without value")

	fields["value"] = "10"
	delete(fields, "issuer_name")
	resp = ts.postForm(t, "/api/mint", "certificateFile", []byte("x"), fields)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "voucher without issuer name")
	assert.Equal(t, 0, ts.ledger.Registers())
}

func TestUploadLimit(t *testing.T) {
	ts := newTestServer(t, false, 1024)
	resp := ts.postForm(t, "/api/verify", "verifyFile", bytes.Repeat([]byte{1}, 4096), nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[model.ErrorResponse](t, resp)
	assert.Equal(t, model.ErrInvalidRequest, body.Error.Code)
}

func TestEncryptedMintAndUnlock(t *testing.T) {
	ts := newTestServer(t, false, 0)
	ctx := context.Background()
	wallet, err := keys.EVMSignerFromSeed(bytes.Repeat([]byte{9}, keys.SeedSize))
	require.NoError(t, err)
	addr, err := wallet.Address(ctx)
	require.NoError(t, err)

	challenge := decode[model.ChallengeResponse](t, ts.get(t, "/api/challenge"))
	assert.Equal(t, keys.ChallengeMessage, challenge.Message)
	assert.Equal(t, "sha256", challenge.Derivation)

	sig, err := wallet.SignMessage(ctx, challenge.Message)
	require.NoError(t, err)

	fields := standardFields()
	fields["encrypt"] = "true"
	fields["signature"] = hexutil.Encode(sig)
	fields["issuerAddress"] = addr
	resp := ts.postForm(t, "/api/mint", "certificateFile", []byte("%PDF-1.4 secret"), fields)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mint := decode[model.MintResponse](t, resp)
	assert.True(t, mint.Encrypted)

	unlock := func(body model.UnlockRequest) *http.Response {
		b, _ := json.Marshal(body)
		resp, err := http.Post(ts.URL+"/api/unlock", "application/json", bytes.NewReader(b))
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp = unlock(model.UnlockRequest{TokenID: mint.TokenID, Address: addr, Signature: hexutil.Encode(sig)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[model.UnlockResponse](t, resp)
	assert.Equal(t, []byte("%PDF-1.4 secret"), out.Content)
	assert.True(t, out.Encrypted)
	assert.Equal(t, "application/pdf", out.ContentType)

	resp = unlock(model.UnlockRequest{TokenID: mint.TokenID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	stranger, _ := keys.EVMSignerFromSeed(bytes.Repeat([]byte{8}, keys.SeedSize))
	other, _ := stranger.SignMessage(ctx, keys.ChallengeMessage)
	resp = unlock(model.UnlockRequest{TokenID: mint.TokenID, Signature: hexutil.Encode(other)})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, model.ErrDecryptionFailed, decode[model.ErrorResponse](t, resp).Error.Code)

	resp = unlock(model.UnlockRequest{TokenID: mint.TokenID, Address: addr, Signature: hexutil.Encode(other)})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, model.ErrSignatureDenied, decode[model.ErrorResponse](t, resp).Error.Code)

	resp = unlock(model.UnlockRequest{TokenID: "42"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEncryptedMintRejectsForeignSignature(t *testing.T) {
	ts := newTestServer(t, false, 0)
	ctx := context.Background()
	wallet, _ := keys.EVMSignerFromSeed(bytes.Repeat([]byte{9}, keys.SeedSize))
	addr, _ := wallet.Address(ctx)
	stranger, _ := keys.EVMSignerFromSeed(bytes.Repeat([]byte{8}, keys.SeedSize))
	sig, err := stranger.SignMessage(ctx, keys.ChallengeMessage)
	require.NoError(t, err)

	fields := standardFields()
	fields["encrypt"] = "true"
	fields["signature"] = hexutil.Encode(sig)
	fields["issuerAddress"] = addr
	resp := ts.postForm(t, "/api/mint", "certificateFile", []byte("%PDF-1.4 secret"), fields)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, model.ErrSignatureDenied, decode[model.ErrorResponse](t, resp).Error.Code)
	assert.Zero(t, ts.ledger.Registers())
}

func TestTokenAndPortfolio(t *testing.T) {
	ts := newTestServer(t, false, 0)
	fields := standardFields()
	fields["variant"] = "voucher"
	fields["value"] = "25"
	fields["currency"] = "EUR"
	require.Equal(t, http.StatusOK, ts.postForm(t, "/api/mint", "certificateFile", []byte("voucher"), fields).StatusCode)

	tok := decode[model.TokenResponse](t, ts.get(t, "/api/tokens/1"))
	assert.Equal(t, recipient, tok.Owner)
	assert.Equal(t, "voucher", tok.Details.Variant)
	assert.Equal(t, uint64(25), tok.Details.Value)

	assert.Equal(t, http.StatusNotFound, ts.get(t, "/api/tokens/7").StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.get(t, "/api/tokens/abc").StatusCode)

	p := decode[model.PortfolioResponse](t, ts.get(t, "/api/owners/"+recipient+"/tokens"))
	require.Len(t, p.Tokens, 1)
	assert.Equal(t, "1", p.Tokens[0].TokenID)
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t, true, 0)
	require.Equal(t, http.StatusOK, ts.postForm(t, "/api/mint", "certificateFile", []byte("logged"), standardFields()).StatusCode)

	h := decode[model.HistoryResponse](t, ts.get(t, "/api/history/"+recipient))
	require.Len(t, h.Entries, 1)
	assert.Equal(t, journal.StatusDone, h.Entries[0].Status)
	assert.Equal(t, uint64(1), h.Entries[0].TokenID)

	assert.Equal(t, http.StatusBadRequest, ts.get(t, "/api/history/"+recipient+"?limit=0").StatusCode)

	empty := decode[model.HistoryResponse](t, ts.get(t, "/api/history/0x0000000000000000000000000000000000000001"))
	assert.NotNil(t, empty.Entries)
	assert.Empty(t, empty.Entries)
}

func TestHistoryWithoutJournal(t *testing.T) {
	ts := newTestServer(t, false, 0)
	resp := ts.get(t, "/api/history/"+recipient)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
