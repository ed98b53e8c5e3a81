package model

import (
	"docanchor.dev/docanchor/descriptor"
	"docanchor.dev/docanchor/journal"
)

// MintResponse answers POST /api/mint.
type MintResponse struct {
	Success         bool   `json:"success"`
	TokenID         string `json:"tokenId"`
	TxHash          string `json:"txHash"`
	TokenURI        string `json:"tokenURI"`
	CertificateHash string `json:"certificateHash"`
	FileCID         string `json:"fileCid"`
	DescriptorCID   string `json:"descriptorCid"`
	Encrypted       bool   `json:"encrypted"`
	AttemptID       string `json:"attemptId"`
}

// Details mirrors the ledger's variant fields.
type Details struct {
	Variant   string `json:"variant"`
	Label     string `json:"label"`
	CoOwner   string `json:"coOwner,omitempty"`
	Value     uint64 `json:"value,omitempty"`
	Redeemed  bool   `json:"redeemed"`
	Defaulted bool   `json:"defaulted,omitempty"`
}

// VerifyResponse answers POST /api/verify. Only Verified, CertificateHash
// and Message are set when the file is not registered.
type VerifyResponse struct {
	Verified        bool                   `json:"verified"`
	CertificateHash string                 `json:"certificateHash"`
	TokenID         string                 `json:"tokenId,omitempty"`
	CurrentOwner    string                 `json:"currentOwner,omitempty"`
	IsYourCert      *bool                  `json:"isYourCert,omitempty"`
	TokenURI        string                 `json:"tokenURI,omitempty"`
	Details         *Details               `json:"details,omitempty"`
	Descriptor      *descriptor.Descriptor `json:"descriptor"`
	Warnings        []string               `json:"warnings,omitempty"`
	Message         string                 `json:"message"`
}

// UnlockRequest is the JSON body of POST /api/unlock. Signature is the hex
// personal_sign signature over the key challenge.
type UnlockRequest struct {
	TokenID   string `json:"tokenId"`
	Address   string `json:"address,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// UnlockResponse carries the decrypted file, base64-encoded by encoding/json.
type UnlockResponse struct {
	TokenID     string                `json:"tokenId"`
	Encrypted   bool                  `json:"encrypted"`
	ContentType string                `json:"contentType"`
	Content     []byte                `json:"content"`
	Descriptor  descriptor.Descriptor `json:"descriptor"`
}

// TokenResponse answers GET /api/tokens/{id}.
type TokenResponse struct {
	TokenID    string                 `json:"tokenId"`
	Owner      string                 `json:"owner"`
	TokenURI   string                 `json:"tokenURI"`
	Details    Details                `json:"details"`
	Descriptor *descriptor.Descriptor `json:"descriptor"`
}

// PortfolioResponse answers GET /api/owners/{address}/tokens.
type PortfolioResponse struct {
	Owner  string          `json:"owner"`
	Tokens []TokenResponse `json:"tokens"`
}

// ChallengeResponse answers GET /api/challenge.
type ChallengeResponse struct {
	Message    string `json:"message"`
	Derivation string `json:"derivation"`
}

// HistoryResponse answers GET /api/history/{address}.
type HistoryResponse struct {
	Address string          `json:"address"`
	Entries []journal.Entry `json:"entries"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   *CodedError `json:"error"`
}

// TxResponse is certctl's --json output for owner-side token operations.
type TxResponse struct {
	Success bool   `json:"success"`
	TokenID string `json:"tokenId"`
	TxHash  string `json:"txHash"`
}
