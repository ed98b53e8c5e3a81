package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"docanchor.dev/docanchor/descriptor"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/issuance"
	"docanchor.dev/docanchor/journal"
	"docanchor.dev/docanchor/keys"
	"docanchor.dev/docanchor/model"
	"docanchor.dev/docanchor/registry"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	content, name, err := s.parseUpload(w, r, "certificateFile")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	variant, err := variantFromForm(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	encrypt, err := formBool(r, "encrypt", false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req := issuance.Request{
		Content:   content,
		FileName:  name,
		Recipient: formValue(r, "userAddress", "recipient"),
		Variant:   variant,
		Fields: descriptor.Fields{
			Title:         formValue(r, "title", "name"),
			Label:         formValue(r, "label"),
			Description:   formValue(r, "description"),
			ExternalURL:   formValue(r, "external_url"),
			IssuerAddress: formValue(r, "issuerAddress"),
		},
		Confidential: encrypt,
	}
	if encrypt {
		sig, err := parseSignature(formValue(r, "signature"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if len(sig) == 0 {
			s.writeError(w, r, errors.WithHint(errors.Input("encryption requires a signature"),
				"sign the message from GET /api/challenge with the issuing wallet"))
			return
		}
		if req.Signer, err = keys.NewPresigned(formValue(r, "issuerAddress"), sig); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	res, err := s.cfg.Issuer.Issue(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Mint(res))
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	content, _, err := s.parseUpload(w, r, "verifyFile")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	claimant, err := parseOptionalAddress(formValue(r, "claimerAddress"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.cfg.Verifier.Verify(r.Context(), content, claimant)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Verify(res))
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req model.UnlockRequest
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := registry.ParseTokenID(req.TokenID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sig, err := parseSignature(req.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var signer keys.Signer
	if len(sig) > 0 {
		if signer, err = keys.NewPresigned(req.Address, sig); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	out, err := s.cfg.Verifier.Unlock(r.Context(), id, signer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Unlock(out, http.DetectContentType(out.Content)))
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.ChallengeResponse{
		Message:    keys.ChallengeMessage,
		Derivation: s.cfg.Derivation.String(),
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	id, err := registry.ParseTokenID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, err := s.cfg.Verifier.Token(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Token(tok))
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	owner, err := descriptor.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	held, err := s.cfg.Verifier.Portfolio(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := model.PortfolioResponse{Owner: owner.Hex(), Tokens: make([]model.TokenResponse, 0, len(held))}
	for _, t := range held {
		out.Tokens = append(out.Tokens, model.Token(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		s.writeError(w, r, errors.WithHint(errors.E(errors.KindNotFound, "issuance history is not recorded"),
			"enable [journal] in the daemon configuration"))
		return
	}
	addr, err := descriptor.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, errors.Input("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	entries, err := s.cfg.History.ListByRecipient(r.Context(), addr.Hex(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, model.HistoryResponse{Address: addr.Hex(), Entries: entries})
}
