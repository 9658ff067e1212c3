package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corebank/ledger/internal/config"
	"github.com/corebank/ledger/internal/events/kafka"
	"github.com/corebank/ledger/internal/gate"
	"github.com/corebank/ledger/internal/interfaces"
	"github.com/corebank/ledger/internal/ledger"
	"github.com/corebank/ledger/internal/models"
	"github.com/corebank/ledger/internal/storage/memory"
	"github.com/corebank/ledger/internal/storage/postgres"
)

// sessions keeps one confirmation-gate session per authenticated identity.
// Authentication itself is an external concern: the identity arrives in the
// X-Account-ID header and is trusted as already verified.
type sessions struct {
	mu sync.Mutex
	m  map[string]*gate.Session
}

func (s *sessions) get(accountID string) *gate.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[accountID]; !ok {
		s.m[accountID] = gate.NewSession()
	}
	return s.m[accountID]
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var store interfaces.LedgerStore
	var creds interfaces.CredentialSource
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatal(err)
		}
		defer pg.Close()
		store, creds = pg, pg
		log.Println("using postgres store")
	} else {
		mem := memory.NewStore()
		store, creds = mem, mem
		log.Println("using in-memory store")
	}

	core := ledger.NewLedger(store, cfg.MaxBalance)
	core.OnPublishError = func(err error) {
		log.Printf("event publish failed: %v", err)
	}
	if len(cfg.KafkaBrokers) > 0 {
		pub := kafka.NewPublisher(cfg.KafkaBrokers)
		defer pub.Close()
		core.UsePublisher(pub, cfg.KafkaTopic)
		log.Printf("publishing entry events to %s", cfg.KafkaTopic)
	}

	gt := gate.New(core, store, creds)
	sess := &sessions{m: make(map[string]*gate.Session)}

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Account creation is a wiring aid for the excluded signup flow.
	http.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			ID         string `json:"id"`
			Credential string `json:"credential"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		acct := models.Account{
			ID:            req.ID,
			Balance:       decimal.Zero,
			CredentialRef: req.Credential,
			CreatedAt:     time.Now(),
		}
		if err := store.CreateAccount(r.Context(), acct); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	http.HandleFunc("/stage", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		accountID := r.Header.Get("X-Account-ID")
		if accountID == "" {
			http.Error(w, "missing account identity", http.StatusUnauthorized)
			return
		}

		var req struct {
			Action    string `json:"action"`
			Amount    string `json:"amount"`
			Recipient string `json:"recipient"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		intent, err := gt.Stage(r.Context(), sess.get(accountID), accountID, gate.Action(req.Action), req.Amount, req.Recipient)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, intent)
	})

	http.HandleFunc("/confirm", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		accountID := r.Header.Get("X-Account-ID")
		if accountID == "" {
			http.Error(w, "missing account identity", http.StatusUnauthorized)
			return
		}

		var req struct {
			Credential string `json:"credential"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result, err := gt.Confirm(r.Context(), sess.get(accountID), accountID, req.Credential)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	http.HandleFunc("/accounts/balance", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		accountID := r.Header.Get("X-Account-ID")
		if accountID == "" {
			http.Error(w, "missing account identity", http.StatusUnauthorized)
			return
		}

		balance, err := core.Balance(r.Context(), accountID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			AccountID string          `json:"account_id"`
			Balance   decimal.Decimal `json:"balance"`
		}{accountID, balance})
	})

	http.HandleFunc("/accounts/entries", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		accountID := r.Header.Get("X-Account-ID")
		if accountID == "" {
			http.Error(w, "missing account identity", http.StatusUnauthorized)
			return
		}

		entries, err := core.Entries(r.Context(), accountID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	log.Printf("starting server on %s", cfg.ListenAddr)
	log.Fatal(http.ListenAndServe(cfg.ListenAddr, nil))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the core's rejection kinds onto HTTP statuses. Every kind
// except a storage failure is a caller-recoverable rejection.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, gate.ErrUnknownAction),
		errors.Is(err, gate.ErrNoPendingOperation):
		status = http.StatusBadRequest
	case errors.Is(err, gate.ErrInvalidCredential):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrUnknownAccount), errors.Is(err, ledger.ErrUnknownRecipient):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrLimitExceeded):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
