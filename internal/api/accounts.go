package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

// AccountStore persists account position snapshots as JSON files under
// accounts/ in the replicated data tree. Writes land on disk only; the
// filesystem watcher picks them up and pushes them to the shared store.
type AccountStore struct {
	accountsDir string
}

// NewAccountStore creates the store rooted at dataPath/accounts.
func NewAccountStore(dataPath string) (*AccountStore, error) {
	dir := filepath.Join(dataPath, "accounts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &AccountStore{accountsDir: dir}, nil
}

// Save writes one account snapshot, stamping last_update if absent.
func (a *AccountStore) Save(accountID string, data map[string]interface{}) error {
	if !validAccountID(accountID) {
		return fmt.Errorf("invalid account id %q", accountID)
	}
	if _, ok := data["last_update"]; !ok {
		data["last_update"] = time.Now().Format(time.RFC3339)
	}

	out, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return err
	}
	path := filepath.Join(a.accountsDir, accountID+".json")
	return os.WriteFile(path, out, 0o644)
}

// Get returns one account snapshot, or nil when the account is unknown.
func (a *AccountStore) Get(accountID string) (map[string]interface{}, error) {
	if !validAccountID(accountID) {
		return nil, fmt.Errorf("invalid account id %q", accountID)
	}
	raw, err := os.ReadFile(filepath.Join(a.accountsDir, accountID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// GetAll returns every known account snapshot keyed by account id.
func (a *AccountStore) GetAll() (map[string]map[string]interface{}, error) {
	entries, err := os.ReadDir(a.accountsDir)
	if err != nil {
		return nil, err
	}

	accounts := make(map[string]map[string]interface{})
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		data, err := a.Get(id)
		if err != nil || data == nil {
			continue
		}
		accounts[id] = data
	}
	return accounts, nil
}

// validAccountID rejects ids that could escape the accounts directory.
func validAccountID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}

// accountUpdateRequest is the position snapshot upload envelope.
type accountUpdateRequest struct {
	AccountID string                 `json:"account_id"`
	Data      map[string]interface{} `json:"data"`
}

// accountRequiredFields must all be present in an uploaded snapshot.
var accountRequiredFields = []string{"total_assets", "cash", "market_value", "positions"}

// handleAccountPositionsUpdate stores an uploaded account snapshot.
func (s *Server) handleAccountPositionsUpdate(c *gin.Context) {
	var req accountUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.AccountID == "" || req.Data == nil {
		errorResponse(c, http.StatusBadRequest, "account_id and data are required")
		return
	}
	for _, field := range accountRequiredFields {
		if _, ok := req.Data[field]; !ok {
			errorResponse(c, http.StatusBadRequest, "account data missing required field "+field)
			return
		}
	}

	if err := s.accounts.Save(req.AccountID, req.Data); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to save account data")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   fmt.Sprintf("account %s updated", req.AccountID),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleGetAccountPositions returns one account snapshot, or all of them
// when no account_id is given.
func (s *Server) handleGetAccountPositions(c *gin.Context) {
	accountID := c.Query("account_id")

	if accountID != "" {
		data, err := s.accounts.Get(accountID)
		if err != nil {
			errorResponse(c, http.StatusInternalServerError, "failed to load account data")
			return
		}
		if data == nil {
			errorResponse(c, http.StatusNotFound, "account "+accountID+" not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "data": data})
		return
	}

	accounts, err := s.accounts.GetAll()
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load account data")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": accounts})
}
