// Package stackstest provides an in-process fake Stacks node for tests. It
// serves the same endpoints the stacks client uses, answering from values
// registered by the test.
package stackstest

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/alanyoungcy/propertyx/internal/clarity"
)

// ReadOnlyFunc computes a read-only result from the decoded arguments.
type ReadOnlyFunc func(sender string, args []clarity.Value) (clarity.Value, error)

type ftRow struct {
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

// Node is a fake Stacks node backed by an httptest.Server.
type Node struct {
	*httptest.Server

	mu         sync.Mutex
	tip        uint64
	readOnly   map[string]ReadOnlyFunc
	maps       map[string]map[string]clarity.Value
	ft         map[string][]ftRow
	stx        map[string]uint64
	nonces     map[string]uint64
	txStatus   map[string]string
	broadcasts [][]byte
	calls      map[string]int
	failPaths  map[string]int
}

// NewNode starts a node that is closed when the test ends.
func NewNode(t testing.TB) *Node {
	t.Helper()
	n := &Node{
		tip:       1,
		readOnly:  make(map[string]ReadOnlyFunc),
		maps:      make(map[string]map[string]clarity.Value),
		ft:        make(map[string][]ftRow),
		stx:       make(map[string]uint64),
		nonces:    make(map[string]uint64),
		txStatus:  make(map[string]string),
		calls:     make(map[string]int),
		failPaths: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /extended", n.handleStatus)
	mux.HandleFunc("POST /v2/contracts/call-read/{addr}/{name}/{fn}", n.handleReadOnly)
	mux.HandleFunc("POST /v2/map_entry/{addr}/{name}/{map}", n.handleMapEntry)
	mux.HandleFunc("GET /extended/v2/addresses/{addr}/balances/ft", n.handleFT)
	mux.HandleFunc("GET /extended/v2/addresses/{addr}/balances/stx", n.handleSTX)
	mux.HandleFunc("GET /extended/v1/address/{addr}/nonces", n.handleNonces)
	mux.HandleFunc("POST /v2/transactions", n.handleBroadcast)
	mux.HandleFunc("GET /extended/v1/tx/{txid}", n.handleTx)

	n.Server = httptest.NewServer(n.failing(mux))
	t.Cleanup(n.Server.Close)
	return n
}

// SetTip sets the chain tip height.
func (n *Node) SetTip(height uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tip = height
}

// SetReadOnly registers a constant result for contractID::fn.
func (n *Node) SetReadOnly(contractID, fn string, result clarity.Value) {
	n.SetReadOnlyFunc(contractID, fn, func(string, []clarity.Value) (clarity.Value, error) {
		return result, nil
	})
}

// SetReadOnlyFunc registers a computed result for contractID::fn. A
// returned error is reported as a failed evaluation.
func (n *Node) SetReadOnlyFunc(contractID, fn string, f ReadOnlyFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.readOnly[contractID+"::"+fn] = f
}

// SetMapEntry stores value under key in contractID's map.
func (n *Node) SetMapEntry(contractID, mapName string, key, value clarity.Value) {
	k, err := clarity.SerializeHex(key)
	if err != nil {
		panic(err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	id := contractID + "/" + mapName
	if n.maps[id] == nil {
		n.maps[id] = make(map[string]clarity.Value)
	}
	n.maps[id][k] = value
}

// DeleteMapEntry removes key from contractID's map.
func (n *Node) DeleteMapEntry(contractID, mapName string, key clarity.Value) {
	k, err := clarity.SerializeHex(key)
	if err != nil {
		panic(err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.maps[contractID+"/"+mapName], k)
}

// AddFTBalance appends a balance row ("ADDR.contract::asset") for address.
func (n *Node) AddFTBalance(address, token string, balance uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ft[address] = append(n.ft[address], ftRow{Token: token, Balance: strconv.FormatUint(balance, 10)})
}

// AddFTBalanceDecimal appends a balance row with a decimal balance that may
// exceed uint64.
func (n *Node) AddFTBalanceDecimal(address, token, balance string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ft[address] = append(n.ft[address], ftRow{Token: token, Balance: balance})
}

// SetSTXBalance sets the native balance of address.
func (n *Node) SetSTXBalance(address string, balance uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stx[address] = balance
}

// SetNonce sets the next nonce for address.
func (n *Node) SetNonce(address string, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nonces[address] = nonce
}

// SetTxStatus sets the reported tx_status for txID.
func (n *Node) SetTxStatus(txID, status string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.txStatus[strings.TrimPrefix(txID, "0x")] = status
}

// FailNext makes the next count requests whose path starts with prefix
// answer 500.
func (n *Node) FailNext(prefix string, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failPaths[prefix] += count
}

// Broadcasts returns the raw transactions received so far.
func (n *Node) Broadcasts() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([][]byte, len(n.broadcasts))
	copy(out, n.broadcasts)
	return out
}

// Calls returns how many times contractID::fn was evaluated.
func (n *Node) Calls(contractID, fn string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[contractID+"::"+fn]
}

// ---- handlers ----

func (n *Node) failing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		for prefix, left := range n.failPaths {
			if left > 0 && strings.HasPrefix(r.URL.Path, prefix) {
				n.failPaths[prefix] = left - 1
				n.mu.Unlock()
				http.Error(w, "injected failure", http.StatusInternalServerError)
				return
			}
		}
		n.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (n *Node) handleStatus(w http.ResponseWriter, _ *http.Request) {
	n.mu.Lock()
	tip := n.tip
	n.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"chain_tip": map[string]any{"block_height": tip},
	})
}

func (n *Node) handleReadOnly(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sender    string   `json:"sender"`
		Arguments []string `json:"arguments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	args := make([]clarity.Value, len(req.Arguments))
	for i, a := range req.Arguments {
		v, err := clarity.DeserializeHex(a)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		args[i] = v
	}

	key := r.PathValue("addr") + "." + r.PathValue("name") + "::" + r.PathValue("fn")
	n.mu.Lock()
	f, ok := n.readOnly[key]
	n.calls[key]++
	n.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"okay": false, "cause": "Unchecked(NoSuchPublicFunction(" + key + "))"})
		return
	}
	result, err := f(req.Sender, args)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"okay": false, "cause": err.Error()})
		return
	}
	h, err := clarity.SerializeHex(result)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"okay": true, "result": h})
}

func (n *Node) handleMapEntry(w http.ResponseWriter, r *http.Request) {
	var keyHex string
	if err := json.NewDecoder(r.Body).Decode(&keyHex); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := r.PathValue("addr") + "." + r.PathValue("name") + "/" + r.PathValue("map")

	n.mu.Lock()
	v, ok := n.maps[id][keyHex]
	n.mu.Unlock()

	var out clarity.Value = clarity.None{}
	if ok {
		out = clarity.Some{V: v}
	}
	h, err := clarity.SerializeHex(out)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": h, "proof": ""})
}

func (n *Node) handleFT(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 100
	}

	n.mu.Lock()
	rows := n.ft[r.PathValue("addr")]
	n.mu.Unlock()

	page := []ftRow{}
	if offset < len(rows) {
		end := min(offset+limit, len(rows))
		page = rows[offset:end]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"limit": limit, "offset": offset, "total": len(rows), "results": page,
	})
}

func (n *Node) handleSTX(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	bal := n.stx[r.PathValue("addr")]
	n.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"balance": strconv.FormatUint(bal, 10)})
}

func (n *Node) handleNonces(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	nonce := n.nonces[r.PathValue("addr")]
	n.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"possible_next_nonce": nonce})
}

func (n *Node) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil || len(raw) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "transaction rejected", "reason": "Deserialization"})
		return
	}
	sum := sha512.Sum512_256(raw)
	txid := hex.EncodeToString(sum[:])

	n.mu.Lock()
	n.broadcasts = append(n.broadcasts, raw)
	n.txStatus[txid] = "pending"
	n.mu.Unlock()

	writeJSON(w, http.StatusOK, txid)
}

func (n *Node) handleTx(w http.ResponseWriter, r *http.Request) {
	txid := strings.TrimPrefix(r.PathValue("txid"), "0x")
	n.mu.Lock()
	status, ok := n.txStatus[txid]
	n.mu.Unlock()
	if !ok {
		http.Error(w, fmt.Sprintf(`{"error":"could not find transaction by ID %s"}`, txid), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tx_id": "0x" + txid, "tx_status": status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Address returns a valid testnet address whose hash160 is seed repeated.
func Address(seed byte) string {
	var h [20]byte
	for i := range h {
		h[i] = seed
	}
	return clarity.AddressFromHash160(clarity.AddressVersionTestnetSingleSig, h)
}

// ContractID returns Address(seed) + "." + name.
func ContractID(seed byte, name string) string {
	return Address(seed) + "." + name
}
