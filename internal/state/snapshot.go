package state

import (
	"github.com/zionworld/futures-engine/internal/model"
)

// Snapshot is the wholesale serialized form of the host state. Save/load
// is the host's responsibility; there is no partial persistence format.
type Snapshot struct {
	NextContractID int64                          `json:"next_contract_id"`
	Accounts       []model.MarginAccount          `json:"accounts"`
	Contracts      []model.FuturesContract        `json:"contracts"`
	Breakers       []model.CircuitBreaker         `json:"breakers"`
	Prices         map[string][]model.PriceSample `json:"prices"`
	TradeLog       []model.TradeLogEntry          `json:"trade_log"`
	AltResources   []model.ResourceSpawn          `json:"alt_resources"`
}

// Export captures the entire host state under one lock acquisition.
func (s *MarketState) Export() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		NextContractID: s.nextContractID,
		Prices:         make(map[string][]model.PriceSample, len(s.prices)),
	}
	for _, a := range s.accounts {
		snap.Accounts = append(snap.Accounts, cloneAccount(a))
	}
	for _, c := range s.contracts {
		snap.Contracts = append(snap.Contracts, *c)
	}
	for _, b := range s.breakers {
		snap.Breakers = append(snap.Breakers, *b)
	}
	for item, h := range s.prices {
		hc := make([]model.PriceSample, len(h))
		copy(hc, h)
		snap.Prices[item] = hc
	}
	snap.TradeLog = append(snap.TradeLog, s.tradeLog...)
	snap.AltResources = append(snap.AltResources, s.altResources...)
	return snap
}

// Import replaces the host state with a previously exported snapshot.
func (s *MarketState) Import(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextContractID = snap.NextContractID
	if s.nextContractID < 1 {
		s.nextContractID = 1
	}

	s.accounts = make(map[string]*model.MarginAccount, len(snap.Accounts))
	for i := range snap.Accounts {
		a := snap.Accounts[i]
		a.OpenContractIDs = append([]int64(nil), a.OpenContractIDs...)
		s.accounts[a.OwnerID] = &a
	}
	s.contracts = make(map[int64]*model.FuturesContract, len(snap.Contracts))
	for i := range snap.Contracts {
		c := snap.Contracts[i]
		s.contracts[c.ID] = &c
	}
	s.breakers = make(map[string]*model.CircuitBreaker, len(snap.Breakers))
	for i := range snap.Breakers {
		b := snap.Breakers[i]
		s.breakers[b.Item] = &b
	}
	s.prices = make(map[string][]model.PriceSample, len(snap.Prices))
	for item, h := range snap.Prices {
		hc := make([]model.PriceSample, len(h))
		copy(hc, h)
		s.prices[item] = hc
	}
	s.tradeLog = append([]model.TradeLogEntry(nil), snap.TradeLog...)
	s.altResources = append([]model.ResourceSpawn(nil), snap.AltResources...)
}
