// Package monopoly audits open long interest for cartel-like control of a
// commodity's supply and, when a single controller holds too much of it,
// spawns alternative supply at deterministic pseudo-random locations.
package monopoly

import (
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/zionworld/futures-engine/internal/catalog"
	"github.com/zionworld/futures-engine/internal/model"
	"github.com/zionworld/futures-engine/internal/state"
)

// ControlThreshold is the share of total open long interest above which a
// single controller counts as a monopoly. Strict: exactly 60% is not one.
var ControlThreshold = decimal.NewFromFloat(0.60)

// DefaultSeed is the spawn seed used when the caller supplies none.
const DefaultSeed int64 = 42

// GuildDirectory resolves a player to their guild. Optional external
// collaborator; consulted only for contracts without an explicit guild id.
type GuildDirectory interface {
	GuildOf(playerID string) (guildID string, ok bool)
}

// StaticGuilds is a fixed player→guild mapping, handy for hosts that load
// membership once at boot and for tests.
type StaticGuilds map[string]string

// GuildOf implements GuildDirectory.
func (g StaticGuilds) GuildOf(playerID string) (string, bool) {
	gid, ok := g[playerID]
	return gid, ok
}

// ControllerShare is one controller's slice of the open long interest.
type ControllerShare struct {
	Controller model.Controller `json:"controller"`
	Quantity   int64            `json:"quantity"`
}

// Report is the outcome of a monopoly audit on one underlying item.
type Report struct {
	Item           string            `json:"item"`
	HasMonopoly    bool              `json:"has_monopoly"`
	ControlPercent decimal.Decimal   `json:"control_percent"`
	TopController  model.Controller  `json:"top_controller"`
	TotalLong      int64             `json:"total_long"`
	Shares         []ControllerShare `json:"shares"`
}

// resolveController decides who controls a contract's long interest: the
// contract's explicit guild id, else the holder's guild per the directory,
// else the holder as a singleton.
func resolveController(c model.FuturesContract, dir GuildDirectory) model.Controller {
	if c.GuildID != "" {
		return model.Controller{Kind: model.ControllerGuild, ID: c.GuildID}
	}
	if dir != nil {
		if gid, ok := dir.GuildOf(c.HolderID); ok {
			return model.Controller{Kind: model.ControllerGuild, ID: gid}
		}
	}
	return model.Controller{Kind: model.ControllerSolo, ID: c.HolderID}
}

// DetectMonopoly aggregates the long-direction quantity of every open
// contract on the item's commodity by controlling entity. A monopoly is
// reported when the largest controller holds strictly more than the
// threshold share of the total. No open long interest means no monopoly,
// as does an item with no listed commodity.
func DetectMonopoly(st *state.MarketState, item string, dir GuildDirectory) Report {
	report := Report{Item: item, ControlPercent: decimal.Zero}

	com, ok := catalog.ByUnderlying(item)
	if !ok {
		return report
	}

	totals := make(map[string]ControllerShare)
	var total int64
	for _, c := range st.OpenContracts() {
		if c.CommodityID != com.ID || c.Direction != model.Long {
			continue
		}
		ctrl := resolveController(c, dir)
		share := totals[ctrl.Key()]
		share.Controller = ctrl
		share.Quantity += c.Quantity
		totals[ctrl.Key()] = share
		total += c.Quantity
	}

	if total == 0 {
		return report
	}

	shares := make([]ControllerShare, 0, len(totals))
	for _, s := range totals {
		shares = append(shares, s)
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Quantity != shares[j].Quantity {
			return shares[i].Quantity > shares[j].Quantity
		}
		return shares[i].Controller.Key() < shares[j].Controller.Key()
	})

	top := shares[0]
	control := decimal.NewFromInt(top.Quantity).Div(decimal.NewFromInt(total))

	report.TotalLong = total
	report.Shares = shares
	report.TopController = top.Controller
	report.ControlPercent = control
	report.HasMonopoly = control.GreaterThan(ControlThreshold)
	return report
}

// Rand is the deterministic random source behind spawn placement. A seeded
// source must reproduce the identical spawn set for the same seed; replay
// and anti-cheat auditing depend on it.
type Rand interface {
	Intn(n int) int
}

// Seeded returns the standard deterministic source for a seed.
func Seeded(seed int64) Rand {
	return rand.New(rand.NewSource(seed))
}

// region is a named world area with an anchor coordinate.
type region struct {
	name string
	x, y int64
}

// Eight predefined world regions eligible for alternative-supply spawns.
var regions = [8]region{
	{"northern_ridge", 120, -340},
	{"sunken_valley", -260, 80},
	{"emberfall_plains", 40, 410},
	{"glasswood_forest", -410, -120},
	{"salt_flats", 300, 220},
	{"old_quarry", -90, -480},
	{"riverlands", 480, -60},
	{"ashen_steppe", -180, 350},
}

// BreakMonopoly spawns three to five alternative-supply deposits of the
// item using rng for placement: a random region, ±20-unit jitter on both
// axes, and a quantity in [20, 50). Spawns are appended to the persistent
// alternative-resources list in host state and returned.
func BreakMonopoly(st *state.MarketState, item string, rng Rand) []model.ResourceSpawn {
	count := 3 + rng.Intn(3)
	spawns := make([]model.ResourceSpawn, 0, count)
	for i := 0; i < count; i++ {
		r := regions[rng.Intn(len(regions))]
		spawns = append(spawns, model.ResourceSpawn{
			Item:     item,
			Region:   r.name,
			X:        r.x + int64(rng.Intn(41)-20),
			Y:        r.y + int64(rng.Intn(41)-20),
			Quantity: int64(20 + rng.Intn(30)),
		})
	}
	st.AppendSpawns(spawns)
	return spawns
}
