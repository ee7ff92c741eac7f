package metrics

import (
	"go.etcd.io/bbolt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pktrune/coreindex/btcutil/er"
	"github.com/pktrune/coreindex/pktlog/log"
	"github.com/pktrune/coreindex/runetypes"
	"github.com/pktrune/coreindex/store"
)

// RuneView is a prometheus.Collector reporting the read-only per-rune state
// a deployer would otherwise have to query bbolt directly to see: supply,
// supply_extra, minter/blacklist roster sizes, and which authority bits a
// rune carries. It registers once and scans every row in id_to_entry on
// each scrape rather than tracking a per-rune registration set, since the
// rune count in any real deployment is small next to a scrape interval.
type RuneView struct {
	db *store.DB

	supply         *prometheus.Desc
	supplyExtra    *prometheus.Desc
	minterCount    *prometheus.Desc
	blacklistCount *prometheus.Desc
	authorityFlag  *prometheus.Desc
}

func NewRuneView(db *store.DB) *RuneView {
	labels := []string{"rune_id", "name"}
	return &RuneView{
		db: db,
		supply: prometheus.NewDesc(
			"runecore_rune_supply",
			"Circulating supply (premine plus open mints, less burns).",
			labels, nil,
		),
		supplyExtra: prometheus.NewDesc(
			"runecore_rune_supply_extra",
			"Cumulative amount minted by authority beyond the rune's open-mint terms.",
			labels, nil,
		),
		minterCount: prometheus.NewDesc(
			"runecore_rune_minter_count",
			"Number of scripts on the rune's delegated-minter roster.",
			labels, nil,
		),
		blacklistCount: prometheus.NewDesc(
			"runecore_rune_blacklist_count",
			"Number of scripts on the rune's blacklist roster.",
			labels, nil,
		),
		authorityFlag: prometheus.NewDesc(
			"runecore_rune_authority_flag",
			"Whether the rune carries a given authority bit (1) or not (0).",
			append(append([]string{}, labels...), "flag"), nil,
		),
	}
}

func (v *RuneView) Describe(ch chan<- *prometheus.Desc) {
	ch <- v.supply
	ch <- v.supplyExtra
	ch <- v.minterCount
	ch <- v.blacklistCount
	ch <- v.authorityFlag
}

func (v *RuneView) Collect(ch chan<- prometheus.Metric) {
	if err := v.db.View(func(tx *bbolt.Tx) er.R {
		return store.Entries.ForEach(tx, func(_ []byte, entry runetypes.RuneEntry) er.R {
			v.collectEntry(tx, ch, entry)
			return nil
		})
	}); err != nil {
		log.Errorf("metrics: RuneView scrape failed: %s", err.String())
	}
}

func (v *RuneView) collectEntry(tx *bbolt.Tx, ch chan<- prometheus.Metric, entry runetypes.RuneEntry) {
	idStr := entry.RuneId.String()
	ch <- prometheus.MustNewConstMetric(v.supply, prometheus.GaugeValue, entry.Supply().Float64(), idStr, entry.Name)

	extra, _, err := store.SupplyExtra.Get(tx, entry.RuneId)
	if err != nil {
		log.Errorf("metrics: supply_extra read failed for %s: %s", idStr, err.String())
	} else {
		ch <- prometheus.MustNewConstMetric(v.supplyExtra, prometheus.GaugeValue, extra.Float64(), idStr, entry.Name)
	}

	minters, err := store.Minters.GetAll(tx, entry.RuneId)
	if err != nil {
		log.Errorf("metrics: minters read failed for %s: %s", idStr, err.String())
	} else {
		ch <- prometheus.MustNewConstMetric(v.minterCount, prometheus.GaugeValue, float64(len(minters)), idStr, entry.Name)
	}

	blacklist, err := store.Blacklist.GetAll(tx, entry.RuneId)
	if err != nil {
		log.Errorf("metrics: blacklist read failed for %s: %s", idStr, err.String())
	} else {
		ch <- prometheus.MustNewConstMetric(v.blacklistCount, prometheus.GaugeValue, float64(len(blacklist)), idStr, entry.Name)
	}

	flags, _, err := store.AuthorityFlags.Get(tx, entry.RuneId)
	if err != nil {
		log.Errorf("metrics: authority flags read failed for %s: %s", idStr, err.String())
		return
	}
	for name, bit := range map[string]runetypes.AuthorityBits{
		"mint":      runetypes.BitMint,
		"blacklist": runetypes.BitBlacklist,
		"master":    runetypes.BitMaster,
	} {
		val := 0.0
		if flags.Has(bit) {
			val = 1.0
		}
		ch <- prometheus.MustNewConstMetric(v.authorityFlag, prometheus.GaugeValue, val, idStr, entry.Name, name)
	}
}
