package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vprism/vprism/internal/models"
)

// SymbolMapStore persists resolved symbol mappings. It satisfies the
// resolution engine's sink contract: first write wins, replays are no-ops.
type SymbolMapStore struct {
	db *DB
}

func NewSymbolMapStore(db *DB) *SymbolMapStore {
	return &SymbolMapStore{db: db}
}

// RecordMapping stores one fresh resolution with insert-or-ignore
// semantics on (raw_symbol, market, asset_type).
func (s *SymbolMapStore) RecordMapping(ctx context.Context, sym models.ResolvedSymbol, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO symbol_map
			(canonical, raw_symbol, market, asset_type, provider_hint, rule_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sym.Canonical, sym.Raw, string(sym.Market), string(sym.Asset),
		sym.ProviderHint, sym.RuleID, createdAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record symbol mapping %s: %w", sym.Raw, err)
	}
	return nil
}

// Lookup returns the stored mapping for one raw symbol, or false.
func (s *SymbolMapStore) Lookup(ctx context.Context, raw string, market models.MarketType, asset models.AssetType) (models.ResolvedSymbol, bool, error) {
	type scanRow struct {
		Canonical    string  `db:"canonical"`
		Raw          string  `db:"raw_symbol"`
		Market       string  `db:"market"`
		Asset        string  `db:"asset_type"`
		ProviderHint *string `db:"provider_hint"`
		RuleID       string  `db:"rule_id"`
	}
	var r scanRow
	err := s.db.GetContext(ctx, &r, `
		SELECT canonical, raw_symbol, market, asset_type, provider_hint, rule_id
		FROM symbol_map
		WHERE raw_symbol = ? AND market = ? AND asset_type = ?`,
		raw, string(market), string(asset))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ResolvedSymbol{}, false, nil
		}
		return models.ResolvedSymbol{}, false, fmt.Errorf("lookup symbol %s: %w", raw, err)
	}
	out := models.ResolvedSymbol{
		Raw:       r.Raw,
		Canonical: r.Canonical,
		Market:    models.MarketType(r.Market),
		Asset:     models.AssetType(r.Asset),
		RuleID:    r.RuleID,
	}
	if r.ProviderHint != nil {
		out.ProviderHint = *r.ProviderHint
	}
	return out, true, nil
}
