package sourceswitch

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tordrt/sourceswitch/internal/document"
	"github.com/tordrt/sourceswitch/internal/formatter"
	"github.com/tordrt/sourceswitch/internal/journal"
	"github.com/tordrt/sourceswitch/internal/metabase"
	"github.com/tordrt/sourceswitch/internal/schema"
	"github.com/tordrt/sourceswitch/internal/transform"
)

// Dashcard and tab members carried over to the new dashboard. Server-owned
// members (ids, timestamps, entity ids, embedded cards) are dropped.
var (
	dashcardKeys = []string{
		"card_id", "dashboard_tab_id", "row", "col", "size_x", "size_y",
		"series", "parameter_mappings", "visualization_settings", "action_id",
	}
	tabKeys = []string{"name", "position"}
)

// SwitchDashboard creates a switched copy of every card linked from a
// dashboard, then a new dashboard named by SwitchedName whose dashcards,
// series and parameter mappings point at the copies.
//
// Cards are created concurrently, at most Options.Workers at a time. If any
// card fails to be created no dashboard is created; cards already created
// are reported in the journal.
func SwitchDashboard(ctx context.Context, client *metabase.Client, dashboardID int64, opts *Options) (*formatter.Report, error) {
	if opts == nil {
		opts = &Options{}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := opts.logger().With(zap.Int64("dashboard_id", dashboardID))

	rec, err := openRecorder(ctx, opts, journal.KindDashboard, dashboardID)
	if err != nil {
		return nil, err
	}
	defer rec.close()

	source, target, err := opts.loadIndexes(ctx, client, logger)
	if err != nil {
		return nil, err
	}

	dash, err := client.Dashboard(ctx, dashboardID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dashboard %d: %w", dashboardID, err)
	}
	info, err := metabase.DashboardFromObject(dash)
	if err != nil {
		return nil, err
	}

	plan, err := transform.PlanDashboard(dash, source, target)
	if err != nil {
		return nil, fmt.Errorf("failed to plan dashboard %d: %w", dashboardID, err)
	}

	report := &formatter.Report{
		Kind:             formatter.KindDashboard,
		SourceID:         dashboardID,
		Name:             info.Name,
		NewName:          SwitchedName(info.Name, opts.TargetDatabaseID),
		SourceDatabaseID: opts.SourceDatabaseID,
		TargetDatabaseID: opts.TargetDatabaseID,
		DryRun:           opts.DryRun,
		Mappings:         plan.Mappings,
		Warnings:         slices.Clone(plan.Warnings),
		Cards:            make([]formatter.CardReport, len(plan.Cards)),
	}

	cards := make([]*metabase.Card, len(plan.Cards))
	for i, c := range plan.Cards {
		card, err := metabase.CardFromObject(c.Card)
		if err != nil {
			return nil, fmt.Errorf("failed to read card %d: %w", c.SourceID, err)
		}
		cards[i] = card
		report.Cards[i] = formatter.CardReport{
			SourceID: c.SourceID,
			Name:     card.Name,
			Mappings: c.Result.Mappings,
			Warnings: slices.Clone(c.Result.Warnings),
		}
	}

	if opts.VerifyDatabaseURL != "" {
		catalog, err := extractCatalog(ctx, opts, logger)
		if err != nil {
			return nil, err
		}
		addPhysicalWarnings(catalog, report)
	}

	logWarnings(logger, report.Warnings)
	rec.warnings(ctx, fmt.Sprintf("dashboard %d", dashboardID), report.Warnings)
	for _, c := range report.Cards {
		logWarnings(logger.With(zap.Int64("card_id", c.SourceID)), c.Warnings)
		rec.warnings(ctx, fmt.Sprintf("card %d", c.SourceID), c.Warnings)
	}

	if opts.DryRun {
		logger.Info("Dry run, dashboard not created",
			zap.Int("cards", len(plan.Cards)),
			zap.Int("mapped", report.MappingCount()),
			zap.Int("unmapped", report.WarningCount()))
		return report, nil
	}

	ids, err := createCards(ctx, client, plan, cards, report, opts, logger)
	for _, c := range report.Cards {
		if c.NewID != 0 {
			rec.artifact(ctx, journal.KindCard, c.SourceID, c.NewID)
		}
	}
	if err != nil {
		return nil, err
	}

	result, err := plan.Apply(ids)
	if err != nil {
		return nil, err
	}

	var parameters document.Doc
	if params, ok := result.Dashboard.Get("parameters"); ok {
		parameters = document.Doc{Root: params}
	}
	created, err := client.CreateDashboard(ctx, metabase.DashboardPayload{
		Name:         report.NewName,
		Description:  info.Description,
		CollectionID: opts.Collection.resolve(info.CollectionID),
		Parameters:   parameters,
	})
	if err != nil {
		return nil, err
	}
	report.NewID = created.ID
	rec.artifact(ctx, journal.KindDashboard, dashboardID, created.ID)

	if _, err := client.UpdateDashboard(ctx, created.ID, dashboardUpdate(result.Dashboard)); err != nil {
		return nil, err
	}

	logger.Info("Created switched dashboard",
		zap.Int64("new_id", created.ID),
		zap.Int("cards", len(plan.Cards)),
		zap.Int("unmapped", report.WarningCount()))
	return report, nil
}

// createCards creates every planned card, filling the id map under a lock.
// report.Cards[i].NewID is set for each card created, even on failure.
func createCards(ctx context.Context, client *metabase.Client, plan *transform.DashboardPlan, cards []*metabase.Card, report *formatter.Report, opts *Options, logger *zap.Logger) (transform.IDMap, error) {
	ids := make(transform.IDMap, len(plan.Cards))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i, c := range plan.Cards {
		card := cards[i]
		g.Go(func() error {
			created, err := client.CreateCard(gctx, metabase.CardPayload{
				Name:                  SwitchedName(card.Name, opts.TargetDatabaseID),
				Description:           card.Description,
				Display:               card.Display,
				DatasetQuery:          card.DatasetQuery,
				VisualizationSettings: card.VisualizationSettings,
				CollectionID:          opts.Collection.resolve(card.CollectionID),
			})
			if err != nil {
				return fmt.Errorf("failed to create card for %d: %w", c.SourceID, err)
			}

			mu.Lock()
			ids[c.SourceID] = created.ID
			report.Cards[i].NewID = created.ID
			mu.Unlock()

			logger.Debug("Created switched card", zap.Int64("card_id", c.SourceID), zap.Int64("new_id", created.ID))
			return nil
		})
	}

	err := g.Wait()
	return ids, err
}

func addPhysicalWarnings(catalog *schema.Schema, report *formatter.Report) {
	report.Warnings = append(report.Warnings, physicalWarnings(catalog, report.Mappings)...)
	for i := range report.Cards {
		c := &report.Cards[i]
		c.Warnings = append(c.Warnings, physicalWarnings(catalog, c.Mappings)...)
	}
}

// dashboardUpdate builds the PUT body placing the applied dashcards and tabs
// on a new dashboard. New dashcards and tabs get negative ids, which the
// server replaces; dashcards follow their tab through the id mapping.
// Dashboards read with the legacy "ordered_cards" key are written back
// under that key.
func dashboardUpdate(dash document.Object) document.Object {
	tabIDs := make(map[int64]int64)
	var tabs document.Array
	if v, ok := dash.Get("tabs"); ok {
		if arr, ok := v.(document.Array); ok {
			for _, elem := range arr {
				tab, ok := elem.(document.Object)
				if !ok {
					continue
				}
				newID := -int64(len(tabs) + 1)
				if id, ok := getInt(tab, "id"); ok {
					tabIDs[id] = newID
				}
				tabs = append(tabs, pick(document.Object{{Key: "id", Value: document.Int(newID)}}, tab, tabKeys, nil))
			}
		}
	}

	cardsKey := "dashcards"
	v, ok := dash.Get(cardsKey)
	if !ok {
		cardsKey = "ordered_cards"
		v, _ = dash.Get(cardsKey)
	}
	dashcards := document.Array{}
	if arr, ok := v.(document.Array); ok {
		for i, elem := range arr {
			dc, ok := elem.(document.Object)
			if !ok {
				continue
			}
			out := document.Object{{Key: "id", Value: document.Int(-int64(i + 1))}}
			dashcards = append(dashcards, pick(out, dc, dashcardKeys, tabIDs))
		}
	}

	body := document.Object{{Key: cardsKey, Value: dashcards}}
	if tabs != nil {
		body = append(body, document.Member{Key: "tabs", Value: tabs})
	}
	if params, ok := dash.Get("parameters"); ok {
		body = append(body, document.Member{Key: "parameters", Value: params})
	}
	return body
}

// pick appends the members of src named in keys to out, in src order.
// Series are reduced to card ids and dashboard_tab_id goes through tabIDs.
func pick(out, src document.Object, keys []string, tabIDs map[int64]int64) document.Object {
	for _, m := range src {
		if !slices.Contains(keys, m.Key) {
			continue
		}
		value := m.Value
		switch m.Key {
		case "dashboard_tab_id":
			if id, ok := document.AsInt64(value); ok {
				if newID, ok := tabIDs[id]; ok {
					value = document.Int(newID)
				}
			}
		case "series":
			value = seriesRefs(value)
		}
		out = append(out, document.Member{Key: m.Key, Value: value})
	}
	return out
}

func seriesRefs(v document.Value) document.Value {
	arr, ok := v.(document.Array)
	if !ok {
		return v
	}
	out := make(document.Array, 0, len(arr))
	for _, elem := range arr {
		obj, ok := elem.(document.Object)
		if !ok {
			out = append(out, elem)
			continue
		}
		if id, ok := getInt(obj, "id"); ok {
			out = append(out, document.Object{{Key: "id", Value: document.Int(id)}})
			continue
		}
		out = append(out, obj)
	}
	return out
}

func getInt(obj document.Object, key string) (int64, bool) {
	v, ok := obj.Get(key)
	if !ok {
		return 0, false
	}
	return document.AsInt64(v)
}
