package transform

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/tordrt/sourceswitch/internal/document"
	"github.com/tordrt/sourceswitch/internal/metadata"
	"github.com/tordrt/sourceswitch/internal/rewrite"
)

const (
	keyDashcards         = "dashcards"
	keyOrderedCards      = "ordered_cards"
	keyCard              = "card"
	keyCardID            = "card_id"
	keyID                = "id"
	keySeries            = "series"
	keyParameters        = "parameters"
	keyParameterMappings = "parameter_mappings"
)

// ErrNotDashboard is returned when a dashboard document is not an object or
// its dashcards are not an array of objects.
var ErrNotDashboard = errors.New("not a dashboard document")

// IncompleteIDMapError is returned by Apply when a planned card has no new
// id, i.e. the card creation phase has not finished.
type IncompleteIDMapError struct {
	Missing []int64
}

func (e *IncompleteIDMapError) Error() string {
	return fmt.Sprintf("id map is missing new ids for cards %v", e.Missing)
}

// IDMap maps original card ids to the ids of the cards created from them.
type IDMap map[int64]int64

// CardPlan is one linked card of a dashboard, already rewritten for the
// target database and waiting to be created.
type CardPlan struct {
	SourceID int64
	// Card is the rewritten card object; its "id" is still SourceID.
	Card   document.Object
	Result *rewrite.Result
}

// DashboardPlan is the first phase of a dashboard transformation: every
// linked card and every parameter field reference has been rewritten, card
// ids have not. Create the cards, then call Apply with their new ids.
type DashboardPlan struct {
	Cards []CardPlan
	// Dashboard-level warnings and mappings (parameters, parameter
	// mappings and dashcard visualization settings); card results are kept
	// on each CardPlan.
	Warnings []rewrite.Warning
	Mappings []rewrite.Mapping

	dashboard document.Object
	cardsKey  string
	byID      map[int64]int
}

// DashboardResult is a fully transformed dashboard.
type DashboardResult struct {
	Dashboard document.Object
	IDMap     IDMap
	Cards     []CardPlan
	Warnings  []rewrite.Warning
	Mappings  []rewrite.Mapping
}

// PlanDashboard rewrites the linked cards, parameter mappings and dashcard
// visualization settings of a dashboard. Each distinct card, whether placed on a dashcard or used as a
// series, is planned once. Dashcards without a card (text and heading cards)
// are left as they are.
func PlanDashboard(dashboard document.Value, source, target *metadata.Index) (*DashboardPlan, error) {
	dash, ok := dashboard.(document.Object)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %T", ErrNotDashboard, dashboard)
	}

	p := &DashboardPlan{byID: make(map[int64]int)}
	out := make(document.Object, len(dash))
	copy(out, dash)

	p.cardsKey = keyDashcards
	if _, ok := dash.Get(keyDashcards); !ok {
		p.cardsKey = keyOrderedCards
	}

	for i, m := range out {
		switch m.Key {
		case p.cardsKey:
			dashcards, err := p.planDashcards(m.Value, source, target)
			if err != nil {
				return nil, err
			}
			out[i].Value = dashcards
		case keyParameters:
			r := rewrite.RewriteAt(m.Value, source, target, "/"+keyParameters)
			out[i].Value = r.Value
			p.merge(r)
		}
	}

	p.dashboard = out
	return p, nil
}

func (p *DashboardPlan) planDashcards(v document.Value, source, target *metadata.Index) (document.Value, error) {
	if _, ok := v.(document.Null); ok {
		return v, nil
	}
	dashcards, ok := v.(document.Array)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, expected array", ErrNotDashboard, p.cardsKey, v)
	}

	out := make(document.Array, len(dashcards))
	for i, elem := range dashcards {
		dc, ok := elem.(document.Object)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] is %T, expected object", ErrNotDashboard, p.cardsKey, i, elem)
		}
		loc := "/" + p.cardsKey + "/" + strconv.Itoa(i)

		if cardID, ok := getInt(dc, keyCardID); ok {
			card, _ := dc.Get(keyCard)
			if err := p.planCard(cardID, card, source, target); err != nil {
				return nil, fmt.Errorf("%s: %w", loc, err)
			}
		}

		if series, ok := dc.Get(keySeries); ok {
			if arr, ok := series.(document.Array); ok {
				for j, s := range arr {
					id, ok := getIntFrom(s, keyID)
					if !ok {
						continue
					}
					if err := p.planCard(id, s, source, target); err != nil {
						return nil, fmt.Errorf("%s/series/%d: %w", loc, j, err)
					}
				}
			}
		}

		newDC := dc
		for _, key := range []string{keyParameterMappings, keyVisualizationSettings} {
			if v, ok := dc.Get(key); ok {
				r := rewrite.RewriteAt(v, source, target, loc+"/"+key)
				newDC = newDC.Set(key, r.Value)
				p.merge(r)
			}
		}
		out[i] = newDC
	}
	return out, nil
}

func (p *DashboardPlan) planCard(id int64, card document.Value, source, target *metadata.Index) error {
	if _, seen := p.byID[id]; seen {
		return nil
	}
	obj, ok := card.(document.Object)
	if !ok {
		return fmt.Errorf("card %d is not embedded in the dashboard", id)
	}

	r := TransformCard(obj, source, target)
	p.byID[id] = len(p.Cards)
	p.Cards = append(p.Cards, CardPlan{
		SourceID: id,
		Card:     r.Value.(document.Object),
		Result:   r,
	})
	return nil
}

func (p *DashboardPlan) merge(r *rewrite.Result) {
	p.Warnings = append(p.Warnings, r.Warnings...)
	p.Mappings = append(p.Mappings, r.Mappings...)
}

// Card returns the plan of the card with the given original id.
func (p *DashboardPlan) Card(id int64) (CardPlan, bool) {
	i, ok := p.byID[id]
	if !ok {
		return CardPlan{}, false
	}
	return p.Cards[i], true
}

// Apply is the second phase: every card reference of the planned dashboard
// is pointed at the card created from it. Dashcard positions, sizes and all
// other members are unchanged.
func (p *DashboardPlan) Apply(ids IDMap) (*DashboardResult, error) {
	var missing []int64
	for _, c := range p.Cards {
		if _, ok := ids[c.SourceID]; !ok {
			missing = append(missing, c.SourceID)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, &IncompleteIDMapError{Missing: missing}
	}

	out := make(document.Object, len(p.dashboard))
	copy(out, p.dashboard)
	for i, m := range out {
		switch m.Key {
		case p.cardsKey:
			if arr, ok := m.Value.(document.Array); ok {
				out[i].Value = p.applyDashcards(arr, ids)
			}
		case keyParameters:
			out[i].Value = remapCardIDs(m.Value, ids)
		}
	}

	res := &DashboardResult{
		Dashboard: out,
		IDMap:     ids,
		Cards:     p.Cards,
		Warnings:  slices.Clone(p.Warnings),
		Mappings:  slices.Clone(p.Mappings),
	}
	for _, c := range p.Cards {
		res.Warnings = append(res.Warnings, c.Result.Warnings...)
		res.Mappings = append(res.Mappings, c.Result.Mappings...)
	}
	return res, nil
}

func (p *DashboardPlan) applyDashcards(dashcards document.Array, ids IDMap) document.Array {
	out := make(document.Array, len(dashcards))
	for i, elem := range dashcards {
		dc := elem.(document.Object)
		newDC := make(document.Object, len(dc))
		for j, m := range dc {
			newDC[j] = m
			switch m.Key {
			case keyCardID:
				if id, ok := document.AsInt64(m.Value); ok {
					if newID, ok := ids[id]; ok {
						newDC[j].Value = document.Int(newID)
					}
				}
			case keyCard:
				newDC[j].Value = p.createdCard(m.Value, ids)
			case keySeries:
				if arr, ok := m.Value.(document.Array); ok {
					series := make(document.Array, len(arr))
					for k, s := range arr {
						series[k] = p.createdCard(s, ids)
					}
					newDC[j].Value = series
				}
			case keyParameterMappings:
				newDC[j].Value = remapCardIDs(m.Value, ids)
			}
		}
		out[i] = newDC
	}
	return out
}

// createdCard returns the rewritten card with its new id in place of an
// embedded card object.
func (p *DashboardPlan) createdCard(v document.Value, ids IDMap) document.Value {
	id, ok := getIntFrom(v, keyID)
	if !ok {
		return v
	}
	plan, ok := p.Card(id)
	if !ok {
		return v
	}
	return plan.Card.Set(keyID, document.Int(ids[id]))
}

// remapCardIDs rewrites every integer "card_id" member found in v.
func remapCardIDs(v document.Value, ids IDMap) document.Value {
	switch t := v.(type) {
	case document.Object:
		out := make(document.Object, len(t))
		for i, m := range t {
			out[i] = document.Member{Key: m.Key, Value: remapCardIDs(m.Value, ids)}
			if m.Key != keyCardID {
				continue
			}
			if id, ok := document.AsInt64(m.Value); ok {
				if newID, ok := ids[id]; ok {
					out[i].Value = document.Int(newID)
				}
			}
		}
		return out
	case document.Array:
		out := make(document.Array, len(t))
		for i, elem := range t {
			out[i] = remapCardIDs(elem, ids)
		}
		return out
	default:
		return v
	}
}

// CreateFunc creates the card described by plan and returns its new id.
type CreateFunc func(ctx context.Context, plan CardPlan) (int64, error)

// TransformDashboard runs both phases: plan, create every planned card in
// order through create, then apply the resulting id map.
func TransformDashboard(ctx context.Context, dashboard document.Value, source, target *metadata.Index, create CreateFunc) (*DashboardResult, error) {
	plan, err := PlanDashboard(dashboard, source, target)
	if err != nil {
		return nil, err
	}

	ids := make(IDMap, len(plan.Cards))
	for _, c := range plan.Cards {
		newID, err := create(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("failed to create card for %d: %w", c.SourceID, err)
		}
		ids[c.SourceID] = newID
	}

	return plan.Apply(ids)
}

func getInt(obj document.Object, key string) (int64, bool) {
	v, ok := obj.Get(key)
	if !ok {
		return 0, false
	}
	return document.AsInt64(v)
}

func getIntFrom(v document.Value, key string) (int64, bool) {
	obj, ok := v.(document.Object)
	if !ok {
		return 0, false
	}
	return getInt(obj, key)
}
