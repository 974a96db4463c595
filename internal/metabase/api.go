package metabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/tordrt/sourceswitch/internal/document"
	"github.com/tordrt/sourceswitch/internal/metadata"
)

// Card is a saved question. Raw keeps the full object as returned by the
// server so no attribute is lost when it is transformed.
type Card struct {
	ID                    int64        `json:"id"`
	Name                  string       `json:"name"`
	Description           *string      `json:"description"`
	Display               string       `json:"display"`
	CollectionID          *int64       `json:"collection_id"`
	DatabaseID            *int64       `json:"database_id"`
	DatasetQuery          document.Doc `json:"dataset_query"`
	VisualizationSettings document.Doc `json:"visualization_settings"`

	Raw document.Object `json:"-"`
}

// CardPayload is the body of POST /api/card
type CardPayload struct {
	Name                  string       `json:"name"`
	Description           *string      `json:"description"`
	Display               string       `json:"display"`
	DatasetQuery          document.Doc `json:"dataset_query"`
	VisualizationSettings document.Doc `json:"visualization_settings"`
	CollectionID          *int64       `json:"collection_id,omitempty"`
}

// Dashboard is the subset of dashboard attributes the client reads back
// after creating or updating one.
type Dashboard struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	CollectionID *int64  `json:"collection_id"`
}

// DashboardPayload is the body of POST /api/dashboard
type DashboardPayload struct {
	Name         string       `json:"name"`
	Description  *string      `json:"description"`
	CollectionID *int64       `json:"collection_id,omitempty"`
	Parameters   document.Doc `json:"parameters"`
}

// FieldInfo is a single field as returned by GET /api/field/:id, with its
// owning table embedded.
type FieldInfo struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	TableID int64  `json:"table_id"`
	Table   *struct {
		ID     int64   `json:"id"`
		Name   string  `json:"name"`
		Schema *string `json:"schema"`
		DBID   int64   `json:"db_id"`
	} `json:"table"`
}

// Path returns the logical path of the field, or false when the response
// carried no table.
func (f *FieldInfo) Path() (metadata.LogicalPath, bool) {
	if f.Table == nil || f.Table.Name == "" || f.Name == "" {
		return metadata.LogicalPath{}, false
	}
	schema := ""
	if f.Table.Schema != nil {
		schema = *f.Table.Schema
	}
	return metadata.LogicalPath{Schema: schema, Table: f.Table.Name, Field: f.Name}, true
}

// Card fetches a saved question.
func (c *Client) Card(ctx context.Context, id int64) (*Card, error) {
	data, err := c.get(ctx, fmt.Sprintf("/api/card/%d", id))
	if err != nil {
		return nil, err
	}
	return decodeCard(data)
}

// CreateCard saves a new question.
func (c *Client) CreateCard(ctx context.Context, payload CardPayload) (*Card, error) {
	if payload.VisualizationSettings.IsNull() {
		payload.VisualizationSettings = document.Doc{Root: document.Object{}}
	}
	data, err := c.post(ctx, "/api/card", payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}
	return decodeCard(data)
}

// DuplicateCard saves a copy of a question under its name plus suffix, in
// the same collection. The API has no clone endpoint.
func (c *Client) DuplicateCard(ctx context.Context, id int64, suffix string) (*Card, error) {
	original, err := c.Card(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.CreateCard(ctx, CardPayload{
		Name:                  original.Name + suffix,
		Description:           original.Description,
		Display:               original.Display,
		DatasetQuery:          original.DatasetQuery,
		VisualizationSettings: original.VisualizationSettings,
		CollectionID:          original.CollectionID,
	})
}

// DatabaseMetadata fetches the tables and fields of a database, hidden
// ones included since saved questions may still reference them.
func (c *Client) DatabaseMetadata(ctx context.Context, id int64) (*metadata.Database, error) {
	data, err := c.get(ctx, fmt.Sprintf("/api/database/%d/metadata?include_hidden=true", id))
	if err != nil {
		return nil, err
	}
	return metadata.Decode(bytes.NewReader(data))
}

// Field fetches one field, including hidden ones absent from database
// metadata listings.
func (c *Client) Field(ctx context.Context, id int64) (*FieldInfo, error) {
	data, err := c.get(ctx, fmt.Sprintf("/api/field/%d", id))
	if err != nil {
		return nil, err
	}
	var f FieldInfo
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode field: %w", err)
	}
	return &f, nil
}

// Dashboard fetches a dashboard with its dashcards and embedded cards.
func (c *Client) Dashboard(ctx context.Context, id int64) (document.Object, error) {
	data, err := c.get(ctx, fmt.Sprintf("/api/dashboard/%d", id))
	if err != nil {
		return nil, err
	}
	return decodeObject(data)
}

// CreateDashboard creates an empty dashboard.
func (c *Client) CreateDashboard(ctx context.Context, payload DashboardPayload) (*Dashboard, error) {
	if payload.Parameters.IsNull() {
		payload.Parameters = document.Doc{Root: document.Array{}}
	}
	data, err := c.post(ctx, "/api/dashboard", payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create dashboard: %w", err)
	}
	var d Dashboard
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode dashboard: %w", err)
	}
	return &d, nil
}

// UpdateDashboard replaces dashboard attributes, typically its dashcards,
// tabs and parameters.
func (c *Client) UpdateDashboard(ctx context.Context, id int64, body document.Object) (*Dashboard, error) {
	data, err := c.put(ctx, fmt.Sprintf("/api/dashboard/%d", id), body)
	if err != nil {
		return nil, fmt.Errorf("failed to update dashboard %d: %w", id, err)
	}
	var d Dashboard
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode dashboard: %w", err)
	}
	return &d, nil
}

// CardFromObject decodes the typed attributes of a card document, such as
// one rewritten by the transform package.
func CardFromObject(obj document.Object) (*Card, error) {
	data, err := document.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to encode card: %w", err)
	}
	return decodeCard(data)
}

// DashboardFromObject decodes the typed attributes of a dashboard document.
func DashboardFromObject(obj document.Object) (*Dashboard, error) {
	data, err := document.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dashboard: %w", err)
	}
	var d Dashboard
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode dashboard: %w", err)
	}
	return &d, nil
}

func decodeCard(data []byte) (*Card, error) {
	var card Card
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("failed to decode card: %w", err)
	}
	raw, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	card.Raw = raw
	return &card, nil
}

func decodeObject(data []byte) (document.Object, error) {
	v, err := document.Parse(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(document.Object)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", v)
	}
	return obj, nil
}
