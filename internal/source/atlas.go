package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
	"github.com/ajitpratap0/atlas-catalog-sync/pkg/batch"
)

const (
	defaultPageSize = 100
	defaultTimeout  = 30 * time.Second
	maxErrorBody    = 512
)

// AtlasConfig configures the Apache Atlas REST client.
type AtlasConfig struct {
	BaseURL        string
	Username       string
	Password       string
	PageSize       int
	FetchChunkSize int
	// RateLimit is the sustained request rate per second; zero disables it.
	RateLimit float64
	Timeout   time.Duration
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// AtlasClient implements Client over the Apache Atlas v2 REST API.
type AtlasClient struct {
	cfg     AtlasConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewAtlasClient creates a client. It performs no I/O.
func NewAtlasClient(cfg AtlasConfig, logger *slog.Logger) *AtlasClient {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.FetchChunkSize <= 0 {
		cfg.FetchChunkSize = DefaultFetchChunkSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}

	return &AtlasClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		limiter: limiter,
		logger:  logger,
	}
}

// --- wire types ---

type atlasAttributeDef struct {
	Name     string `json:"name"`
	TypeName string `json:"typeName"`
}

type atlasStructDef struct {
	Name          string              `json:"name"`
	Description   string              `json:"description"`
	Version       any                 `json:"version"`
	SuperTypes    []string            `json:"superTypes"`
	AttributeDefs []atlasAttributeDef `json:"attributeDefs"`
}

type atlasEnumDef struct {
	Name        string `json:"name"`
	ElementDefs []struct {
		Value   string `json:"value"`
		Ordinal int    `json:"ordinal"`
	} `json:"elementDefs"`
}

type atlasTypeDefs struct {
	EnumDefs           []atlasEnumDef   `json:"enumDefs"`
	ClassificationDefs []atlasStructDef `json:"classificationDefs"`
	EntityDefs         []atlasStructDef `json:"entityDefs"`
}

type atlasClassification struct {
	TypeName   string         `json:"typeName"`
	EntityGUID string         `json:"entityGuid"`
	Attributes map[string]any `json:"attributes"`
}

type atlasEntity struct {
	GUID                   string                `json:"guid"`
	TypeName               string                `json:"typeName"`
	Status                 string                `json:"status"`
	Attributes             map[string]any        `json:"attributes"`
	RelationshipAttributes map[string]any        `json:"relationshipAttributes"`
	Classifications        []atlasClassification `json:"classifications"`
	ClassificationNames    []string              `json:"classificationNames"`
	CreateTime             int64                 `json:"createTime"`
	UpdateTime             int64                 `json:"updateTime"`
}

type atlasEntities struct {
	Entities []atlasEntity `json:"entities"`
}

type atlasClassificationList struct {
	List []atlasClassification `json:"list"`
}

// --- Client ---

func (c *AtlasClient) ListTypeDefs(ctx context.Context) (models.TypeDictionary, error) {
	var defs atlasTypeDefs
	if err := c.getJSON(ctx, "/api/atlas/v2/types/typedefs", nil, &defs); err != nil {
		return models.TypeDictionary{}, fmt.Errorf("listing typedefs: %w", err)
	}

	entityTypes := make([]models.TypeDef, 0, len(defs.EntityDefs))
	for _, d := range defs.EntityDefs {
		entityTypes = append(entityTypes, toTypeDef(d))
	}
	classifications := make([]models.TypeDef, 0, len(defs.ClassificationDefs))
	for _, d := range defs.ClassificationDefs {
		classifications = append(classifications, toTypeDef(d))
	}
	enums := make([]models.EnumDef, 0, len(defs.EnumDefs))
	for _, d := range defs.EnumDefs {
		enum := models.EnumDef{Name: d.Name}
		for _, el := range d.ElementDefs {
			enum.Values = append(enum.Values, el.Value)
		}
		enums = append(enums, enum)
	}

	c.logger.Info("fetched typedefs",
		"entity_types", len(entityTypes),
		"classifications", len(classifications),
		"enums", len(enums),
	)
	return models.NewTypeDictionary(entityTypes, classifications, enums), nil
}

func (c *AtlasClient) SearchEntitiesByType(ctx context.Context, typeName string) ([]models.EntityHeader, error) {
	var headers []models.EntityHeader
	for offset := 0; ; offset += c.cfg.PageSize {
		q := url.Values{}
		q.Set("typeName", typeName)
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(c.cfg.PageSize))

		var page atlasEntities
		if err := c.getJSON(ctx, "/api/atlas/v2/search/dsl", q, &page); err != nil {
			return nil, fmt.Errorf("searching entities of type %s at offset %d: %w", typeName, offset, err)
		}
		if len(page.Entities) == 0 {
			break
		}
		for _, e := range page.Entities {
			// The search also returns sub-types; keep exact matches only.
			if e.Status == models.StatusDeleted || e.TypeName != typeName {
				continue
			}
			headers = append(headers, models.EntityHeader{
				GUID:                e.GUID,
				TypeName:            e.TypeName,
				Status:              e.Status,
				ClassificationNames: e.ClassificationNames,
			})
		}
	}

	c.logger.Debug("searched entities", "type", typeName, "count", len(headers))
	return headers, nil
}

func (c *AtlasClient) FetchEntities(ctx context.Context, guids []string) (map[string]*models.Entity, error) {
	out := make(map[string]*models.Entity, len(guids))
	for _, chunk := range batch.Chunk(guids, c.cfg.FetchChunkSize) {
		q := url.Values{}
		for _, guid := range chunk {
			q.Add("guid", guid)
		}

		var resp atlasEntities
		if err := c.getJSON(ctx, "/api/atlas/v2/entity/bulk", q, &resp); err != nil {
			return nil, fmt.Errorf("fetching %d entities: %w", len(chunk), err)
		}
		for _, e := range resp.Entities {
			out[e.GUID] = toEntity(e)
		}
	}

	c.logger.Debug("fetched entities", "requested", len(guids), "returned", len(out))
	return out, nil
}

func (c *AtlasClient) FetchClassifications(ctx context.Context, guid string) ([]models.Classification, error) {
	var resp atlasClassificationList
	err := c.getJSON(ctx, "/api/atlas/v2/entity/guid/"+url.PathEscape(guid)+"/classifications", nil, &resp)
	if err != nil {
		if isNotFound(err) {
			c.logger.Warn("entity not found while fetching classifications", "guid", guid)
			return nil, nil
		}
		return nil, fmt.Errorf("fetching classifications of %s: %w", guid, err)
	}

	list := make([]models.Classification, 0, len(resp.List))
	for _, ac := range resp.List {
		list = append(list, toClassification(ac))
	}
	return dedupClassifications(list, guid), nil
}

func (c *AtlasClient) AdminMetrics(ctx context.Context) (map[string]any, error) {
	var metrics map[string]any
	if err := c.getJSON(ctx, "/api/atlas/admin/metrics", nil, &metrics); err != nil {
		return nil, fmt.Errorf("fetching admin metrics: %w", err)
	}
	return metrics, nil
}

// --- transport ---

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %d: %s", ErrUnexpectedStatus, e.code, e.body)
}

func (e *statusError) Unwrap() error { return ErrUnexpectedStatus }

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

func (c *AtlasClient) getJSON(ctx context.Context, path string, query url.Values, target any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// --- conversion ---

func toTypeDef(d atlasStructDef) models.TypeDef {
	t := models.TypeDef{
		Name:        d.Name,
		Description: d.Description,
		SuperTypes:  d.SuperTypes,
	}
	if d.Version != nil {
		t.Version = fmt.Sprintf("%v", d.Version)
	}
	for _, a := range d.AttributeDefs {
		t.Attributes = append(t.Attributes, models.AttributeDef{Name: a.Name, TypeName: a.TypeName})
	}
	return t
}

func toClassification(ac atlasClassification) models.Classification {
	c := models.Classification{TypeName: ac.TypeName, EntityGUID: ac.EntityGUID}
	if len(ac.Attributes) > 0 {
		c.Attributes = make(map[string]models.Value, len(ac.Attributes))
		for k, v := range ac.Attributes {
			c.Attributes[k] = models.FromAny(v)
		}
	}
	return c
}

func toEntity(ae atlasEntity) *models.Entity {
	e := &models.Entity{
		GUID:                ae.GUID,
		TypeName:            ae.TypeName,
		Status:              ae.Status,
		Attributes:          make(map[string]models.Value, len(ae.Attributes)),
		ClassificationNames: ae.ClassificationNames,
		CreateTime:          ae.CreateTime,
		UpdateTime:          ae.UpdateTime,
	}
	for k, v := range ae.Attributes {
		e.Attributes[k] = models.FromAny(v)
	}
	// Relationship attributes fill gaps left by plain attributes.
	for k, v := range ae.RelationshipAttributes {
		if existing, ok := e.Attributes[k]; ok && existing.Kind != models.KindNull {
			continue
		}
		e.Attributes[k] = models.FromAny(v)
	}
	for _, ac := range ae.Classifications {
		e.Classifications = append(e.Classifications, toClassification(ac))
	}
	return e
}
