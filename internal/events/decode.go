package events

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

// operations maps Atlas entity notification operation types.
var operations = map[string]models.Operation{
	"ENTITY_CREATE":         models.OpCreate,
	"ENTITY_UPDATE":         models.OpUpdate,
	"ENTITY_SYNC":           models.OpUpdate,
	"CLASSIFICATION_ADD":    models.OpUpdate,
	"CLASSIFICATION_UPDATE": models.OpUpdate,
	"CLASSIFICATION_DELETE": models.OpUpdate,
	"ENTITY_DELETE":         models.OpDelete,
}

// DecodeAtlasNotification decodes one Atlas entity notification. Both the
// versioned envelope ({"message": {...}}) and a bare message are accepted.
// The entity's attributes, when present, are kept as an inline payload.
func DecodeAtlasNotification(raw []byte, roles models.Roles) (models.SyncEvent, error) {
	if !gjson.ValidBytes(raw) {
		return models.SyncEvent{}, fmt.Errorf("%w: invalid JSON", ErrMalformedEvent)
	}

	msg := gjson.GetBytes(raw, "message")
	if !msg.IsObject() {
		msg = gjson.ParseBytes(raw)
	}

	rawOp := msg.Get("operationType").String()
	op, ok := operations[rawOp]
	if !ok {
		return models.SyncEvent{}, fmt.Errorf("%w: unsupported operation %q", ErrMalformedEvent, rawOp)
	}

	entity := msg.Get("entity")
	guid := entity.Get("guid").String()
	typeName := entity.Get("typeName").String()
	if guid == "" || typeName == "" {
		return models.SyncEvent{}, fmt.Errorf("%w: %s without entity guid or type", ErrMalformedEvent, rawOp)
	}

	ev := models.SyncEvent{
		Operation:    op,
		Scope:        scopeOf(typeName, roles),
		RawOperation: rawOp,
		GUID:         guid,
		TypeName:     typeName,
	}

	if attrs := entity.Get("attributes"); attrs.IsObject() {
		e := &models.Entity{
			GUID:       guid,
			TypeName:   typeName,
			Status:     entity.Get("status").String(),
			Attributes: make(map[string]models.Value),
			CreateTime: entity.Get("createTime").Int(),
			UpdateTime: entity.Get("updateTime").Int(),
		}
		attrs.ForEach(func(key, value gjson.Result) bool {
			e.Attributes[key.String()] = models.FromAny(value.Value())
			return true
		})
		for _, c := range entity.Get("classifications").Array() {
			classification := models.Classification{
				TypeName:   c.Get("typeName").String(),
				EntityGUID: c.Get("entityGuid").String(),
			}
			if cattrs := c.Get("attributes"); cattrs.IsObject() {
				classification.Attributes = make(map[string]models.Value)
				cattrs.ForEach(func(key, value gjson.Result) bool {
					classification.Attributes[key.String()] = models.FromAny(value.Value())
					return true
				})
			}
			e.Classifications = append(e.Classifications, classification)
		}
		ev.Entity = e
	}

	return ev, nil
}

func scopeOf(typeName string, roles models.Roles) models.EventScope {
	switch typeName {
	case roles.Database:
		return models.ScopeDatabase
	case roles.Table:
		return models.ScopeTable
	}
	return models.ScopeEntity
}
