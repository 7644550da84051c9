package persist

import (
    "context"
    "errors"
    "fmt"

    "juscapture/internal/domain"
    "juscapture/internal/ports"
)

// Resolver maps portal person ids to stable entities. A portal id is only meaningful
// inside the (system, tribunal, level) that issued it.
type Resolver struct {
    entities ports.EntityRepository
    identity ports.IdentityRepository
}

func NewResolver(entities ports.EntityRepository, identity ports.IdentityRepository) *Resolver {
    return &Resolver{entities: entities, identity: identity}
}

// Scope is the portal instance a payload was captured from.
type Scope struct {
    System   string
    Tribunal string
    Level    domain.InstanceLevel
}

func (s Scope) identityKey(kind domain.ElementKind, portalID int64) domain.IdentityKey {
    return domain.IdentityKey{
        EntityType:     kind,
        PortalPersonID: portalID,
        System:         s.System,
        Tribunal:       domain.NormalizeTribunal(s.Tribunal),
        Level:          s.Level,
    }
}

// Resolution is the key a person element will be stored under.
type Resolution struct {
    Key      string
    EntityID int64 // set when the identity mapping already points at an entity
    Mapped   bool
}

// Resolve returns the natural key for a person. A mapping hit wins over the
// document-derived key; without a document a tribunal-scoped surrogate is used.
func (r *Resolver) Resolve(ctx context.Context, scope Scope, kind domain.ElementKind, portalID int64, documentKey string) (Resolution, error) {
    if portalID != 0 {
        m, found, err := r.identity.FindMapping(ctx, scope.identityKey(kind, portalID))
        if err != nil {
            return Resolution{}, fmt.Errorf("find mapping: %w", err)
        }
        if found {
            key, ok, err := r.entities.EntityKey(ctx, kind, m.EntityID)
            if err != nil {
                return Resolution{}, fmt.Errorf("entity key: %w", err)
            }
            if ok {
                return Resolution{Key: key, EntityID: m.EntityID, Mapped: true}, nil
            }
        }
    }
    if documentKey != "" {
        return Resolution{Key: documentKey}, nil
    }
    if portalID != 0 {
        return Resolution{Key: domain.SurrogatePersonKey(kind, scope.System, scope.Tribunal, scope.Level, portalID)}, nil
    }
    return Resolution{}, fmt.Errorf("%s: %w", kind, ErrUnaddressable)
}

// ErrUnaddressable marks a person with neither a document nor a portal id. Such
// persons have no stable identity and are not treated as elements.
var ErrUnaddressable = errors.New("person has neither document nor portal id")

// Bind records portalID → entityID after an upsert. A concurrent writer that created
// the mapping first wins; its mapping is returned.
func (r *Resolver) Bind(ctx context.Context, scope Scope, kind domain.ElementKind, portalID, entityID int64, extra map[string]any) (domain.IdentityMapping, error) {
    key := scope.identityKey(kind, portalID)
    m, err := r.identity.CreateMapping(ctx, domain.IdentityMapping{
        EntityType:     kind,
        EntityID:       entityID,
        PortalPersonID: portalID,
        System:         key.System,
        Tribunal:       key.Tribunal,
        Level:          key.Level,
        ExtraData:      extra,
    })
    if errors.Is(err, domain.ErrConflict) {
        existing, found, ferr := r.identity.FindMapping(ctx, key)
        if ferr != nil {
            return domain.IdentityMapping{}, fmt.Errorf("re-read mapping: %w", ferr)
        }
        if !found {
            return domain.IdentityMapping{}, fmt.Errorf("mapping conflict without row: %w", err)
        }
        return existing, nil
    }
    if err != nil {
        return domain.IdentityMapping{}, fmt.Errorf("create mapping: %w", err)
    }
    return m, nil
}
