package tablemgr

import "context"

// Cascader is implemented by entities that own related data. The Manager
// calls the matching hook on each entity after the entity's own rows were
// read, written or removed, passing itself so the hook can issue further
// calls (load children, save children, ...).
type Cascader interface {
	Load(ctx context.Context, m *Manager) error
	Save(ctx context.Context, m *Manager) error
	Delete(ctx context.Context, m *Manager) error
}

type hook int

const (
	hookLoad hook = iota
	hookSave
	hookDelete
)

func (h hook) String() string {
	switch h {
	case hookLoad:
		return "load"
	case hookSave:
		return "save"
	default:
		return "delete"
	}
}

// cascade invokes h on every entity that implements Cascader. Hooks run
// one entity at a time on the calling goroutine.
func cascade[T any](ctx context.Context, m *Manager, entities []*T, h hook) error {
	var hooked []Cascader
	for _, e := range entities {
		if c, ok := any(e).(Cascader); ok {
			hooked = append(hooked, c)
		}
	}
	if len(hooked) == 0 {
		return nil
	}

	if m.depth >= m.maxDepth {
		return &CascadeDepthError{Depth: m.maxDepth}
	}
	m.depth++
	defer func() { m.depth-- }()

	m.logger.Debug("cascade", "hook", h.String(), "type", typeName[T](), "entities", len(hooked), "depth", m.depth)

	for _, c := range hooked {
		var err error
		switch h {
		case hookLoad:
			err = c.Load(ctx, m)
		case hookSave:
			err = c.Save(ctx, m)
		case hookDelete:
			err = c.Delete(ctx, m)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
