package scene

// Collection is a named set of objects. Placed geometry is linked into
// a collection so a whole agent's geometry can be found and unlinked as
// a unit.
type Collection struct {
	Name    string
	Objects []*Object
}

// Link adds an object to the collection. Linking the same object twice
// is a no-op.
func (c *Collection) Link(obj *Object) {
	for _, o := range c.Objects {
		if o == obj {
			return
		}
	}
	c.Objects = append(c.Objects, obj)
}

// Tag is one name/value pair accumulated along a placement path and
// handed to the agent runtime in path order.
type Tag struct {
	Name  string
	Value float64
}

// Agent is a registration record handed to the agent runtime: which
// brain drives the agent, which logical group it belongs to, and which
// collection holds its geometry.
type Agent struct {
	Name     string
	Brain    string
	Group    string
	GeoGroup string
	Tags     []Tag
}

// GroupKind controls what happens when a group is rebuilt.
type GroupKind int

const (
	// GroupManual groups are authored once and kept as-is on rebuild.
	GroupManual GroupKind = iota
	// GroupAuto groups are emptied and repopulated on rebuild.
	GroupAuto
)

func (k GroupKind) String() string {
	switch k {
	case GroupManual:
		return "manual"
	case GroupAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// GroupState is the rebuild disposition of a named group, resolved from
// existence, freeze flag, and kind in one lookup.
type GroupState int

const (
	// GroupAbsent: no group with that name; create it and build.
	GroupAbsent GroupState = iota
	// GroupFrozen: the group is frozen; skip the subtree entirely.
	GroupFrozen
	// GroupNeedsReset: an unfrozen auto group; reset it, then rebuild.
	GroupNeedsReset
	// GroupPopulated: an unfrozen manual group; keep its contents.
	GroupPopulated
)

func (s GroupState) String() string {
	switch s {
	case GroupAbsent:
		return "absent"
	case GroupFrozen:
		return "frozen"
	case GroupNeedsReset:
		return "needs-reset"
	case GroupPopulated:
		return "populated"
	default:
		return "unknown"
	}
}
