package command

const (
	KindNavigation       = "navigation"
	KindMaintenanceCheck = "maintenance_check"
	KindCreateEntity     = "create_entity"
	KindSearch           = "search"
	KindVinLookup        = "vin_lookup"
	KindUnknown          = "unknown"
	KindError            = "search_error"
)

const EntityRepairOrder = "repair_order"

// Intent is the classified purpose of a command. The set of implementations
// is closed to this package.
type Intent interface {
	Kind() string
	intent()
}

type Navigation struct {
	URL string
}

type MaintenanceCheck struct{}

type CreateEntity struct {
	Entity string
}

type Search struct {
	Query string
}

type VinLookup struct {
	// VIN is empty when the command asked for a VIN lookup without one.
	VIN string
}

type Unknown struct {
	Help string
}

// Error is the terminal intent of a search that failed at some stage.
type Error struct {
	Stage string
}

func (Navigation) Kind() string       { return KindNavigation }
func (MaintenanceCheck) Kind() string { return KindMaintenanceCheck }
func (CreateEntity) Kind() string     { return KindCreateEntity }
func (Search) Kind() string           { return KindSearch }
func (VinLookup) Kind() string        { return KindVinLookup }
func (Unknown) Kind() string          { return KindUnknown }
func (Error) Kind() string            { return KindError }

func (Navigation) intent()       {}
func (MaintenanceCheck) intent() {}
func (CreateEntity) intent()     {}
func (Search) intent()           {}
func (VinLookup) intent()        {}
func (Unknown) intent()          {}
func (Error) intent()            {}
