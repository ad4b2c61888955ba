package entity

// Kind names an action type.
type Kind string

const (
	KindImport       Kind = "import"
	KindDelete       Kind = "delete"
	KindDismiss      Kind = "dismiss"
	KindIncrement    Kind = "increment"
	KindFetchRequest Kind = "fetch_request"
	KindFetchSuccess Kind = "fetch_success"
	KindFetchFail    Kind = "fetch_fail"
	KindInvalidate   Kind = "invalidate"
	KindTransaction  Kind = "transaction"
)

// Position controls where newly imported ids land in a list.
type Position int

const (
	PositionUnspecified Position = iota // Appended after existing ids.
	PositionStart                       // Inserted before existing ids.
	PositionEnd                         // Appended after existing ids.
)

// String returns the position name.
func (p Position) String() string {
	switch p {
	case PositionStart:
		return "start"
	case PositionEnd:
		return "end"
	default:
		return "unspecified"
	}
}

// Action describes one mutation of the cache. Actions are plain values;
// only Reduce interprets them.
type Action interface {
	Kind() Kind
	// EntityType returns the entity type the action addresses, or "" for
	// actions spanning several types.
	EntityType() string
	isAction()
}

// Verify at compile time that every action type implements Action.
var (
	_ Action = ImportAction{}
	_ Action = DeleteAction{}
	_ Action = DismissAction{}
	_ Action = IncrementAction{}
	_ Action = FetchRequestAction{}
	_ Action = FetchSuccessAction{}
	_ Action = FetchFailAction{}
	_ Action = InvalidateAction{}
	_ Action = TransactionAction{}
)

// ImportAction stores entities and optionally adds them to a list.
type ImportAction struct {
	Entities []Entity
	Path     Path
	Position Position
}

func (ImportAction) Kind() Kind           { return KindImport }
func (a ImportAction) EntityType() string { return a.Path.EntityType }
func (ImportAction) isAction()            {}

// ImportEntities stores entities of entityType. A non-empty listKey also adds
// their ids to that list at position.
func ImportEntities(entities []Entity, entityType, listKey string, position Position) ImportAction {
	return ImportAction{
		Entities: append([]Entity(nil), entities...),
		Path:     Path{EntityType: entityType, ListKey: listKey},
		Position: position,
	}
}

// DeleteOptions tunes DeleteEntities.
type DeleteOptions struct {
	// PreserveLists keeps the ids in every list; only the store entries go.
	PreserveLists bool
}

// DeleteAction removes entities from the store and, by default, from every list.
type DeleteAction struct {
	IDs     []string
	Type    string
	Options DeleteOptions
}

func (DeleteAction) Kind() Kind           { return KindDelete }
func (a DeleteAction) EntityType() string { return a.Type }
func (DeleteAction) isAction()            {}

// DeleteEntities removes ids of entityType from the store and, unless
// opts.PreserveLists is set, from every list of that type.
func DeleteEntities(ids []string, entityType string, opts DeleteOptions) DeleteAction {
	return DeleteAction{IDs: append([]string(nil), ids...), Type: entityType, Options: opts}
}

// DismissAction removes ids from a single list, leaving the store untouched.
type DismissAction struct {
	IDs  []string
	Path Path
}

func (DismissAction) Kind() Kind           { return KindDismiss }
func (a DismissAction) EntityType() string { return a.Path.EntityType }
func (DismissAction) isAction()            {}

// DismissEntities removes ids from the list listKey of entityType.
func DismissEntities(ids []string, entityType, listKey string) DismissAction {
	return DismissAction{IDs: append([]string(nil), ids...), Path: Path{EntityType: entityType, ListKey: listKey}}
}

// IncrementAction adjusts a list's total count.
type IncrementAction struct {
	Path Path
	Diff int
}

func (IncrementAction) Kind() Kind           { return KindIncrement }
func (a IncrementAction) EntityType() string { return a.Path.EntityType }
func (IncrementAction) isAction()            {}

// IncrementEntities adds diff, which may be negative, to a list's total count.
func IncrementEntities(entityType, listKey string, diff int) IncrementAction {
	return IncrementAction{Path: Path{EntityType: entityType, ListKey: listKey}, Diff: diff}
}

// FetchRequestAction marks a list as fetching.
type FetchRequestAction struct {
	Path Path
}

func (FetchRequestAction) Kind() Kind           { return KindFetchRequest }
func (a FetchRequestAction) EntityType() string { return a.Path.EntityType }
func (FetchRequestAction) isAction()            {}

// EntitiesFetchRequest starts the fetch lifecycle of a list.
func EntitiesFetchRequest(entityType, listKey string) FetchRequestAction {
	return FetchRequestAction{Path: Path{EntityType: entityType, ListKey: listKey}}
}

// FetchSuccessAction imports fetched entities and closes the fetch lifecycle.
type FetchSuccessAction struct {
	Entities     []Entity
	Path         Path
	Position     Position
	NewListState *ListState
	Overwrite    bool
}

func (FetchSuccessAction) Kind() Kind           { return KindFetchSuccess }
func (a FetchSuccessAction) EntityType() string { return a.Path.EntityType }
func (FetchSuccessAction) isAction()            {}

// EntitiesFetchSuccess imports entities like ImportEntities. newListState, when
// non-nil, replaces the list state. overwrite replaces the list's ids with
// exactly the ids of entities.
func EntitiesFetchSuccess(entities []Entity, entityType, listKey string, position Position, newListState *ListState, overwrite bool) FetchSuccessAction {
	var ls *ListState
	if newListState != nil {
		copied := *newListState
		ls = &copied
	}
	return FetchSuccessAction{
		Entities:     append([]Entity(nil), entities...),
		Path:         Path{EntityType: entityType, ListKey: listKey},
		Position:     position,
		NewListState: ls,
		Overwrite:    overwrite,
	}
}

// FetchFailAction records a failed fetch.
type FetchFailAction struct {
	Path Path
	Err  error
}

func (FetchFailAction) Kind() Kind           { return KindFetchFail }
func (a FetchFailAction) EntityType() string { return a.Path.EntityType }
func (FetchFailAction) isAction()            {}

// EntitiesFetchFail ends the fetch lifecycle of a list with err.
func EntitiesFetchFail(entityType, listKey string, err error) FetchFailAction {
	return FetchFailAction{Path: Path{EntityType: entityType, ListKey: listKey}, Err: err}
}

// InvalidateAction flags a list as stale.
type InvalidateAction struct {
	Path Path
}

func (InvalidateAction) Kind() Kind           { return KindInvalidate }
func (a InvalidateAction) EntityType() string { return a.Path.EntityType }
func (InvalidateAction) isAction()            {}

// InvalidateEntityList marks a list stale without touching its ids or count.
func InvalidateEntityList(entityType, listKey string) InvalidateAction {
	return InvalidateAction{Path: Path{EntityType: entityType, ListKey: listKey}}
}

// Updater rewrites one stored entity. It must not mutate its argument.
type Updater func(Entity) Entity

// Transaction maps entity type to id to the updater applied to that entity.
type Transaction map[string]map[string]Updater

// TransactionAction rewrites existing entities of any number of types in one step.
type TransactionAction struct {
	Tx Transaction
}

func (TransactionAction) Kind() Kind         { return KindTransaction }
func (TransactionAction) EntityType() string { return "" }
func (TransactionAction) isAction()          {}

// EntitiesTransaction applies every updater in tx to its existing entity at once.
// It never changes list membership or counts.
func EntitiesTransaction(tx Transaction) TransactionAction {
	return TransactionAction{Tx: tx}
}
