package manifest

import (
	"iter"
	"sort"

	"github.com/TheBitDrifter/mask"
	iter_util "github.com/TheBitDrifter/util/iter"
)

var _ Storage = &storage{}

type storage struct {
	locked     bool
	nextIndex  uint32
	schema     *schema
	archetypes *archetypes
	opQueue    opQueue
	records    []entityRecord
	index      map[Entity][]TableRecord
}

type entityRecord struct {
	table      *tbl
	row        int
	generation uint16
	alive      bool
}

type tbl struct {
	ids      []Entity
	entities []Entity
}

func (t *tbl) Type() []Entity     { return t.ids }
func (t *tbl) Entities() []Entity { return t.entities }
func (t *tbl) Count() int         { return len(t.entities) }

func (t *tbl) Contains(id Entity) bool {
	id = normalizeID(id)
	i := sort.Search(len(t.ids), func(i int) bool { return t.ids[i] >= id })
	return i < len(t.ids) && t.ids[i] == id
}

// ComponentIDs iterates the table's component ids in type order.
func (t *tbl) ComponentIDs() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for _, id := range t.ids {
			if !yield(id) {
				return
			}
		}
	}
}

// schema assigns each distinct component id a stable row index. Archetypes
// are keyed by the mask of their type's row indices.
type schema struct {
	rows map[Entity]uint32
}

func newSchema() *schema {
	return &schema{rows: make(map[Entity]uint32)}
}

func (s *schema) register(id Entity) uint32 {
	if row, ok := s.rows[id]; ok {
		return row
	}
	row := uint32(len(s.rows))
	s.rows[id] = row
	return row
}

type archetypes struct {
	asSlice          []*tbl
	idsGroupedByMask map[mask.Mask]int
}

func newStorage() Storage {
	sto := &storage{
		nextIndex: uint32(builtinCount) + 1,
		schema:    newSchema(),
		archetypes: &archetypes{
			idsGroupedByMask: make(map[mask.Mask]int),
		},
		opQueue: newOpQueue(),
		index:   make(map[Entity][]TableRecord),
		records: make([]entityRecord, builtinCount+1),
	}
	for i := 1; i <= builtinCount; i++ {
		sto.records[i].alive = true
	}
	// IsA carries its builtin attributes as ordinary components.
	for _, attr := range []Entity{Transitive, TransitiveSelf, Final} {
		if err := sto.Add(IsA, attr); err != nil {
			panic(err)
		}
	}
	return sto
}

func (sto *storage) record(e Entity) (*entityRecord, error) {
	if !sto.IsAlive(e) {
		return nil, DeadEntityError{Entity: e}
	}
	return &sto.records[e.Index()], nil
}

func (sto *storage) EntityRecord(e Entity) (Table, int, bool) {
	if !sto.IsAlive(e) {
		return nil, 0, false
	}
	rec := &sto.records[e.Index()]
	if rec.table == nil {
		return nil, 0, false
	}
	return rec.table, rec.row, true
}

func (sto *storage) Tables(id Entity) []TableRecord {
	return sto.index[normalizeID(id)]
}

func (sto *storage) GetAlive(e Entity) Entity {
	if e == 0 || e.IsPair() {
		return 0
	}
	idx := e.Index()
	if idx == 0 || idx >= sto.nextIndex {
		return 0
	}
	if int(idx) <= builtinCount {
		return Entity(idx)
	}
	rec := &sto.records[idx]
	if !rec.alive {
		return 0
	}
	return makeEntity(idx, rec.generation)
}

func (sto *storage) IsAlive(e Entity) bool {
	if e == 0 || e.IsPair() {
		return false
	}
	idx := e.Index()
	if idx == 0 || idx >= sto.nextIndex {
		return false
	}
	if int(idx) <= builtinCount {
		return true
	}
	rec := &sto.records[idx]
	return rec.alive && rec.generation == e.Generation()
}

func (sto *storage) IsValid(e Entity) bool {
	return sto.IsAlive(e)
}

func (sto *storage) HasAttribute(pred, attr Entity) bool {
	live := sto.GetAlive(pred.Lo())
	if live == 0 {
		return false
	}
	rec := &sto.records[live.Index()]
	return rec.table != nil && rec.table.Contains(attr)
}

func (sto *storage) Locked() bool {
	return sto.locked
}

func (sto *storage) Lock() {
	sto.locked = true
}

func (sto *storage) Unlock() {
	sto.locked = false
	err := sto.processOperationQueue()
	if err != nil {
		panic(err)
	}
}

func (sto *storage) NewEntity(ids ...Entity) (Entity, error) {
	entities, err := sto.NewEntities(1, ids...)
	if err != nil {
		return 0, err
	}
	return entities[0], nil
}

func (sto *storage) NewEntities(n int, ids ...Entity) ([]Entity, error) {
	if sto.locked {
		return nil, LockedStorageError{}
	}
	entityType := normalizeType(ids)
	entityArchetype := sto.getOrCreateArchetype(entityType)

	entities := make([]Entity, n)
	for i := range entities {
		e := sto.allocEntity()
		rec := &sto.records[e.Index()]
		rec.table = entityArchetype
		rec.row = len(entityArchetype.entities)
		entityArchetype.entities = append(entityArchetype.entities, e)
		entities[i] = e
	}
	return entities, nil
}

func (sto *storage) allocEntity() Entity {
	idx := sto.nextIndex
	sto.nextIndex++
	sto.records = append(sto.records, entityRecord{alive: true})
	return makeEntity(idx, 0)
}

func (sto *storage) Add(e Entity, id Entity) error {
	if sto.locked {
		return LockedStorageError{}
	}
	rec, err := sto.record(e)
	if err != nil {
		return err
	}
	id = normalizeID(id)
	if rec.table != nil && rec.table.Contains(id) {
		return ComponentExistsError{ID: id}
	}

	var originIDs []Entity
	if rec.table != nil {
		originIDs = iter_util.Collect(rec.table.ComponentIDs())
	}
	destType := normalizeType(append(originIDs, id))
	dest := sto.getOrCreateArchetype(destType)
	sto.moveEntity(e, rec, dest)
	return nil
}

func (sto *storage) Remove(e Entity, id Entity) error {
	if sto.locked {
		return LockedStorageError{}
	}
	rec, err := sto.record(e)
	if err != nil {
		return err
	}
	id = normalizeID(id)
	if rec.table == nil || !rec.table.Contains(id) {
		return ComponentNotFoundError{ID: id}
	}

	originIDs := iter_util.Collect(rec.table.ComponentIDs())
	destType := make([]Entity, 0, len(originIDs)-1)
	for _, origin := range originIDs {
		if origin != id {
			destType = append(destType, origin)
		}
	}
	dest := sto.getOrCreateArchetype(destType)
	sto.moveEntity(e, rec, dest)
	return nil
}

func (sto *storage) Destroy(entities ...Entity) error {
	if sto.locked {
		return LockedStorageError{}
	}
	for _, e := range entities {
		rec, err := sto.record(e)
		if err != nil {
			return err
		}
		sto.detachEntity(e, rec)
		rec.table = nil
		rec.row = 0
		rec.alive = false
		rec.generation++
	}
	return nil
}

// detachEntity swap-removes the entity's row, keeping the displaced
// entity's record current.
func (sto *storage) detachEntity(e Entity, rec *entityRecord) {
	src := rec.table
	if src == nil {
		return
	}
	last := len(src.entities) - 1
	if rec.row != last {
		moved := src.entities[last]
		src.entities[rec.row] = moved
		sto.records[moved.Index()].row = rec.row
	}
	src.entities = src.entities[:last]
}

func (sto *storage) moveEntity(e Entity, rec *entityRecord, dest *tbl) {
	sto.detachEntity(e, rec)
	rec.table = dest
	rec.row = len(dest.entities)
	dest.entities = append(dest.entities, e)
}

func (sto *storage) getOrCreateArchetype(entityType []Entity) *tbl {
	var entityMask mask.Mask
	for _, id := range entityType {
		entityMask.Mark(sto.schema.register(id))
	}
	if id, found := sto.archetypes.idsGroupedByMask[entityMask]; found {
		return sto.archetypes.asSlice[id-1]
	}
	created := &tbl{ids: entityType}
	sto.archetypes.asSlice = append(sto.archetypes.asSlice, created)
	sto.archetypes.idsGroupedByMask[entityMask] = len(sto.archetypes.asSlice)
	sto.registerTable(created)
	return created
}

// registerTable indexes the table under each component id and its wildcard
// variants. Only the first matching column per pattern is recorded; later
// occurrences are found by scanning forward from it.
func (sto *storage) registerTable(t *tbl) {
	for col, id := range t.ids {
		for _, pattern := range idPatterns(id) {
			records := sto.index[pattern]
			if len(records) > 0 && records[len(records)-1].Table == Table(t) {
				continue
			}
			sto.index[pattern] = append(records, TableRecord{Table: t, Column: col})
		}
	}
}

func idPatterns(id Entity) []Entity {
	if id.IsPair() {
		return []Entity{
			id,
			Pair(id.Pred(), Wildcard),
			Pair(Wildcard, id.Obj()),
			Pair(Wildcard, Wildcard),
			Wildcard,
		}
	}
	return []Entity{id, Wildcard}
}

// normalizeType sorts and deduplicates a component id list, stripping
// generations.
func normalizeType(ids []Entity) []Entity {
	out := make([]Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, normalizeID(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, id := range out {
		if i == 0 || id != out[n-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}
