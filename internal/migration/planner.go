package migration

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Command selects which planning rule Plan applies.
type Command string

const (
	// CommandMigrate runs every pending migration, ascending.
	CommandMigrate Command = "migrate"
	// CommandMigrateUntilJustBefore runs every pending migration with id
	// strictly less than Target, ascending.
	CommandMigrateUntilJustBefore Command = "migrate-until-just-before"
	// CommandUp runs exactly the ids named in Targets, in the order
	// given, skipping ids already completed.
	CommandUp Command = "up"
	// CommandDown reverts exactly the ids named in Targets, in the order
	// given, skipping ids not completed.
	CommandDown Command = "down"
	// CommandRollback reverts the most recently applied migration.
	CommandRollback Command = "rollback"
	// CommandRollbackUntilJustAfter reverts every completed migration
	// with id strictly greater than Target, descending.
	CommandRollbackUntilJustAfter Command = "rollback-until-just-after"
	// CommandReset reverts every completed migration, descending, then
	// re-runs migrate: the full set, ascending, since everything is now
	// pending.
	CommandReset Command = "reset"
)

// WorkItem is one step of a plan: a descriptor and the direction to run
// it in.
type WorkItem struct {
	Descriptor Descriptor
	Direction  Direction
}

// Request parameterizes Plan. Targets is used by CommandUp/CommandDown;
// Target is used by the until-just-before/until-just-after variants.
type Request struct {
	Command Command
	Targets []int64
	Target  int64
}

// Plan turns a Request into an ordered list of WorkItems given the full
// discovered set and the ids already recorded as completed. It performs no
// I/O; Store.step re-checks completion state under the reservation as it
// goes, since another actor's concurrent run can invalidate a stale plan
// mid-execution. log is used only to record ids named explicitly
// (CommandUp/CommandDown) that Discovery never produced; a nil log is
// fine, and Plan never fails because of an unknown id.
func Plan(req Request, set Set, completed []int64, log *zap.Logger) ([]WorkItem, error) {
	done := toSet(completed)

	switch req.Command {
	case CommandMigrate:
		return planAscending(set, done, func(int64) bool { return true }), nil

	case CommandMigrateUntilJustBefore:
		return planAscending(set, done, func(id int64) bool { return id < req.Target }), nil

	case CommandUp:
		return planExplicit(set, done, req.Targets, Up, log), nil

	case CommandDown:
		return planExplicit(set, done, req.Targets, Down, log), nil

	case CommandRollback:
		return planLastCompleted(set, done)

	case CommandRollbackUntilJustAfter:
		return planDescending(set, done, func(id int64) bool { return id > req.Target }), nil

	case CommandReset:
		// Revert everything completed, descending, then migrate the full
		// set back in, ascending: every id is pending again once the
		// downs above have run.
		downs := planDescending(set, done, func(int64) bool { return true })
		ups := planAscending(set, nil, func(int64) bool { return true })
		return append(downs, ups...), nil

	default:
		return nil, fmt.Errorf("migration: unknown command %q", req.Command)
	}
}

func toSet(ids []int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func planAscending(set Set, done map[int64]struct{}, include func(int64) bool) []WorkItem {
	var items []WorkItem
	for _, id := range set.SortedIDs() {
		if _, ok := done[id]; ok {
			continue
		}
		if !include(id) {
			continue
		}
		items = append(items, WorkItem{Descriptor: set[id], Direction: Up})
	}
	return items
}

func planDescending(set Set, done map[int64]struct{}, include func(int64) bool) []WorkItem {
	ids := completedSortedDescending(set, done)
	var items []WorkItem
	for _, id := range ids {
		if !include(id) {
			continue
		}
		items = append(items, WorkItem{Descriptor: set[id], Direction: Down})
	}
	return items
}

func planLastCompleted(set Set, done map[int64]struct{}) ([]WorkItem, error) {
	ids := completedSortedDescending(set, done)
	if len(ids) == 0 {
		return nil, nil
	}
	return []WorkItem{{Descriptor: set[ids[0]], Direction: Down}}, nil
}

func completedSortedDescending(set Set, done map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(done))
	for id := range done {
		if _, ok := set[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids
}

// planExplicit builds the work list for CommandUp/CommandDown. An id named
// in targets that Discovery never produced is logged and skipped rather
// than failing the whole command.
func planExplicit(set Set, done map[int64]struct{}, targets []int64, dir Direction, log *zap.Logger) []WorkItem {
	items := make([]WorkItem, 0, len(targets))
	for _, id := range targets {
		d, ok := set[id]
		if !ok {
			if log != nil {
				log.Warn("migration id not found in discovered set, skipping",
					zap.Int64("id", id), zap.String("direction", string(dir)))
			}
			continue
		}
		_, isDone := done[id]
		if dir == Up && isDone {
			continue
		}
		if dir == Down && !isDone {
			continue
		}
		items = append(items, WorkItem{Descriptor: d, Direction: dir})
	}
	return items
}

// Pending returns the ids in set not present in completed, ascending.
func Pending(set Set, completed []int64) []int64 {
	done := toSet(completed)
	var ids []int64
	for _, id := range set.SortedIDs() {
		if _, ok := done[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Applied returns the ids in completed that are also present in set,
// ascending - the completed list as known to the currently discovered
// migration set.
func Applied(set Set, completed []int64) []int64 {
	done := toSet(completed)
	var ids []int64
	for _, id := range set.SortedIDs() {
		if _, ok := done[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
