package schema

import (
	"fmt"
	"sort"
)

// ForeignKeyConstraint groups per-column KEY_COLUMN_USAGE rows into an ordered mapping.
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// ForeignKeyConstraints returns FK constraints for a table ordered by constraint name.
func ForeignKeyConstraints(table *Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	fks := append([]ForeignKey(nil), table.ForeignKeys...)
	keys := make(map[int]string, len(fks))
	for i, fk := range fks {
		key := fk.ConstraintName
		if key == "" {
			key = fmt.Sprintf("~unnamed_%03d_%s", i, fk.ColumnName)
		}
		keys[i] = key
	}
	order := make([]int, len(fks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := keys[order[a]], keys[order[b]]
		if ka != kb {
			return ka < kb
		}
		return fks[order[a]].OrdinalPosition < fks[order[b]].OrdinalPosition
	})

	var result []ForeignKeyConstraint
	index := make(map[string]int)
	for _, i := range order {
		fk := fks[i]
		pos, ok := index[keys[i]]
		if !ok {
			result = append(result, ForeignKeyConstraint{
				ConstraintName:  fk.ConstraintName,
				ReferencedTable: fk.ReferencedTable,
			})
			pos = len(result) - 1
			index[keys[i]] = pos
		}
		result[pos].ColumnNames = append(result[pos].ColumnNames, fk.ColumnName)
		result[pos].ReferencedColumns = append(result[pos].ReferencedColumns, fk.ReferencedColumn)
	}
	return result
}
