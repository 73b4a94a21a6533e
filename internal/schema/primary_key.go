package schema

// PrimaryKeyColumns returns the primary key columns in declaration order.
func PrimaryKeyColumns(table *Table) []Column {
	var cols []Column
	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col)
		}
	}
	return cols
}

// PrimaryKeyNames returns the primary key column names in declaration order.
func PrimaryKeyNames(table *Table) []string {
	cols := PrimaryKeyColumns(table)
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names
}
