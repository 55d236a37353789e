package rules

// Category groups denied functions by why they have no flat SQL equivalent.
type Category string

// Denylist categories.
const (
	TableGeneration Category = "table generation"
	PathTraversal   Category = "path traversal"
	RowContext      Category = "row context"
	FilterContext   Category = "filter-context modification"
	Iterator        Category = "iterator"
	Configured      Category = "configured"
)

// DenyEntry is one denied function.
type DenyEntry struct {
	Name     string
	Category Category
}

var denied = map[Category][]string{
	TableGeneration: {
		"GENERATE", "GENERATEALL", "SUMMARIZE", "SUMMARIZECOLUMNS", "ADDCOLUMNS",
		"SELECTCOLUMNS", "UNION", "INTERSECT", "EXCEPT", "CROSSJOIN",
		"NATURALINNERJOIN", "NATURALLEFTOUTERJOIN", "GENERATESERIES", "CALENDAR",
		"CALENDARAUTO", "DATATABLE", "ROW", "TOPN", "RELATEDTABLE", "VALUES", "DISTINCT",
	},
	PathTraversal: {
		"PATH", "PATHITEM", "PATHITEMREVERSE", "PATHLENGTH", "PATHCONTAINS",
	},
	RowContext: {
		"EARLIER", "EARLIEST",
	},
	Iterator: {
		"SUMX", "AVERAGEX", "MINX", "MAXX", "COUNTX", "COUNTAX", "RANKX",
		"CONCATENATEX", "PRODUCTX",
	},
	FilterContext: {
		"ALL", "ALLEXCEPT", "ALLSELECTED", "ALLNOBLANKROW", "REMOVEFILTERS",
		"KEEPFILTERS", "USERELATIONSHIP", "CROSSFILTER",
	},
}

func builtinDenylist() []DenyEntry {
	var out []DenyEntry
	for c, names := range denied {
		for _, name := range names {
			out = append(out, DenyEntry{Name: name, Category: c})
		}
	}
	return out
}
