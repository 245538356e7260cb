package export

import (
	"embed"
	"fmt"
	"sort"
)

const (
	tableReplicationControl = "replication_control"
	tablePending            = "dbmirror_pending"
	tablePendingData        = "dbmirror_pendingdata"
	tableEditor             = "editor"
	tableEditorSanitised    = "editor_sanitised"
)

// License identifies the terms a bundle is distributed under. Higher values are more restrictive.
type License int

const (
	LicensePublicDomain License = iota
	LicenseCCByNCSA
	LicenseRestricted
)

func (l License) String() string {
	switch l {
	case LicensePublicDomain:
		return "public_domain"
	case LicenseCCByNCSA:
		return "cc_by_nc_sa"
	case LicenseRestricted:
		return "restricted"
	default:
		return fmt.Sprintf("license(%d)", int(l))
	}
}

//go:embed licenses/*.txt
var licenseFiles embed.FS

// Text returns the COPYING contents for the license.
func (l License) Text() ([]byte, error) {
	return licenseFiles.ReadFile("licenses/" + l.String() + ".txt")
}

func readmeText() ([]byte, error) {
	return licenseFiles.ReadFile("licenses/README.txt")
}

// Group is a set of tables archived into one bundle.
type Group struct {
	Name    string
	Tables  []string
	License License
}

// BundleName returns the archive file name of the group.
func (g Group) BundleName() string {
	if g.Name == "" {
		return "mbdump.tar.bz2"
	}
	return fmt.Sprintf("mbdump-%s.tar.bz2", g.Name)
}

// Private reports whether the group holds restricted data.
func (g Group) Private() bool {
	return g.License == LicenseRestricted
}

// Groups lists every exported table group; the unnamed group is the core dump.
var Groups = []Group{
	{Name: "", License: LicensePublicDomain, Tables: []string{
		"artist", "artist_credit", "artist_credit_name",
		"release_group", "release", "medium_format", "medium",
		"recording", "track", "cdtoc", "medium_cdtoc",
		tableReplicationControl,
	}},
	{Name: "derived", License: LicenseCCByNCSA, Tables: []string{"release_meta", "release_group_meta"}},
	{Name: "stats", License: LicenseCCByNCSA, Tables: []string{"statistic"}},
	{Name: "editor", License: LicenseCCByNCSA, Tables: []string{tableEditorSanitised}},
	{Name: "edit", License: LicenseCCByNCSA, Tables: []string{"edit", "edit_note"}},
	{Name: "private", License: LicenseRestricted, Tables: []string{"editor_collection", "editor_collection_release"}},
	{Name: "cdstubs", License: LicensePublicDomain, Tables: []string{"release_raw", "cdtoc_raw", "track_raw"}},
	{Name: "cover-art-archive", License: LicenseCCByNCSA, Tables: []string{"cover_art", "art_type", "cover_art_type"}},
	{Name: "wikidocs", License: LicenseCCByNCSA, Tables: []string{"wikidocs_index"}},
	{Name: "documentation", License: LicenseCCByNCSA, Tables: []string{"link_type_documentation"}},
}

// ReplicationTables are the staging tables dumped into a replication packet.
var ReplicationTables = []string{tablePending, tablePendingData}

// ignoredTables exist in the schema but are never exported.
var ignoredTables = map[string]struct{}{
	"db_migrations": {},
}

// AllTables returns every table of every group in export order.
func AllTables() []string {
	tables := make([]string, 0, 32)
	for _, group := range Groups {
		tables = append(tables, group.Tables...)
	}
	return tables
}

// LicenseForTable returns the license of the group owning table. Unknown tables are treated as restricted.
func LicenseForTable(table string) License {
	if table == tableEditor {
		table = tableEditorSanitised
	}
	for _, group := range Groups {
		for _, candidate := range group.Tables {
			if candidate == table {
				return group.License
			}
		}
	}
	return LicenseRestricted
}

// MostRestrictiveLicense returns the strictest license among tables; no tables means public domain.
func MostRestrictiveLicense(tables []string) License {
	result := LicensePublicDomain
	for _, table := range tables {
		if license := LicenseForTable(table); license > result {
			result = license
		}
	}
	return result
}

// SelectTables narrows the export list to the requested tables, keeping export order.
// The replication control table is always included.
func SelectTables(filter []string) ([]string, error) {
	all := AllTables()
	if len(filter) == 0 {
		return all, nil
	}
	known := make(map[string]struct{}, len(all))
	for _, table := range all {
		known[table] = struct{}{}
	}
	wanted := map[string]struct{}{tableReplicationControl: {}}
	var unknown []string
	for _, table := range filter {
		if table == tableEditor {
			table = tableEditorSanitised
		}
		if _, ok := known[table]; !ok {
			unknown = append(unknown, table)
			continue
		}
		wanted[table] = struct{}{}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown tables %v", ErrInvalidOptions, unknown)
	}
	selected := make([]string, 0, len(wanted))
	for _, table := range all {
		if _, ok := wanted[table]; ok {
			selected = append(selected, table)
		}
	}
	return selected, nil
}
