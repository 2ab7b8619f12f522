package romset

// LinkMode identifies how Action{Kind: Link} should materialize a link.
type LinkMode uint8

const (
	LinkHard LinkMode = iota
	LinkSymbolic
	LinkReflink
)

func (m LinkMode) String() string {
	switch m {
	case LinkHard:
		return "hard"
	case LinkSymbolic:
		return "symbolic"
	case LinkReflink:
		return "reflink"
	default:
		return "unknown"
	}
}

// Kind identifies the variant of a plan Action.
type Kind uint8

const (
	ActionCopy Kind = iota
	ActionMove
	ActionLink
	ActionExtract
	ActionZipInto
	ActionPatch
	ActionTestOnly
	ActionEmitReport
	ActionEmitCatalog
	ActionEmitPlaylist
	ActionCleanDelete
)

func (k Kind) String() string {
	switch k {
	case ActionCopy:
		return "copy"
	case ActionMove:
		return "move"
	case ActionLink:
		return "link"
	case ActionExtract:
		return "extract"
	case ActionZipInto:
		return "zip"
	case ActionPatch:
		return "patch"
	case ActionTestOnly:
		return "test"
	case ActionEmitReport:
		return "report"
	case ActionEmitCatalog:
		return "catalog"
	case ActionEmitPlaylist:
		return "playlist"
	case ActionCleanDelete:
		return "clean"
	default:
		return "unknown"
	}
}

// CatalogKind distinguishes the two generated-catalog artifact shapes.
type CatalogKind uint8

const (
	CatalogDir2Dat CatalogKind = iota
	CatalogFixdat
)

// ZipMember is one file folded into a ZipInto action.
type ZipMember struct {
	Record    RawRecord
	EntryName string
}

// Action is a single leaf of the execution plan. Not every field is
// populated for every Kind; see the Kind-specific constructors in pkg/plan.
type Action struct {
	Kind Kind

	Source      RawRecord
	Destination string

	// Link-only.
	LinkMode LinkMode

	// Extract-only: InnerEntry is the archive member name; Source carries
	// the enclosing archive (ArchivePath/EntryName).
	InnerEntry string

	// ZipInto-only.
	ZipMembers []ZipMember

	// Patch-only.
	PatchPath string
	PatchKind string

	// EmitReport / EmitCatalog-only.
	Format      string // "json" (see SPEC_FULL.md Open Question resolution)
	CatalogKind CatalogKind

	// EmitPlaylist-only.
	PlaylistEntries []string

	// CatalogEntry is set whenever this action resulted from a matched
	// candidate, for plan-JSON diagnostics.
	CatalogEntry *Entry

	// Reason explains a demoted (no-op) action; empty for live actions.
	Reason string
}

// Live reports whether the action is a real write (as opposed to a
// collision-demoted no-op retained only for the Conflict diagnostic).
func (a Action) Live() bool {
	return a.Reason == ""
}
