package romset

// ROM describes one member file of a game release as listed in a catalog.
type ROM struct {
	Name   string
	Size   int64
	CRC32  string
	MD5    string
	SHA1   string
}

// Entry is a catalog (DAT) game/ROM-set pair.
type Entry struct {
	// CatalogName is the name of the catalog file this entry came from,
	// used for the deterministic (catalog-name, entry-name) plan order.
	CatalogName string

	Name        string
	Description string
	Category    string

	// Parsed name tokens (Design: regions/languages/type/revision are
	// extracted once at index-build time, not re-parsed per selection).
	Regions   []string
	Languages []string
	Types     []string // e.g. "retail", "verified", "unlicensed", "bios", "device"
	Revision  string

	ROMs []ROM
}

// NormalizedName is the lowercase, tag-stripped, extension-stripped,
// whitespace-collapsed form used as a secondary match and sort key.
func (e Entry) NormalizedName() string {
	return NormalizeName(e.Name)
}

// Transformation identifies how a Candidate's chosen record must be
// brought into its final output form.
type Transformation uint8

const (
	AsIs Transformation = iota
	ReExtract
	ReZip
	ApplyPatch
)

// Candidate is a potential pairing of a scanned record with a catalog entry.
type Candidate struct {
	Entry          Entry
	Record         RawRecord
	Transformation Transformation

	// PatchPath is set iff Transformation == ApplyPatch.
	PatchPath string
	PatchKind string // "IPS", "BPS", "UPS"
}
