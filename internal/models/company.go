package models

// Profile is one company's profile.json document. Provider summary fields
// beyond the identity triplet are stored loosely so unknown keys written by
// earlier runs survive a rewrite.
type Profile map[string]interface{}

// IndexEntry is one row of companies/index.json.
type IndexEntry struct {
	Symbol  string  `json:"symbol"`
	Name    string  `json:"name"`
	Sector  string  `json:"sector"`
	Profile string  `json:"profile"`
	Logo    *string `json:"logo"`
	History string  `json:"history"`
	Market  *Market `json:"market"`
}

// SummaryFields is the allowlist of worker /summary fields merged into
// profiles. Everything else in the payload is ignored.
var SummaryFields = []string{
	"longName",
	"longBusinessSummary",
	"website",
	"irWebsite",
	"industryDisp",
	"beta",
	"recommendationMean",
	"auditRisk",
}
