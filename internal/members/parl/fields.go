package parl

// Field names of an extracted member profile.
const (
	FieldExternalID             = "parl_gc_id"
	FieldConstituencyExternalID = "parl_gc_constituency_id"
	FieldName                   = "name"
	FieldParty                  = "party"
	FieldProvince               = "province"
	FieldEmail                  = "email"
	FieldWebsite                = "website"
	FieldParliamentaryPhone     = "parliamentary_phone"
	FieldParliamentaryFax       = "parliamentary_fax"
	FieldPreferredLanguage      = "preferred_language"
	FieldConstituencyAddress    = "constituency_address"
	FieldConstituencyCity       = "constituency_city"
	FieldConstituencyPostalCode = "constituency_postal_code"
	FieldConstituencyPhone      = "constituency_phone"
	FieldConstituencyFax        = "constituency_fax"
)

// FieldNames lists every extracted field in a stable order.
var FieldNames = []string{
	FieldExternalID,
	FieldConstituencyExternalID,
	FieldName,
	FieldParty,
	FieldProvince,
	FieldEmail,
	FieldWebsite,
	FieldParliamentaryPhone,
	FieldParliamentaryFax,
	FieldPreferredLanguage,
	FieldConstituencyAddress,
	FieldConstituencyCity,
	FieldConstituencyPostalCode,
	FieldConstituencyPhone,
	FieldConstituencyFax,
}

// Fields is the flat result of extracting one member page. A nil pointer
// means the labeled node was not found.
type Fields struct {
	ExternalID             *string `json:"parl_gc_id"`
	ConstituencyExternalID *string `json:"parl_gc_constituency_id"`
	Name                   *string `json:"name"`
	Party                  *string `json:"party"`
	Province               *string `json:"province"`
	Email                  *string `json:"email"`
	Website                *string `json:"website"`
	ParliamentaryPhone     *string `json:"parliamentary_phone"`
	ParliamentaryFax       *string `json:"parliamentary_fax"`
	PreferredLanguage      *string `json:"preferred_language"`
	ConstituencyAddress    *string `json:"constituency_address"`
	ConstituencyCity       *string `json:"constituency_city"`
	ConstituencyPostalCode *string `json:"constituency_postal_code"`
	ConstituencyPhone      *string `json:"constituency_phone"`
	ConstituencyFax        *string `json:"constituency_fax"`
}

// Get returns the value of a named field. Unknown names report false.
func (f Fields) Get(name string) (*string, bool) {
	switch name {
	case FieldExternalID:
		return f.ExternalID, true
	case FieldConstituencyExternalID:
		return f.ConstituencyExternalID, true
	case FieldName:
		return f.Name, true
	case FieldParty:
		return f.Party, true
	case FieldProvince:
		return f.Province, true
	case FieldEmail:
		return f.Email, true
	case FieldWebsite:
		return f.Website, true
	case FieldParliamentaryPhone:
		return f.ParliamentaryPhone, true
	case FieldParliamentaryFax:
		return f.ParliamentaryFax, true
	case FieldPreferredLanguage:
		return f.PreferredLanguage, true
	case FieldConstituencyAddress:
		return f.ConstituencyAddress, true
	case FieldConstituencyCity:
		return f.ConstituencyCity, true
	case FieldConstituencyPostalCode:
		return f.ConstituencyPostalCode, true
	case FieldConstituencyPhone:
		return f.ConstituencyPhone, true
	case FieldConstituencyFax:
		return f.ConstituencyFax, true
	}
	return nil, false
}

// Present returns the names of the fields that were found.
func (f Fields) Present() []string {
	var out []string
	for _, name := range FieldNames {
		if v, _ := f.Get(name); v != nil {
			out = append(out, name)
		}
	}
	return out
}

// IsEmpty reports a total extraction failure: no labeled node matched.
func (f Fields) IsEmpty() bool {
	return len(f.Present()) == 0
}
