package parl

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/EmpoweredVote/mp-sync/internal/textnorm"
)

var tracer = otel.Tracer("mpsync/members/parl")

// label binds one profile field to the element that carries it. Upstream
// renders ASP.NET control ids ("ctl00_cphContent_lblMPNameData"), so nodes
// are matched on the id suffix. A bare semantic id such as id="name" is not
// a label and matches nothing.
type label struct {
	suffix string
	clean  func(string) string
	set    func(*Fields, *string)
}

var labels = []label{
	{suffix: "_lblParlGcIdData", set: func(f *Fields, v *string) { f.ExternalID = v }},
	{suffix: "_lblConstituencyIdData", set: func(f *Fields, v *string) { f.ConstituencyExternalID = v }},
	{suffix: "_lblMPNameData", clean: textnorm.StripHonorific, set: func(f *Fields, v *string) { f.Name = v }},
	{suffix: "_lblCaucusData", set: func(f *Fields, v *string) { f.Party = v }},
	{suffix: "_lblProvinceData", clean: textnorm.StripDiacritics, set: func(f *Fields, v *string) { f.Province = v }},
	{suffix: "_hlEMail", set: func(f *Fields, v *string) { f.Email = v }},
	{suffix: "_hlWebSite", set: func(f *Fields, v *string) { f.Website = v }},
	{suffix: "_lblTelephoneData", set: func(f *Fields, v *string) { f.ParliamentaryPhone = v }},
	{suffix: "_lblFaxData", set: func(f *Fields, v *string) { f.ParliamentaryFax = v }},
	{suffix: "_lblPrefLanguageData", set: func(f *Fields, v *string) { f.PreferredLanguage = v }},
	{suffix: "_lblConstituencyAddressData", set: func(f *Fields, v *string) { f.ConstituencyAddress = v }},
	{suffix: "_lblConstituencyCityData", set: func(f *Fields, v *string) { f.ConstituencyCity = v }},
	{suffix: "_lblConstituencyPostalCodeData", set: func(f *Fields, v *string) { f.ConstituencyPostalCode = v }},
	{suffix: "_lblConstituencyTelephoneData", set: func(f *Fields, v *string) { f.ConstituencyPhone = v }},
	{suffix: "_lblConstituencyFaxData", set: func(f *Fields, v *string) { f.ConstituencyFax = v }},
}

// Extract parses a member profile page.
func Extract(ctx context.Context, r io.Reader) (Fields, error) {
	_, span := tracer.Start(ctx, "parl.Extract")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse html")
		return Fields{}, &ParseError{Err: err}
	}

	fields := ExtractDocument(doc)
	span.SetAttributes(attribute.Int("fields_found", len(fields.Present())))
	return fields, nil
}

// ExtractBytes parses an in-memory page. Parsing a byte slice cannot fail.
func ExtractBytes(raw []byte) Fields {
	fields, _ := Extract(context.Background(), bytes.NewReader(raw))
	return fields
}

// ExtractDocument pulls every labeled field out of a parsed page.
func ExtractDocument(doc *goquery.Document) Fields {
	var fields Fields

	for _, l := range labels {
		sel := doc.Find(`[id$="` + l.suffix + `"]`).First()
		if sel.Length() == 0 {
			continue
		}
		text := nodeText(sel)
		if l.clean != nil {
			text = textnorm.CollapseSpace(l.clean(text))
		}
		if text == "" {
			continue
		}
		l.set(&fields, &text)
	}

	// Older page revisions carry the ids only in links.
	if fields.ExternalID == nil {
		if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
			fields.ExternalID = keyParam(href)
		}
	}
	if fields.ConstituencyExternalID == nil {
		if href, ok := doc.Find(`a[id$="_hlConstituency"]`).Attr("href"); ok {
			fields.ConstituencyExternalID = keyParam(href)
		}
	}

	return fields
}

func nodeText(sel *goquery.Selection) string {
	text := textnorm.CollapseSpace(sel.Text())
	if text != "" || !sel.Is("a") {
		return text
	}
	href, _ := sel.Attr("href")
	return textnorm.CollapseSpace(strings.TrimPrefix(href, "mailto:"))
}

func keyParam(href string) *string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil
	}
	key := strings.TrimSpace(u.Query().Get("Key"))
	if key == "" {
		return nil
	}
	return &key
}

// ExtractMemberIDs returns the distinct Key values of profile links on a
// directory listing page, in document order. profilePath is the profile
// page path; only links to that page are considered.
func ExtractMemberIDs(doc *goquery.Document, profilePath string) []string {
	page := strings.ToLower(path.Base(profilePath))
	seen := make(map[string]struct{})
	var ids []string

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if strings.ToLower(path.Base(u.Path)) != page {
			return
		}
		key := keyParam(href)
		if key == nil {
			return
		}
		if _, dup := seen[*key]; dup {
			return
		}
		seen[*key] = struct{}{}
		ids = append(ids, *key)
	})

	return ids
}
