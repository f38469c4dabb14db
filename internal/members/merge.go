package members

import (
	"net/url"
	"strings"
	"time"

	"dario.cat/mergo"
)

// Enrichment fields are never scraped, only filled by merge.
const (
	FieldDateOfBirth     = "date_of_birth"
	FieldPlaceOfBirth    = "place_of_birth"
	FieldWikipedia       = "wikipedia"
	FieldWikipediaRiding = "wikipedia_riding"
	FieldFacebook        = "facebook"
	FieldTwitter         = "twitter"
)

// Enrichment is the merge-only slice of a Member. A nil pointer is blank.
type Enrichment struct {
	DateOfBirth     *time.Time
	PlaceOfBirth    *string
	Wikipedia       *string
	WikipediaRiding *string
	Facebook        *string
	Twitter         *string
}

// MergeResult describes what a merge changed on the target.
type MergeResult struct {
	FilledFields   []string `json:"filled_fields"`
	ImageScheduled bool     `json:"image_scheduled"`
}

func (r MergeResult) Changed() bool {
	return len(r.FilledFields) > 0 || r.ImageScheduled
}

// Merger folds a duplicate's enrichment data into a target record.
type Merger struct {
	// ImageBaseURL resolves relative image references. Empty keeps them as is.
	ImageBaseURL string
}

// Merge uses a Merger with no image base URL.
func Merge(target, source *Member) MergeResult {
	return Merger{}.Merge(target, source)
}

// Merge fills every blank enrichment field on target from source and, when
// target still has the placeholder photo and source does not, schedules
// target to adopt source's image. Non-blank target values are never
// overwritten and source is never modified.
func (mg Merger) Merge(target, source *Member) MergeResult {
	dst := enrichmentOf(target)
	before := dst
	src := enrichmentOf(source)

	// dst holds only non-blank values or nil, so mergo fills exactly the nils.
	if err := mergo.Merge(&dst, src); err != nil {
		dst = fillBlank(before, src)
	}

	var res MergeResult
	fill := func(name string, was, now bool) {
		if !was && now {
			res.FilledFields = append(res.FilledFields, name)
		}
	}
	fill(FieldDateOfBirth, before.DateOfBirth != nil, dst.DateOfBirth != nil)
	fill(FieldPlaceOfBirth, before.PlaceOfBirth != nil, dst.PlaceOfBirth != nil)
	fill(FieldWikipedia, before.Wikipedia != nil, dst.Wikipedia != nil)
	fill(FieldWikipediaRiding, before.WikipediaRiding != nil, dst.WikipediaRiding != nil)
	fill(FieldFacebook, before.Facebook != nil, dst.Facebook != nil)
	fill(FieldTwitter, before.Twitter != nil, dst.Twitter != nil)

	if len(res.FilledFields) > 0 {
		target.DateOfBirth = dst.DateOfBirth
		target.PlaceOfBirth = keepOrFill(target.PlaceOfBirth, dst.PlaceOfBirth)
		target.Wikipedia = keepOrFill(target.Wikipedia, dst.Wikipedia)
		target.WikipediaRiding = keepOrFill(target.WikipediaRiding, dst.WikipediaRiding)
		target.Facebook = keepOrFill(target.Facebook, dst.Facebook)
		target.Twitter = keepOrFill(target.Twitter, dst.Twitter)
	}

	if target.HasDefaultImage() && target.PendingImageURL == "" && !source.HasDefaultImage() {
		target.PendingImageURL = mg.resolveImage(source.ImageRef)
		res.ImageScheduled = true
	}

	return res
}

// enrichmentOf copies m's enrichment values, dropping blank ones.
func enrichmentOf(m *Member) Enrichment {
	e := Enrichment{
		PlaceOfBirth:    cloneNonBlank(m.PlaceOfBirth),
		Wikipedia:       cloneNonBlank(m.Wikipedia),
		WikipediaRiding: cloneNonBlank(m.WikipediaRiding),
		Facebook:        cloneNonBlank(m.Facebook),
		Twitter:         cloneNonBlank(m.Twitter),
	}
	if m.DateOfBirth != nil && !m.DateOfBirth.IsZero() {
		d := *m.DateOfBirth
		e.DateOfBirth = &d
	}
	return e
}

func cloneNonBlank(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := *s
	return &v
}

// fillBlank fills each nil field of dst from src, field by field.
func fillBlank(dst, src Enrichment) Enrichment {
	if dst.DateOfBirth == nil {
		dst.DateOfBirth = src.DateOfBirth
	}
	dst.PlaceOfBirth = keepOrFill(dst.PlaceOfBirth, src.PlaceOfBirth)
	dst.Wikipedia = keepOrFill(dst.Wikipedia, src.Wikipedia)
	dst.WikipediaRiding = keepOrFill(dst.WikipediaRiding, src.WikipediaRiding)
	dst.Facebook = keepOrFill(dst.Facebook, src.Facebook)
	dst.Twitter = keepOrFill(dst.Twitter, src.Twitter)
	return dst
}

// keepOrFill leaves a non-blank current value untouched.
func keepOrFill(current, merged *string) *string {
	if current != nil && strings.TrimSpace(*current) != "" {
		return current
	}
	return merged
}

func (mg Merger) resolveImage(ref string) string {
	ref = strings.TrimSpace(ref)
	if mg.ImageBaseURL == "" {
		return ref
	}
	base, err := url.Parse(mg.ImageBaseURL)
	if err != nil {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(rel).String()
}
