// Package normalize turns raw API payloads into persisted records. All
// functions are pure transformations: no I/O, no panics on malformed input.
package normalize

import (
	"encoding/json"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/weapply/jobharvest/internal/jobsearch"
	"github.com/weapply/jobharvest/internal/model"
)

var (
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	multiSpaceRe = regexp.MustCompile(` +`)
	multiLineRe  = regexp.MustCompile(`\n\s*\n`)
	numberRe     = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
	phoneCharRe  = regexp.MustCompile(`[^\d+\-()\s]`)
	spaceRunRe   = regexp.MustCompile(`\s+`)
)

// StripHTML reduces rich-text markup to plain text: script/style subtrees
// are dropped, entities decoded, whitespace collapsed. A document that fails
// to parse falls back to bare tag removal.
func StripHTML(markup string) string {
	if markup == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return strings.TrimSpace(tagRe.ReplaceAllString(markup, ""))
	}
	doc.Find("script, style").Remove()
	text := doc.Text()

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		for _, chunk := range strings.Split(strings.TrimSpace(line), "  ") {
			if chunk = strings.TrimSpace(chunk); chunk != "" {
				lines = append(lines, chunk)
			}
		}
	}
	text = strings.Join(lines, "\n")
	text = html.UnescapeString(text)
	text = multiLineRe.ReplaceAllString(text, "\n\n")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ParseViewCount coerces the view-count field, which arrives as a bare
// number, a numeric string, or shorthand like "1.2K". Unparseable input
// yields 0 and ok=false so the caller can log a warning.
func ParseViewCount(raw json.RawMessage) (int, bool) {
	s := rawToString(raw)
	if s == "" {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "K") || strings.HasSuffix(s, "k") {
		base, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil {
			return 0, false
		}
		return int(base * 1000), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// ParseSalary extracts a numeric amount from free-text salary while keeping
// the original text. Missing or non-numeric input leaves the amount unset.
func ParseSalary(raw json.RawMessage) (*float64, string) {
	text := strings.TrimSpace(rawToString(raw))
	if text == "" || text == "0" {
		return nil, text
	}
	m := numberRe.FindString(strings.ReplaceAll(text, ",", ""))
	if m == "" {
		return nil, text
	}
	amount, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil, text
	}
	return &amount, text
}

// FormatPhone strips decoration from a phone number, keeping digits and the
// few separator characters that carry meaning.
func FormatPhone(phone string) string {
	if phone == "" {
		return ""
	}
	cleaned := phoneCharRe.ReplaceAllString(strings.TrimSpace(phone), "")
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(cleaned, " "))
}

// Coordinates converts the payload lat/lng into optional values; zero is
// treated as absent since the API uses it as a placeholder.
func Coordinates(c jobsearch.CoordinatesPayload) (lat, lng *float64) {
	if c.Lat != 0 {
		v := c.Lat
		lat = &v
	}
	if c.Lng != 0 {
		v := c.Lng
		lng = &v
	}
	return lat, lng
}

// ParseTimestamp parses the API's ISO-8601 timestamps. Returns nil on
// missing or malformed input.
func ParseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// Warning records a tolerated normalization anomaly for the caller to log.
type Warning struct {
	Field string
	Value string
}

// BuildRecord flattens a raw detail payload into the parent row plus child
// collections, each tagged with the parent id. listingViewCount overrides
// the detail payload's count when present, matching what the index page
// showed at fetch time.
func BuildRecord(payload *jobsearch.JobPayload, listingViewCount json.RawMessage) (model.Record, []Warning) {
	var warnings []Warning

	viewRaw := payload.ViewCount
	if len(listingViewCount) > 0 && string(listingViewCount) != "null" {
		viewRaw = listingViewCount
	}
	viewCount, ok := ParseViewCount(viewRaw)
	if !ok && len(viewRaw) > 0 && string(viewRaw) != "null" {
		warnings = append(warnings, Warning{Field: "view_count", Value: rawToString(viewRaw)})
	}

	salaryAmount, salaryText := ParseSalary(payload.Salary)
	lat, lng := Coordinates(payload.Company.Coordinates)

	job := model.Job{
		ID:         payload.ID,
		Title:      payload.Title,
		Slug:       payload.Slug,
		IsNew:      payload.IsNew,
		IsFavorite: payload.IsFavorite,
		IsVip:      payload.IsVip,
		CreatedAt:  ParseTimestamp(payload.CreatedAt),
		DeadlineAt: ParseTimestamp(payload.DeadlineAt),

		SalaryAmount: salaryAmount,
		SalaryText:   salaryText,
		ViewCount:    viewCount,
		Phone:        FormatPhone(payload.Phone),
		HideCompany:  payload.HideCompany,

		CompanyID:           payload.Company.ID,
		CompanyTitle:        payload.Company.Title,
		CompanySlug:         payload.Company.Slug,
		CompanyLogo:         payload.Company.Logo,
		CompanyLogoMini:     payload.Company.LogoMini,
		CompanyFirstChar:    payload.Company.FirstChar,
		CompanyHasStory:     payload.Company.HasStory,
		CompanySummary:      payload.Company.Summary,
		CompanyText:         StripHTML(payload.Company.Text),
		CompanyAddress:      payload.Company.Address,
		CompanyCover:        payload.Company.Cover,
		CompanyVacancyCount: payload.VacancyCount,
		CompanyLat:          lat,
		CompanyLng:          lng,

		CategoryID:        payload.Category.ID,
		CategoryTitle:     payload.Category.Title,
		CategoryImageMini: payload.Category.ImageMini,

		TextContent:      payload.Text,
		TextContentClean: StripHTML(payload.Text),
		RequestType:      payload.RequestType,
		DirectApply:      payload.DirectApply,
		ApplyLink:        payload.ApplyLink,
		HasCompanyInfo:   payload.HasCompanyInfo,
	}

	return model.Record{
		Job:      job,
		Children: buildChildren(payload),
	}, warnings
}

func buildChildren(payload *jobsearch.JobPayload) model.Children {
	var children model.Children
	jobID := payload.ID

	for _, phone := range payload.Company.Phones {
		if cleaned := FormatPhone(phone); cleaned != "" {
			children.Phones = append(children.Phones, model.Phone{JobID: jobID, Phone: cleaned})
		}
	}
	for _, site := range payload.Company.Sites {
		if site.URL == "" && site.Title == "" {
			continue
		}
		children.Websites = append(children.Websites, model.Website{
			JobID: jobID,
			URL:   site.URL,
			Title: site.Title,
		})
	}
	for _, email := range payload.Company.Emails {
		if email = strings.TrimSpace(email); email != "" {
			children.Emails = append(children.Emails, model.Email{JobID: jobID, Email: email})
		}
	}
	for _, ind := range payload.Company.Industries {
		children.Industries = append(children.Industries, model.Industry{
			JobID:     jobID,
			ID:        ind.ID,
			Title:     ind.Title,
			ImageMini: ind.ImageMini,
		})
	}
	for _, img := range payload.Company.Gallery {
		if img != "" {
			children.Gallery = append(children.Gallery, model.GalleryImage{JobID: jobID, URL: img})
		}
	}
	for _, f := range payload.Files {
		if f.URL == "" && f.Name == "" {
			continue
		}
		children.Files = append(children.Files, model.File{
			JobID: jobID,
			URL:   f.URL,
			Name:  f.Name,
			Type:  f.Type,
		})
	}
	return children
}

// rawToString renders a raw JSON scalar as its string form: quoted strings
// are unquoted, numbers pass through, null and objects become empty.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	s := strings.TrimSpace(string(raw))
	if s == "null" || s == "" {
		return ""
	}
	if s[0] == '"' {
		var out string
		if err := json.Unmarshal(raw, &out); err != nil {
			return ""
		}
		return out
	}
	if s[0] == '{' || s[0] == '[' {
		return ""
	}
	return s
}
