// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/disclosure-engine/internal/httputil"
	"github.com/pdiddy/disclosure-engine/pkg/types"
)

// NCBI E-utilities endpoints. Declared as vars so tests can substitute an
// httptest server.
var (
	pubMedSearchURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	pubMedFetchURL  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
)

// pubMedTool identifies this client to NCBI alongside the contact email.
const pubMedTool = "disclosure-engine"

// PubMedProvider searches PubMed through the NCBI E-utilities: esearch
// resolves the author/affiliation term to PMIDs, efetch returns the article
// XML.
type PubMedProvider struct {
	Client *http.Client
	Email  string
	// APIKey raises the NCBI rate limit from 3 to 10 requests per second.
	APIKey     string
	UserAgent  string
	MaxRetries int
}

// Name returns the provider identifier.
func (p *PubMedProvider) Name() string { return string(types.ProviderPubMed) }

// Search returns up to q.Limit() articles for the researcher.
func (p *PubMedProvider) Search(ctx context.Context, q Query) ([]types.RawRecord, error) {
	term := buildPubMedTerm(q)
	if term == "" {
		return nil, &ProviderError{Provider: p.Name(), Query: q, Err: fmt.Errorf("empty researcher name")}
	}

	ids, err := p.esearch(ctx, term, q)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Query: q, Err: err}
	}
	if len(ids) == 0 {
		return []types.RawRecord{}, nil
	}

	articles, err := p.efetch(ctx, ids)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Query: q, Err: err}
	}

	records := make([]types.RawRecord, 0, len(articles))
	for _, a := range articles {
		records = append(records, a.rawRecord())
	}
	return records, nil
}

// buildPubMedTerm renders the E-utilities search term:
// "{last}, {first}[Author] AND {affiliation}[Affiliation]" plus an optional
// publication-type clause.
func buildPubMedTerm(q Query) string {
	last := strings.TrimSpace(q.Researcher.LastName)
	first := strings.TrimSpace(q.Researcher.FirstName)
	if last == "" && first == "" {
		return ""
	}

	author := last
	if first != "" {
		author = strings.TrimPrefix(last+", "+first, ", ")
	}
	parts := []string{author + "[Author]"}
	if aff := strings.TrimSpace(q.Affiliation); aff != "" {
		parts = append(parts, aff+"[Affiliation]")
	}

	var typeClauses []string
	for _, pt := range q.PublicationTypes {
		if pt = strings.TrimSpace(pt); pt != "" {
			typeClauses = append(typeClauses, fmt.Sprintf("%q[Publication Type]", pt))
		}
	}
	switch len(typeClauses) {
	case 0:
	case 1:
		parts = append(parts, typeClauses[0])
	default:
		parts = append(parts, "("+strings.Join(typeClauses, " OR ")+")")
	}
	return strings.Join(parts, " AND ")
}

func (p *PubMedProvider) commonParams() url.Values {
	v := url.Values{"db": {"pubmed"}, "tool": {pubMedTool}}
	if p.Email != "" {
		v.Set("email", p.Email)
	}
	if p.APIKey != "" {
		v.Set("api_key", p.APIKey)
	}
	return v
}

func (p *PubMedProvider) esearch(ctx context.Context, term string, q Query) ([]string, error) {
	params := p.commonParams()
	params.Set("term", term)
	params.Set("retmode", "json")
	params.Set("retmax", strconv.Itoa(q.Limit()))
	if q.SortBy == SortRelevance {
		params.Set("sort", "relevance")
	} else {
		params.Set("sort", "pub_date")
	}

	resp, err := p.get(ctx, pubMedSearchURL, params)
	if err != nil {
		return nil, fmt.Errorf("esearch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("esearch returned HTTP %d", resp.StatusCode)
	}

	var sr esearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing esearch response: %w", err)
	}
	if sr.Result.Error != "" {
		return nil, fmt.Errorf("esearch: %s", sr.Result.Error)
	}
	return sr.Result.IDList, nil
}

func (p *PubMedProvider) efetch(ctx context.Context, ids []string) ([]pubMedArticle, error) {
	params := p.commonParams()
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")

	resp, err := p.get(ctx, pubMedFetchURL, params)
	if err != nil {
		return nil, fmt.Errorf("efetch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("efetch returned HTTP %d", resp.StatusCode)
	}

	var set pubMedArticleSet
	if err := xml.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("parsing efetch XML: %w", err)
	}
	return set.Articles, nil
}

func (p *PubMedProvider) get(ctx context.Context, base string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	return httputil.DoWithRetry(ctx, p.Client, req, p.MaxRetries)
}

// rawRecord converts a PubMed article into the loosely typed record shape the
// normalizer consumes.
func (a pubMedArticle) rawRecord() types.RawRecord {
	art := a.Citation.Article

	authors := make([]any, 0, len(art.Authors))
	for _, au := range art.Authors {
		affs := make([]any, 0, len(au.Affiliations))
		for _, aff := range au.Affiliations {
			if s := strings.TrimSpace(aff.Text); s != "" {
				affs = append(affs, s)
			}
		}
		authors = append(authors, map[string]any{
			"name":        au.name(),
			"affiliation": affs,
		})
	}

	grants := make([]any, 0, len(art.Grants))
	for _, g := range art.Grants {
		if s := g.String(); s != "" {
			grants = append(grants, s)
		}
	}

	keywords := make([]any, 0)
	for _, list := range a.Citation.KeywordLists {
		for _, kw := range list.Keywords {
			keywords = append(keywords, inlineText(kw.Inner))
		}
	}

	var abstract []string
	for _, section := range art.Abstract {
		s := inlineText(section.Inner)
		if section.Label != "" && s != "" {
			s = section.Label + ": " + s
		}
		if s != "" {
			abstract = append(abstract, s)
		}
	}

	pmid := strings.TrimSpace(a.Citation.PMID)
	raw := types.RawRecord{
		"title":            inlineText(art.Title.Inner),
		"authors":          authors,
		"journal":          map[string]any{"name": strings.TrimSpace(art.Journal.Title)},
		"publication_date": art.Journal.Issue.PubDate.String(),
		"abstract":         strings.Join(abstract, "\n"),
		"doi":              a.doi(),
		"pmid":             pmid,
		"grants":           grants,
		"keywords":         keywords,
	}
	if pmid != "" {
		raw["url"] = "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/"
	}
	return raw
}

// doi prefers the PubmedData article ID and falls back to the ELocationID.
func (a pubMedArticle) doi() string {
	for _, id := range a.Data.ArticleIDs {
		if id.Type == "doi" {
			return strings.TrimSpace(id.Value)
		}
	}
	for _, loc := range a.Citation.Article.ELocationIDs {
		if loc.Type == "doi" {
			return strings.TrimSpace(loc.Value)
		}
	}
	return ""
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// inlineText strips inline markup (<i>, <sup>, ...) from an innerxml
// fragment, decodes entities, and collapses whitespace.
func inlineText(inner string) string {
	s := html.UnescapeString(tagPattern.ReplaceAllString(inner, ""))
	return strings.Join(strings.Fields(s), " ")
}

// E-utilities JSON and XML structures.
type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
		Error  string   `json:"ERROR"`
	} `json:"esearchresult"`
}

type pubMedArticleSet struct {
	Articles []pubMedArticle `xml:"PubmedArticle"`
}

type pubMedArticle struct {
	Citation pubMedCitation `xml:"MedlineCitation"`
	Data     pubMedData     `xml:"PubmedData"`
}

type pubMedCitation struct {
	PMID         string              `xml:"PMID"`
	Article      pubMedArticleBody   `xml:"Article"`
	KeywordLists []pubMedKeywordList `xml:"KeywordList"`
}

type pubMedArticleBody struct {
	Journal      pubMedJournal     `xml:"Journal"`
	Title        pubMedInline      `xml:"ArticleTitle"`
	Abstract     []pubMedAbstract  `xml:"Abstract>AbstractText"`
	Authors      []pubMedAuthor    `xml:"AuthorList>Author"`
	Grants       []pubMedGrant     `xml:"GrantList>Grant"`
	ELocationIDs []pubMedELocation `xml:"ELocationID"`
}

type pubMedInline struct {
	Inner string `xml:",innerxml"`
}

type pubMedAbstract struct {
	Label string `xml:"Label,attr"`
	Inner string `xml:",innerxml"`
}

type pubMedJournal struct {
	Title string `xml:"Title"`
	Issue struct {
		PubDate pubMedDate `xml:"PubDate"`
	} `xml:"JournalIssue"`
}

type pubMedDate struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	MedlineDate string `xml:"MedlineDate"`
}

// String renders "Year Month Day" with missing parts omitted, or the free-form
// MedlineDate when no year is given.
func (d pubMedDate) String() string {
	if d.Year == "" {
		return strings.TrimSpace(d.MedlineDate)
	}
	var parts []string
	for _, p := range []string{d.Year, d.Month, d.Day} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

type pubMedAuthor struct {
	LastName       string              `xml:"LastName"`
	ForeName       string              `xml:"ForeName"`
	CollectiveName string              `xml:"CollectiveName"`
	Affiliations   []pubMedAffiliation `xml:"AffiliationInfo"`
}

func (a pubMedAuthor) name() string {
	if a.CollectiveName != "" {
		return strings.TrimSpace(a.CollectiveName)
	}
	return strings.TrimSpace(a.ForeName + " " + a.LastName)
}

type pubMedAffiliation struct {
	Text string `xml:"Affiliation"`
}

type pubMedGrant struct {
	GrantID string `xml:"GrantID"`
	Agency  string `xml:"Agency"`
	Country string `xml:"Country"`
}

// String renders "Agency GrantID (Country)" with missing parts omitted.
func (g pubMedGrant) String() string {
	s := strings.TrimSpace(strings.TrimSpace(g.Agency) + " " + strings.TrimSpace(g.GrantID))
	if c := strings.TrimSpace(g.Country); c != "" && s != "" {
		s += " (" + c + ")"
	}
	return s
}

type pubMedKeywordList struct {
	Keywords []pubMedInline `xml:"Keyword"`
}

type pubMedData struct {
	ArticleIDs []pubMedTypedID `xml:"ArticleIdList>ArticleId"`
}

type pubMedTypedID struct {
	Type  string `xml:"IdType,attr"`
	Value string `xml:",chardata"`
}

type pubMedELocation struct {
	Type  string `xml:"EIdType,attr"`
	Value string `xml:",chardata"`
}
