// Package roster looks members of Congress up in the Congress.gov API so
// callers can build an identity from a loosely spelled name.
package roster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/go-resty/resty/v2"

	"github.com/TheWillMundy/CapitolGains/models"
	"github.com/TheWillMundy/CapitolGains/utils"
)

const (
	DefaultBaseURL  = "https://api.congress.gov/v3"
	DefaultCongress = 118
	pageLimit       = 250
	matchThreshold  = 0.9
)

// ErrMemberNotFound is returned when no member is close enough to a lookup.
var ErrMemberNotFound = errors.New("member not found")

// Member is one entry of a congress's member list.
type Member struct {
	BioguideID string
	Name       string
	LastName   string
	FirstName  string
	Party      string
	State      string
	District   string
	Chamber    models.Chamber
	// DualChamber is set when the member has served in both chambers.
	// Chamber then reflects the latest term only.
	DualChamber bool
}

// Identity converts m into a search identity.
func (m Member) Identity() models.EntityIdentity {
	id := models.EntityIdentity{
		Chamber:   m.Chamber,
		LastName:  m.LastName,
		FirstName: m.FirstName,
		State:     stateCode(m.State),
	}
	if m.Chamber == models.House {
		id.District = m.District
	}
	return id
}

type memberPage struct {
	Members []struct {
		BioguideID string `json:"bioguideId"`
		Name       string `json:"name"`
		PartyName  string `json:"partyName"`
		State      string `json:"state"`
		District   *int   `json:"district"`
		Terms      struct {
			Item []struct {
				Chamber   string `json:"chamber"`
				StartYear int    `json:"startYear"`
			} `json:"item"`
		} `json:"terms"`
	} `json:"members"`
	Pagination struct {
		Count int    `json:"count"`
		Next  string `json:"next"`
	} `json:"pagination"`
}

type congressResponse struct {
	Congress struct {
		Number int `json:"number"`
	} `json:"congress"`
}

// Client talks to the Congress.gov v3 API.
type Client struct {
	http   *resty.Client
	retry  *utils.RetryConfig
	logger *utils.Logger
}

// New creates a Client. An empty baseURL selects the public API.
func New(apiKey, baseURL string, retry *utils.RetryConfig, logger *utils.Logger) *Client {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if retry == nil {
		retry = utils.NewRetryConfig(logger)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30*time.Second).
		SetHeader("x-api-key", apiKey).
		SetHeader("Accept", "application/json").
		SetQueryParam("format", "json")
	return &Client{http: client, retry: retry, logger: logger}
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	return c.retry.Do(ctx, "congress.gov "+path, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetResult(out).
			Get(path)
		if err != nil {
			return models.Transient("roster", err)
		}
		status := resp.StatusCode()
		switch {
		case status == http.StatusTooManyRequests || status >= 500:
			return models.Transient("roster", fmt.Errorf("%s: %s", path, resp.Status()))
		case resp.IsError():
			return fmt.Errorf("roster: %s: %s", path, resp.Status())
		}
		return nil
	})
}

// CurrentCongress returns the number of the sitting congress, falling back
// to DefaultCongress when the API cannot say.
func (c *Client) CurrentCongress(ctx context.Context) int {
	var resp congressResponse
	if err := c.get(ctx, "/congress/current", nil, &resp); err != nil || resp.Congress.Number == 0 {
		c.logger.Warn("[roster] Could not determine current congress, using %d: %v", DefaultCongress, err)
		return DefaultCongress
	}
	return resp.Congress.Number
}

// Members lists every member of the given congress.
func (c *Client) Members(ctx context.Context, congress int) ([]Member, error) {
	var all []Member
	for offset := 0; ; offset += pageLimit {
		var page memberPage
		params := map[string]string{
			"offset": strconv.Itoa(offset),
			"limit":  strconv.Itoa(pageLimit),
		}
		if err := c.get(ctx, fmt.Sprintf("/member/congress/%d", congress), params, &page); err != nil {
			return nil, err
		}

		for _, m := range page.Members {
			last, first := splitName(m.Name)
			member := Member{
				BioguideID: m.BioguideID,
				Name:       m.Name,
				LastName:   last,
				FirstName:  first,
				Party:      m.PartyName,
				State:      m.State,
			}
			if m.District != nil {
				member.District = strconv.Itoa(*m.District)
			}
			if terms := m.Terms.Item; len(terms) > 0 {
				member.Chamber = chamberOf(terms[len(terms)-1].Chamber)
				for _, t := range terms {
					if c := chamberOf(t.Chamber); c != "" && c != member.Chamber {
						member.DualChamber = true
					}
				}
			}
			all = append(all, member)
		}

		if page.Pagination.Next == "" || len(page.Members) == 0 {
			break
		}
	}
	c.logger.Info("[roster] Loaded %d members of congress %d", len(all), congress)
	return all, nil
}

// Lookup resolves a member of the sitting congress into a search identity.
// state and firstName are optional filters; state is a two-letter code.
func (c *Client) Lookup(ctx context.Context, lastName, state, firstName string) (models.EntityIdentity, error) {
	m, err := c.LookupMember(ctx, c.CurrentCongress(ctx), lastName, state, firstName)
	if err != nil {
		return models.EntityIdentity{}, err
	}
	return m.Identity(), nil
}

// LookupMember finds the member of congress whose last name best matches
// lastName.
func (c *Client) LookupMember(ctx context.Context, congress int, lastName, state, firstName string) (Member, error) {
	members, err := c.Members(ctx, congress)
	if err != nil {
		return Member{}, err
	}
	m, ok := bestMatch(members, lastName, state, firstName)
	if !ok {
		return Member{}, fmt.Errorf("%w: %q (state %q) in congress %d", ErrMemberNotFound, lastName, state, congress)
	}
	c.logger.Info("[roster] Matched %q to %s (%s, %s)", lastName, m.Name, m.State, m.Chamber)
	if m.DualChamber {
		c.logger.Warn("[roster] %s has served in both chambers; using the %s from the latest term", m.Name, m.Chamber)
	}
	return m, nil
}

func bestMatch(members []Member, lastName, state, firstName string) (Member, bool) {
	want := strings.ToLower(strings.TrimSpace(lastName))
	wantFirst := strings.ToLower(strings.TrimSpace(firstName))
	wantState := strings.ToUpper(strings.TrimSpace(state))

	var (
		best      Member
		bestScore float64
	)
	for _, m := range members {
		if m.Chamber == "" {
			continue
		}
		if wantState != "" && stateCode(m.State) != wantState {
			continue
		}
		if wantFirst != "" && !strings.HasPrefix(strings.ToLower(m.FirstName), wantFirst) {
			continue
		}
		score := matchr.JaroWinkler(want, strings.ToLower(m.LastName), false)
		if score > bestScore {
			best, bestScore = m, score
		}
	}
	return best, bestScore >= matchThreshold
}

// splitName splits the API's "Last, First Middle" form.
func splitName(name string) (last, first string) {
	last, rest, ok := strings.Cut(name, ",")
	if !ok {
		return strings.TrimSpace(name), ""
	}
	fields := strings.Fields(rest)
	if len(fields) > 0 {
		first = fields[0]
	}
	return strings.TrimSpace(last), first
}

func chamberOf(s string) models.Chamber {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "senate":
		return models.Senate
	case "house of representatives", "house":
		return models.House
	}
	return ""
}

var stateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA",
	"colorado": "CO", "connecticut": "CT", "delaware": "DE", "florida": "FL", "georgia": "GA",
	"hawaii": "HI", "idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS", "missouri": "MO",
	"montana": "MT", "nebraska": "NE", "nevada": "NV", "new hampshire": "NH", "new jersey": "NJ",
	"new mexico": "NM", "new york": "NY", "north carolina": "NC", "north dakota": "ND", "ohio": "OH",
	"oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington": "WA", "west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
	"district of columbia": "DC", "puerto rico": "PR", "guam": "GU", "virgin islands": "VI",
	"american samoa": "AS", "northern mariana islands": "MP",
}

// stateCode maps an API state name onto its postal code. Codes pass through.
func stateCode(s string) string {
	s = strings.TrimSpace(s)
	if code, ok := stateNames[strings.ToLower(s)]; ok {
		return code
	}
	return strings.ToUpper(s)
}
