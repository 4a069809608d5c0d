package membership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/specialistvlad/repotaskrun/internal/ctxlog"
	"github.com/specialistvlad/repotaskrun/internal/model"
	"golang.org/x/oauth2/clientcredentials"
)

// Defaults for the Microsoft Graph directory.
const (
	DefaultEndpoint = "https://graph.microsoft.com/v1.0"
	DefaultScope    = "https://graph.microsoft.com/.default"
)

// maxPages bounds nextLink pagination.
const maxPages = 100

// GraphConfig configures a GraphClient.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// TokenURL defaults to the tenant's v2.0 token endpoint.
	TokenURL string
	// Endpoint defaults to DefaultEndpoint.
	Endpoint string
}

// GraphClient queries a Graph-compatible directory for group names using
// the client credentials grant.
type GraphClient struct {
	endpoint string
	http     *http.Client
}

type memberOfPage struct {
	Value []struct {
		DisplayName string `json:"displayName"`
	} `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// NewGraphClient builds a client whose requests carry a token obtained with
// cfg's credentials. Tokens are cached and refreshed by the oauth2 package.
func NewGraphClient(ctx context.Context, cfg GraphConfig) (*GraphClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("membership: client id and secret are required")
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		if cfg.TenantID == "" {
			return nil, errors.New("membership: tenant id or token url is required")
		}
		tokenURL = "https://login.microsoftonline.com/" + url.PathEscape(cfg.TenantID) + "/oauth2/v2.0/token"
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{DefaultScope},
	}
	return &GraphClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     cc.Client(ctx),
	}, nil
}

// Groups lists the display names of every group principal is a member of,
// following pagination links.
func (c *GraphClient) Groups(ctx context.Context, principal string) (model.Set, error) {
	logger := ctxlog.FromContext(ctx)
	if principal == "" {
		return nil, errors.New("membership: principal is empty")
	}

	next := c.endpoint + "/users/" + url.PathEscape(principal) + "/memberOf?$select=displayName"
	var names []string
	for page := 0; next != ""; page++ {
		if page == maxPages {
			return nil, fmt.Errorf("membership: more than %d result pages", maxPages)
		}
		p, err := c.fetch(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, v := range p.Value {
			if v.DisplayName != "" {
				names = append(names, v.DisplayName)
			}
		}
		next = p.NextLink
	}

	groups := model.NewSet(names...)
	logger.Debug("Group membership resolved.", "principal", principal, "groups", len(groups))
	return groups, nil
}

func (c *GraphClient) fetch(ctx context.Context, link string) (*memberOfPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("membership: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("membership: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("membership: directory returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var page memberOfPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("membership: invalid response: %w", err)
	}
	return &page, nil
}
