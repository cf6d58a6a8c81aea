// Package cdedb provides Go functions to access the CdE Datenbank API.
package cdedb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	urlpkg "net/url"

	"github.com/cdetools/cdecao/config"
)

var client = &http.Client{}

// tokenHeader carries the API token of an event orga droid.
const tokenHeader = "X-CdEDB-API-Token"

type exportResponse struct {
	OK     bool            `json:"ok"`
	Export json.RawMessage `json:"export"`
}

// QuickPartialExport fetches the quick partial export of the event the
// configured API token belongs to and returns the raw partial export JSON
// document.
func QuickPartialExport(ctx context.Context) (json.RawMessage, error) {
	conf := config.GetConfig()
	return quickPartialExport(ctx, conf.CdEDB.Url, conf.CdEDB.Token)
}

func quickPartialExport(ctx context.Context, baseURL, token string) (json.RawMessage, error) {
	url, err := urlpkg.Parse(fmt.Sprintf("%s/event/event/droid/quick_partial_export", baseURL))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(tokenHeader, token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("bad status code in response: %d", resp.StatusCode)
	}
	var body exportResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("parsing export response: %w", err)
	}
	if !body.OK {
		return nil, fmt.Errorf("the CdE Datenbank reported an unsuccessful export")
	}
	if body.Export == nil {
		return nil, fmt.Errorf("no 'export' found in response")
	}
	return body.Export, nil
}
